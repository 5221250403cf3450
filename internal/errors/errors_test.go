package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("model.num_heads must divide model.dimension")
	wrapped := Wrap(fmt.Errorf("decode: %w", base), "configuration validation failed")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "configuration validation failed")

	assert.Equal(t, CodeInternalError, GetCode(Wrap(stderrors.New("eof"), "read")))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("registry upload: %w", StorageError("upload", stderrors.New("bucket missing")))
	assert.Equal(t, CodeStorageError, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestConstructorsKeepCause(t *testing.T) {
	cause := stderrors.New("training already in progress")

	cases := []struct {
		err  *AppError
		code string
		text string
	}{
		{ModelStateError("cannot train", cause), CodeModelState, "cannot train: training already in progress"},
		{DatabaseError("save matrix", cause), CodeDatabaseError, "save matrix failed: training already in progress"},
		{StorageError("save snapshot", cause), CodeStorageError, "save snapshot failed: training already in progress"},
		{ExternalServiceError("gcs", cause), CodeExternalService, "gcs service error: training already in progress"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, GetCode(tc.err))
		assert.True(t, stderrors.Is(tc.err, cause), tc.code)
		assert.Equal(t, tc.text, tc.err.Error())
	}
}

func TestPlainConstructors(t *testing.T) {
	err := InvalidInput("snapshot path must be relative")
	assert.Equal(t, CodeInvalidInput, GetCode(err))
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "snapshot path must be relative", err.Error())

	assert.Equal(t, CodeConfigInvalid, GetCode(ConfigInvalid("bad")))
}
