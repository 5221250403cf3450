package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"factorcorr/internal"
	apperrors "factorcorr/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsConnectError(t *testing.T) {
	var out bytes.Buffer
	logger := internal.NewLoggerWithOutput(internal.LogLevelInfo, "json", &out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := run(ctx, logger, []string{"postgres://migrate@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
	assert.Empty(t, out.String())
}
