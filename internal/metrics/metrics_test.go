package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("ok"))
	PredictionsTotal.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PredictionsTotal.WithLabelValues("ok")))

	LastValidationLoss.Set(0.25)
	assert.Equal(t, 0.25, testutil.ToFloat64(LastValidationLoss))
}
