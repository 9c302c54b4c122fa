package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveGateway("get_machine", "ok", 15*time.Millisecond)
		IncReceipt("sent")
	})
}

func TestSubmissionCounter(t *testing.T) {
	before := testutil.ToFloat64(submissions.WithLabelValues("staff", "remote_rejection"))
	IncSubmission("staff", "remote_rejection")
	assert.Equal(t, before+1, testutil.ToFloat64(submissions.WithLabelValues("staff", "remote_rejection")))
}

func TestTransitionsAndGauge(t *testing.T) {
	ObserveTransition("self_service", "select_period", "advance")
	assert.GreaterOrEqual(t, testutil.ToFloat64(transitions.WithLabelValues("self_service", "select_period", "advance")), 1.0)

	SetActiveSessions(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(activeSessions))
}
