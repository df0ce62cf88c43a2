package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAPIObserve(t *testing.T) {
	api := NewAPI(prometheus.NewRegistry())
	api.Observe("levels", time.Now(), nil)
	api.Observe("levels", time.Now(), errors.New("x"))

	if got := testutil.ToFloat64(api.errors.WithLabelValues("levels")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(api.latency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}

	var nilAPI *API
	nilAPI.Observe("levels", time.Now(), nil)
}
