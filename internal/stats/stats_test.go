package stats

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestNewStatsUpdater_reusesExportedMap(t *testing.T) {
	first := NewStatsUpdater(http.NewServeMux())

	// the expvar name is process-global; a second updater must reuse it
	// instead of panicking on re-export
	second := NewStatsUpdater(http.NewServeMux())
	assert.Same(t, first.vars, second.vars, "expected both updaters to share the exported map")

	second.RegisterMetric("Connections")
	assert.NotNil(t, second.vars.Get("Connections"))
}

func TestIncrDecr_doesNotBlockWhenFull(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric("Connections")

	// the updater goroutine is intentionally not running; fill the buffer
	// and verify further updates are dropped instead of blocking
	for i := 0; i < cap(su.updateChan)+10; i++ {
		su.Incr("Connections")
	}

	assert.Len(t, su.updateChan, cap(su.updateChan), "expected buffer to be full, not grown")
	su.Decr("Connections")
}
