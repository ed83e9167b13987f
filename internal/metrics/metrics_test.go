package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mbd888/riskoracle/internal/oracle"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{403, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestRecordUpdate(t *testing.T) {
	accepted := RiskUpdatesTotal.WithLabelValues(ResultAccepted)
	before := counterValue(t, accepted)

	at := time.Unix(1_700_000_000, 500_000_000)
	RecordUpdate(oracle.Update{ValidatorID: "metrics_v1", Score: 73, At: at})

	if got := counterValue(t, accepted); got != before+1 {
		t.Errorf("accepted updates = %v, want %v", got, before+1)
	}
	if got := gaugeValue(t, RiskScore.WithLabelValues("metrics_v1")); got != 73 {
		t.Errorf("risk_score = %v, want 73", got)
	}
	if got := gaugeValue(t, LastUpdateTimestamp); got != 1_700_000_000.5 {
		t.Errorf("last_update_timestamp_seconds = %v, want 1700000000.5", got)
	}
}

func TestSeed(t *testing.T) {
	Seed(oracle.View{
		Entries:    []oracle.Entry{{ValidatorID: "seed_a", Score: 12}, {ValidatorID: "seed_b", Score: 200}},
		LastUpdate: time.Unix(1_600_000_000, 0),
	})

	if got := gaugeValue(t, RiskScore.WithLabelValues("seed_b")); got != 200 {
		t.Errorf("risk_score = %v, want 200", got)
	}
	if got := gaugeValue(t, LastUpdateTimestamp); got != 1_600_000_000 {
		t.Errorf("last_update_timestamp_seconds = %v", got)
	}
}

func TestMiddleware_CountsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/risk/:validator", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := HTTPRequestsTotal.WithLabelValues("GET", "/v1/risk/:validator", "2xx")
	before := counterValue(t, counter)

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/risk/"+id, nil))
	}

	if got := counterValue(t, counter); got != before+3 {
		t.Errorf("requests = %v, want %v", got, before+3)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	EventsDroppedTotal.Add(0)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, name := range []string{
		"riskoracle_active_websocket_clients",
		"riskoracle_last_update_timestamp_seconds",
		"riskoracle_events_dropped_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}
