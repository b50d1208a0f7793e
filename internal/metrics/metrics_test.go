package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserver(t *testing.T) {
	m := New()

	m.Activation("notes", true, 20*time.Millisecond)
	m.Activation("notes", false, time.Millisecond)
	m.Activation("hub", true, time.Millisecond)
	m.Contexts(3)
	m.Reload("notes", false)
	m.SafeMode(true)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"notes ok", testutil.ToFloat64(m.activations.WithLabelValues("notes", "ok")), 1},
		{"notes error", testutil.ToFloat64(m.activations.WithLabelValues("notes", "error")), 1},
		{"hub ok", testutil.ToFloat64(m.activations.WithLabelValues("hub", "ok")), 1},
		{"contexts", testutil.ToFloat64(m.contexts), 3},
		{"reload error", testutil.ToFloat64(m.reloads.WithLabelValues("notes", "error")), 1},
		{"safe mode", testutil.ToFloat64(m.safeMode), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.activationDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}

	m.SafeMode(false)
	if v := testutil.ToFloat64(m.safeMode); v != 0 {
		t.Errorf("safe mode after exit = %v", v)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Activation("hub", true, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`plughost_activations_total{plugin="hub",status="ok"} 1`,
		"plughost_active_contexts 0",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
