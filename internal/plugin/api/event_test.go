package api

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestEventBusOrder(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	var got []string
	record := func(name string) EventHandler {
		return func(data map[string]any) {
			got = append(got, name+":"+data["k"].(string))
		}
	}

	bus.Subscribe("a", "tick", record("first"))
	d := bus.Subscribe("b", "tick", record("second"))
	bus.Subscribe("c", "tick", record("third"))
	bus.Subscribe("c", "other", record("never"))

	if n := bus.Emit("tick", map[string]any{"k": "1"}); n != 3 {
		t.Errorf("Emit() = %d, want 3", n)
	}
	d.Dispose()
	bus.Emit("tick", map[string]any{"k": "2"})

	want := []string{"first:1", "second:1", "third:1", "first:2", "third:2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
	if n := bus.Count("tick"); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestEventBusPanicIsolated(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	ran := false
	bus.Subscribe("bad", "tick", func(map[string]any) { panic("boom") })
	bus.Subscribe("good", "tick", func(map[string]any) { ran = true })

	if n := bus.Emit("tick", nil); n != 1 {
		t.Errorf("Emit() = %d, want 1", n)
	}
	if !ran {
		t.Error("handler after the panicking one did not run")
	}
}

func TestEventBusDisposeLast(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	d := bus.Subscribe("a", "tick", func(map[string]any) {})
	d.Dispose()
	if n := bus.Count("tick"); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
	if n := bus.Emit("tick", nil); n != 0 {
		t.Errorf("Emit() = %d, want 0", n)
	}
}
