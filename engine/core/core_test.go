package core

import (
	"testing"
)

func TestDispatcherRegisterFire(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	first := "first"
	second := "second"
	if !d.Register(EventCodeResized, first, func(code SystemEventCode, sender, listener interface{}, ctx EventContext) bool {
		calls = append(calls, listener.(string))
		return false
	}) {
		t.Fatal("first registration failed")
	}
	if d.Register(EventCodeResized, first, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }) {
		t.Fatal("duplicate listener must be rejected")
	}
	d.Register(EventCodeResized, second, func(code SystemEventCode, sender, listener interface{}, ctx EventContext) bool {
		calls = append(calls, listener.(string))
		return ctx.Data.U32[0] == 0
	})

	ctx := EventContext{}
	ctx.Data.U32[0] = 640
	if d.Fire(EventCodeResized, nil, ctx) {
		t.Fatal("no handler should have consumed the event")
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected call order %v", calls)
	}

	if !d.Unregister(EventCodeResized, first) {
		t.Fatal("unregister of a known listener failed")
	}
	if d.Unregister(EventCodeResized, first) {
		t.Fatal("second unregister should report nothing removed")
	}

	calls = nil
	if !d.Fire(EventCodeResized, nil, EventContext{}) {
		t.Fatal("second listener should have handled the event")
	}
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %v", calls)
	}

	if d.Fire(EventCodeApplicationQuit, nil, EventContext{}) {
		t.Fatal("no listener for quit")
	}
}

func TestIDPoolReusesReleasedIDs(t *testing.T) {
	p := NewIDPool(2)
	a := p.Acquire("a")
	b := p.Acquire("b")
	c := p.Acquire("c")
	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("ids = %d %d %d", a, b, c)
	}
	if err := p.Release(b); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Owner(b); ok {
		t.Fatal("released id still owned")
	}
	if got := p.Acquire("d"); got != b {
		t.Fatalf("expected released id %d to be reused, got %d", b, got)
	}
	if err := p.Release(42); err == nil {
		t.Fatal("expected an out of range error")
	}
	if owner, ok := p.Owner(c); !ok || owner != "c" {
		t.Fatalf("owner of %d = %v, %t", c, owner, ok)
	}
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < AvgCount; i++ {
		m.Update(0.010)
	}
	if ft := m.FrameTime(); ft < 9.99 || ft > 10.01 {
		t.Fatalf("frame time = %f, want 10ms", ft)
	}
	// 30 frames of 10ms is 300ms, not enough for an fps sample yet.
	if m.FPS() != 0 {
		t.Fatalf("fps = %f, want 0", m.FPS())
	}
	for i := 0; i < 71; i++ {
		m.Update(0.010)
	}
	if fps := m.FPS(); fps < 99 || fps > 101 {
		t.Fatalf("fps = %f, want ~100", fps)
	}
}

func TestSetLogLevel(t *testing.T) {
	if err := SetLogLevel("info"); err != nil {
		t.Fatal(err)
	}
	if err := SetLogLevel("loud"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
	if err := SetLogLevel("debug"); err != nil {
		t.Fatal(err)
	}
}
