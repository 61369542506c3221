package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goclaw/intersection/pkg/detector"
	"github.com/goclaw/intersection/pkg/framebus"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
	"github.com/goclaw/intersection/pkg/storage"
	"github.com/goclaw/intersection/pkg/storage/memory"
)

type harness struct {
	ctrl   *Controller
	ticks  chan time.Time
	events <-chan *framebus.Event
	store  *memory.MemoryStorage
}

func newHarness(t *testing.T, roads []intersection.Road, green, yellow int, det detector.Detector) *harness {
	t.Helper()

	cfg, err := intersection.NewConfig(roads, green, yellow)
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	bus := framebus.NewLocalBus(64, nil)
	events, err := bus.Subscribe(context.Background(), "test")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	h := &harness{
		ticks:  make(chan time.Time),
		events: events,
		store:  memory.NewMemoryStorage(),
	}
	h.ctrl, err = New("main", cfg,
		WithLogger(logger.Nop()),
		WithFrameBus(bus),
		WithStorage(h.store),
		WithDetector(det),
		WithTicks(h.ticks),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = h.ctrl.Close()
		_ = bus.Close()
	})
	return h
}

func (h *harness) nextFrame(t *testing.T) *framebus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == framebus.EventFrame {
				return ev
			}
		case <-timeout:
			t.Fatal("timeout waiting for frame")
			return nil
		}
	}
}

func (h *harness) tick(t *testing.T) *framebus.Event {
	t.Helper()
	select {
	case h.ticks <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("tick loop is not waiting for ticks")
	}
	return h.nextFrame(t)
}

func (h *harness) upload(t *testing.T, road intersection.Road) {
	t.Helper()
	err := h.ctrl.UploadImage(context.Background(), &storage.RoadImage{
		Road:        road,
		ContentType: "image/jpeg",
		Data:        []byte{0xff, 0xd8, 0xff},
	})
	if err != nil {
		t.Fatalf("UploadImage(%s) error = %v", road, err)
	}
}

func active(t *testing.T, f intersection.Frame) intersection.Signal {
	t.Helper()
	sig, ok := f.Active()
	if !ok {
		t.Fatalf("frame %v has no active road", f)
	}
	return sig
}

func TestNew_Validation(t *testing.T) {
	cfg, _ := intersection.NewConfig([]intersection.Road{"A", "B"}, 5, 2)
	if _, err := New("", cfg); err == nil {
		t.Error("expected empty name to fail")
	}
	if _, err := New("main", intersection.Config{}); !errors.Is(err, intersection.ErrInvalidConfiguration) {
		t.Errorf("New() with zero config error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestController_FairSessionWithoutImages(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, detector.NewStaticDetector("A"))

	changed, err := h.ctrl.Start(context.Background())
	if err != nil || !changed {
		t.Fatalf("Start() = %v, %v; want true, nil", changed, err)
	}

	first := h.nextFrame(t)
	if first.Tick != 1 || first.Round != intersection.RoundFair {
		t.Errorf("first event tick=%d round=%s, want 1 fair", first.Tick, first.Round)
	}
	if sig := active(t, first.Frame); sig.Road != "A" || sig.Color != intersection.Green || sig.Remaining != 3 {
		t.Errorf("first active = %+v, want A green 3", sig)
	}

	want := []struct {
		road      intersection.Road
		color     intersection.Color
		remaining int
	}{
		{"A", intersection.Green, 2},
		{"A", intersection.Green, 1},
		{"A", intersection.Yellow, 1},
		{"B", intersection.Green, 3},
	}
	for i, w := range want {
		ev := h.tick(t)
		sig := active(t, ev.Frame)
		if sig.Road != w.road || sig.Color != w.color || sig.Remaining != w.remaining {
			t.Errorf("tick %d: active = %+v, want %s %s %d", i+2, sig, w.road, w.color, w.remaining)
		}
	}
}

func TestController_PriorityFromUploadedImages(t *testing.T) {
	roads := []intersection.Road{"A", "B", "C", "D"}
	h := newHarness(t, roads, 2, 1, detector.NewStaticDetector("C"))

	h.upload(t, "A")
	h.upload(t, "C")

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := h.nextFrame(t)
	if first.Round != intersection.RoundPriority {
		t.Errorf("round = %s, want priority", first.Round)
	}
	if sig := active(t, first.Frame); sig.Road != "C" {
		t.Errorf("first green = %s, want C", sig.Road)
	}

	st := h.ctrl.Status(context.Background())
	if len(st.Flagged) != 1 || st.Flagged[0] != "C" {
		t.Errorf("flagged = %v, want [C]", st.Flagged)
	}
	if st.Session == "" || st.StartedAt == nil {
		t.Error("running session should have an id and start time")
	}

	h.tick(t)
	h.tick(t)
	ev := h.tick(t)
	if sig := active(t, ev.Frame); sig.Road != "A" || sig.Color != intersection.Green || sig.Remaining != 2 {
		t.Errorf("after priority round active = %+v, want A green 2", sig)
	}
	if ev.Round != intersection.RoundFair {
		t.Errorf("round = %s, want fair", ev.Round)
	}
}

func TestController_FrameEventsFollowCycles(t *testing.T) {
	roads := []intersection.Road{"A", "B", "C", "D"}
	h := newHarness(t, roads, 2, 1, detector.NewStaticDetector("C"))
	h.upload(t, "C")

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	events := []*framebus.Event{h.nextFrame(t)}
	for len(events) < 19 {
		events = append(events, h.tick(t))
	}

	for i, ev := range events {
		tick := uint64(i + 1)
		if ev.Tick != tick {
			t.Fatalf("event %d tick = %d, want %d", i, ev.Tick, tick)
		}
		want := intersection.RoundFair
		if tick <= 3 || (tick >= 16 && tick <= 18) {
			want = intersection.RoundPriority
		}
		if ev.Round != want {
			t.Errorf("tick %d round = %s, want %s", tick, ev.Round, want)
		}
	}
	if sig := active(t, events[15].Frame); sig.Road != "C" || sig.Color != intersection.Green || sig.Remaining != 2 {
		t.Errorf("tick 16 active = %+v, want C green 2", sig)
	}
	if sig := active(t, events[18].Frame); sig.Road != "A" || sig.Color != intersection.Green {
		t.Errorf("tick 19 active = %+v, want A green", sig)
	}
}

func TestController_DetectorFailureFallsBackToFair(t *testing.T) {
	failing := detector.Func(func(_ context.Context, road intersection.Road, _ []byte) (bool, error) {
		return false, &detector.RequestError{Road: road, Cause: errors.New("timeout")}
	})
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, failing)
	h.upload(t, "B")

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, detector failures must not fail the session", err)
	}
	ev := h.nextFrame(t)
	if ev.Round != intersection.RoundFair {
		t.Errorf("round = %s, want fair", ev.Round)
	}
}

func TestController_StartWhileRunningIsNoop(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, nil)

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := h.nextFrame(t)

	changed, err := h.ctrl.Start(context.Background())
	if err != nil || changed {
		t.Errorf("second Start() = %v, %v; want false, nil", changed, err)
	}
	if ev := h.tick(t); ev.Tick != first.Tick+1 || ev.Session != first.Session {
		t.Errorf("tick after second start = %d (session %s), want %d (session %s)", ev.Tick, ev.Session, first.Tick+1, first.Session)
	}
}

func TestController_StopFreezesAndResumes(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, nil)

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.nextFrame(t)
	frozen := h.tick(t).Frame

	if !h.ctrl.Stop(context.Background()) {
		t.Fatal("Stop() should report a change")
	}
	if h.ctrl.Stop(context.Background()) {
		t.Error("second Stop() should be a no-op")
	}
	if got := h.ctrl.Frame(); !got.Equal(frozen) {
		t.Errorf("frame after stop = %v, want %v", got, frozen)
	}
	if st := h.ctrl.Status(context.Background()); st.Lifecycle != intersection.Stopped {
		t.Errorf("lifecycle = %s, want stopped", st.Lifecycle)
	}

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ev := h.nextFrame(t)
	if ev.Tick != 3 {
		t.Errorf("tick after resume = %d, want 3", ev.Tick)
	}
	if sig := active(t, ev.Frame); sig.Road != "A" || sig.Remaining != 1 {
		t.Errorf("active after resume = %+v, want A green 1", sig)
	}
}

func TestController_ResetClearsSessionAndImages(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, detector.NewStaticDetector("B"))
	h.upload(t, "B")

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.nextFrame(t)

	h.ctrl.Reset(context.Background())
	h.ctrl.Reset(context.Background())

	st := h.ctrl.Status(context.Background())
	if st.Lifecycle != intersection.Idle || st.Session != "" || st.Tick != 0 {
		t.Errorf("status after reset = %+v", st)
	}
	for _, sig := range st.Frame {
		if sig.Color != intersection.Red || sig.Remaining != 0 {
			t.Errorf("signal after reset = %+v, want red", sig)
		}
	}
	if len(st.Images) != 0 {
		t.Errorf("images after reset = %d, want 0", len(st.Images))
	}

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ev := h.nextFrame(t); ev.Round != intersection.RoundFair || ev.Tick != 1 {
		t.Errorf("session after reset tick=%d round=%s, want 1 fair", ev.Tick, ev.Round)
	}
}

func TestController_Reconfigure(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, nil)

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.nextFrame(t)

	cfg, err := intersection.NewConfig(intersection.DefaultRoadNames(3), 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Reconfigure(context.Background(), cfg); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}

	st := h.ctrl.Status(context.Background())
	if st.Lifecycle != intersection.Idle {
		t.Errorf("lifecycle = %s, want idle", st.Lifecycle)
	}
	if len(st.Config.Roads) != 3 || st.Config.GreenSeconds != 5 || st.Config.YellowSeconds != 2 {
		t.Errorf("config = %+v", st.Config)
	}
	if len(st.Frame) != 3 {
		t.Errorf("frame has %d signals, want 3", len(st.Frame))
	}

	if err := h.ctrl.Reconfigure(context.Background(), intersection.Config{}); !errors.Is(err, intersection.ErrInvalidConfiguration) {
		t.Errorf("Reconfigure(zero) error = %v", err)
	}
}

func TestController_ImagesForUnknownRoad(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, nil)

	err := h.ctrl.UploadImage(context.Background(), &storage.RoadImage{Road: "Z", Data: []byte("x")})
	if !errors.Is(err, ErrUnknownRoad) {
		t.Errorf("UploadImage(Z) error = %v, want ErrUnknownRoad", err)
	}
	if err := h.ctrl.DeleteImage(context.Background(), "Z"); !errors.Is(err, ErrUnknownRoad) {
		t.Errorf("DeleteImage(Z) error = %v, want ErrUnknownRoad", err)
	}

	h.upload(t, "A")
	images, err := h.ctrl.Images(context.Background())
	if err != nil || len(images) != 1 || images[0].Road != "A" || images[0].Size != 3 {
		t.Errorf("Images() = %+v, %v", images, err)
	}
	if err := h.ctrl.DeleteImage(context.Background(), "A"); err != nil {
		t.Errorf("DeleteImage(A) error = %v", err)
	}
	var nf *storage.NotFoundError
	if err := h.ctrl.DeleteImage(context.Background(), "A"); !errors.As(err, &nf) {
		t.Errorf("second DeleteImage(A) error = %v, want NotFoundError", err)
	}
}

func TestController_LifecycleEvents(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, nil)

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Stop(context.Background())

	var lifecycles []intersection.Lifecycle
	timeout := time.After(2 * time.Second)
	for len(lifecycles) < 2 {
		select {
		case ev := <-h.events:
			if ev.Type == framebus.EventLifecycle {
				lifecycles = append(lifecycles, ev.Lifecycle)
			}
		case <-timeout:
			t.Fatalf("got lifecycle events %v, want running and stopped", lifecycles)
		}
	}
	if lifecycles[0] != intersection.Running || lifecycles[1] != intersection.Stopped {
		t.Errorf("lifecycle events = %v, want [running stopped]", lifecycles)
	}
}

func TestController_Close(t *testing.T) {
	h := newHarness(t, []intersection.Road{"A", "B"}, 3, 1, nil)

	if _, err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
	if err := h.ctrl.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
