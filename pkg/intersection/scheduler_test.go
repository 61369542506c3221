package intersection

import (
	"sync"
	"testing"
)

type tickWant struct {
	road      Road
	color     Color
	remaining int
}

func newTestScheduler(t *testing.T, roads []Road, green, yellow int) *Scheduler {
	t.Helper()
	cfg, err := NewConfig(roads, green, yellow)
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	s, err := NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

// assertExclusive checks that exactly one road is non-Red and every Red road
// shows zero remaining.
func assertExclusive(t *testing.T, tick int, f Frame) {
	t.Helper()
	active := 0
	for _, sig := range f {
		if sig.Color == Red {
			if sig.Remaining != 0 {
				t.Errorf("tick %d: red road %s has remaining %d", tick, sig.Road, sig.Remaining)
			}
			continue
		}
		active++
		if sig.Remaining < 1 {
			t.Errorf("tick %d: active road %s has remaining %d", tick, sig.Road, sig.Remaining)
		}
	}
	if active != 1 {
		t.Errorf("tick %d: %d non-red roads in %s", tick, active, f)
	}
}

func expectTicks(t *testing.T, s *Scheduler, want []tickWant) {
	t.Helper()
	for i, w := range want {
		f := s.Advance()
		assertExclusive(t, i+1, f)
		got, ok := f.Active()
		if !ok {
			t.Fatalf("tick %d: no active road", i+1)
		}
		if got.Road != w.road || got.Color != w.color || got.Remaining != w.remaining {
			t.Fatalf("tick %d: got %s=%s(%d), want %s=%s(%d)",
				i+1, got.Road, got.Color, got.Remaining, w.road, w.color, w.remaining)
		}
	}
}

func TestScheduler_PriorityPrecedence(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C", "D"}, 2, 1)
	if !s.Start(NewPresenceSet("C")) {
		t.Fatal("Start() from idle should change lifecycle")
	}
	if st := s.Status(); st.Round != RoundPriority {
		t.Errorf("round = %s, want priority", st.Round)
	}

	expectTicks(t, s, []tickWant{
		{"C", Green, 2},
		{"C", Green, 1},
		{"C", Yellow, 1},
		{"A", Green, 2},
	})
	if st := s.Status(); st.Round != RoundFair {
		t.Errorf("round after priority service = %s, want fair", st.Round)
	}
}

func TestScheduler_PriorityKeepsConfigOrder(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C", "D"}, 1, 1)
	s.Start(NewPresenceSet("D", "B"))

	expectTicks(t, s, []tickWant{
		{"B", Green, 1},
		{"B", Yellow, 1},
		{"D", Green, 1},
		{"D", Yellow, 1},
		{"A", Green, 1},
		{"A", Yellow, 1},
		{"B", Green, 1},
		{"B", Yellow, 1},
		{"C", Green, 1},
		{"C", Yellow, 1},
		{"D", Green, 1},
		{"D", Yellow, 1},
		// Next cycle opens with the priority round again.
		{"B", Green, 1},
	})
	if st := s.Status(); st.Round != RoundPriority {
		t.Errorf("round = %s, want priority", st.Round)
	}
}

func TestScheduler_FairRotationCompleteness(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 3, 1)
	s.Start(PresenceSet{})
	if st := s.Status(); st.Round != RoundFair {
		t.Errorf("round = %s, want fair", st.Round)
	}

	cycle := []tickWant{
		{"A", Green, 3}, {"A", Green, 2}, {"A", Green, 1}, {"A", Yellow, 1},
		{"B", Green, 3}, {"B", Green, 2}, {"B", Green, 1}, {"B", Yellow, 1},
	}
	expectTicks(t, s, cycle)
	// The next pass starts over from A with the same shape.
	expectTicks(t, s, cycle)
}

func TestScheduler_PriorityRoundRepeatsWithCapturedPresence(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C"}, 1, 1)
	s.Start(NewPresenceSet("C"))

	// priority C (2 ticks) + one fair pass (6 ticks), then priority C again.
	for i := 0; i < 8; i++ {
		s.Advance()
	}
	expectTicks(t, s, []tickWant{{"C", Green, 1}})
	st := s.Status()
	if st.Round != RoundPriority {
		t.Errorf("round = %s, want priority", st.Round)
	}
	if len(st.Flagged) != 1 || st.Flagged[0] != "C" {
		t.Errorf("flagged = %v, want [C]", st.Flagged)
	}
	if got := s.Presence(); !got.Has("C") || got.Len() != 1 {
		t.Errorf("presence should stay as captured, got len %d", got.Len())
	}
}

func TestScheduler_CycleRestartsAtPriorityRound(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C", "D"}, 2, 1)
	s.Start(NewPresenceSet("C"))

	// One cycle: priority C (3 ticks) + fair A..D (12 ticks).
	for i := 0; i < 15; i++ {
		s.Advance()
	}
	f, st := s.AdvanceStatus()
	if st.Tick != 16 {
		t.Fatalf("tick = %d, want 16", st.Tick)
	}
	active, ok := f.Active()
	if !ok || active.Road != "C" || active.Color != Green || active.Remaining != 2 {
		t.Errorf("tick 16 active = %+v, want C green 2", active)
	}
	if st.Round != RoundPriority {
		t.Errorf("tick 16 round = %s, want priority", st.Round)
	}
	// After the repeated priority round the fair round starts over from A.
	expectTicks(t, s, []tickWant{{"C", Green, 1}, {"C", Yellow, 1}, {"A", Green, 2}})
	if got := s.Status().Round; got != RoundFair {
		t.Errorf("round = %s, want fair", got)
	}
}

func TestScheduler_AdvanceStatusMatchesFrame(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C"}, 2, 1)
	s.Start(NewPresenceSet("B"))

	for tick := uint64(1); tick <= uint64(3*s.Config().CycleTicks()); tick++ {
		f, st := s.AdvanceStatus()
		if st.Tick != tick {
			t.Fatalf("status tick = %d, want %d", st.Tick, tick)
		}
		active, ok := f.Active()
		if !ok {
			t.Fatalf("tick %d: no active road", tick)
		}
		if st.Active != active.Road || st.Color != active.Color || st.Remaining != active.Remaining {
			t.Fatalf("tick %d: status %s %s %d, frame %+v", tick, st.Active, st.Color, st.Remaining, active)
		}
		if st.Lifecycle != Running {
			t.Fatalf("tick %d: lifecycle = %s", tick, st.Lifecycle)
		}
	}

	s.Stop()
	before := s.Frame()
	f, st := s.AdvanceStatus()
	if st.Lifecycle != Stopped || st.Tick != uint64(3*s.Config().CycleTicks()) {
		t.Errorf("stopped status = %+v", st)
	}
	if f.String() != before.String() {
		t.Errorf("stopped frame changed: %s -> %s", before, f)
	}
}

func TestScheduler_CountdownCorrectness(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C"}, 5, 3)
	s.Start(NewPresenceSet("B"))

	var prev Signal
	for tick := 1; tick <= 4*s.Config().CycleTicks(); tick++ {
		f := s.Advance()
		assertExclusive(t, tick, f)
		cur, _ := f.Active()
		if tick > 1 && cur.Road == prev.Road && cur.Color == prev.Color {
			if cur.Remaining != prev.Remaining-1 {
				t.Fatalf("tick %d: remaining %d after %d within one phase", tick, cur.Remaining, prev.Remaining)
			}
		} else if tick > 1 {
			if prev.Remaining != 1 {
				t.Fatalf("tick %d: phase changed while previous remaining was %d", tick, prev.Remaining)
			}
			want := 5
			if cur.Color == Yellow {
				want = 3
			}
			if cur.Remaining != want {
				t.Fatalf("tick %d: new %s phase starts at %d, want %d", tick, cur.Color, cur.Remaining, want)
			}
		}
		prev = cur
	}
}

func TestScheduler_ExclusivityAcrossPresenceSets(t *testing.T) {
	roads := []Road{"A", "B", "C", "D"}
	sets := []PresenceSet{
		{},
		NewPresenceSet("A"),
		NewPresenceSet("B", "D"),
		NewPresenceSet("A", "B", "C", "D"),
		NewPresenceSet("unknown"),
	}
	for _, p := range sets {
		s := newTestScheduler(t, roads, 2, 2)
		s.Start(p)
		for tick := 1; tick <= 50; tick++ {
			assertExclusive(t, tick, s.Advance())
		}
	}
}

func TestScheduler_UnknownPresenceFallsBackToFairRound(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 2, 1)
	s.Start(NewPresenceSet("Z"))
	if st := s.Status(); st.Round != RoundFair || len(st.Flagged) != 0 {
		t.Errorf("status = %+v, want fair round with no flagged roads", st)
	}
	expectTicks(t, s, []tickWant{{"A", Green, 2}})
}

func TestScheduler_AdvanceBeforeStartIsNoop(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 2, 1)
	before := s.Frame()
	for i := 0; i < 3; i++ {
		f := s.Advance()
		if !f.Equal(before) {
			t.Fatalf("Advance() before Start changed frame: %s", f)
		}
	}
	if _, ok := before.Active(); ok {
		t.Error("idle frame must be all red")
	}
	if s.Lifecycle() != Idle {
		t.Errorf("lifecycle = %s, want idle", s.Lifecycle())
	}
}

func TestScheduler_StopFreezesFrame(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 3, 1)
	s.Start(PresenceSet{})
	s.Advance()
	frozen := s.Advance() // A green 2

	if !s.Stop() {
		t.Fatal("Stop() while running should change lifecycle")
	}
	if s.Stop() {
		t.Error("second Stop() should be a no-op")
	}
	for i := 0; i < 5; i++ {
		if f := s.Advance(); !f.Equal(frozen) {
			t.Fatalf("Advance() after Stop changed frame: %s, want %s", f, frozen)
		}
	}
	if s.Running() {
		t.Error("Running() should be false after Stop")
	}

	// Resuming continues from the frozen position.
	if !s.Start(NewPresenceSet("B")) {
		t.Fatal("Start() from stopped should resume")
	}
	expectTicks(t, s, []tickWant{{"A", Green, 1}, {"A", Yellow, 1}, {"B", Green, 3}})
	if got := s.Presence(); !got.Empty() {
		t.Error("resume must not capture a new presence set")
	}
}

func TestScheduler_StartWhileRunningIsNoop(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 2, 1)
	s.Start(PresenceSet{})
	s.Advance()
	if s.Start(NewPresenceSet("B")) {
		t.Error("Start() while running should report no change")
	}
	expectTicks(t, s, []tickWant{{"A", Green, 1}})
}

func TestScheduler_ResetIdempotence(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C"}, 2, 1)
	s.Start(NewPresenceSet("B"))
	for i := 0; i < 4; i++ {
		s.Advance()
	}

	for i := 0; i < 2; i++ {
		s.Reset()
		st := s.Status()
		if st.Lifecycle != Idle || st.Round != RoundNone || st.Tick != 0 {
			t.Errorf("reset %d: status = %+v", i+1, st)
		}
		if !s.Presence().Empty() {
			t.Errorf("reset %d: presence not cleared", i+1)
		}
		if _, ok := s.Frame().Active(); ok {
			t.Errorf("reset %d: frame not all red", i+1)
		}
	}

	// A fresh session starts from the beginning with the new presence set.
	s.Start(NewPresenceSet("C"))
	expectTicks(t, s, []tickWant{{"C", Green, 2}})
}

func TestScheduler_ResetFromIdle(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 2, 1)
	s.Reset()
	if s.Lifecycle() != Idle {
		t.Errorf("lifecycle = %s, want idle", s.Lifecycle())
	}
}

func TestScheduler_Reconfigure(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 2, 1)
	s.Start(PresenceSet{})
	s.Advance()

	cfg, err := NewConfig([]Road{"N", "S", "E"}, 1, 1)
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if err := s.Reconfigure(cfg); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if s.Lifecycle() != Idle {
		t.Errorf("reconfigure must reset, lifecycle = %s", s.Lifecycle())
	}
	if f := s.Frame(); len(f) != 3 || f[0].Road != "N" {
		t.Errorf("frame after reconfigure = %s", f)
	}
	if err := s.Reconfigure(Config{}); err == nil {
		t.Error("Reconfigure() with zero config should fail")
	}
}

func TestScheduler_FrameIsSnapshot(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B"}, 2, 1)
	s.Start(PresenceSet{})
	f := s.Advance()
	f[0].Color = Red
	f[1].Color = Green

	got := s.Frame()
	if got[0].Color != Green || got[1].Color != Red {
		t.Errorf("caller mutation leaked into scheduler: %s", got)
	}
}

func TestScheduler_ConcurrentCommands(t *testing.T) {
	s := newTestScheduler(t, []Road{"A", "B", "C", "D"}, 2, 1)
	s.Start(NewPresenceSet("C"))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f := s.Advance()
				if _, ok := f.Active(); ok {
					assertExclusive(t, i, f)
				}
				switch (i + g) % 50 {
				case 10:
					s.Stop()
				case 20:
					s.Start(PresenceSet{})
				case 45:
					_ = s.Status()
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestColor_Text(t *testing.T) {
	for _, c := range []Color{Red, Yellow, Green} {
		text, err := c.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText() error = %v", err)
		}
		var back Color
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if back != c {
			t.Errorf("color %s decoded as %s", c, back)
		}
	}
	var c Color
	if err := c.UnmarshalText([]byte("blue")); err == nil {
		t.Error("expected error for unknown color")
	}
}
