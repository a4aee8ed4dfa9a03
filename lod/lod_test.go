package lod

import (
	"testing"
	"time"

	"github.com/pthm-cable/forge/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	return cfg
}

func levelNamed(t *testing.T, cfg *config.Config, name string) Level {
	t.Helper()
	for _, l := range LevelsFromConfig(cfg.Quality) {
		if l.Name == name {
			return l
		}
	}
	t.Fatalf("no quality level %q", name)
	return Level{}
}

func TestClassify(t *testing.T) {
	th := Thresholds{Near: 30, Medium: 100, Far: 300, MediumCadence: 3, FarCadence: 10}
	tests := []struct {
		dist float32
		want Tier
	}{
		{0, TierNear},
		{30, TierNear},
		{30.5, TierMedium},
		{100, TierMedium},
		{250, TierFar},
		{301, TierCulled},
	}
	for _, tc := range tests {
		if got := th.Classify(tc.dist * tc.dist); got != tc.want {
			t.Errorf("distance %g: got %v, want %v", tc.dist, got, tc.want)
		}
	}
}

func TestSchedulerCadenceAtMedium(t *testing.T) {
	cfg := testConfig(t)
	lvl := levelNamed(t, cfg, "medium")
	s := NewScheduler(cfg, lvl.Thresholds)
	s.Track(true)

	// Agents on the x axis; the camera sits at the origin.
	medium := []uint64{1, 2, 3, 17, 1000}
	far := []uint64{4, 5, 99, 12345}

	for f := uint64(0); f < 30; f++ {
		s.BeginFrame(f)
		for _, id := range medium {
			if tier := s.Classify(50, 0, 0); tier != TierMedium {
				t.Fatalf("x=50 classified %v", tier)
			}
			s.Due(TierMedium, id)
		}
		for _, id := range far {
			if tier := s.Classify(200, 0, 0); tier != TierFar {
				t.Fatalf("x=200 classified %v", tier)
			}
			s.Due(TierFar, id)
		}
	}
	for _, id := range medium {
		if got := s.TickCount(id); got != 10 {
			t.Errorf("medium agent %d ticked %d times, want 10", id, got)
		}
	}
	for _, id := range far {
		if got := s.TickCount(id); got != 3 {
			t.Errorf("far agent %d ticked %d times, want 3", id, got)
		}
	}
}

func TestSchedulerFairness(t *testing.T) {
	cfg := testConfig(t)
	th := levelNamed(t, cfg, "minimum").Thresholds

	for _, tier := range []Tier{TierMedium, TierFar} {
		n := th.Cadence(tier)
		for _, window := range []int{n, n + 1, 2*n + 3, th.Window()} {
			for start := uint64(0); start < uint64(n); start++ {
				s := NewScheduler(cfg, th)
				s.Track(true)
				for f := start; f < start+uint64(window); f++ {
					s.BeginFrame(f)
					for id := uint64(1); id <= 40; id++ {
						s.Due(tier, id)
					}
				}
				lo, hi := window, 0
				for id := uint64(1); id <= 40; id++ {
					c := s.TickCount(id)
					lo, hi = min(lo, c), max(hi, c)
				}
				if hi-lo > 1 {
					t.Errorf("%v window %d start %d: counts range [%d, %d]", tier, window, start, lo, hi)
				}
				if lo == 0 {
					t.Errorf("%v window %d start %d: an agent starved", tier, window, start)
				}
			}
		}
	}
}

func TestSchedulerCulledNeverTicks(t *testing.T) {
	cfg := testConfig(t)
	s := NewScheduler(cfg, levelNamed(t, cfg, "medium").Thresholds)
	physio := 0
	for f := uint64(0); f < 120; f++ {
		s.BeginFrame(f)
		if s.Due(TierCulled, 7) {
			t.Fatal("culled agent ran its AI")
		}
		if s.PhysiologyDue(7) {
			physio++
		}
	}
	// 1 Hz at 60 frames per second.
	if physio != 2 {
		t.Errorf("physiology ticked %d times in 2 s, want 2", physio)
	}
}

func TestSchedulerCountsAndDrain(t *testing.T) {
	cfg := testConfig(t)
	s := NewScheduler(cfg, levelNamed(t, cfg, "medium").Thresholds)
	s.SetCamera(10, 0, 10)
	s.BeginFrame(0)
	s.Classify(10, 0, 10)
	s.Classify(500, 0, 500)
	if c := s.Classified(); c[TierNear] != 1 || c[TierCulled] != 1 {
		t.Errorf("classified = %v", c)
	}

	var d fakeDrainer
	s.Attach(&d)
	s.Drain()
	if d.calls != 1 {
		t.Errorf("drainer called %d times", d.calls)
	}
	if c := s.Classified(); c != (TierCounts{}) {
		t.Errorf("counts not cleared: %v", c)
	}
}

type fakeDrainer struct{ calls int }

func (d *fakeDrainer) Drain() { d.calls++ }

func TestWindowIsLCM(t *testing.T) {
	th := Thresholds{MediumCadence: 3, FarCadence: 10}
	if w := th.Window(); w != 30 {
		t.Errorf("window = %d, want 30", w)
	}
	th = Thresholds{MediumCadence: 2, FarCadence: 8}
	if w := th.Window(); w != 8 {
		t.Errorf("window = %d, want 8", w)
	}
}

func feed(a *Autoscaler, n int, d time.Duration) (changes []Change) {
	for i := 0; i < n; i++ {
		if c, ok := a.Observe(d); ok {
			changes = append(changes, c)
		}
	}
	return changes
}

func TestAutoscalerStepsDownAfterSustainedOverrun(t *testing.T) {
	cfg := testConfig(t)
	a := NewAutoscaler(cfg)
	start := a.Level()

	if ch := feed(a, cfg.Quality.StepDownFrames, 30*time.Millisecond); len(ch) != 0 {
		t.Fatalf("stepped after only %d slow frames: %v", cfg.Quality.StepDownFrames, ch)
	}
	ch := feed(a, 1, 30*time.Millisecond)
	if len(ch) != 1 || ch[0].To != start+1 {
		t.Fatalf("changes = %v, want one step down from %d", ch, start)
	}
}

func TestAutoscalerStepsUpSlowly(t *testing.T) {
	cfg := testConfig(t)
	a := NewAutoscaler(cfg)
	start := a.Level()

	if ch := feed(a, cfg.Quality.StepUpFrames, 5*time.Millisecond); len(ch) != 0 {
		t.Fatalf("stepped up early: %v", ch)
	}
	ch := feed(a, 1, 5*time.Millisecond)
	if len(ch) != 1 || ch[0].To != start-1 {
		t.Fatalf("changes = %v, want one step up", ch)
	}
}

func TestAutoscalerHoldsInBand(t *testing.T) {
	cfg := testConfig(t)
	a := NewAutoscaler(cfg)
	if ch := feed(a, 1000, 16*time.Millisecond); len(ch) != 0 {
		t.Errorf("level moved inside the dead band: %v", ch)
	}
	if a.Mean() < 15.9 || a.Mean() > 16.1 {
		t.Errorf("mean = %f ms", a.Mean())
	}
}

func TestAutoscalerStopsAtEnds(t *testing.T) {
	cfg := testConfig(t)
	a := NewAutoscaler(cfg)
	feed(a, 5000, 100*time.Millisecond)
	if a.Level() != len(a.Levels())-1 {
		t.Errorf("level = %d, want minimum", a.Level())
	}
	feed(a, 5000, time.Millisecond)
	if a.Level() != 0 {
		t.Errorf("level = %d, want ultra", a.Level())
	}
}

func TestAutoscalerPin(t *testing.T) {
	cfg := testConfig(t)
	a := NewAutoscaler(cfg)
	last := len(a.Levels()) - 1
	a.Pin(last)
	if ch := feed(a, 500, time.Millisecond); len(ch) != 0 || a.Level() != last {
		t.Errorf("pinned level moved: %v", ch)
	}
	a.Unpin()
	if ch := feed(a, cfg.Quality.StepUpFrames+1, time.Millisecond); len(ch) != 1 {
		t.Errorf("unpinned autoscaler did not step up: %v", ch)
	}
}

func TestAutoscalerForcedStepCooldown(t *testing.T) {
	cfg := testConfig(t)
	a := NewAutoscaler(cfg)
	start := a.Level()

	if _, ok := a.StepDown("dispatch failed"); !ok {
		t.Fatal("first forced step ignored")
	}
	if _, ok := a.StepDown("dispatch failed"); ok {
		t.Fatal("second forced step inside cooldown applied")
	}
	feed(a, cfg.Quality.ResourceStepCooldown, 16*time.Millisecond)
	if _, ok := a.StepDown("dispatch failed"); !ok {
		t.Fatal("forced step after cooldown ignored")
	}
	if a.Level() != start+2 {
		t.Errorf("level = %d, want %d", a.Level(), start+2)
	}
}
