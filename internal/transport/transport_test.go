package transport

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudcut/cloudcut-engine/internal/media"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newReady(t *testing.T, cfg media.SimConfig) (*Transport, *media.SimSource) {
	t.Helper()
	tr := New(nil)
	src := media.NewSimSource(cfg)
	tr.Load(src, nil)
	waitFor(t, time.Second, func() bool { return tr.State() == StateReady })
	t.Cleanup(tr.Teardown)
	return tr, src
}

func TestTransport_LoadReachesReady(t *testing.T) {
	tr := New(nil)
	t.Cleanup(tr.Teardown)

	var ready atomic.Bool
	tr.OnReady(func() { ready.Store(true) })

	src := media.NewSimSource(media.SimConfig{Duration: 10, MetadataDelay: 20 * time.Millisecond})
	tr.Load(src, nil)

	if tr.State() != StateIdle {
		t.Errorf("state before metadata = %v, want idle", tr.State())
	}
	waitFor(t, time.Second, func() bool { return ready.Load() })
	if tr.Duration() != 10 {
		t.Errorf("Duration() = %f, want 10", tr.Duration())
	}
}

func TestTransport_ScrubIdempotent(t *testing.T) {
	tr, _ := newReady(t, media.SimConfig{Duration: 10})

	tr.Scrub(4.5)
	first := tr.CurrentTime()
	tr.Scrub(4.5)
	second := tr.CurrentTime()

	if first != second {
		t.Errorf("scrub twice: %f then %f, want identical", first, second)
	}
	if math.Abs(first-4.5) > ConvergeEpsilon {
		t.Errorf("CurrentTime() = %f, want 4.5", first)
	}
}

func TestTransport_PauseAtRoundTrip(t *testing.T) {
	// Seek latency simulates a slow decoder; the forced time must stay
	// authoritative until convergence.
	tr, _ := newReady(t, media.SimConfig{Duration: 10, SeekLatency: 30 * time.Millisecond})

	tr.PauseAt(7)
	if got := tr.CurrentTime(); math.Abs(got-7) > ConvergeEpsilon {
		t.Errorf("CurrentTime() right after PauseAt = %f, want 7", got)
	}

	// After the seek lands the answer is unchanged.
	time.Sleep(60 * time.Millisecond)
	if got := tr.CurrentTime(); math.Abs(got-7) > ConvergeEpsilon {
		t.Errorf("CurrentTime() after convergence = %f, want 7", got)
	}
	if tr.State() != StatePaused {
		t.Errorf("state = %v, want paused", tr.State())
	}
}

func TestTransport_PauseAtClamps(t *testing.T) {
	tr, _ := newReady(t, media.SimConfig{Duration: 10})

	tr.PauseAt(99)
	if got := tr.CurrentTime(); got != 10 {
		t.Errorf("CurrentTime() = %f, want clamp to 10", got)
	}
	tr.PauseAt(-3)
	if got := tr.CurrentTime(); got != 0 {
		t.Errorf("CurrentTime() = %f, want clamp to 0", got)
	}
}

func TestTransport_TogglePlayback(t *testing.T) {
	tr, src := newReady(t, media.SimConfig{Duration: 30, Rate: 5})

	var states []bool
	var mu atomic.Int32
	tr.OnPlayState(func(p bool) {
		states = append(states, p)
		mu.Add(1)
	})

	tr.TogglePlayback()
	if tr.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", tr.State())
	}
	if src.Paused() {
		t.Error("source paused after play")
	}

	start := tr.CurrentTime()
	waitFor(t, 2*time.Second, func() bool { return tr.CurrentTime() > start+0.1 })

	tr.TogglePlayback()
	if tr.State() != StatePaused {
		t.Errorf("state = %v, want paused", tr.State())
	}
	if !src.Paused() {
		t.Error("source playing after pause")
	}
	if mu.Load() != 2 {
		t.Errorf("play-state events = %d, want 2", mu.Load())
	}
}

func TestTransport_PlayRejectionStaysPaused(t *testing.T) {
	tr, _ := newReady(t, media.SimConfig{Duration: 10, FailPlay: true})

	var msg atomic.Value
	tr.OnMessage(func(m string) { msg.Store(m) })

	tr.TogglePlayback()

	if tr.State() != StatePaused {
		t.Errorf("state = %v, want paused after rejected play", tr.State())
	}
	if msg.Load() == nil {
		t.Error("no message surfaced for rejected play")
	}
}

func TestTransport_TimeObserversDuringPlayback(t *testing.T) {
	tr, _ := newReady(t, media.SimConfig{Duration: 30, Rate: 5})

	var updates atomic.Int32
	tr.OnTime(func(float64) { updates.Add(1) })

	tr.TogglePlayback()
	waitFor(t, 2*time.Second, func() bool { return updates.Load() >= 3 })
	tr.TogglePlayback()
}

func TestTransport_NaturalEnd(t *testing.T) {
	tr, _ := newReady(t, media.SimConfig{Duration: 0.5, Rate: 20})

	var ended atomic.Bool
	tr.OnEnded(func() { ended.Store(true) })

	tr.TogglePlayback()
	waitFor(t, 3*time.Second, func() bool { return ended.Load() })

	if tr.State() != StateEnded {
		t.Errorf("state = %v, want ended", tr.State())
	}
}

func TestTransport_PreSeekableScrubReplayed(t *testing.T) {
	tr := New(nil)
	t.Cleanup(tr.Teardown)

	src := media.NewSimSource(media.SimConfig{Duration: 10, MetadataDelay: 30 * time.Millisecond})
	tr.Load(src, nil)

	// Seek before metadata: the seek fails but intent is recorded.
	tr.Scrub(6)
	if got := tr.CurrentTime(); got != 6 {
		t.Errorf("CurrentTime() reflects intent = %f, want 6", got)
	}

	waitFor(t, time.Second, func() bool {
		return tr.State() == StateReady && math.Abs(src.CurrentTime()-6) <= ConvergeEpsilon
	})
}

func TestTransport_LoadIntentAppliedOnReady(t *testing.T) {
	tr := New(nil)
	t.Cleanup(tr.Teardown)

	src := media.NewSimSource(media.SimConfig{Duration: 20, Rate: 5, MetadataDelay: 20 * time.Millisecond})
	tr.Load(src, &LoadIntent{SeekTo: 12, HasSeek: true, AutoPlay: true})

	waitFor(t, 2*time.Second, func() bool { return tr.State() == StatePlaying })
	if got := tr.CurrentTime(); got < 11.9 || got > 13.5 {
		t.Errorf("CurrentTime() = %f, want near 12", got)
	}
}

func TestTransport_LoadSwapsSource(t *testing.T) {
	tr, _ := newReady(t, media.SimConfig{Duration: 10, AssetRef: "a"})

	second := media.NewSimSource(media.SimConfig{Duration: 4, AssetRef: "b"})
	tr.Load(second, nil)
	waitFor(t, time.Second, func() bool { return tr.State() == StateReady })

	if tr.Source().AssetRef() != "b" {
		t.Errorf("source = %s, want b", tr.Source().AssetRef())
	}
	if tr.Duration() != 4 {
		t.Errorf("Duration() = %f, want 4", tr.Duration())
	}
	if tr.CurrentTime() != 0 {
		t.Errorf("CurrentTime() = %f, want reset to 0", tr.CurrentTime())
	}
}
