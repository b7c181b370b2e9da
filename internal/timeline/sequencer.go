package timeline

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudcut/cloudcut-engine/internal/media"
	"github.com/cloudcut/cloudcut-engine/internal/transport"
)

// SourceFactory opens a playable source for a stored asset reference.
type SourceFactory func(ref string) (media.Source, error)

// SequenceTransport is the command surface the sequencer drives. It issues
// explicit commands and observes results through transport events; it never
// holds a reference into the transport's internals.
type SequenceTransport interface {
	Load(src media.Source, intent *transport.LoadIntent)
	Scrub(t float64)
	Play()
	Playing() bool
	Source() media.Source
}

// Sequencer maps the virtual timeline onto per-clip playback: it switches
// the transport between clips when the playhead crosses clip boundaries,
// using an in-place seek when the next clip shares the loaded source and a
// full reload with a queued seek/play intent otherwise.
type Sequencer struct {
	seq     *Sequence
	tr      SequenceTransport
	factory SourceFactory
	logger  *slog.Logger

	mu       sync.Mutex
	activeID string
	onSwitch func(*Clip)
}

func NewSequencer(seq *Sequence, tr SequenceTransport, factory SourceFactory, logger *slog.Logger) *Sequencer {
	return &Sequencer{seq: seq, tr: tr, factory: factory, logger: logger}
}

// OnSwitch registers the observer fired after the active clip changes,
// before any transport command for the new clip is issued. Single observer.
func (s *Sequencer) OnSwitch(fn func(*Clip)) {
	s.mu.Lock()
	s.onSwitch = fn
	s.mu.Unlock()
}

// Sequence returns the underlying clip list.
func (s *Sequencer) Sequence() *Sequence {
	return s.seq
}

// ActiveClip returns the clip currently driving playback, nil when none.
func (s *Sequencer) ActiveClip() *Clip {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	return s.seq.Clip(id)
}

// ActiveID returns the active clip id, empty when none.
func (s *Sequencer) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SelectClip makes the given clip active, seeking to its in point.
func (s *Sequencer) SelectClip(id string, autoplay bool) error {
	clip := s.seq.Clip(id)
	if clip == nil {
		return fmt.Errorf("unknown clip %s", id)
	}
	return s.switchTo(clip, 0, autoplay)
}

// SeekGlobal positions playback at a virtual timeline time.
func (s *Sequencer) SeekGlobal(t float64, autoplay bool) error {
	clip, offset, ok := s.seq.MapGlobalTime(t)
	if !ok {
		return fmt.Errorf("empty sequence")
	}
	return s.switchTo(clip, offset, autoplay)
}

// HandleBoundary advances to the next clip when the active clip's trim-out
// boundary is reached. At the end of the sequence playback stays paused.
func (s *Sequencer) HandleBoundary(float64) {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()
	if id == "" {
		return
	}

	next := s.seq.Advance(id)
	if next == nil {
		if s.logger != nil {
			s.logger.Debug("sequence finished", "clip_id", id)
		}
		return
	}
	if err := s.switchTo(next, 0, true); err != nil && s.logger != nil {
		s.logger.Warn("clip advance failed", "clip_id", next.ID, "error", err)
	}
}

// HandleClipRemoved clears the active clip when it is deleted. The caller
// re-selects another clip if the sequence is non-empty.
func (s *Sequencer) HandleClipRemoved(id string) {
	s.mu.Lock()
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()
}

// GlobalTime translates a local media time within the active clip into a
// virtual timeline time.
func (s *Sequencer) GlobalTime(localMediaTime float64) (float64, bool) {
	clip := s.ActiveClip()
	if clip == nil {
		return 0, false
	}
	start, ok := s.seq.Start(clip.ID)
	if !ok {
		return 0, false
	}
	off := localMediaTime - clip.Trim.In
	if off < 0 {
		off = 0
	}
	if off > clip.Duration() {
		off = clip.Duration()
	}
	return start + off, true
}

// switchTo points playback at (clip, local offset within its played range).
// Same underlying asset: cheap in-place scrub. Different asset: full source
// reload with the seek and play intent queued until metadata is ready,
// because seeking before metadata load is unsafe.
func (s *Sequencer) switchTo(clip *Clip, offset float64, autoplay bool) error {
	target := clip.Trim.In + offset

	cur := s.tr.Source()
	if cur != nil && cur.AssetRef() == clip.SourceRef {
		s.activate(clip)
		s.tr.Scrub(target)
		if autoplay {
			s.tr.Play()
		}
		return nil
	}

	src, err := s.factory(clip.SourceRef)
	if err != nil {
		return fmt.Errorf("open source %s: %w", clip.SourceRef, err)
	}

	s.activate(clip)
	s.tr.Load(src, &transport.LoadIntent{SeekTo: target, HasSeek: true, AutoPlay: autoplay})
	return nil
}

func (s *Sequencer) activate(clip *Clip) {
	s.mu.Lock()
	changed := s.activeID != clip.ID
	s.activeID = clip.ID
	fn := s.onSwitch
	s.mu.Unlock()
	if changed && fn != nil {
		fn(clip)
	}
}
