package timeline

import (
	"sync"

	"github.com/google/uuid"
)

// splitMargin is the minimum distance (seconds) a split point must keep from
// both clip edges; splits closer than this are no-ops.
const splitMargin = 0.1

// Sequence is an ordered list of trimmed clips forming one continuous
// virtual timeline. Derived per-clip starts and the total duration are
// recomputed on every mutation, never cached across one.
type Sequence struct {
	mu     sync.Mutex
	clips  []*Clip
	starts []float64
	total  float64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

// recomputeLocked rebuilds the cumulative start offsets. Caller holds mu.
func (s *Sequence) recomputeLocked() {
	s.starts = make([]float64, len(s.clips))
	acc := 0.0
	for i, c := range s.clips {
		s.starts[i] = acc
		acc += c.Duration()
	}
	s.total = acc
}

// Add appends a clip and returns it.
func (s *Sequence) Add(clip *Clip) *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = append(s.clips, clip)
	s.recomputeLocked()
	return clip
}

// Delete removes a clip by id. Deleting the last clip leaves the sequence
// empty.
func (s *Sequence) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.clips {
		if c.ID == id {
			s.clips = append(s.clips[:i], s.clips[i+1:]...)
			s.recomputeLocked()
			return true
		}
	}
	return false
}

// Split partitions the clip at a local offset (seconds into the clip's
// played range). The first part keeps the clip id with its out point at the
// split; the second is a new clip starting there. Split points within
// splitMargin of either edge are rejected.
func (s *Sequence) Split(id string, offset float64) (*Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.clips {
		if c.ID != id {
			continue
		}
		if offset <= splitMargin || offset >= c.Duration()-splitMargin {
			return nil, false
		}
		cut := c.Trim.In + offset
		second := &Clip{
			ID:        uuid.NewString(),
			SourceRef: c.SourceRef,
			Label:     c.Label,
			Trim:      TrimRange{In: cut, Out: c.Trim.Out},
			Color:     c.Color,
		}
		c.Trim.Out = cut

		s.clips = append(s.clips[:i+1], append([]*Clip{second}, s.clips[i+1:]...)...)
		s.recomputeLocked()
		return second, true
	}
	return nil, false
}

// SetTrim replaces a clip's trim range and recomputes derived timing.
func (s *Sequence) SetTrim(id string, trim TrimRange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clips {
		if c.ID == id {
			c.Trim = trim
			s.recomputeLocked()
			return true
		}
	}
	return false
}

// Clips returns a snapshot of the clip list.
func (s *Sequence) Clips() []*Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Clip, len(s.clips))
	copy(out, s.clips)
	return out
}

// Clip returns the clip with the given id, nil when absent.
func (s *Sequence) Clip(id string) *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clips {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Len returns the number of clips.
func (s *Sequence) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}

// Duration is the total virtual timeline length.
func (s *Sequence) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Start returns the virtual start time of the clip with the given id.
func (s *Sequence) Start(id string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.clips {
		if c.ID == id {
			return s.starts[i], true
		}
	}
	return 0, false
}

// MapGlobalTime maps a virtual timeline time to (clip, local offset within
// the clip's played range). Times at or past the end map to the last clip.
// Returns false only for an empty sequence.
func (s *Sequence) MapGlobalTime(t float64) (*Clip, float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clips) == 0 {
		return nil, 0, false
	}
	if t < 0 {
		t = 0
	}
	for i, c := range s.clips {
		if t < s.starts[i]+c.Duration() {
			return c, t - s.starts[i], true
		}
	}
	last := s.clips[len(s.clips)-1]
	return last, last.Duration(), true
}

// Advance returns the clip after the given one, nil at the end of the
// sequence or for an unknown id.
func (s *Sequence) Advance(currentID string) *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.clips {
		if c.ID == currentID {
			if i+1 < len(s.clips) {
				return s.clips[i+1]
			}
			return nil
		}
	}
	return nil
}
