// Package media defines the frame source abstraction the engine plays
// against, and a clock-driven simulated source used by tests and the demo
// binary. A source is an opaque decodable stream: the engine only reads
// dimensions, duration and position, and commands play/pause/seek through
// the transport.
package media

import (
	"errors"
	"image"
)

var (
	// ErrNotSeekable is returned by Seek before the source has loaded enough
	// metadata to honor a position change.
	ErrNotSeekable = errors.New("media: source not seekable yet")

	// ErrPlayRejected is returned when the host refuses to start playback.
	ErrPlayRejected = errors.New("media: play request rejected")
)

// CancelFunc detaches a previously registered callback. Safe to call more
// than once.
type CancelFunc func()

// Source is a decodable media stream owned by the host environment.
//
// Callback registration methods may be called at any time; callbacks are
// invoked without any source-internal lock held, so listeners may call back
// into the source.
type Source interface {
	// AssetRef identifies the underlying stored asset; the sequencer uses it
	// to decide between an in-place seek and a full source reload.
	AssetRef() string

	Width() int
	Height() int

	// Duration returns the media length in seconds, 0 until metadata loads.
	Duration() float64
	Ready() bool

	CurrentTime() float64
	// Seek moves the playback position. It returns ErrNotSeekable before
	// metadata is available; convergence is observed later via OnSeeked.
	Seek(t float64) error

	// Play starts playback. Start is asynchronous in spirit and fallible:
	// the host may reject it, in which case the source stays paused.
	Play() error
	Pause()
	Paused() bool
	Ended() bool

	// Frame returns the current decoded frame.
	Frame() *image.RGBA

	// SupportsFrameCallback reports whether OnFrame delivers frame-accurate
	// wakeups. When false the scheduler falls back to a timer loop.
	SupportsFrameCallback() bool
	OnFrame(fn func()) CancelFunc
	OnSeeked(fn func()) CancelFunc
	OnEnded(fn func()) CancelFunc
	OnMetadata(fn func()) CancelFunc

	// Close releases decoder resources and detaches all callbacks.
	Close()
}
