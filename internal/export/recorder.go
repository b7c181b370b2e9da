package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"sync"
)

// ErrUnsupported is returned when no recorder capability exists for any of
// the preferred container types.
var ErrUnsupported = errors.New("export: recording not supported")

// Container types in order of preference.
const (
	MimeWebMVP9 = "video/webm;codecs=vp9"
	MimeWebMVP8 = "video/webm;codecs=vp8"
	MimeWebM    = "video/webm"
)

var preferredMimes = []string{MimeWebMVP9, MimeWebMVP8, MimeWebM}

// Recorder consumes composited frames and yields an encoded blob on Stop.
type Recorder interface {
	MimeType() string
	Start() error
	WriteFrame(frame *image.RGBA) error
	Stop() ([]byte, error)
}

// RecorderFactory is the capture capability of the host environment.
type RecorderFactory interface {
	Supported(mimeType string) bool
	New(mimeType string) (Recorder, error)
}

// PickMimeType returns the first container type the factory supports,
// walking vp9, then vp8, then plain webm.
func PickMimeType(f RecorderFactory) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, m := range preferredMimes {
		if f.Supported(m) {
			return m, true
		}
	}
	return "", false
}

// SimRecorderFactory builds SimRecorders. Disabled simulates a host without
// capture capability.
type SimRecorderFactory struct {
	Disabled bool
}

func (f *SimRecorderFactory) Supported(mimeType string) bool {
	if f.Disabled {
		return false
	}
	for _, m := range preferredMimes {
		if m == mimeType {
			return true
		}
	}
	return false
}

func (f *SimRecorderFactory) New(mimeType string) (Recorder, error) {
	if !f.Supported(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
	return &SimRecorder{mime: mimeType}, nil
}

// SimRecorder packs frames into a simple length-prefixed blob. The payload
// is opaque to the rest of the engine, like a real container would be.
type SimRecorder struct {
	mime string

	mu      sync.Mutex
	started bool
	frames  int
	buf     bytes.Buffer
}

var simMagic = []byte("CCSIM1")

func (r *SimRecorder) MimeType() string { return r.mime }

func (r *SimRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("export: recorder already started")
	}
	r.started = true
	r.frames = 0
	r.buf.Reset()
	r.buf.Write(simMagic)
	return nil
}

func (r *SimRecorder) WriteFrame(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return errors.New("export: recorder not started")
	}
	if frame == nil {
		return nil
	}

	b := frame.Bounds()
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(b.Dy()))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(frame.Pix)))
	r.buf.Write(hdr[:])
	r.buf.Write(frame.Pix)
	r.frames++
	return nil
}

func (r *SimRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil, errors.New("export: recorder not started")
	}
	r.started = false
	return bytes.Clone(r.buf.Bytes()), nil
}

// FrameCount reports how many frames were captured so far.
func (r *SimRecorder) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}
