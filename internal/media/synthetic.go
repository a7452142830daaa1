package media

import (
	"context"
	"time"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// Synthetic devices back the demo client and tests on machines without real
// capture hardware. They produce a moving RGBA gradient.

type SyntheticEnumerator struct {
	DeviceList []CaptureDevice
}

func (e *SyntheticEnumerator) Devices() ([]CaptureDevice, error) {
	return e.DeviceList, nil
}

// NewSyntheticEnumerator builds one front and one back camera.
func NewSyntheticEnumerator() *SyntheticEnumerator {
	return &SyntheticEnumerator{DeviceList: []CaptureDevice{
		&SyntheticDevice{DeviceFacing: domain.FacingFront, FormatList: []CaptureFormat{
			{Width: 640, Height: 480, FPS: 30},
			{Width: 1280, Height: 720, FPS: 30},
		}},
		&SyntheticDevice{DeviceFacing: domain.FacingBack, FormatList: []CaptureFormat{
			{Width: 1920, Height: 1080, FPS: 30},
		}},
	}}
}

type SyntheticDevice struct {
	DeviceFacing domain.CameraFacing
	FormatList   []CaptureFormat
}

func (d *SyntheticDevice) Facing() domain.CameraFacing { return d.DeviceFacing }
func (d *SyntheticDevice) Formats() []CaptureFormat    { return d.FormatList }

func (d *SyntheticDevice) Open(f CaptureFormat) (core.CaptureSource, error) {
	return NewPatternSource(f.Width, f.Height, f.FPS), nil
}

// SyntheticGrant is a pre-approved screen "permission" with fixed display
// geometry.
type SyntheticGrant struct {
	Width, Height, FPS int
}

func (g *SyntheticGrant) Open() (core.CaptureSource, error) {
	w, h := g.Width, g.Height
	if w <= 0 || h <= 0 {
		w, h = fallbackWidth, fallbackHeight
	}
	return NewPatternSource(w, h, g.FPS), nil
}

// PatternSource emits raw RGBA frames with a phase that advances per frame,
// which makes frame progression visible in tests and loopback demos.
type PatternSource struct {
	width, height, fps int

	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewPatternSource(width, height, fps int) *PatternSource {
	if fps <= 0 {
		fps = fallbackFPS
	}
	return &PatternSource{
		width:  width,
		height: height,
		fps:    fps,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *PatternSource) Dimensions() (int, int, int) { return s.width, s.height, s.fps }

func (s *PatternSource) Start(ctx context.Context, sink core.FrameSink) error {
	s.started = true
	go func() {
		defer close(s.done)
		interval := time.Second / time.Duration(s.fps)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		phase := uint8(0)
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			sink.Deliver(core.VideoFrame{
				Width:    s.width,
				Height:   s.height,
				Format:   core.FormatRGBA,
				Data:     renderPattern(s.width, s.height, phase),
				Duration: interval,
			})
			phase++
		}
	}()
	return nil
}

func (s *PatternSource) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	if s.started {
		<-s.done
	}
}

func renderPattern(w, h int, phase uint8) []byte {
	buf := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			buf[i] = uint8(x) + phase
			buf[i+1] = uint8(y) + phase
			buf[i+2] = phase
			buf[i+3] = 0xff
		}
	}
	return buf
}
