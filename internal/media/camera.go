package media

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// Fallback capture format used when a device advertises no formats.
const (
	fallbackWidth  = 1280
	fallbackHeight = 720
	fallbackFPS    = 30
)

// CaptureFormat is one advertised device mode.
type CaptureFormat struct {
	Width  int
	Height int
	FPS    int
}

// CaptureDevice is one enumerable camera. Open hands back a running-ready
// source bound to the chosen format.
type CaptureDevice interface {
	Facing() domain.CameraFacing
	Formats() []CaptureFormat
	Open(CaptureFormat) (core.CaptureSource, error)
}

// DeviceEnumerator lists capture devices. The platform layer supplies it;
// tests and the demo client use synthetic devices.
type DeviceEnumerator interface {
	Devices() ([]CaptureDevice, error)
}

// openCamera picks the best device for the requested facing and its highest
// advertised resolution, falling back to a fixed format when the device
// advertises none.
func openCamera(enum DeviceEnumerator, facing domain.CameraFacing) (core.CaptureSource, error) {
	if enum == nil {
		return nil, fmt.Errorf("%w: no device enumerator", domain.ErrSourceUnavailable)
	}
	devices, err := enum.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate: %w", domain.ErrSourceUnavailable, err)
	}

	var device CaptureDevice
	for _, d := range devices {
		if d.Facing() == facing {
			device = d
			break
		}
	}
	if device == nil && len(devices) > 0 {
		// No exact facing match: any camera beats none.
		device = devices[0]
	}
	if device == nil {
		return nil, fmt.Errorf("%w: no camera for facing %s", domain.ErrSourceUnavailable, facing)
	}

	format := bestFormat(device.Formats())
	log.Info().Str("module", "media").Str("facing", facing.String()).
		Int("width", format.Width).Int("height", format.Height).Int("fps", format.FPS).
		Msg("camera format selected")

	src, err := device.Open(format)
	if err != nil {
		return nil, fmt.Errorf("%w: open camera: %w", domain.ErrSourceUnavailable, err)
	}
	return src, nil
}

func bestFormat(formats []CaptureFormat) CaptureFormat {
	if len(formats) == 0 {
		return CaptureFormat{Width: fallbackWidth, Height: fallbackHeight, FPS: fallbackFPS}
	}
	best := formats[0]
	for _, f := range formats[1:] {
		if f.Width*f.Height > best.Width*best.Height {
			best = f
		}
	}
	if best.FPS == 0 {
		best.FPS = fallbackFPS
	}
	return best
}
