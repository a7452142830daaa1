package compositor

import (
	"sync/atomic"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
)

// LumaSegmenter is a model-free heuristic segmenter: pixels brighter than
// the threshold are classified as background. It stands in for a real
// selfie-segmentation model and keeps the same polarity contract
// (0 = person, 255 = background).
type LumaSegmenter struct {
	// Threshold is the luma value above which a pixel counts as
	// background. Zero value means the default of 170.
	Threshold int

	inflight atomic.Bool
}

const defaultLumaThreshold = 170

// Submit classifies the frame on its own goroutine. At most one inference
// runs at a time; a submission arriving while one is in flight is dropped,
// the next interval frame catches up.
func (s *LumaSegmenter) Submit(frame core.VideoFrame, deliver func(Mask)) {
	if frame.Format != core.FormatRGBA {
		return
	}
	if !s.inflight.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.inflight.Store(false)
		deliver(s.classify(frame))
	}()
}

func (s *LumaSegmenter) classify(f core.VideoFrame) Mask {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = defaultLumaThreshold
	}
	data := make([]byte, f.Width*f.Height)
	for i := range data {
		p := f.Data[i*4 : i*4+3]
		// BT.601 integer luma.
		luma := (299*int(p[0]) + 587*int(p[1]) + 114*int(p[2])) / 1000
		if luma > threshold {
			data[i] = 0xff
		}
	}
	return Mask{Width: f.Width, Height: f.Height, Data: data}
}
