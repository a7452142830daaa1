// Package compositor replaces the background of a raw frame stream without
// ever blocking frame delivery on segmentation latency.
//
// Two execution contexts touch the mask: the frame path (every frame, hot)
// and the inference-completion path (every Nth frame, asynchronous). The
// handoff is an atomic pointer swap of a freshly allocated buffer, so the
// frame path never sees a partially written mask and never waits.
package compositor

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
)

// Mask is a per-pixel segmentation result. Polarity follows the selfie
// segmentation models: 0 = person (foreground), 255 = background.
type Mask struct {
	Width  int
	Height int
	Data   []byte
}

// Segmenter runs asynchronous person/background inference. Submit must
// return promptly; the mask arrives later via deliver, on the segmenter's
// own goroutine.
type Segmenter interface {
	Submit(frame core.VideoFrame, deliver func(Mask))
}

const (
	DefaultInferenceInterval = 3
	DefaultSegmentationWidth = 256
)

type Options struct {
	Background        image.Image
	Segmenter         Segmenter
	InferenceInterval int
	SegmentationWidth int
}

type Compositor struct {
	seg      Segmenter
	interval int
	segWidth int
	bg       image.Image

	frameCount atomic.Uint64
	mask       atomic.Pointer[Mask]

	// generation invalidates in-flight inference across Reset: a mask
	// computed for the previous producer must never land after a switch.
	gen atomic.Uint64

	// Pre-scaled background cache, keyed by frame dimensions. Guarded by a
	// lock held only for the lookup, never across compositing.
	cacheMu  sync.Mutex
	cachedBG *image.RGBA
	cachedW  int
	cachedH  int
}

func New(opts Options) *Compositor {
	interval := opts.InferenceInterval
	if interval <= 0 {
		interval = DefaultInferenceInterval
	}
	segWidth := opts.SegmentationWidth
	if segWidth <= 0 {
		segWidth = DefaultSegmentationWidth
	}
	return &Compositor{
		seg:      opts.Segmenter,
		interval: interval,
		segWidth: segWidth,
		bg:       opts.Background,
	}
}

// Process transforms one frame. Encoded frames and frames arriving before
// the first mask pass through unmodified. Called from the single capture
// producer goroutine.
func (c *Compositor) Process(f core.VideoFrame) core.VideoFrame {
	if !f.Raw() || c.bg == nil {
		return f
	}

	n := c.frameCount.Add(1)
	if c.seg != nil && n%uint64(c.interval) == 0 {
		c.submit(f)
	}

	m := c.mask.Load()
	if m == nil {
		// Cold start: no mask yet.
		return f
	}
	return c.composite(f, *m)
}

// submit downscales the frame and fires inference. Completion swaps the
// mask pointer unless a Reset happened in between.
func (c *Compositor) submit(f core.VideoFrame) {
	small := downscaleRGBA(f, c.segWidth)
	gen := c.gen.Load()
	c.seg.Submit(small, func(m Mask) {
		if c.gen.Load() != gen {
			log.Debug().Str("module", "compositor").Msg("stale mask discarded")
			return
		}
		c.mask.Store(&m)
	})
}

// Reset drops the mask, the frame counter and the background cache. Called
// when the raw-frame producer changes.
func (c *Compositor) Reset() {
	c.gen.Add(1)
	c.mask.Store(nil)
	c.frameCount.Store(0)
	c.cacheMu.Lock()
	c.cachedBG = nil
	c.cachedW, c.cachedH = 0, 0
	c.cacheMu.Unlock()
}

// composite merges the cached background and the frame's foreground using
// the mask as an alpha channel. The mask is rescaled to the frame's
// dimensions; mask value 0 keeps the camera pixel (person), 255 takes the
// background.
func (c *Compositor) composite(f core.VideoFrame, m Mask) core.VideoFrame {
	if m.Width <= 0 || m.Height <= 0 {
		return f
	}
	bg := c.scaledBackground(f.Width, f.Height)

	out := make([]byte, len(f.Data))
	for y := 0; y < f.Height; y++ {
		my := y * m.Height / f.Height
		for x := 0; x < f.Width; x++ {
			mx := x * m.Width / f.Width
			a := int(m.Data[my*m.Width+mx])
			i := (y*f.Width + x) * 4
			bi := bg.PixOffset(x, y)
			out[i] = blend(f.Data[i], bg.Pix[bi], a)
			out[i+1] = blend(f.Data[i+1], bg.Pix[bi+1], a)
			out[i+2] = blend(f.Data[i+2], bg.Pix[bi+2], a)
			out[i+3] = 0xff
		}
	}
	return core.VideoFrame{
		Width:    f.Width,
		Height:   f.Height,
		Format:   core.FormatRGBA,
		Data:     out,
		Duration: f.Duration,
	}
}

func blend(fg, bg byte, a int) byte {
	return byte((int(fg)*(255-a) + int(bg)*a) / 255)
}

// scaledBackground rescales the configured background once per frame size
// and caches it; steady-state frames pay a map-free pointer read.
func (c *Compositor) scaledBackground(w, h int) *image.RGBA {
	c.cacheMu.Lock()
	if c.cachedBG != nil && c.cachedW == w && c.cachedH == h {
		bg := c.cachedBG
		c.cacheMu.Unlock()
		return bg
	}
	c.cacheMu.Unlock()

	scaled := scaleImage(c.bg, w, h)

	c.cacheMu.Lock()
	c.cachedBG = scaled
	c.cachedW, c.cachedH = w, h
	c.cacheMu.Unlock()
	return scaled
}

// scaleImage is a nearest-neighbour resize; backgrounds are static so
// quality matters less than predictable cost.
func scaleImage(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sb.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// downscaleRGBA shrinks a raw frame to the segmentation width, preserving
// aspect ratio.
func downscaleRGBA(f core.VideoFrame, targetW int) core.VideoFrame {
	if f.Width <= targetW {
		return f
	}
	targetH := f.Height * targetW / f.Width
	if targetH < 1 {
		targetH = 1
	}
	out := make([]byte, targetW*targetH*4)
	for y := 0; y < targetH; y++ {
		sy := y * f.Height / targetH
		for x := 0; x < targetW; x++ {
			sx := x * f.Width / targetW
			si := (sy*f.Width + sx) * 4
			di := (y*targetW + x) * 4
			copy(out[di:di+4], f.Data[si:si+4])
		}
	}
	return core.VideoFrame{Width: targetW, Height: targetH, Format: core.FormatRGBA, Data: out}
}
