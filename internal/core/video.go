package core

import (
	"context"
	"time"
)

// PixelFormat tags the payload of a VideoFrame. Raw RGBA frames can be
// composited; encoded frames pass straight through to the track writer.
type PixelFormat uint8

const (
	FormatRGBA PixelFormat = iota
	FormatVP8
)

// VideoFrame is one frame of the local capture pipeline.
type VideoFrame struct {
	Width    int
	Height   int
	Format   PixelFormat
	Data     []byte
	Duration time.Duration
}

// Raw reports whether the frame carries uncompressed pixels.
func (f VideoFrame) Raw() bool { return f.Format == FormatRGBA }

// FrameSink consumes frames produced by a CaptureSource. Deliver is called
// from the source's producer goroutine and must not block for long.
type FrameSink interface {
	Deliver(VideoFrame)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(VideoFrame)

func (fn FrameSinkFunc) Deliver(f VideoFrame) { fn(f) }

// CaptureSource is one active frame producer (camera, screen or file).
// Stop returns only after the producer goroutine has exited, so a source is
// fully released before its successor starts.
type CaptureSource interface {
	Start(ctx context.Context, sink FrameSink) error
	Stop()
	Dimensions() (width, height, fps int)
}

// TrackWriter is the outbound leg of a peer connection: frames written here
// end up on the negotiated video track.
type TrackWriter interface {
	WriteFrame(VideoFrame) error
}

// MediaBinding is the track surface of a peer connection the media manager
// drives: attach fresh outbound tracks, detach them before a source switch,
// flip mute switches without renegotiating.
type MediaBinding interface {
	AttachTracks() (TrackWriter, error)
	DetachTracks() error
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
}
