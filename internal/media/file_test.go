package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// writeTestIVF produces a tiny valid IVF file with the given number of
// dummy VP8 frames at 1000 fps, so loop tests run in milliseconds.
func writeTestIVF(t *testing.T, frames int) string {
	t.Helper()

	var buf bytes.Buffer
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[6:8], 32)
	copy(header[8:12], "VP80")
	binary.LittleEndian.PutUint16(header[12:14], 160)
	binary.LittleEndian.PutUint16(header[14:16], 120)
	binary.LittleEndian.PutUint32(header[16:20], 1000) // timebase denominator
	binary.LittleEndian.PutUint32(header[20:24], 1)    // timebase numerator
	binary.LittleEndian.PutUint32(header[24:28], uint32(frames))
	buf.Write(header)

	for i := 0; i < frames; i++ {
		payload := []byte{0x10 | byte(i), 0x00, 0x00}
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:4], uint32(len(payload)))
		binary.LittleEndian.PutUint64(fh[4:12], uint64(i))
		buf.Write(fh)
		buf.Write(payload)
	}

	path := filepath.Join(t.TempDir(), "clip.ivf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type collectSink struct {
	frames chan core.VideoFrame
}

func (s *collectSink) Deliver(f core.VideoFrame) {
	select {
	case s.frames <- f:
	default:
	}
}

func TestFileSourceLoopsPastEOF(t *testing.T) {
	path := writeTestIVF(t, 2)

	src, err := newFileSource(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w, h, fps := src.Dimensions()
	if w != 160 || h != 120 || fps != 1000 {
		t.Fatalf("dimensions = %dx%d@%d, want 160x120@1000", w, h, fps)
	}

	sink := &collectSink{frames: make(chan core.VideoFrame, 64)}
	if err := src.Start(context.Background(), sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Stop()

	// A 2-frame file delivering 5 frames proves playback wrapped around.
	deadline := time.After(3 * time.Second)
	for i := 0; i < 5; i++ {
		select {
		case f := <-sink.frames:
			if f.Format != core.FormatVP8 {
				t.Fatalf("frame %d format = %v, want VP8", i, f.Format)
			}
			if len(f.Data) == 0 {
				t.Fatalf("frame %d empty", i)
			}
		case <-deadline:
			t.Fatalf("only %d frames before timeout, want 5", i)
		}
	}
}

func TestFileSourceStopIsBounded(t *testing.T) {
	path := writeTestIVF(t, 2)

	src, err := newFileSource(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sink := &collectSink{frames: make(chan core.VideoFrame, 4)}
	if err := src.Start(context.Background(), sink); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		src.Stop()
		src.Stop() // repeat stop is a no-op
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSwitchCameraToFile(t *testing.T) {
	path := writeTestIVF(t, 2)
	l := &eventLog{}
	mgr, binding, reneg, _ := newTestManager(l)
	ctx := context.Background()

	if err := mgr.SwitchTo(ctx, domain.Camera(domain.FacingFront)); err != nil {
		t.Fatalf("camera: %v", err)
	}
	if err := mgr.SwitchTo(ctx, domain.File(path)); err != nil {
		t.Fatalf("file: %v", err)
	}

	if got := mgr.Active(); got.Kind != domain.SourceFile {
		t.Fatalf("active = %v, want file", got)
	}
	if l.indexOf("stop camera front") == -1 {
		t.Fatalf("camera not released before file playback: %v", l.events)
	}
	if reneg.count != 2 {
		t.Fatalf("renegotiations = %d, want 2", reneg.count)
	}

	// Encoded frames reach the outbound track.
	deadline := time.Now().Add(3 * time.Second)
	for binding.writeCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no file frames reached the track writer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mgr.Release(ctx)
}
