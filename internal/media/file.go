package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// fileSource plays an IVF-contained VP8 file in a loop at its native
// resolution. Frames go out encoded; the compositor passes them through.
//
// Pacing comes from a ticker at the file's frame interval, so timing does
// not drift across loop boundaries: the seek back to the start keeps the
// same cadence instead of accumulating per-loop error.
type fileSource struct {
	path     string
	width    int
	height   int
	interval time.Duration

	started bool
	stop    chan struct{}
	done    chan struct{}
}

func newFileSource(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	_, header, err := ivfreader.NewWith(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: not an ivf file: %v", domain.ErrSourceUnavailable, err)
	}

	interval := time.Millisecond * time.Duration(
		(float64(header.TimebaseNumerator)/float64(header.TimebaseDenominator))*1000,
	)
	if interval <= 0 {
		interval = time.Second / 30
	}

	return &fileSource{
		path:     path,
		width:    int(header.Width),
		height:   int(header.Height),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (s *fileSource) Dimensions() (int, int, int) {
	return s.width, s.height, int(time.Second / s.interval)
}

func (s *fileSource) Start(ctx context.Context, sink core.FrameSink) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	reader, _, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	s.started = true
	go s.playLoop(ctx, f, reader, sink)
	return nil
}

// playLoop feeds one frame per tick. The stop flag is checked every
// iteration, so stop latency is bounded by a single frame interval.
func (s *fileSource) playLoop(ctx context.Context, f *os.File, reader *ivfreader.IVFReader, sink core.FrameSink) {
	defer close(s.done)
	defer f.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			// Loop: seek to the start and re-parse the header. The ticker
			// keeps ticking, so the restart costs one frame slot at most.
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				log.Error().Err(err).Str("module", "media").Msg("file loop seek")
				return
			}
			if reader, _, err = ivfreader.NewWith(f); err != nil {
				log.Error().Err(err).Str("module", "media").Msg("file loop reopen")
				return
			}
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("module", "media").Str("path", s.path).Msg("file frame parse")
			return
		}

		sink.Deliver(core.VideoFrame{
			Width:    s.width,
			Height:   s.height,
			Format:   core.FormatVP8,
			Data:     frame,
			Duration: s.interval,
		})
	}
}

// Stop blocks until the playback goroutine has exited.
func (s *fileSource) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	if s.started {
		<-s.done
	}
}
