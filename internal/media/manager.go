// Package media owns the local capture pipeline: exactly one active source
// (camera, screen, file or none), the outbound tracks derived from it, and
// the renegotiation a source switch triggers.
package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// Renegotiator requests a fresh offer/answer round after track changes.
type Renegotiator interface {
	StartNegotiation() error
}

// FrameProcessor sits between capture and the outbound track (the virtual
// background compositor). Reset drops state tied to the previous producer.
type FrameProcessor interface {
	Process(core.VideoFrame) core.VideoFrame
	Reset()
}

// Options wires the manager's collaborators. Binding, Negotiator and
// Processor may be nil: a manager can run capture before any peer exists,
// and without a virtual background.
type Options struct {
	Binding    core.MediaBinding
	Negotiator Renegotiator
	Processor  FrameProcessor
	Enumerator DeviceEnumerator
	Grant      ScreenGrant
}

// Manager owns the active MediaSource. Switching always tears the old
// source down completely before the new one starts: downstream consumers
// assume a single producer.
type Manager struct {
	mu sync.Mutex

	binding    core.MediaBinding
	negotiator Renegotiator
	processor  FrameProcessor
	enumerator DeviceEnumerator
	grant      ScreenGrant

	active     core.CaptureSource
	activeDesc domain.MediaSource

	// writer has its own lock: the frame path reads it from the producer
	// goroutine while SwitchTo holds m.mu waiting for that goroutine to
	// stop. Sharing m.mu there would deadlock.
	wmu    sync.Mutex
	writer core.TrackWriter
}

func NewManager(opts Options) *Manager {
	return &Manager{
		binding:    opts.Binding,
		negotiator: opts.Negotiator,
		processor:  opts.Processor,
		enumerator: opts.Enumerator,
		grant:      opts.Grant,
		activeDesc: domain.NoSource(),
	}
}

// Active reports the currently active source variant.
func (m *Manager) Active() domain.MediaSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeDesc
}

// SwitchTo replaces the active source. The call is exclusive: a concurrent
// switch queues behind the running one. Teardown of the old source always
// completes before the new source is created, for every pair including
// switching a source to itself.
//
// On failure the previous source stays torn down; reverting is the caller's
// decision.
func (m *Manager) SwitchTo(ctx context.Context, src domain.MediaSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Info().Str("module", "media").Str("from", m.activeDesc.String()).Str("to", src.String()).Msg("switching source")

	// Detach outbound tracks first so the peer never sees frames from a
	// half-torn-down source.
	if m.binding != nil && m.getWriter() != nil {
		if err := m.binding.DetachTracks(); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("detach tracks")
		}
		m.setWriter(nil)
	}

	// Stop blocks until the producer goroutine has exited.
	if m.active != nil {
		m.active.Stop()
		m.active = nil
		log.Info().Str("module", "media").Str("source", m.activeDesc.String()).Msg("source released")
	}
	m.activeDesc = domain.NoSource()

	if src.Kind == domain.SourceNone {
		if m.processor != nil {
			m.processor.Reset()
		}
		return nil
	}

	source, err := m.create(src)
	if err != nil {
		return err
	}
	if err := source.Start(ctx, m.pipelineSink()); err != nil {
		return fmt.Errorf("%w: start %s: %w", domain.ErrSourceUnavailable, src.Kind, err)
	}

	if m.binding != nil {
		writer, err := m.binding.AttachTracks()
		if err != nil {
			source.Stop()
			return fmt.Errorf("attach tracks: %w", err)
		}
		m.setWriter(writer)
		if m.negotiator != nil {
			if err := m.negotiator.StartNegotiation(); err != nil {
				log.Error().Err(err).Str("module", "media").Msg("renegotiation request")
			}
		}
	}

	// Stale masks from the previous producer must never be composited onto
	// frames of the new one.
	if m.processor != nil {
		m.processor.Reset()
	}

	m.active = source
	m.activeDesc = src
	return nil
}

// create dispatches on the source variant.
func (m *Manager) create(src domain.MediaSource) (core.CaptureSource, error) {
	switch src.Kind {
	case domain.SourceCamera:
		return openCamera(m.enumerator, src.Facing)
	case domain.SourceScreen:
		if m.grant == nil {
			return nil, fmt.Errorf("%w: no screen capture grant", domain.ErrSourceUnavailable)
		}
		s, err := m.grant.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: screen: %w", domain.ErrSourceUnavailable, err)
		}
		return s, nil
	case domain.SourceFile:
		return newFileSource(src.Path)
	default:
		return nil, fmt.Errorf("unsupported source kind %v", src.Kind)
	}
}

// pipelineSink routes capture frames through the processor (when present)
// into the outbound track writer.
func (m *Manager) pipelineSink() core.FrameSink {
	return core.FrameSinkFunc(func(f core.VideoFrame) {
		if m.processor != nil {
			f = m.processor.Process(f)
		}
		w := m.getWriter()
		if w == nil {
			return
		}
		if err := w.WriteFrame(f); err != nil {
			log.Debug().Err(err).Str("module", "media").Msg("frame write")
		}
	})
}

func (m *Manager) getWriter() core.TrackWriter {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return m.writer
}

func (m *Manager) setWriter(w core.TrackWriter) {
	m.wmu.Lock()
	m.writer = w
	m.wmu.Unlock()
}

// SwitchCamera flips between front and back camera. A shorthand for the
// common in-call gesture; no-op semantics on non-camera sources are up to
// the caller, which gets an explicit error.
func (m *Manager) SwitchCamera(ctx context.Context) error {
	m.mu.Lock()
	cur := m.activeDesc
	m.mu.Unlock()
	if cur.Kind != domain.SourceCamera {
		return fmt.Errorf("active source is %s, not a camera", cur.Kind)
	}
	facing := domain.FacingFront
	if cur.Facing == domain.FacingFront {
		facing = domain.FacingBack
	}
	return m.SwitchTo(ctx, domain.Camera(facing))
}

func (m *Manager) SetAudioEnabled(on bool) {
	if m.binding != nil {
		m.binding.SetAudioEnabled(on)
	}
}

func (m *Manager) SetVideoEnabled(on bool) {
	if m.binding != nil {
		m.binding.SetVideoEnabled(on)
	}
}

// Release tears down everything: tracks detached, source stopped, processor
// reset. Used on transport drop and shutdown; idempotent.
func (m *Manager) Release(ctx context.Context) {
	if err := m.SwitchTo(ctx, domain.NoSource()); err != nil {
		log.Error().Err(err).Str("module", "media").Msg("release")
	}
}
