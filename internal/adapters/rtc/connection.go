// Package rtc adapts a pion PeerConnection to the negotiation and media
// seams of the core. Encoding, DTLS and ICE transport all live inside pion;
// this layer only converts types and owns lifecycle.
package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/core"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/signaling"
)

type Connection struct {
	pc     *webrtc.PeerConnection
	cancel context.CancelFunc

	onICE    func(signaling.ICECandidate)
	onClosed func()
	onPacket func(*rtp.Packet)

	mu       sync.Mutex
	senders  []*webrtc.RTPSender
	video    *webrtc.TrackLocalStaticSample
	videoOn  atomic.Bool
	audioOn  atomic.Bool
	closedCh chan struct{}
}

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewConnection(cfg webrtc.Configuration) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, closedCh: make(chan struct{})}
	c.videoOn.Store(true)
	c.audioOn.Store(true)
	return c, nil
}

// OnICECandidate sets a callback for newly gathered local ICE candidates.
// Must be set before Start.
func (c *Connection) OnICECandidate(fn func(signaling.ICECandidate)) { c.onICE = fn }

// OnClosed sets a callback fired when the connection fails or closes.
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }

// OnRemotePacket sets a callback receiving every inbound RTP packet. The
// embedding application decodes and renders; when nil the packets are read
// and discarded.
func (c *Connection) OnRemotePacket(fn func(*rtp.Packet)) { c.onPacket = fn }

// Start configures internal callbacks and binds the connection lifetime to
// ctx. Remote tracks are drained as they arrive so the peer is never
// throttled by an unread track.
func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			if c.onClosed != nil {
				c.onClosed()
			}
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.onICE == nil {
			return
		}
		ci := cand.ToJSON()
		out := signaling.ICECandidate{Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			out.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			out.SDPMLineIndex = *ci.SDPMLineIndex
		}
		c.onICE(out)
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		go c.drainTrack(ctx, track)
	})

	return nil
}

// drainTrack keeps reading RTP from a remote track until the connection
// dies. Congestion control stalls if inbound packets are left unread.
func (c *Connection) drainTrack(ctx context.Context, track *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "rtc").Msg("remote track read")
			}
			return
		}
		if c.onPacket != nil {
			c.onPacket(pkt)
		}
	}
}

// ---- negotiate.PeerHandle ----

func (c *Connection) CreateOffer() (signaling.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (c *Connection) CreateAnswer() (signaling.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (c *Connection) SetLocalDescription(sd signaling.SessionDescription) error {
	return c.pc.SetLocalDescription(toPion(sd))
}

func (c *Connection) SetRemoteDescription(sd signaling.SessionDescription) error {
	return c.pc.SetRemoteDescription(toPion(sd))
}

func (c *Connection) Rollback() error {
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (c *Connection) AddICECandidate(cand signaling.ICECandidate) error {
	init := webrtc.ICECandidateInit{Candidate: cand.Candidate}
	if cand.SDPMid != "" {
		init.SDPMid = &cand.SDPMid
	}
	idx := cand.SDPMLineIndex
	init.SDPMLineIndex = &idx
	return c.pc.AddICECandidate(init)
}

func (c *Connection) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("closed")
	}
	return err
}

// ---- core.MediaBinding ----

// AttachTracks adds fresh audio and video sample tracks and returns the
// writer for the video leg. Call DetachTracks before attaching again.
func (c *Connection) AttachTracks() (core.TrackWriter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "local-media",
	)
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "local-media",
	)
	if err != nil {
		return nil, err
	}

	vs, err := c.pc.AddTrack(video)
	if err != nil {
		return nil, err
	}
	as, err := c.pc.AddTrack(audio)
	if err != nil {
		_ = c.pc.RemoveTrack(vs)
		return nil, err
	}
	c.senders = append(c.senders, vs, as)
	c.video = video
	return &trackWriter{conn: c}, nil
}

// DetachTracks removes every outbound track so a half-torn-down source can
// never leak frames to the peer.
func (c *Connection) DetachTracks() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, s := range c.senders {
		if err := c.pc.RemoveTrack(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.senders = nil
	c.video = nil
	return firstErr
}

func (c *Connection) SetAudioEnabled(on bool) { c.audioOn.Store(on) }
func (c *Connection) SetVideoEnabled(on bool) { c.videoOn.Store(on) }

// trackWriter feeds the outbound video track. Frames are written as-is: the
// file source already delivers encoded VP8, synthetic raw sources are only
// meaningful to loopback consumers.
type trackWriter struct {
	conn *Connection
}

func (w *trackWriter) WriteFrame(f core.VideoFrame) error {
	if !w.conn.videoOn.Load() {
		return nil
	}
	w.conn.mu.Lock()
	track := w.conn.video
	w.conn.mu.Unlock()
	if track == nil {
		return errors.New("track detached")
	}
	return track.WriteSample(media.Sample{Data: f.Data, Duration: f.Duration})
}

func fromPion(sd webrtc.SessionDescription) signaling.SessionDescription {
	return signaling.SessionDescription{Type: sd.Type.String(), SDP: sd.SDP}
}

func toPion(sd signaling.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(sd.Type), SDP: sd.SDP}
}
