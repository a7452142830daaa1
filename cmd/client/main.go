// Command client is a headless call participant. It joins a room on the
// signaling server, negotiates a peer connection and publishes a local
// media source, optionally compositing a virtual background.
package main

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	flag "github.com/spf13/pflag"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/adapters/rtc"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/compositor"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/config"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/media"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/negotiate"
	"github.com/maitrungduc1410/WebRTC-Demo/internal/signaling"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	var (
		serverURL  = flag.String("server", cfg.SignalURL, "signaling server websocket URL")
		roomID     = flag.String("room", "demo", "room to join")
		sourceName = flag.String("source", "camera", "initial media source: camera, screen, file or none")
		filePath   = flag.String("file", "", "IVF file for the file source")
		bgPath     = flag.String("background", "", "virtual background image (png or jpeg)")
	)
	flag.Parse()

	conn, err := rtc.NewConnection(rtc.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create peer connection")
	}

	var processor media.FrameProcessor
	if *bgPath != "" {
		bg, err := loadImage(*bgPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *bgPath).Msg("failed to load background")
		}
		processor = compositor.New(compositor.Options{
			Background:        bg,
			Segmenter:         &compositor.LumaSegmenter{},
			InferenceInterval: cfg.InferenceInterval,
			SegmentationWidth: cfg.SegmentationWidth,
		})
	}

	neg := &lazyNegotiator{}
	mgr := media.NewManager(media.Options{
		Binding:    conn,
		Negotiator: neg,
		Processor:  processor,
		Enumerator: media.NewSyntheticEnumerator(),
		Grant:      &media.SyntheticGrant{},
	})

	var ch *signaling.Channel
	ch = signaling.NewChannel(*serverURL, signaling.Handlers{
		OnPeerJoined: func() {
			// We created the room and a peer just arrived, so this side
			// opens negotiation and keeps its own offer on glare.
			n := neg.init(conn, &roomSender{ch: ch, room: *roomID}, false)
			if err := n.StartNegotiation(); err != nil {
				log.Error().Err(err).Msg("failed to start negotiation")
			}
		},
		OnOffer: func(sd signaling.SessionDescription) {
			// An offer before any local negotiation means we joined an
			// existing room; this side yields on glare.
			n := neg.init(conn, &roomSender{ch: ch, room: *roomID}, true)
			if err := n.HandleRemoteOffer(sd); err != nil {
				log.Error().Err(err).Msg("failed to handle offer")
			}
		},
		OnAnswer: func(sd signaling.SessionDescription) {
			if n := neg.get(); n != nil {
				if err := n.HandleRemoteAnswer(sd); err != nil {
					log.Error().Err(err).Msg("failed to handle answer")
				}
			}
		},
		OnCandidate: func(cand signaling.ICECandidate) {
			if n := neg.get(); n != nil {
				if err := n.HandleRemoteCandidate(cand); err != nil {
					log.Error().Err(err).Msg("failed to add candidate")
				}
			}
		},
		OnServerMessage: func(msg string) {
			log.Info().Str("module", "client").Str("message", msg).Msg("server message")
		},
		OnClosed: func() {
			log.Warn().Str("module", "client").Msg("signaling transport lost")
			cancel()
		},
	})

	conn.OnICECandidate(func(cand signaling.ICECandidate) {
		if err := ch.SendCandidate(*roomID, cand); err != nil {
			log.Error().Err(err).Msg("failed to send candidate")
		}
	})
	conn.OnClosed(func() {
		log.Warn().Str("module", "client").Msg("peer connection closed")
	})

	if err := ch.Connect(); err != nil {
		log.Fatal().Err(err).Str("server", *serverURL).Msg("failed to connect")
	}
	if err := conn.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start peer connection")
	}
	if err := ch.JoinRoom(*roomID); err != nil {
		log.Fatal().Err(err).Msg("failed to join room")
	}
	log.Info().Str("room", *roomID).Str("server", *serverURL).Msg("joined")

	initial, err := parseSource(*sourceName, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid source")
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := mgr.SwitchTo(ctx, initial); err != nil {
			log.Error().Err(err).Stringer("source", initial).Msg("failed to start media source")
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	mgr.Release(context.Background())
	if n := neg.get(); n != nil {
		n.Close()
	}
	if err := ch.LeaveRoom(*roomID); err == nil {
		log.Info().Str("room", *roomID).Msg("left room")
	}
	ch.Close()
	wg.Wait()
	log.Info().Msg("Client exited gracefully")
}

func parseSource(name, path string) (domain.MediaSource, error) {
	switch name {
	case "camera":
		return domain.Camera(domain.FacingFront), nil
	case "screen":
		return domain.Screen(), nil
	case "file":
		return domain.File(path), nil
	case "none":
		return domain.NoSource(), nil
	default:
		return domain.MediaSource{}, domain.ErrSourceUnavailable
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// roomSender binds outbound session descriptions to one room.
type roomSender struct {
	ch   *signaling.Channel
	room string
}

func (s *roomSender) SendOffer(sd signaling.SessionDescription) error {
	return s.ch.SendOffer(s.room, sd)
}

func (s *roomSender) SendAnswer(sd signaling.SessionDescription) error {
	return s.ch.SendAnswer(s.room, sd)
}

// lazyNegotiator defers construction until the first signaling event
// reveals which side of the call we are. The side that created the room
// learns it from the peer-joined event, the joiner from the first offer.
type lazyNegotiator struct {
	mu  sync.Mutex
	neg *negotiate.Negotiator
}

func (l *lazyNegotiator) init(handle negotiate.PeerHandle, sender negotiate.Sender, polite bool) *negotiate.Negotiator {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.neg == nil {
		l.neg = negotiate.New(handle, sender, polite)
	}
	return l.neg
}

func (l *lazyNegotiator) get() *negotiate.Negotiator {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.neg
}

// StartNegotiation lets the media manager request renegotiation before the
// peer exists; those requests are dropped, the initial offer covers the
// tracks attached so far.
func (l *lazyNegotiator) StartNegotiation() error {
	if n := l.get(); n != nil {
		return n.StartNegotiation()
	}
	return nil
}
