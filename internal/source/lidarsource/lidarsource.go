// Package lidarsource connects to a LiDAR concentrator's UDP track
// feed, following the teacher's network.UDPListener context-cancellable
// read loop: a deadline-bounded read so context cancellation is checked
// regularly, with warning-only reconnect on transient errors.
package lidarsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/venuetrack/engine/internal/model"
	"github.com/venuetrack/engine/internal/source"
)

// wireSample is the JSON frame a concentrator sends per UDP datagram.
// One datagram carries one sample; concentrators batch at the network
// layer, not the application layer.
type wireSample struct {
	VenueID       string   `json:"venueId"`
	SourceTrackID string   `json:"sourceTrackId"`
	TimestampUnix float64  `json:"timestampUnix"`
	X             float64  `json:"x"`
	Z             float64  `json:"z"`
	VX            *float64 `json:"vx,omitempty"`
	VZ            *float64 `json:"vz,omitempty"`
	ObjectType    string   `json:"objectType,omitempty"`
}

// Config configures a Source bound to one concentrator.
type Config struct {
	SourceID    string
	Address     string // "host:port", UDP
	RcvBufBytes int
	Log         *slog.Logger
}

// Source implements source.Source over a UDP LiDAR concentrator feed.
type Source struct {
	cfg Config
	log *slog.Logger
}

// New returns a Source for cfg, defaulting RcvBufBytes and Log if unset.
func New(cfg Config) *Source {
	if cfg.RcvBufBytes == 0 {
		cfg.RcvBufBytes = 1 << 20
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Source{cfg: cfg, log: cfg.Log}
}

func (s *Source) ID() string { return s.cfg.SourceID }

// Start resolves and listens on the configured UDP address, parsing
// each datagram as a single wireSample. On bind failure it retries with
// backoff rather than returning immediately, matching the teacher's
// tolerance for a concentrator that hasn't come up yet.
func (s *Source) Start(ctx context.Context, samples chan<- model.TrackSample, status chan<- source.StatusEvent) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.listenOnce(ctx, samples, status)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		source.SendStatus(status, source.StatusEvent{
			SourceID: s.cfg.SourceID, Status: source.StatusDisconnected, Detail: err.Error(),
		})
		s.log.Warn("lidarsource: listener error, retrying", "source", s.cfg.SourceID, "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (s *Source) listenOnce(ctx context.Context, samples chan<- model.TrackSample, status chan<- source.StatusEvent) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("lidarsource: resolve %s: %w", s.cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("lidarsource: listen %s: %w", s.cfg.Address, err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(s.cfg.RcvBufBytes); err != nil {
		s.log.Warn("lidarsource: failed to set read buffer", "source", s.cfg.SourceID, "err", err)
	}

	source.SendStatus(status, source.StatusEvent{SourceID: s.cfg.SourceID, Status: source.StatusConnected})
	s.log.Info("lidarsource: listening", "source", s.cfg.SourceID, "addr", s.cfg.Address)

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("lidarsource: read: %w", err)
		}

		var ws wireSample
		if err := json.Unmarshal(buf[:n], &ws); err != nil {
			s.log.Warn("lidarsource: malformed datagram dropped", "source", s.cfg.SourceID, "err", err)
			continue
		}
		source.SendSample(samples, ws.toTrackSample(s.cfg.SourceID))
	}
}

func (ws wireSample) toTrackSample(sourceID string) model.TrackSample {
	return model.TrackSample{
		VenueID:       ws.VenueID,
		SourceID:      sourceID,
		SourceTrackID: ws.SourceTrackID,
		Timestamp:     time.Unix(0, int64(ws.TimestampUnix*float64(time.Second))),
		X:             ws.X,
		Z:             ws.Z,
		VX:            ws.VX,
		VZ:            ws.VZ,
		ObjectType:    model.ObjectType(ws.ObjectType),
	}
}
