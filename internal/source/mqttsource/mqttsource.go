// Package mqttsource subscribes to a broker topic carrying track
// samples as JSON payloads, one message per sample, using Eclipse
// Paho's MQTT client — named explicitly because no example repo in the
// retrieval pack carries an MQTT dependency of its own.
package mqttsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/venuetrack/engine/internal/model"
	"github.com/venuetrack/engine/internal/source"
)

type wirePayload struct {
	VenueID       string   `json:"venueId"`
	SourceTrackID string   `json:"sourceTrackId"`
	TimestampUnix float64  `json:"timestampUnix"`
	X             float64  `json:"x"`
	Z             float64  `json:"z"`
	VX            *float64 `json:"vx,omitempty"`
	VZ            *float64 `json:"vz,omitempty"`
	ObjectType    string   `json:"objectType,omitempty"`
}

// Config configures a Source bound to a broker and topic.
type Config struct {
	SourceID string
	Broker   string // e.g. "tcp://localhost:1883"
	Topic    string // e.g. "venues/+/tracks"
	ClientID string
	Log      *slog.Logger
}

// Source implements source.Source over an MQTT subscription.
type Source struct {
	cfg Config
	log *slog.Logger
}

// New returns a Source for cfg.
func New(cfg Config) *Source {
	if cfg.ClientID == "" {
		cfg.ClientID = "venuetrack-" + cfg.SourceID
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Source{cfg: cfg, log: cfg.Log}
}

func (s *Source) ID() string { return s.cfg.SourceID }

// Start connects to the broker and subscribes to cfg.Topic, forwarding
// each message as a TrackSample until ctx is cancelled. Connection loss
// triggers the client library's own auto-reconnect; StatusEvents mirror
// the connect/disconnect handlers.
func (s *Source) Start(ctx context.Context, samples chan<- model.TrackSample, status chan<- source.StatusEvent) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		source.SendStatus(status, source.StatusEvent{SourceID: s.cfg.SourceID, Status: source.StatusConnected})
		s.log.Info("mqttsource: connected", "source", s.cfg.SourceID, "broker", s.cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		source.SendStatus(status, source.StatusEvent{
			SourceID: s.cfg.SourceID, Status: source.StatusDisconnected, Detail: err.Error(),
		})
		s.log.Warn("mqttsource: connection lost", "source", s.cfg.SourceID, "err", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqttsource: connect %s: %w", s.cfg.Broker, token.Error())
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var wp wirePayload
		if err := json.Unmarshal(msg.Payload(), &wp); err != nil {
			s.log.Warn("mqttsource: malformed message dropped", "source", s.cfg.SourceID, "err", err)
			return
		}
		source.SendSample(samples, wp.toTrackSample(s.cfg.SourceID))
	}

	if token := client.Subscribe(s.cfg.Topic, 0, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqttsource: subscribe %s: %w", s.cfg.Topic, token.Error())
	}

	<-ctx.Done()
	return ctx.Err()
}

func (wp wirePayload) toTrackSample(sourceID string) model.TrackSample {
	return model.TrackSample{
		VenueID:       wp.VenueID,
		SourceID:      sourceID,
		SourceTrackID: wp.SourceTrackID,
		Timestamp:     time.Unix(0, int64(wp.TimestampUnix*float64(time.Second))),
		X:             wp.X,
		Z:             wp.Z,
		VX:            wp.VX,
		VZ:            wp.VZ,
		ObjectType:    model.ObjectType(wp.ObjectType),
	}
}
