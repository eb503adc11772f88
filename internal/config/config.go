// Package config provides the engine's runtime configuration: a builder
// with validated defaults, following the same With*/Validate/Default
// shape as the teacher's BackgroundConfig, plus environment overrides
// in the style of its TuningConfig loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable that governs the engine's per-tick
// behaviour, independent of any single venue's ROI/zone settings.
type Config struct {
	FrameIntervalMs               int
	TrackTTLMs                    int
	OccupancySnapshotIntervalMs   int
	VisitEndGraceSec              int
	MinVisitDurationSec           int
	ServiceLingerSec              int
	DwellDefaultSec               int
	EngagementDefaultSec          int
	IngestBufferSize              int
	ClientSendBufferSize          int
	ClientBackpressureTimeoutMs   int

	HTTPAddr    string
	GRPCAddr    string
	DBPath      string
	MockLiDAR   bool
	MQTTEnabled bool
	MQTTBroker  string
}

// Default returns a Config with the system defaults from spec.md §9.
func Default() *Config {
	return &Config{
		FrameIntervalMs:             100,
		TrackTTLMs:                  2000,
		OccupancySnapshotIntervalMs: 2000,
		VisitEndGraceSec:            3,
		MinVisitDurationSec:         1,
		ServiceLingerSec:            30,
		DwellDefaultSec:             60,
		EngagementDefaultSec:        120,
		IngestBufferSize:            10000,
		ClientSendBufferSize:        256,
		ClientBackpressureTimeoutMs: 5000,
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":9090",
		DBPath:                      "venuetrack.db",
		MockLiDAR:                   false,
		MQTTEnabled:                 false,
	}
}

// Validate checks every field is within an acceptable range, returning
// an error naming the first offending field.
func (c *Config) Validate() error {
	if c.FrameIntervalMs <= 0 {
		return fmt.Errorf("FrameIntervalMs must be positive, got %d", c.FrameIntervalMs)
	}
	if c.TrackTTLMs <= 0 {
		return fmt.Errorf("TrackTTLMs must be positive, got %d", c.TrackTTLMs)
	}
	if c.OccupancySnapshotIntervalMs <= 0 {
		return fmt.Errorf("OccupancySnapshotIntervalMs must be positive, got %d", c.OccupancySnapshotIntervalMs)
	}
	if c.VisitEndGraceSec < 0 {
		return fmt.Errorf("VisitEndGraceSec must be non-negative, got %d", c.VisitEndGraceSec)
	}
	if c.MinVisitDurationSec < 0 {
		return fmt.Errorf("MinVisitDurationSec must be non-negative, got %d", c.MinVisitDurationSec)
	}
	if c.ServiceLingerSec < 0 {
		return fmt.Errorf("ServiceLingerSec must be non-negative, got %d", c.ServiceLingerSec)
	}
	if c.DwellDefaultSec <= 0 {
		return fmt.Errorf("DwellDefaultSec must be positive, got %d", c.DwellDefaultSec)
	}
	if c.EngagementDefaultSec <= 0 {
		return fmt.Errorf("EngagementDefaultSec must be positive, got %d", c.EngagementDefaultSec)
	}
	if c.IngestBufferSize <= 0 {
		return fmt.Errorf("IngestBufferSize must be positive, got %d", c.IngestBufferSize)
	}
	if c.ClientSendBufferSize <= 0 {
		return fmt.Errorf("ClientSendBufferSize must be positive, got %d", c.ClientSendBufferSize)
	}
	if c.ClientBackpressureTimeoutMs <= 0 {
		return fmt.Errorf("ClientBackpressureTimeoutMs must be positive, got %d", c.ClientBackpressureTimeoutMs)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTPAddr must not be empty")
	}
	return nil
}

// FrameInterval returns FrameIntervalMs as a time.Duration.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// TrackTTL returns TrackTTLMs as a time.Duration.
func (c *Config) TrackTTL() time.Duration {
	return time.Duration(c.TrackTTLMs) * time.Millisecond
}

// OccupancySnapshotInterval returns OccupancySnapshotIntervalMs as a time.Duration.
func (c *Config) OccupancySnapshotInterval() time.Duration {
	return time.Duration(c.OccupancySnapshotIntervalMs) * time.Millisecond
}

// WithFrameIntervalMs sets the aggregator tick cadence.
func (c *Config) WithFrameIntervalMs(ms int) *Config {
	c.FrameIntervalMs = ms
	return c
}

// WithTrackTTLMs sets the max silence before a track is evicted.
func (c *Config) WithTrackTTLMs(ms int) *Config {
	c.TrackTTLMs = ms
	return c
}

// WithOccupancySnapshotIntervalMs sets the occupancy sampling cadence.
func (c *Config) WithOccupancySnapshotIntervalMs(ms int) *Config {
	c.OccupancySnapshotIntervalMs = ms
	return c
}

// WithVisitEndGraceSec sets the default grace window before closing a visit.
func (c *Config) WithVisitEndGraceSec(sec int) *Config {
	c.VisitEndGraceSec = sec
	return c
}

// WithMinVisitDurationSec sets the minimum duration for a visit to count.
func (c *Config) WithMinVisitDurationSec(sec int) *Config {
	c.MinVisitDurationSec = sec
	return c
}

// WithServiceLingerSec sets the queue->service completion window.
func (c *Config) WithServiceLingerSec(sec int) *Config {
	c.ServiceLingerSec = sec
	return c
}

// WithDwellDefaultSec sets the system-wide default dwell threshold.
func (c *Config) WithDwellDefaultSec(sec int) *Config {
	c.DwellDefaultSec = sec
	return c
}

// WithEngagementDefaultSec sets the system-wide default engagement threshold.
func (c *Config) WithEngagementDefaultSec(sec int) *Config {
	c.EngagementDefaultSec = sec
	return c
}

// WithIngestBufferSize sets the per-venue ingest channel capacity.
func (c *Config) WithIngestBufferSize(n int) *Config {
	c.IngestBufferSize = n
	return c
}

// WithClientSendBufferSize sets ClientSendBufferSize. Only Validate reads
// it: fan-out clients always get a fixed 64-entry send buffer.
func (c *Config) WithClientSendBufferSize(n int) *Config {
	c.ClientSendBufferSize = n
	return c
}

// WithClientBackpressureTimeoutMs sets ClientBackpressureTimeoutMs. Only
// Validate reads it: the fan-out Hub disconnects a client as soon as its
// send buffer is full, without waiting, and drops no message selectively.
func (c *Config) WithClientBackpressureTimeoutMs(ms int) *Config {
	c.ClientBackpressureTimeoutMs = ms
	return c
}

// WithHTTPAddr sets the control-plane listen address.
func (c *Config) WithHTTPAddr(addr string) *Config {
	c.HTTPAddr = addr
	return c
}

// WithMockLiDAR enables or disables the synthetic mock track source.
func (c *Config) WithMockLiDAR(enabled bool) *Config {
	c.MockLiDAR = enabled
	return c
}

// WithMQTT enables the MQTT source against the given broker URL.
func (c *Config) WithMQTT(enabled bool, broker string) *Config {
	c.MQTTEnabled = enabled
	c.MQTTBroker = broker
	return c
}

// WithGRPCAddr sets the gRPC frame-export listen address. An empty
// address disables the export server entirely.
func (c *Config) WithGRPCAddr(addr string) *Config {
	c.GRPCAddr = addr
	return c
}

// WithDBPath sets the sqlite database file path.
func (c *Config) WithDBPath(path string) *Config {
	c.DBPath = path
	return c
}

// FromEnv starts from Default() and overrides fields present in the
// process environment, mirroring the teacher's TuningConfig precedence
// of explicit values over built-in defaults.
func FromEnv() (*Config, error) {
	c := Default()

	if v, ok := os.LookupEnv("PORT"); ok {
		c.HTTPAddr = ":" + v
	}
	if v, ok := os.LookupEnv("MOCK_LIDAR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: MOCK_LIDAR: %w", err)
		}
		c.MockLiDAR = b
	}
	if v, ok := os.LookupEnv("MQTT_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: MQTT_ENABLED: %w", err)
		}
		c.MQTTEnabled = b
	}
	if v, ok := os.LookupEnv("MQTT_BROKER"); ok {
		c.MQTTBroker = v
	}
	if v, ok := os.LookupEnv("TRACK_TTL_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: TRACK_TTL_MS: %w", err)
		}
		c.TrackTTLMs = n
	}
	if v, ok := os.LookupEnv("FRAME_INTERVAL_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: FRAME_INTERVAL_MS: %w", err)
		}
		c.FrameIntervalMs = n
	}
	if v, ok := os.LookupEnv("OCCUPANCY_SNAPSHOT_INTERVAL_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: OCCUPANCY_SNAPSHOT_INTERVAL_MS: %w", err)
		}
		c.OccupancySnapshotIntervalMs = n
	}
	if v, ok := os.LookupEnv("SERVICE_LINGER_SEC"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: SERVICE_LINGER_SEC: %w", err)
		}
		c.ServiceLingerSec = n
	}
	if v, ok := os.LookupEnv("GRPC_ADDR"); ok {
		c.GRPCAddr = v
	}
	if v, ok := os.LookupEnv("DB_PATH"); ok {
		c.DBPath = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
