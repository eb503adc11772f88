// Package mocksource generates deterministic synthetic tracks for
// demos and tests: a fixed number of simulated shoppers following
// seeded pseudo-random walks within the venue footprint, never
// wall-clock random so a replay is reproducible.
package mocksource

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/venuetrack/engine/internal/model"
	"github.com/venuetrack/engine/internal/source"
)

// Config configures the synthetic generator.
type Config struct {
	SourceID     string
	VenueID      string
	WidthMeters  float64
	DepthMeters  float64
	ObjectCount  int
	TickInterval time.Duration
	Seed         uint64
}

// Source implements source.Source by simulating ObjectCount independent
// random walkers confined to the venue footprint.
type Source struct {
	cfg     Config
	walkers []walker
}

type walker struct {
	trackID string
	x, z    float64
	vx, vz  float64
	rng     *rand.Rand
}

// New returns a Source for cfg, defaulting TickInterval and ObjectCount
// if unset, and seeding each walker deterministically from cfg.Seed.
func New(cfg Config) *Source {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.ObjectCount == 0 {
		cfg.ObjectCount = 6
	}
	s := &Source{cfg: cfg}
	for i := 0; i < cfg.ObjectCount; i++ {
		seed := cfg.Seed + uint64(i)*0x9E3779B97F4A7C15
		rng := rand.New(rand.NewPCG(seed, seed^0xD1B54A32D192ED03))
		s.walkers = append(s.walkers, walker{
			trackID: fmt.Sprintf("mock-%d", i),
			x:       rng.Float64() * cfg.WidthMeters,
			z:       rng.Float64() * cfg.DepthMeters,
			rng:     rng,
		})
	}
	return s
}

func (s *Source) ID() string { return s.cfg.SourceID }

// Start advances every walker on a fixed tick, emitting one sample per
// walker per tick until ctx is cancelled.
func (s *Source) Start(ctx context.Context, samples chan<- model.TrackSample, status chan<- source.StatusEvent) error {
	source.SendStatus(status, source.StatusEvent{SourceID: s.cfg.SourceID, Status: source.StatusConnected})

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for i := range s.walkers {
				s.step(&s.walkers[i])
				source.SendSample(samples, s.walkers[i].sample(s.cfg.SourceID, s.cfg.VenueID, now))
			}
		}
	}
}

// step advances w by one tick: a bounded random acceleration integrated
// into velocity and position, reflecting off the venue walls so walkers
// stay within the footprint indefinitely.
func (s *Source) step(w *walker) {
	const maxSpeed = 1.5 // m/s, brisk walking pace
	const accel = 0.6

	w.vx += (w.rng.Float64()*2 - 1) * accel * s.cfg.TickInterval.Seconds()
	w.vz += (w.rng.Float64()*2 - 1) * accel * s.cfg.TickInterval.Seconds()
	if speed := math.Hypot(w.vx, w.vz); speed > maxSpeed {
		w.vx = w.vx / speed * maxSpeed
		w.vz = w.vz / speed * maxSpeed
	}

	w.x += w.vx * s.cfg.TickInterval.Seconds()
	w.z += w.vz * s.cfg.TickInterval.Seconds()

	if w.x < 0 {
		w.x = 0
		w.vx = -w.vx
	}
	if w.x > s.cfg.WidthMeters {
		w.x = s.cfg.WidthMeters
		w.vx = -w.vx
	}
	if w.z < 0 {
		w.z = 0
		w.vz = -w.vz
	}
	if w.z > s.cfg.DepthMeters {
		w.z = s.cfg.DepthMeters
		w.vz = -w.vz
	}
}

func (w walker) sample(sourceID, venueID string, ts time.Time) model.TrackSample {
	vx, vz := w.vx, w.vz
	return model.TrackSample{
		VenueID:       venueID,
		SourceID:      sourceID,
		SourceTrackID: w.trackID,
		Timestamp:     ts,
		X:             w.x,
		Z:             w.z,
		VX:            &vx,
		VZ:            &vz,
		ObjectType:    "person",
	}
}

