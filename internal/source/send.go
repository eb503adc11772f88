package source

import (
	"github.com/venuetrack/engine/internal/metrics"
	"github.com/venuetrack/engine/internal/model"
)

// SendSample delivers sample to out without blocking: if out is full,
// the oldest buffered sample is discarded to make room. This is the
// ingest-side half of spec.md's drop-oldest backpressure policy; the
// aggregator never stalls a source's read loop.
func SendSample(out chan<- model.TrackSample, sample model.TrackSample) {
	for {
		select {
		case out <- sample:
			return
		default:
		}
		select {
		case <-out:
			metrics.SamplesDropped.WithLabelValues(sample.VenueID, sample.SourceID).Inc()
		default:
		}
	}
}

// SendStatus delivers a status event without blocking, dropping the
// event itself if the channel is full — status events are advisory and
// superseded by the next one, so dropping stale ones is harmless.
func SendStatus(out chan<- StatusEvent, ev StatusEvent) {
	select {
	case out <- ev:
	default:
	}
}
