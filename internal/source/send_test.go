package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/venuetrack/engine/internal/model"
)

func TestSendSampleDropsOldestWhenFull(t *testing.T) {
	out := make(chan model.TrackSample, 2)
	SendSample(out, model.TrackSample{SourceTrackID: "a"})
	SendSample(out, model.TrackSample{SourceTrackID: "b"})
	SendSample(out, model.TrackSample{SourceTrackID: "c"})

	var got []string
	close(out)
	for s := range out {
		got = append(got, s.SourceTrackID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, got, "oldest sample 'a' should have been dropped")
}

func TestSendStatusDropsWhenFull(t *testing.T) {
	out := make(chan StatusEvent, 1)
	SendStatus(out, StatusEvent{SourceID: "first"})
	SendStatus(out, StatusEvent{SourceID: "second"})

	ev := <-out
	assert.Equal(t, "first", ev.SourceID, "second event should have been dropped, not the first")
	select {
	case <-out:
		t.Fatal("expected channel to be empty after draining the one buffered event")
	default:
	}
}
