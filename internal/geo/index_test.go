package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/venuetrack/engine/internal/model"
)

func TestRegistryContainingAcrossVenues(t *testing.T) {
	reg := NewRegistry()
	rejected := reg.Refresh("venue-a", []model.ROI{
		{ID: "roi-1", VenueID: "venue-a", Vertices: square(0, 0, 10, 10)},
	})
	assert.Empty(t, rejected)

	assert.Equal(t, []string{"roi-1"}, reg.Containing("venue-a", 5, 5))
	assert.Nil(t, reg.Containing("venue-b", 5, 5), "unknown venue has no index")
}

func TestRegistryRefreshRejectsInvalidROIButKeepsOthers(t *testing.T) {
	reg := NewRegistry()
	rejected := reg.Refresh("venue-a", []model.ROI{
		{ID: "roi-ok", VenueID: "venue-a", Vertices: square(0, 0, 10, 10)},
		{ID: "roi-bad", VenueID: "venue-a", Vertices: []model.Vertex{{X: 0, Z: 0}}},
	})
	assert.Equal(t, []string{"roi-bad"}, rejected)
	assert.Equal(t, []string{"roi-ok"}, reg.Containing("venue-a", 5, 5))
}

func TestRegistryRefreshReplacesPreviousSnapshotWholesale(t *testing.T) {
	reg := NewRegistry()
	reg.Refresh("venue-a", []model.ROI{
		{ID: "roi-1", VenueID: "venue-a", Vertices: square(0, 0, 10, 10)},
	})
	reg.Refresh("venue-a", []model.ROI{
		{ID: "roi-2", VenueID: "venue-a", Vertices: square(20, 20, 30, 30)},
	})
	assert.Empty(t, reg.Containing("venue-a", 5, 5), "roi-1 should be gone after refresh")
	assert.Equal(t, []string{"roi-2"}, reg.Containing("venue-a", 25, 25))
}

func TestRegistryOverlappingROIsBothReported(t *testing.T) {
	reg := NewRegistry()
	reg.Refresh("venue-a", []model.ROI{
		{ID: "roi-outer", VenueID: "venue-a", Vertices: square(0, 0, 20, 20)},
		{ID: "roi-inner", VenueID: "venue-a", Vertices: square(5, 5, 10, 10)},
	})
	ids := reg.Containing("venue-a", 7, 7)
	assert.ElementsMatch(t, []string{"roi-outer", "roi-inner"}, ids)
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	reg.Refresh("venue-a", []model.ROI{
		{ID: "roi-1", VenueID: "venue-a", Vertices: square(0, 0, 10, 10)},
	})
	reg.Remove("venue-a")
	assert.Nil(t, reg.Containing("venue-a", 5, 5))
}
