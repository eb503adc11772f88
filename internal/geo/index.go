package geo

import (
	"sync"
	"sync/atomic"

	"github.com/venuetrack/engine/internal/model"
)

// snapshot is one immutable generation of a venue's compiled ROI set.
// Index.Refresh builds a new snapshot and atomically swaps it in, the
// same copy-on-write discipline the teacher uses to swap background
// density grids without blocking readers.
type snapshot struct {
	polygons []Polygon
}

func (s *snapshot) containing(x, z float64) []string {
	var ids []string
	for _, p := range s.polygons {
		if p.Contains(x, z) {
			ids = append(ids, p.ROIID)
		}
	}
	return ids
}

// Index is the per-venue ROI index (C3): a set of compiled polygons
// readable without locking and replaced wholesale whenever the venue's
// ROI set changes.
type Index struct {
	cur atomic.Pointer[snapshot]
}

// NewIndex builds an Index from an initial ROI set. Invalid ROIs
// (fewer than 3 vertices, self-intersecting) are dropped; their IDs are
// returned so the caller can log/report them.
func NewIndex(rois []model.ROI) (*Index, []string) {
	idx := &Index{}
	rejected := idx.Refresh(rois)
	return idx, rejected
}

// Refresh compiles rois into a new snapshot and swaps it in atomically.
// It returns the IDs of any ROIs rejected as invalid polygons; those
// ROIs are simply excluded from classification until corrected.
func (idx *Index) Refresh(rois []model.ROI) []string {
	snap := &snapshot{polygons: make([]Polygon, 0, len(rois))}
	var rejected []string
	for _, r := range rois {
		p, err := NewPolygon(r.ID, r.Vertices)
		if err != nil {
			rejected = append(rejected, r.ID)
			continue
		}
		snap.polygons = append(snap.polygons, p)
	}
	idx.cur.Store(snap)
	return rejected
}

// Containing returns the IDs of every ROI in the index whose polygon
// contains (x, z). A point in zero or more ROIs is valid; overlapping
// ROIs are intentional (spec.md permits a track to be inside several
// zones at once).
func (idx *Index) Containing(x, z float64) []string {
	snap := idx.cur.Load()
	if snap == nil {
		return nil
	}
	return snap.containing(x, z)
}

// Registry owns one Index per venue, created lazily and refreshed in
// place on ROI mutation events.
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewRegistry returns an empty venue-keyed Index registry.
func NewRegistry() *Registry {
	return &Registry{indexes: make(map[string]*Index)}
}

// Refresh rebuilds the index for venueID from rois, creating it if this
// is the first call for that venue. It returns rejected ROI IDs exactly
// as Index.Refresh does.
func (r *Registry) Refresh(venueID string, rois []model.ROI) []string {
	r.mu.RLock()
	idx, ok := r.indexes[venueID]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		idx, ok = r.indexes[venueID]
		if !ok {
			idx = &Index{}
			r.indexes[venueID] = idx
		}
		r.mu.Unlock()
	}
	return idx.Refresh(rois)
}

// Containing looks up the ROIs at (x, z) within venueID's index. It
// returns nil if the venue has no index yet (no ROIs loaded).
func (r *Registry) Containing(venueID string, x, z float64) []string {
	r.mu.RLock()
	idx, ok := r.indexes[venueID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return idx.Containing(x, z)
}

// Remove drops a venue's index entirely, e.g. on venue deletion.
func (r *Registry) Remove(venueID string) {
	r.mu.Lock()
	delete(r.indexes, venueID)
	r.mu.Unlock()
}
