package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"gonum.org/v1/gonum/stat"
)

// roiKpis is the aggregate response for GET /api/roi/:id/kpis. The
// aggregation window is bounded by period; computing it is simple
// enough (filter + mean/percentile) that it runs in Go over the
// Store's query surface rather than as bespoke SQL.
type roiKpis struct {
	Period       string  `json:"period"`
	VisitCount   int     `json:"visitCount"`
	AvgDwellSec  float64 `json:"avgDwellSec"`
	P85DwellSec  float64 `json:"p85DwellSec"`
	AvgOccupancy float64 `json:"avgOccupancy"`
	MaxOccupancy int     `json:"maxOccupancy"`
}

func periodWindow(period string) time.Duration {
	switch period {
	case "week":
		return 7 * 24 * time.Hour
	case "day":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func (s *Server) handleROIKpis(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "hour"
	}
	since := time.Now().Add(-periodWindow(period))

	visits, err := s.store.ListZoneVisits(r.Context(), roiID, 10000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snapshots, err := s.store.ListOccupancySnapshots(r.Context(), roiID, since.UnixNano(), 10000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var dwellSecs []float64
	for _, v := range visits {
		if v.EndTs == nil || v.EndTs.Before(since) || v.DurationMs == nil {
			continue
		}
		dwellSecs = append(dwellSecs, float64(*v.DurationMs)/1000)
	}

	out := roiKpis{Period: period, VisitCount: len(dwellSecs)}
	if len(dwellSecs) > 0 {
		out.AvgDwellSec = stat.Mean(dwellSecs, nil)
		sorted := append([]float64(nil), dwellSecs...)
		sort.Float64s(sorted)
		out.P85DwellSec = stat.Quantile(0.85, stat.Empirical, sorted, nil)
	}

	if len(snapshots) > 0 {
		counts := make([]float64, len(snapshots))
		for i, snap := range snapshots {
			counts[i] = float64(snap.Count)
			if snap.Count > out.MaxOccupancy {
				out.MaxOccupancy = snap.Count
			}
		}
		out.AvgOccupancy = stat.Mean(counts, nil)
	}

	writeJSON(w, http.StatusOK, out)
}
