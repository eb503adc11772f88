// Package dashboard renders read-only operator dashboards (C12) over
// persisted occupancy and queue KPIs using go-echarts, in the same
// bare-HTML-response style the teacher's LiDAR monitor package uses
// for its debug charts. There is no client-side framework here: each
// handler renders a full chart document server-side.
package dashboard

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/venuetrack/engine/internal/store"
)

const echartsAssetsPrefix = "/assets/"

// Server renders venue dashboards from a Store. It has no dependency on
// the live engine: every chart reflects persisted state, so it keeps
// working even against a Store opened read-only from a second process.
type Server struct {
	store store.Store
}

// NewServer returns a dashboard Server backed by st.
func NewServer(st store.Store) *Server {
	return &Server{store: st}
}

// Routes mounts the dashboard's handlers under a chi router. Callers
// typically mount this at /dashboard.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/venues/{venueID}/occupancy", s.handleOccupancyChart)
	r.Get("/venues/{venueID}/queues", s.handleQueueWaitChart)
	r.Get("/rois/{roiID}/dwell", s.handleDwellHistogram)
	return r
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// handleOccupancyChart renders occupancy-over-time for every ROI in a
// venue as a line chart. Query params:
//   - since_minutes (optional; default 60)
func (s *Server) handleOccupancyChart(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	rois, err := s.store.GetROIs(r.Context(), venueID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rois) == 0 {
		s.writeError(w, http.StatusNotFound, "no ROIs for venue")
		return
	}

	sinceMinutes := 60
	if v := r.URL.Query().Get("since_minutes"); v != "" {
		if parsed, err := time.ParseDuration(v + "m"); err == nil && parsed > 0 {
			sinceMinutes = int(parsed.Minutes())
		}
	}
	since := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Venue Occupancy", Theme: "dark", Width: "1100px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy by Zone", Subtitle: fmt.Sprintf("venue=%s window=%dm", venueID, sinceMinutes)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time", Type: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "occupancy", Min: 0}),
	)

	for _, roi := range rois {
		snapshots, err := s.store.ListOccupancySnapshots(r.Context(), roi.ID, since.UnixNano(), 5000)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Ts.Before(snapshots[j].Ts) })

		data := make([]opts.LineData, 0, len(snapshots))
		for _, snap := range snapshots {
			data = append(data, opts.LineData{Value: []interface{}{snap.Ts.UnixMilli(), snap.Count}})
		}
		line.AddSeries(roi.Name, data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleQueueWaitChart renders a bar chart of queue session wait times
// for a venue's queue-typed ROIs, grouped by ROI.
func (s *Server) handleQueueWaitChart(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	rois, err := s.store.GetROIs(r.Context(), venueID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var labels []string
	var avgWaits []opts.BarData
	var maxWaits []opts.BarData
	for _, roi := range rois {
		sessions, err := s.store.ListQueueSessions(r.Context(), roi.ID, 2000)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(sessions) == 0 {
			continue
		}
		var total, max int64
		var completed int
		for _, q := range sessions {
			if q.WaitingTimeMs == nil {
				continue
			}
			total += *q.WaitingTimeMs
			if *q.WaitingTimeMs > max {
				max = *q.WaitingTimeMs
			}
			completed++
		}
		if completed == 0 {
			continue
		}
		labels = append(labels, roi.Name)
		avgWaits = append(avgWaits, opts.BarData{Value: float64(total/int64(completed)) / 1000})
		maxWaits = append(maxWaits, opts.BarData{Value: float64(max) / 1000})
	}
	if len(labels) == 0 {
		s.writeError(w, http.StatusNotFound, "no queue sessions with recorded wait times")
		return
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Queue Wait Times", Theme: "dark", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Queue Wait Times (seconds)", Subtitle: fmt.Sprintf("venue=%s", venueID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("avg wait (s)", avgWaits).
		AddSeries("max wait (s)", maxWaits, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleDwellHistogram buckets a single ROI's closed-visit dwell times
// into a coarse histogram rendered as a bar chart.
func (s *Server) handleDwellHistogram(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	visits, err := s.store.ListZoneVisits(r.Context(), roiID, 10000)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bucketSec := 30
	const numBuckets = 10
	counts := make([]int, numBuckets)
	for _, v := range visits {
		if v.DurationMs == nil {
			continue
		}
		sec := int(*v.DurationMs / 1000)
		idx := sec / bucketSec
		if idx >= numBuckets {
			idx = numBuckets - 1
		}
		counts[idx]++
	}

	labels := make([]string, numBuckets)
	data := make([]opts.BarData, numBuckets)
	for i := range counts {
		lo, hi := i*bucketSec, (i+1)*bucketSec
		if i == numBuckets-1 {
			labels[i] = fmt.Sprintf("%d+", lo)
		} else {
			labels[i] = fmt.Sprintf("%d-%d", lo, hi)
		}
		data[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Dwell Time Distribution", Theme: "dark", Width: "900px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Dwell Time Distribution", Subtitle: fmt.Sprintf("roi=%s visits=%d", roiID, len(visits))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seconds"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "visits"}),
	)
	bar.SetXAxis(labels).
		AddSeries("visits", data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
