package alertrules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuetrack/engine/internal/model"
)

type fakeSource map[string]float64

func (f fakeSource) Value(roiID string, metric model.AlertMetric) (float64, bool) {
	v, ok := f[roiID+":"+string(metric)]
	return v, ok
}

func TestRuleFiresWhenThresholdCrossed(t *testing.T) {
	rule := model.AlertRule{
		ID: "r1", ROIID: "roi-1", RuleName: "overcrowded",
		Metric: model.MetricOccupancy, Operator: model.OpGT, ThresholdValue: 50,
		Severity: model.SeverityWarning, Enabled: true, QuiescenceSec: 60,
	}
	e := New("v1", []model.AlertRule{rule}, nil)
	now := time.Now()

	entries := e.Evaluate(now, fakeSource{"roi-1:occupancy": 40})
	assert.Empty(t, entries, "under threshold, no alert")

	entries = e.Evaluate(now, fakeSource{"roi-1:occupancy": 51})
	require.Len(t, entries, 1)
	assert.Equal(t, "alert_fired", entries[0].EventType)
	assert.Equal(t, model.SeverityWarning, entries[0].Severity)
}

func TestRuleDoesNotRefireWhileStillOverThreshold(t *testing.T) {
	rule := model.AlertRule{
		ID: "r1", ROIID: "roi-1", Metric: model.MetricOccupancy,
		Operator: model.OpGT, ThresholdValue: 50, Enabled: true, QuiescenceSec: 60,
	}
	e := New("v1", []model.AlertRule{rule}, nil)
	now := time.Now()

	entries := e.Evaluate(now, fakeSource{"roi-1:occupancy": 60})
	require.Len(t, entries, 1)

	entries = e.Evaluate(now.Add(time.Second), fakeSource{"roi-1:occupancy": 70})
	assert.Empty(t, entries, "still firing, no duplicate alert")
}

func TestRuleRefiresAfterClearingAndQuiescenceExpires(t *testing.T) {
	rule := model.AlertRule{
		ID: "r1", ROIID: "roi-1", Metric: model.MetricOccupancy,
		Operator: model.OpGT, ThresholdValue: 50, Enabled: true, QuiescenceSec: 10,
	}
	e := New("v1", []model.AlertRule{rule}, nil)
	start := time.Now()

	e.Evaluate(start, fakeSource{"roi-1:occupancy": 60})          // fires
	e.Evaluate(start.Add(time.Second), fakeSource{"roi-1:occupancy": 20}) // clears

	// back over threshold before quiescence expires: suppressed
	entries := e.Evaluate(start.Add(5*time.Second), fakeSource{"roi-1:occupancy": 60})
	assert.Empty(t, entries, "within quiescence window after firing")

	// after quiescence expires: fires again
	entries = e.Evaluate(start.Add(12*time.Second), fakeSource{"roi-1:occupancy": 60})
	require.Len(t, entries, 1)
}

func TestDisabledRuleNeverFires(t *testing.T) {
	rule := model.AlertRule{ID: "r1", ROIID: "roi-1", Metric: model.MetricOccupancy, Operator: model.OpGT, ThresholdValue: 1, Enabled: false}
	e := New("v1", []model.AlertRule{rule}, nil)
	entries := e.Evaluate(time.Now(), fakeSource{"roi-1:occupancy": 100})
	assert.Empty(t, entries)
}

func TestMissingMetricValueSkipsRule(t *testing.T) {
	rule := model.AlertRule{ID: "r1", ROIID: "roi-1", Metric: model.MetricOccupancy, Operator: model.OpGT, ThresholdValue: 1, Enabled: true}
	e := New("v1", []model.AlertRule{rule}, nil)
	entries := e.Evaluate(time.Now(), fakeSource{})
	assert.Empty(t, entries)
}
