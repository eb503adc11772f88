// Package alertrules evaluates AlertRule thresholds against live
// per-ROI metrics and produces LedgerEntry records when a rule fires.
// A fired rule goes quiescent for QuiescenceSec before it may fire
// again, the same "timer as data, checked on tick" discipline the
// Visit and Queue Engines use for their own windows.
package alertrules

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/venuetrack/engine/internal/model"
)

// MetricSource supplies the current value of a rule's metric for a
// given ROI. The occupancy package's Counter and RollingMetrics
// satisfy the pieces of this through a small adapter in the engine
// wiring.
type MetricSource interface {
	Value(roiID string, metric model.AlertMetric) (float64, bool)
}

type ruleState struct {
	firing        bool
	quiescentUntil time.Time
}

// Engine evaluates a fixed set of AlertRules against a MetricSource on
// every tick. states is single-writer like the other per-venue
// engines (touched only from the goroutine calling Evaluate); rules
// is guarded by mu since SetRules is called from the HTTP control
// plane's goroutine after an AlertRule CRUD change, concurrently with
// Evaluate running on the tick goroutine.
type Engine struct {
	venueID string
	log     *slog.Logger

	mu     sync.RWMutex
	rules  []model.AlertRule
	states map[string]*ruleState // ruleID -> state
}

// New returns an Engine for venueID with the given rule set.
func New(venueID string, rules []model.AlertRule, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		venueID: venueID,
		rules:   rules,
		states:  make(map[string]*ruleState),
		log:     log,
	}
}

// SetRules replaces the active rule set, e.g. after an AlertRule CRUD
// change. Quiescence state for rules that still exist is preserved.
func (e *Engine) SetRules(rules []model.AlertRule) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
}

// Evaluate checks every enabled rule against source and returns a
// LedgerEntry for each rule that transitions from not-firing to
// firing, or has exited quiescence and is still over threshold.
func (e *Engine) Evaluate(now time.Time, source MetricSource) []model.LedgerEntry {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	var out []model.LedgerEntry
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		st := e.states[rule.ID]
		if st == nil {
			st = &ruleState{}
			e.states[rule.ID] = st
		}

		value, ok := source.Value(rule.ROIID, rule.Metric)
		if !ok {
			continue
		}
		over := compare(value, rule.Operator, rule.ThresholdValue)

		if !over {
			st.firing = false
			continue
		}
		if st.firing {
			continue // already firing, wait for it to clear before re-evaluating quiescence
		}
		if now.Before(st.quiescentUntil) {
			continue
		}

		st.firing = true
		st.quiescentUntil = now.Add(time.Duration(rule.QuiescenceSec) * time.Second)
		out = append(out, newLedgerEntry(e.venueID, rule, value, now))
	}
	return out
}

func compare(value float64, op model.AlertOperator, threshold float64) bool {
	switch op {
	case model.OpGT:
		return value > threshold
	case model.OpGTE:
		return value >= threshold
	case model.OpLT:
		return value < threshold
	case model.OpLTE:
		return value <= threshold
	case model.OpEQ:
		return value == threshold
	default:
		return false
	}
}

func newLedgerEntry(venueID string, rule model.AlertRule, value float64, now time.Time) model.LedgerEntry {
	ruleID := rule.ID
	metric := string(rule.Metric)
	threshold := rule.ThresholdValue
	metricValue := value

	msg := rule.MessageTemplate
	if msg == "" {
		msg = fmt.Sprintf("%s %s %s %.2f (actual %.2f)", rule.RuleName, rule.Metric, rule.Operator, threshold, value)
	}

	return model.LedgerEntry{
		ID:             uuid.NewString(),
		VenueID:        venueID,
		ROIID:          rule.ROIID,
		RuleID:         &ruleID,
		EventType:      "alert_fired",
		Severity:       rule.Severity,
		Title:          rule.RuleName,
		Message:        msg,
		MetricName:     &metric,
		MetricValue:    &metricValue,
		ThresholdValue: &threshold,
		Timestamp:      now,
	}
}
