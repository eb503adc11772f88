// Package model defines the entities shared by every component of the
// tracking engine: venues, regions of interest, raw and fused tracks,
// and the visit/queue/occupancy/alert records derived from them.
package model

import "time"

// Venue is a physical site whose floor plan contains ROIs and through
// which tracks move. Venues are created and destroyed outside the core.
type Venue struct {
	ID                       string
	Name                     string
	WidthMeters              float64
	DepthMeters              float64
	DefaultDwellThresholdSec int
	DefaultEngagementSec     int
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Vertex is a 2D point in venue coordinates (x, z), conventionally metres.
type Vertex struct {
	X, Z float64
}

// ZoneType classifies how the Queue Engine should treat an ROI.
type ZoneType string

const (
	ZoneTypeQueue   ZoneType = "queue"
	ZoneTypeService ZoneType = "service"
	ZoneTypeGeneric ZoneType = ""
)

// ROI is a polygonal Region of Interest: an ordered, closed, simple
// sequence of vertices plus operator-assigned classification metadata.
// ROIs are mutated only by external CRUD; the core treats a mutation as
// an event that invalidates the ROI index for that venue.
type ROI struct {
	ID              string
	VenueID         string
	Name            string
	Vertices        []Vertex
	Template        string // e.g. "shelf-engagement", "cashier-queue", "entrance-flow"
	ZoneType        ZoneType
	ColorHex        string // display only, never interpreted by the core
	TemplateVersion string // opaque passthrough
}

// ZoneSettings holds per-ROI overrides of the system defaults.
type ZoneSettings struct {
	ROIID                    string
	VenueID                  string
	DwellThresholdSec        *int
	EngagementThresholdSec   *int
	MaxOccupancy             *int
	VisitEndGraceSec         int // default 3
	MinVisitDurationSec      int // default 1
	QueueWarningThresholdSec *int
	QueueCriticalThreshold   *int
	IsOpen                   bool // queue lanes only
	LaneNumber               int
}

// DefaultVisitEndGraceSec and DefaultMinVisitDurationSec are the system
// defaults applied when ZoneSettings does not specify a value.
const (
	DefaultVisitEndGraceSec    = 3
	DefaultMinVisitDurationSec = 1
	DefaultDwellThresholdSec   = 60
	DefaultEngagementSec       = 120
	DefaultMinCompletionSec    = 2
	DefaultServiceLingerSec    = 30
	DefaultAlertQuiescenceSec  = 30
)

// ZoneLink is a directed queue->service pairing belonging to a venue; it
// drives queue-session completion semantics in the Queue Engine.
type ZoneLink struct {
	VenueID      string
	QueueROIID   string
	ServiceROIID string
}

// ObjectType classifies a tracked physical object, as reported upstream.
type ObjectType string

// TrackSample is a single, immutable observation of an object at a point
// in time, as emitted by a Track Source.
type TrackSample struct {
	VenueID       string
	SourceID      string
	SourceTrackID string
	Timestamp     time.Time
	X, Z          float64
	VX, VZ        *float64
	ObjectType    ObjectType
}

// TrackKey is the engine-assigned identity under which a physical object
// appears to downstream consumers. For single-source operation it is
// derived deterministically from (SourceID, SourceTrackID); multi-source
// fusion into one physical identity is an explicit non-goal.
type TrackKey string

// UnifiedTrack is the engine's authoritative record of a tracked object's
// current state within a venue, derived from raw samples. RoiSet is
// always computed from LatestSample; it never survives a newer sample.
type UnifiedTrack struct {
	VenueID      string
	TrackKey     TrackKey
	LatestSample TrackSample
	Trail        []TrackSample // bounded
	FirstSeenTs  time.Time
	LastSeenTs   time.Time
	RoiSet       map[string]struct{}
}

// ZoneVisit is a period during which a track was inside an ROI,
// delimited by entry and a verified exit (with a grace period).
type ZoneVisit struct {
	ID           string
	VenueID      string
	ROIID        string
	TrackKey     TrackKey
	StartTs      time.Time
	EndTs        *time.Time
	DurationMs   *int64
	IsDwell      bool
	IsEngagement bool
}

// QueueSession is a specialized zone visit on a queue-typed ROI,
// optionally completed by a linked service-ROI visit; otherwise
// abandoned.
type QueueSession struct {
	ID             string
	VenueID        string
	QueueROIID     string
	ServiceROIID   *string
	TrackKey       TrackKey
	QueueEntryTs   time.Time
	QueueExitTs    *time.Time
	WaitingTimeMs  *int64
	ServiceEntryTs *time.Time
	ServiceExitTs  *time.Time
	IsAbandoned    bool
}

// OccupancySnapshot is a point-in-time occupancy count for one ROI,
// sampled at a fixed cadence.
type OccupancySnapshot struct {
	VenueID string
	ROIID   string
	Ts      time.Time
	Count   int
}

// AlertMetric names the metric an AlertRule evaluates.
type AlertMetric string

const (
	MetricOccupancy    AlertMetric = "occupancy"
	MetricDwellTime    AlertMetric = "dwellTime"
	MetricVisits       AlertMetric = "visits"
	MetricAvgTimeSpent AlertMetric = "avgTimeSpent"
	MetricVelocity     AlertMetric = "velocity"
)

// AlertOperator is the comparison an AlertRule applies to its metric.
type AlertOperator string

const (
	OpGT  AlertOperator = "gt"
	OpGTE AlertOperator = "gte"
	OpLT  AlertOperator = "lt"
	OpLTE AlertOperator = "lte"
	OpEQ  AlertOperator = "eq"
)

// Severity is shared by AlertRule and LedgerEntry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertRule is a threshold rule evaluated against a single ROI's live
// metrics. QuiescenceSec bounds how soon the rule may re-fire after it
// stops triggering (the hysteresis window spec.md leaves
// implementation-defined).
type AlertRule struct {
	ID              string
	ROIID           string
	RuleName        string
	Metric          AlertMetric
	Operator        AlertOperator
	ThresholdValue  float64
	Severity        Severity
	Enabled         bool
	MessageTemplate string
	QuiescenceSec   int
}

// LedgerEntry is a durable, user-visible event record surfaced in the
// activity feed. Entries are created on rule fire or system event and
// never mutated except Acknowledged/AcknowledgedAt/AcknowledgedBy.
type LedgerEntry struct {
	ID             string
	VenueID        string
	ROIID          string
	RuleID         *string
	EventType      string
	Severity       Severity
	Title          string
	Message        string
	MetricName     *string
	MetricValue    *float64
	ThresholdValue *float64
	Acknowledged   bool
	AcknowledgedAt *time.Time
	AcknowledgedBy *string
	Timestamp      time.Time
}
