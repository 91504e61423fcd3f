package domain

import "time"

type Role string

const (
	RoleForeground Role = "foreground"
	RoleBackground Role = "background"
	RoleNone       Role = "none"
)

type Phase string

const (
	PhaseSequencing   Phase = "sequencing"
	PhaseDeepAnalysis Phase = "deep-analysis"
	PhaseComplete     Phase = "complete"
	PhaseFailed       Phase = "failed"
)

// TrackStatus is an observability sub-status; it is not a phase.
type TrackStatus string

const (
	TrackStatusIdle     TrackStatus = "idle"
	TrackStatusRunning  TrackStatus = "running"
	TrackStatusRetrying TrackStatus = "retrying"
)

// Failure describes why a track stopped advancing and where it can resume.
type Failure struct {
	Class     ErrorClass `json:"class"`
	Resumable bool       `json:"resumable"`
	Category  string     `json:"category,omitempty"`
	Cursor    int        `json:"cursor"`
	Message   string     `json:"message"`
}

// TrackStats accumulates call counters for one track.
type TrackStats struct {
	ClassifyCalls        int `json:"classify_calls"`
	ElaborateCalls       int `json:"elaborate_calls"`
	FallbackElaborations int `json:"fallback_elaborations"`
	DuplicatesDropped    int `json:"duplicates_dropped"`
}

// Track is one full analysis run bound to one document.
type Track struct {
	DocumentID         string      `json:"document_id"`
	Role               Role        `json:"role"`
	Phase              Phase       `json:"phase"`
	Status             TrackStatus `json:"status"`
	CategoryCursor     int         `json:"category_cursor"`
	CategoryTotal      int         `json:"category_total"`
	DeepAnalysisCursor int         `json:"deep_analysis_cursor"`
	Findings           []Finding   `json:"findings"`
	Summaries          []string    `json:"summaries,omitempty"`
	SkippedCategories  []string    `json:"skipped_categories,omitempty"`
	KnownRisks         []string    `json:"known_risks,omitempty"`
	Failure            *Failure    `json:"failure,omitempty"`
	Stats              TrackStats  `json:"stats"`
	Sequence           uint64      `json:"sequence"`
	StartedAt          time.Time   `json:"started_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (t Track) Clone() Track {
	out := t
	out.Findings = CloneFindings(t.Findings)
	out.Summaries = append([]string(nil), t.Summaries...)
	out.SkippedCategories = append([]string(nil), t.SkippedCategories...)
	out.KnownRisks = append([]string(nil), t.KnownRisks...)
	if t.Failure != nil {
		failure := *t.Failure
		out.Failure = &failure
	}
	return out
}

// FindingSpans returns the source spans of all accumulated findings.
func (t Track) FindingSpans() []string {
	out := make([]string, 0, len(t.Findings))
	for _, f := range t.Findings {
		out = append(out, f.SourceSpan)
	}
	return out
}

// CompletedElaborations counts findings whose deep analysis is final.
func (t Track) CompletedElaborations() int {
	n := 0
	for _, f := range t.Findings {
		if f.ElaborationComplete {
			n++
		}
	}
	return n
}

func (t Track) Terminal() bool {
	return t.Phase == PhaseComplete || t.Phase == PhaseFailed
}

// TrackSnapshot is the durable form of a track; it is upserted keyed by document id.
// Document text is kept so a failed or interrupted track can resume after a restart.
type TrackSnapshot struct {
	Track        Track  `json:"track"`
	DocumentText string `json:"document_text,omitempty"`
}

// SnapshotSummary is the listing row of a persisted track.
type SnapshotSummary struct {
	DocumentID         string    `json:"document_id"`
	Phase              Phase     `json:"phase"`
	CategoryCursor     int       `json:"category_cursor"`
	DeepAnalysisCursor int       `json:"deep_analysis_cursor"`
	FindingsTotal      int       `json:"findings_total"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type EventKind string

const (
	EventTrackStarted      EventKind = "track_started"
	EventCategoryCompleted EventKind = "category_completed"
	EventRetrying          EventKind = "retrying"
	EventPhaseChanged      EventKind = "phase_changed"
	EventFindingStarted    EventKind = "finding_started"
	EventFindingCompleted  EventKind = "finding_completed"
	EventRoleChanged       EventKind = "role_changed"
	EventPartialAccepted   EventKind = "partial_accepted"
	EventTrackFailed       EventKind = "track_failed"
	EventTrackCompleted    EventKind = "track_completed"
)

// ProgressEvent is one entry of the track progress feed. FindingsDelta holds only the
// findings added or changed by this event.
type ProgressEvent struct {
	Kind               EventKind `json:"kind"`
	DocumentID         string    `json:"document_id"`
	Role               Role      `json:"role"`
	Phase              Phase     `json:"phase"`
	Sequence           uint64    `json:"sequence"`
	CategoryCursor     int       `json:"category_cursor"`
	CategoryTotal      int       `json:"category_total"`
	Category           string    `json:"category,omitempty"`
	DeepAnalysisCursor int       `json:"deep_analysis_cursor"`
	FindingsTotal      int       `json:"findings_total"`
	FindingsDelta      []Finding `json:"findings_delta,omitempty"`
	Failure            *Failure  `json:"failure,omitempty"`
	At                 time.Time `json:"at"`
}
