/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

// Field is the recognized set of tracked issue fields. History records
// referencing anything else are malformed and dropped by the normalizer.
type Field string

const (
    FieldStatus           Field = "status"
    FieldEstimation       Field = "estimation"
    FieldSpent            Field = "spent"
    FieldOriginalEstimate Field = "original_estimate"
    FieldAssignee         Field = "assignee"
)

// KnownField reports whether f belongs to the recognized field set.
func KnownField(f Field) bool {
    switch f {
    case FieldStatus, FieldEstimation, FieldSpent, FieldOriginalEstimate, FieldAssignee:
        return true
    }
    return false
}

// StatusClass partitions tracker-specific status names into workflow classes.
// The name->class mapping is configuration: tracker workflows differ per org.
type StatusClass string

const (
    ClassOpen       StatusClass = "open"
    ClassInProgress StatusClass = "in_progress"
    ClassResolved   StatusClass = "resolved"
)

// StatusClasses maps concrete status names (lowercased) to their class.
// Unmapped statuses project to ClassOpen.
type StatusClasses map[string]StatusClass

func (m StatusClasses) ClassOf(status string) StatusClass {
    if c, ok := m[status]; ok { return c }
    return ClassOpen
}

// ChangeRecord is one field transition from the tracker changelog.
// Seq is the stable arrival-order sequence number assigned at ingestion;
// it breaks ties between records sharing a timestamp.
type ChangeRecord struct {
    IssueID  string    `json:"issue_id"`
    Field    Field     `json:"field"`
    OldValue string    `json:"old_value"`
    NewValue string    `json:"new_value"`
    At       time.Time `json:"at"`
    Author   string    `json:"author"`
    Seq      int       `json:"seq"`
}

// Pause is an interval the issue spent out of in_progress after having
// started. To is zero while the issue has not re-entered in_progress.
type Pause struct {
    From time.Time
    To   time.Time
}

// ProjectedState is an issue's field values reconstructed as of one instant.
// Derived, never stored; recomputed on demand from a Timeline.
type ProjectedState struct {
    IssueID          string
    AsOf             time.Time
    Status           string
    Class            StatusClass
    EstimationHrs    int
    SpentHrs         int
    AssigneeName     string
    CreatedAt        time.Time
    FirstInProgress  time.Time // zero if never started; not reset by later changes
    ResolvedAt       time.Time // first resolved-class entry at or before AsOf, zero otherwise
}

func (p ProjectedState) Started() bool  { return !p.FirstInProgress.IsZero() }
func (p ProjectedState) Resolved() bool { return !p.ResolvedAt.IsZero() }

// ValueKind tags what a MetricResult value measures.
type ValueKind string

const (
    KindCount    ValueKind = "count"
    KindDuration ValueKind = "duration"
    KindRatio    ValueKind = "ratio"
    KindCost     ValueKind = "cost"
)

// MetricResult is one aggregated value for one window. IssueID is empty for
// cross-issue aggregates; Group names the segment when the evaluation was
// grouped. Contributing counts the issues whose per-issue value was defined;
// undefined values are excluded from Value, never coerced to zero.
type MetricResult struct {
    IssueID      string    `json:"issue_id,omitempty"`
    Group        string    `json:"group,omitempty"`
    WindowStart  time.Time `json:"window_start"`
    WindowEnd    time.Time `json:"window_end"`
    Value        float64   `json:"value"`
    Kind         ValueKind `json:"kind"`
    Contributing int       `json:"contributing"`
}

// Window is a half-open [Start, End) evaluation interval. Instant mode uses
// Start == End.
type Window struct {
    Start time.Time `json:"start"`
    End   time.Time `json:"end"`
}

// CacheEntry is a per-issue, per-day snapshot of raw history records held by
// the result cache gateway. Fresh for the remainder of its date only.
type CacheEntry struct {
    IssueID string         `json:"issue_id"`
    Date    time.Time      `json:"date"`
    Records []ChangeRecord `json:"records"`
}

// EvalRun records one engine invocation for the admin surface.
type EvalRun struct {
    ID         int64      `json:"id"`
    RunUID     string     `json:"run_uid"`
    Metric     string     `json:"metric"`
    Mode       string     `json:"mode"`
    Issues     int        `json:"issues"`
    Windows    int        `json:"windows"`
    StartedAt  time.Time  `json:"started_at"`
    FinishedAt *time.Time `json:"finished_at,omitempty"`
    OK         bool       `json:"ok"`
    Note       string     `json:"note,omitempty"`
}
