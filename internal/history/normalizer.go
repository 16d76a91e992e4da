/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "sort"
    "time"

    "github.com/rs/zerolog"
    "github.com/valeriy-chepelev/expendo/internal/domain"
)

// Timeline is one issue's ordered, de-duplicated change history grouped by
// field. Immutable after Build; projections never mutate it.
type Timeline struct {
    IssueID   string
    CreatedAt time.Time

    byField map[domain.Field][]domain.ChangeRecord

    // start-scan results, filled by the projector on first use
    scanned bool
    firstInProgress time.Time
    firstResolved   time.Time
    pauses          []domain.Pause
}

// Field returns the ordered sub-timeline of one field.
func (t *Timeline) Field(f domain.Field) []domain.ChangeRecord { return t.byField[f] }

// Normalizer converts raw, unordered change records into Timelines.
type Normalizer struct {
    log zerolog.Logger
}

func NewNormalizer(log zerolog.Logger) *Normalizer { return &Normalizer{log: log} }

type dedupeKey struct {
    field domain.Field
    at    time.Time
    val   string
}

// Build normalizes raw records for one issue: records referencing unknown
// fields or carrying unparsable duration values are dropped with a warning;
// duplicates equal in (field, timestamp, new_value) collapse to one; records
// sort by (timestamp, arrival seq); consecutive same-value transitions per
// field collapse to the first. Returns the timeline and the dropped count.
// Input order does not affect the result.
func (n *Normalizer) Build(issueID string, recs []domain.ChangeRecord) (*Timeline, int) {
    dropped := 0
    seen := make(map[dedupeKey]struct{}, len(recs))
    clean := make([]domain.ChangeRecord, 0, len(recs))
    for _, r := range recs {
        if !domain.KnownField(r.Field) {
            n.log.Warn().Str("issue", issueID).Str("field", string(r.Field)).Time("at", r.At).Msg("history: unknown field dropped")
            dropped++
            continue
        }
        if durationField(r.Field) {
            if _, err := IsoHours(r.NewValue); err != nil {
                n.log.Warn().Str("issue", issueID).Str("field", string(r.Field)).Str("value", r.NewValue).Msg("history: bad duration dropped")
                dropped++
                continue
            }
        }
        k := dedupeKey{field: r.Field, at: r.At.UTC(), val: r.NewValue}
        if _, ok := seen[k]; ok { continue }
        seen[k] = struct{}{}
        clean = append(clean, r)
    }
    sort.SliceStable(clean, func(i, j int) bool {
        if !clean[i].At.Equal(clean[j].At) { return clean[i].At.Before(clean[j].At) }
        return clean[i].Seq < clean[j].Seq
    })

    tl := &Timeline{IssueID: issueID, byField: map[domain.Field][]domain.ChangeRecord{}}
    for _, r := range clean {
        seq := tl.byField[r.Field]
        // collapse no-op transitions
        if len(seq) > 0 && seq[len(seq)-1].NewValue == r.NewValue { continue }
        tl.byField[r.Field] = append(seq, r)
        if tl.CreatedAt.IsZero() || r.At.Before(tl.CreatedAt) { tl.CreatedAt = r.At }
    }
    return tl, dropped
}

func durationField(f domain.Field) bool {
    return f == domain.FieldEstimation || f == domain.FieldSpent || f == domain.FieldOriginalEstimate
}
