/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "strings"
    "time"

    "github.com/valeriy-chepelev/expendo/internal/domain"
)

// Projector reconstructs issue states from a Timeline at arbitrary instants.
// Status names map to workflow classes through injected configuration;
// pauseOn decides which classes interrupt work when entered from in_progress.
type Projector struct {
    classes domain.StatusClasses
    pauseOn map[domain.StatusClass]bool
}

// NewProjector builds a projector for one workflow configuration. When
// pauseOn is empty only the open class counts as a pause.
func NewProjector(classes domain.StatusClasses, pauseOn []domain.StatusClass) *Projector {
    m := map[domain.StatusClass]bool{}
    for _, c := range pauseOn { m[c] = true }
    if len(m) == 0 { m[domain.ClassOpen] = true }
    return &Projector{classes: classes, pauseOn: m}
}

func (p *Projector) classOf(status string) domain.StatusClass {
    return p.classes.ClassOf(strings.ToLower(strings.TrimSpace(status)))
}


// ValueAt returns the NewValue of the last transition of f at or before asOf.
func ValueAt(tl *Timeline, f domain.Field, asOf time.Time) (string, bool) {
    seq := tl.Field(f)
    for i := len(seq) - 1; i >= 0; i-- {
        if !seq[i].At.After(asOf) { return seq[i].NewValue, true }
    }
    return "", false
}

// startScan walks the status sub-timeline once, forward, recording the first
// entry into in_progress, the first entry into resolved, and every pause
// interval (in_progress -> pause class -> in_progress). Results are cached on
// the timeline; the scan is independent of any asOf. A timeline is only ever
// scanned from the goroutine that built it before results are shared.
func (p *Projector) startScan(tl *Timeline) {
    if tl.scanned { return }
    tl.scanned = true
    cur := domain.ClassOpen
    started := false
    var openPause *domain.Pause
    for _, r := range tl.Field(domain.FieldStatus) {
        next := p.classOf(r.NewValue)
        if next == cur { continue }
        if next == domain.ClassInProgress {
            if !started {
                started = true
                tl.firstInProgress = r.At
            }
            if openPause != nil {
                openPause.To = r.At
                tl.pauses = append(tl.pauses, *openPause)
                openPause = nil
            }
        } else {
            if next == domain.ClassResolved && tl.firstResolved.IsZero() {
                tl.firstResolved = r.At
            }
            if started && cur == domain.ClassInProgress && p.pauseOn[next] && openPause == nil {
                openPause = &domain.Pause{From: r.At}
            }
        }
        cur = next
    }
    if openPause != nil { tl.pauses = append(tl.pauses, *openPause) }
}

// FirstInProgress returns the instant the issue first entered in_progress,
// zero if it never did. Never reset by later status changes.
func (p *Projector) FirstInProgress(tl *Timeline) time.Time {
    p.startScan(tl)
    return tl.firstInProgress
}

// Pauses returns the issue's pause intervals; an interval with zero To is
// still open.
func (p *Projector) Pauses(tl *Timeline) []domain.Pause {
    p.startScan(tl)
    return tl.pauses
}

// PausedWithin sums pause time overlapping [from, to]. Open-ended pauses are
// clipped at to.
func (p *Projector) PausedWithin(tl *Timeline, from, to time.Time) time.Duration {
    p.startScan(tl)
    var total time.Duration
    for _, ps := range tl.pauses {
        start := ps.From
        if start.Before(from) { start = from }
        end := ps.To
        if end.IsZero() || end.After(to) { end = to }
        if end.After(start) { total += end.Sub(start) }
    }
    return total
}

// Project reconstructs the issue state as of one instant. Pure: repeated
// calls with equal arguments yield equal results and the timeline is never
// mutated beyond the cached status scan.
func (p *Projector) Project(tl *Timeline, asOf time.Time) domain.ProjectedState {
    p.startScan(tl)
    st := domain.ProjectedState{
        IssueID:   tl.IssueID,
        AsOf:      asOf,
        Status:    "open",
        Class:     domain.ClassOpen,
        CreatedAt: tl.CreatedAt,
    }
    if v, ok := ValueAt(tl, domain.FieldStatus, asOf); ok {
        st.Status = v
        st.Class = p.classOf(v)
    }
    if v, ok := ValueAt(tl, domain.FieldEstimation, asOf); ok {
        st.EstimationHrs, _ = IsoHours(v) // validated by the normalizer
    }
    if v, ok := ValueAt(tl, domain.FieldSpent, asOf); ok {
        st.SpentHrs, _ = IsoHours(v)
    }
    if v, ok := ValueAt(tl, domain.FieldAssignee, asOf); ok {
        st.AssigneeName = v
    }
    // first in_progress entry is a property of the whole history, not of asOf
    st.FirstInProgress = tl.firstInProgress
    if !tl.firstResolved.IsZero() && !tl.firstResolved.After(asOf) {
        st.ResolvedAt = tl.firstResolved
    }
    return st
}
