/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "sort"
    "time"

    "github.com/valeriy-chepelev/expendo/internal/domain"
    "github.com/valeriy-chepelev/expendo/internal/history"
)

// ScalarFunc evaluates one metric for one issue as of one instant. ok=false
// means the value is undefined for this issue and must be excluded from
// aggregation, never coerced to zero.
type ScalarFunc func(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool)

// RatioFunc produces a numerator/denominator pair for ratio-of-sums metrics.
type RatioFunc func(tl *history.Timeline, pr *history.Projector, asOf time.Time) (num, den float64, ok bool)

// Definition binds a metric name to its evaluation function, value kind and
// the reducer it aggregates with. Reducer choice is metric-specific and
// fixed; exactly one of Scalar and Ratio is set.
type Definition struct {
    Name   string
    Kind   domain.ValueKind
    Reduce Reducer
    Scalar ScalarFunc
    Ratio  RatioFunc
}

var registry = map[string]Definition{
    "created":    {Name: "created", Kind: domain.KindCount, Reduce: ReduceSum, Scalar: createdCount},
    "started":    {Name: "started", Kind: domain.KindCount, Reduce: ReduceCount, Scalar: startedMark},
    "wip":        {Name: "wip", Kind: domain.KindCount, Reduce: ReduceSum, Scalar: inProgressCount},
    "resolved":   {Name: "resolved", Kind: domain.KindCount, Reduce: ReduceSum, Scalar: resolvedCount},
    "tts":        {Name: "tts", Kind: domain.KindDuration, Reduce: ReduceMean, Scalar: timeToStartHrs},
    "ttr":        {Name: "ttr", Kind: domain.KindDuration, Reduce: ReduceMean, Scalar: timeToResolveHrs},
    "estimate":   {Name: "estimate", Kind: domain.KindCost, Reduce: ReduceSum, Scalar: estimation},
    "spent":      {Name: "spent", Kind: domain.KindCost, Reduce: ReduceSum, Scalar: spent},
    "original":   {Name: "original", Kind: domain.KindCost, Reduce: ReduceSum, Scalar: originalEstimate},
    "burned":     {Name: "burned", Kind: domain.KindCost, Reduce: ReduceSum, Scalar: burnedOriginal},
    "prediction": {Name: "prediction", Kind: domain.KindRatio, Reduce: ReduceRatioOfSums, Ratio: predictionRate},
    "load":       {Name: "load", Kind: domain.KindRatio, Reduce: ReduceRatioOfSums, Ratio: assigneeLoad},
}

// Lookup resolves a metric definition by name.
func Lookup(name string) (Definition, bool) {
    d, ok := registry[name]
    return d, ok
}

// Names lists the registered metric names, sorted.
func Names() []string {
    out := make([]string, 0, len(registry))
    for n := range registry { out = append(out, n) }
    sort.Strings(out)
    return out
}

func createdCount(tl *history.Timeline, _ *history.Projector, asOf time.Time) (float64, bool) {
    if tl.CreatedAt.IsZero() || tl.CreatedAt.After(asOf) { return 0, true }
    return 1, true
}

// startedMark is defined only for issues whose work has begun by asOf; the
// count reducer then counts exactly those.
func startedMark(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    start := pr.FirstInProgress(tl)
    if start.IsZero() || start.After(asOf) { return 0, false }
    return 1, true
}

func inProgressCount(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    if pr.Project(tl, asOf).Class == domain.ClassInProgress { return 1, true }
    return 0, true
}

func resolvedCount(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    st := pr.Project(tl, asOf)
    if st.Class == domain.ClassResolved && st.Resolved() { return 1, true }
    return 0, true
}

func timeToStartHrs(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    start := pr.FirstInProgress(tl)
    if start.IsZero() || start.After(asOf) { return 0, false }
    return start.Sub(tl.CreatedAt).Hours(), true
}

func timeToResolveHrs(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    d, ok := TimeToResolve(tl, pr, asOf)
    if !ok { return 0, false }
    return d.Hours(), true
}

// TimeToResolve returns working duration from first in_progress entry to
// resolution, with pause intervals subtracted. An issue resolved without ever
// entering in_progress resolves in zero time. Undefined while unresolved.
func TimeToResolve(tl *history.Timeline, pr *history.Projector, asOf time.Time) (time.Duration, bool) {
    st := pr.Project(tl, asOf)
    if !st.Resolved() { return 0, false }
    start := pr.FirstInProgress(tl)
    if start.IsZero() || start.After(st.ResolvedAt) { start = st.ResolvedAt }
    return st.ResolvedAt.Sub(start) - pr.PausedWithin(tl, start, st.ResolvedAt), true
}

func estimation(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    return float64(pr.Project(tl, asOf).EstimationHrs), true
}

func spent(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    return float64(pr.Project(tl, asOf).SpentHrs), true
}

// FrozenOriginalHours returns the original_estimate value in effect when the
// issue first entered in_progress, frozen thereafter. An issue that never
// started falls back to its earliest recorded original estimate.
func FrozenOriginalHours(tl *history.Timeline, pr *history.Projector) int {
    start := pr.FirstInProgress(tl)
    if !start.IsZero() {
        if v, ok := history.ValueAt(tl, domain.FieldOriginalEstimate, start); ok {
            h, _ := history.IsoHours(v)
            return h
        }
    }
    if seq := tl.Field(domain.FieldOriginalEstimate); len(seq) > 0 {
        h, _ := history.IsoHours(seq[0].NewValue)
        return h
    }
    return 0
}

func originalEstimate(tl *history.Timeline, pr *history.Projector, _ time.Time) (float64, bool) {
    return float64(FrozenOriginalHours(tl, pr)), true
}

func burnedOriginal(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, bool) {
    st := pr.Project(tl, asOf)
    if !st.Resolved() { return 0, true }
    return float64(FrozenOriginalHours(tl, pr)), true
}

func predictionRate(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, float64, bool) {
    st := pr.Project(tl, asOf)
    if !st.Resolved() { return 0, 0, false }
    orig := FrozenOriginalHours(tl, pr)
    if orig == 0 { return 0, 0, false }
    return float64(st.SpentHrs), float64(orig), true
}

func assigneeLoad(tl *history.Timeline, pr *history.Projector, asOf time.Time) (float64, float64, bool) {
    ttr, ok := TimeToResolve(tl, pr, asOf)
    if !ok || ttr <= 0 { return 0, 0, false }
    return float64(pr.Project(tl, asOf).SpentHrs), ttr.Hours(), true
}
