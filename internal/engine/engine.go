/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"

    "github.com/valeriy-chepelev/expendo/internal/domain"
    "github.com/valeriy-chepelev/expendo/internal/history"
    "github.com/valeriy-chepelev/expendo/internal/metrics"
    "github.com/valeriy-chepelev/expendo/internal/window"
)

// HistorySource fetches raw change records from the tracker. The engine never
// retries; retry policy belongs to the collaborator.
type HistorySource interface {
    FetchHistory(ctx context.Context, issueID string) ([]domain.ChangeRecord, error)
}

// CacheGateway stores per-issue per-day history snapshots. A hit is
// authoritative for that date; freshness and expiry policy are entirely the
// gateway's concern.
type CacheGateway interface {
    Get(ctx context.Context, issueID string, date time.Time) (domain.CacheEntry, bool, error)
    Put(ctx context.Context, issueID string, date time.Time, records []domain.ChangeRecord) error
}

// Grouping dimensions: queue segments on the key prefix, assignee on the
// assignee in effect at the window instant.
const (
    GroupNone     = ""
    GroupQueue    = "queue"
    GroupAssignee = "assignee"
)

// Request describes one evaluation: which issues, which metric, and the
// window layout.
type Request struct {
    IssueIDs  []string
    Metric    string
    Mode      window.Mode
    BaseDate  time.Time
    From      time.Time
    To        time.Time
    SprintLen int
    GroupBy   string // one aggregate per segment per window when set
    PerIssue  bool   // emit per-issue rows instead of one aggregate per window
}

type Engine struct {
    log     zerolog.Logger
    source  HistorySource
    cache   CacheGateway
    norm    *history.Normalizer
    proj    *history.Projector
    workers int
    now     func() time.Time
}

func New(log zerolog.Logger, source HistorySource, cache CacheGateway, classes domain.StatusClasses, pauseOn []domain.StatusClass, workers int) *Engine {
    if workers <= 0 { workers = 8 }
    return &Engine{
        log:     log,
        source:  source,
        cache:   cache,
        norm:    history.NewNormalizer(log),
        proj:    history.NewProjector(classes, pauseOn),
        workers: workers,
        now:     time.Now,
    }
}

// Evaluate runs one metric over the issue set across the generated windows
// and returns one aggregated result per window, in window order. Window
// configuration errors fail before any collaborator call.
func (e *Engine) Evaluate(ctx context.Context, req Request) ([]domain.MetricResult, error) {
    def, ok := metrics.Lookup(req.Metric)
    if !ok { return nil, fmt.Errorf("unknown metric %q", req.Metric) }
    switch req.GroupBy {
    case GroupNone, GroupQueue, GroupAssignee:
    default:
        return nil, fmt.Errorf("unknown grouping %q", req.GroupBy)
    }
    windows, err := window.Generate(req.Mode, req.BaseDate, req.From, req.To, req.SprintLen)
    if err != nil { return nil, err }

    timelines, err := e.loadTimelines(ctx, req.IssueIDs)
    if err != nil { return nil, err }

    var out []domain.MetricResult
    for _, w := range windows {
        asOf := w.End
        if w.End.After(w.Start) {
            // half-open window: a record exactly at End belongs to the next one
            asOf = w.End.Add(-time.Nanosecond)
        }
        if req.PerIssue {
            out = append(out, e.perIssueResults(def, req.GroupBy, timelines, w, asOf)...)
            continue
        }
        if req.GroupBy != GroupNone {
            out = append(out, e.groupedResults(def, req.GroupBy, timelines, w, asOf)...)
            continue
        }
        out = append(out, e.aggregateWindow(def, timelines, w, asOf))
    }
    return out, nil
}

// groupKey places one issue into its segment at one instant. Queue segments
// are static; assignee segments follow the assignee field over time.
func groupKey(groupBy string, tl *history.Timeline, asOf time.Time) string {
    switch groupBy {
    case GroupQueue:
        if i := strings.Index(tl.IssueID, "-"); i > 0 { return tl.IssueID[:i] }
        return tl.IssueID
    case GroupAssignee:
        if v, ok := history.ValueAt(tl, domain.FieldAssignee, asOf); ok { return v }
    }
    return ""
}

// groupedResults aggregates one window per segment, segments sorted by name.
func (e *Engine) groupedResults(def metrics.Definition, groupBy string, timelines []*history.Timeline, w domain.Window, asOf time.Time) []domain.MetricResult {
    segments := map[string][]*history.Timeline{}
    for _, tl := range timelines {
        k := groupKey(groupBy, tl, asOf)
        segments[k] = append(segments[k], tl)
    }
    names := make([]string, 0, len(segments))
    for k := range segments { names = append(names, k) }
    sort.Strings(names)
    out := make([]domain.MetricResult, 0, len(names))
    for _, k := range names {
        res := e.aggregateWindow(def, segments[k], w, asOf)
        res.Group = k
        out = append(out, res)
    }
    return out
}

func (e *Engine) aggregateWindow(def metrics.Definition, timelines []*history.Timeline, w domain.Window, asOf time.Time) domain.MetricResult {
    res := domain.MetricResult{WindowStart: w.Start, WindowEnd: w.End, Kind: def.Kind}
    if def.Ratio != nil {
        var pairs []metrics.RatioPair
        for _, tl := range timelines {
            if num, den, ok := def.Ratio(tl, e.proj, asOf); ok {
                pairs = append(pairs, metrics.RatioPair{Num: num, Den: den})
            }
        }
        res.Value, res.Contributing = metrics.AggregateRatio(pairs)
        return res
    }
    var values []float64
    for _, tl := range timelines {
        if v, ok := def.Scalar(tl, e.proj, asOf); ok { values = append(values, v) }
    }
    res.Value, res.Contributing = metrics.Aggregate(def.Reduce, values)
    return res
}

func (e *Engine) perIssueResults(def metrics.Definition, groupBy string, timelines []*history.Timeline, w domain.Window, asOf time.Time) []domain.MetricResult {
    out := make([]domain.MetricResult, 0, len(timelines))
    for _, tl := range timelines {
        var v float64
        var ok bool
        if def.Ratio != nil {
            var num, den float64
            num, den, ok = def.Ratio(tl, e.proj, asOf)
            if ok && den != 0 { v = num / den } else { ok = false }
        } else {
            v, ok = def.Scalar(tl, e.proj, asOf)
        }
        if !ok { continue } // undefined for this issue, not zero
        out = append(out, domain.MetricResult{
            IssueID: tl.IssueID, Group: groupKey(groupBy, tl, asOf),
            WindowStart: w.Start, WindowEnd: w.End,
            Value: v, Kind: def.Kind, Contributing: 1,
        })
    }
    return out
}

// dedupe keeps the first occurrence of every id, preserving order. Repeated
// ids would otherwise race two goroutines onto one (issue, date) cache key.
func dedupe(ids []string) []string {
    seen := make(map[string]struct{}, len(ids))
    out := make([]string, 0, len(ids))
    for _, id := range ids {
        if _, ok := seen[id]; ok { continue }
        seen[id] = struct{}{}
        out = append(out, id)
    }
    return out
}

// loadTimelines builds one timeline per issue, cache first. Fetches run
// concurrently across issues through a bounded group; fetch and cache write
// for one issue stay on one goroutine, so no (issue, date) key is written
// twice.
func (e *Engine) loadTimelines(ctx context.Context, issueIDs []string) ([]*history.Timeline, error) {
    issueIDs = dedupe(issueIDs)
    today := dateOf(e.now())
    timelines := make([]*history.Timeline, len(issueIDs))
    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(e.workers)
    for i, id := range issueIDs {
        i, id := i, id
        g.Go(func() error {
            recs, err := e.issueRecords(gctx, id, today)
            if err != nil { return fmt.Errorf("issue %s: %w", id, err) }
            tl, droppedCnt := e.norm.Build(id, recs)
            if droppedCnt > 0 {
                e.log.Warn().Str("issue", id).Int("dropped", droppedCnt).Msg("engine: malformed history records dropped")
            }
            timelines[i] = tl
            return nil
        })
    }
    if err := g.Wait(); err != nil { return nil, err }
    return timelines, nil
}

func (e *Engine) issueRecords(ctx context.Context, issueID string, day time.Time) ([]domain.ChangeRecord, error) {
    if entry, hit, err := e.cache.Get(ctx, issueID, day); err != nil {
        return nil, fmt.Errorf("cache get: %w", err)
    } else if hit {
        return entry.Records, nil
    }
    recs, err := e.source.FetchHistory(ctx, issueID)
    if err != nil { return nil, fmt.Errorf("fetch history: %w", err) }
    if err := e.cache.Put(ctx, issueID, day, recs); err != nil {
        return nil, fmt.Errorf("cache put: %w", err)
    }
    return recs, nil
}

// Warm refreshes today's cache entries for the given issues without
// evaluating anything. Used by the scheduled warm-up job.
func (e *Engine) Warm(ctx context.Context, issueIDs []string) error {
    today := dateOf(e.now())
    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(e.workers)
    for _, id := range dedupe(issueIDs) {
        id := id
        g.Go(func() error {
            _, err := e.issueRecords(gctx, id, today)
            return err
        })
    }
    return g.Wait()
}

func dateOf(t time.Time) time.Time {
    y, m, d := t.UTC().Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
