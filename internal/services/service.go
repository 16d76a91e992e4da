/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"

    "github.com/valeriy-chepelev/expendo/internal/config"
    "github.com/valeriy-chepelev/expendo/internal/domain"
    "github.com/valeriy-chepelev/expendo/internal/engine"
    "github.com/valeriy-chepelev/expendo/internal/metrics"
    "github.com/valeriy-chepelev/expendo/internal/repo"
    "github.com/valeriy-chepelev/expendo/internal/window"
)

// Selector resolves an opaque tracker query (plus optional subtask scan)
// into a flat set of issue keys.
type Selector interface {
    SelectIssues(ctx context.Context, query string, scan bool) ([]string, error)
}

type Service struct {
    cfg      config.Config
    log      zerolog.Logger
    repo     *repo.Repository
    selector Selector
    engine   *engine.Engine
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, sel Selector, eng *engine.Engine) *Service {
    return &Service{cfg: cfg, log: log, repo: r, selector: sel, engine: eng}
}

// EvalParams is one evaluation request from the HTTP surface. Either Issues
// or Query selects the issue set; explicit keys win.
type EvalParams struct {
    Issues    []string
    Query     string
    Metric    string
    Mode      string
    BaseDate  time.Time
    From      time.Time
    To        time.Time
    SprintLen int
    GroupBy   string
    PerIssue  bool
}

// Evaluate resolves the issue set, runs the metric engine and records the
// run for the admin surface.
func (s *Service) Evaluate(ctx context.Context, p EvalParams) ([]domain.MetricResult, error) {
    mode, err := window.ParseMode(p.Mode)
    if err != nil { return nil, err }
    issues := p.Issues
    if len(issues) == 0 && p.Query != "" {
        issues, err = s.selector.SelectIssues(ctx, p.Query, s.cfg.TrackerScan)
        if err != nil { return nil, fmt.Errorf("issue selection: %w", err) }
    }
    base := p.BaseDate
    if base.IsZero() { base = s.cfg.SprintBase }
    sprintLen := p.SprintLen
    if sprintLen == 0 { sprintLen = s.cfg.SprintLen }

    runUID := uuid.NewString()
    runID, err := s.repo.StartEvalRun(ctx, runUID, p.Metric, p.Mode, len(issues))
    if err != nil { s.log.Error().Err(err).Msg("start eval run failed") }

    results, evalErr := s.engine.Evaluate(ctx, engine.Request{
        IssueIDs:  issues,
        Metric:    p.Metric,
        Mode:      mode,
        BaseDate:  base,
        From:      p.From,
        To:        p.To,
        SprintLen: sprintLen,
        GroupBy:   p.GroupBy,
        PerIssue:  p.PerIssue,
    })
    if runID != 0 {
        note := ""
        if evalErr != nil { note = evalErr.Error() }
        if err := s.repo.FinishEvalRun(ctx, runID, len(results), evalErr == nil, note); err != nil {
            s.log.Error().Err(err).Msg("finish eval run failed")
        }
    }
    if evalErr != nil { return nil, evalErr }
    s.log.Info().Str("run", runUID).Str("metric", p.Metric).Str("mode", p.Mode).
        Int("issues", len(issues)).Int("results", len(results)).Msg("evaluation done")
    return results, nil
}

// WarmCache refreshes today's history snapshots for the configured issue
// selection and prunes entries from earlier days.
func (s *Service) WarmCache(ctx context.Context) error {
    if s.cfg.TrackerQuery == "" {
        s.log.Info().Msg("warm: no tracker query configured, nothing to do")
        return nil
    }
    issues, err := s.selector.SelectIssues(ctx, s.cfg.TrackerQuery, s.cfg.TrackerScan)
    if err != nil { return fmt.Errorf("issue selection: %w", err) }
    s.log.Info().Int("issues", len(issues)).Msg("warm: refreshing history snapshots")
    if err := s.engine.Warm(ctx, issues); err != nil { return err }
    today := time.Now().UTC().Truncate(24 * time.Hour)
    if n, err := s.repo.PruneBefore(ctx, today); err != nil {
        s.log.Error().Err(err).Msg("warm: prune failed")
    } else if n > 0 {
        s.log.Info().Int64("rows", n).Msg("warm: stale snapshots pruned")
    }
    return nil
}

// MetricNames lists the metrics the engine can evaluate.
func (s *Service) MetricNames() []string { return metrics.Names() }

func (s *Service) GetLastRun(ctx context.Context) (*domain.EvalRun, error) {
    return s.repo.GetLastRun(ctx)
}
