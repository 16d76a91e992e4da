/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/valeriy-chepelev/expendo/internal/config"
    "github.com/valeriy-chepelev/expendo/internal/domain"
    "github.com/valeriy-chepelev/expendo/internal/services"
    "github.com/valeriy-chepelev/expendo/internal/window"
)

type service interface {
    Evaluate(ctx context.Context, p services.EvalParams) ([]domain.MetricResult, error)
    WarmCache(ctx context.Context) error
    MetricNames() []string
    GetLastRun(ctx context.Context) (*domain.EvalRun, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Metrics(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"metrics": h.svc.MetricNames()})
}

// evaluateRequest is the POST /evaluate body. Dates are RFC 3339; the sprint
// anchor and length default to the configured values when omitted.
type evaluateRequest struct {
    Issues    []string  `json:"issues"`
    Query     string    `json:"query"`
    Metric    string    `json:"metric" binding:"required"`
    Mode      string    `json:"mode" binding:"required"`
    BaseDate  time.Time `json:"base_date"`
    From      time.Time `json:"from"`
    To        time.Time `json:"to" binding:"required"`
    SprintLen int       `json:"sprint_len"`
    GroupBy   string    `json:"group_by"` // "", "queue" or "assignee"
    PerIssue  bool      `json:"per_issue"`
}

func (h *Handlers) Evaluate(c *gin.Context) {
    var req evaluateRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if len(req.Issues) == 0 && req.Query == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "either issues or query is required"})
        return
    }
    results, err := h.svc.Evaluate(c.Request.Context(), services.EvalParams{
        Issues:    req.Issues,
        Query:     req.Query,
        Metric:    req.Metric,
        Mode:      req.Mode,
        BaseDate:  req.BaseDate,
        From:      req.From,
        To:        req.To,
        SprintLen: req.SprintLen,
        GroupBy:   req.GroupBy,
        PerIssue:  req.PerIssue,
    })
    if err != nil {
        status := http.StatusInternalServerError
        if errors.Is(err, window.ErrInvalidWindow) { status = http.StatusBadRequest }
        c.JSON(status, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if lr == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) Warm(c *gin.Context) {
    // Detach from the request context: the warm pass outlives the response
    go func() { _ = h.svc.WarmCache(context.Background()) }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
