/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/valeriy-chepelev/expendo/internal/adapters/tracker"
    "github.com/valeriy-chepelev/expendo/internal/config"
    "github.com/valeriy-chepelev/expendo/internal/engine"
    httpapi "github.com/valeriy-chepelev/expendo/internal/http"
    "github.com/valeriy-chepelev/expendo/internal/jobs"
    "github.com/valeriy-chepelev/expendo/internal/logger"
    "github.com/valeriy-chepelev/expendo/internal/repo"
    "github.com/valeriy-chepelev/expendo/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)
    {
        ctx2, cancel2 := context.WithTimeout(ctx, 20*time.Second)
        err := repository.EnsureSchema(ctx2)
        cancel2()
        if err != nil { log.Fatal().Err(err).Msg("schema setup failed") }
    }

    // Adapters
    tc := tracker.NewClient(cfg, log)

    // Engine + service
    eng := engine.New(log, tc, repository, cfg.StatusClasses, cfg.PauseClasses, cfg.WorkersFetch)
    svc := services.New(cfg, log, repository, tc, eng)

    // HTTP server (Gin)
    router := httpapi.NewRouter(cfg, log, svc)

    // Cron
    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
