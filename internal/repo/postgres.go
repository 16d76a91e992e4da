/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"

    "github.com/valeriy-chepelev/expendo/internal/config"
    "github.com/valeriy-chepelev/expendo/internal/domain"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Repository is the pgx-backed result cache gateway plus run bookkeeping.
// Cache freshness is keyed by day: an entry written today answers every
// request for today; yesterday's entry is simply never asked for again and
// gets overwritten by the next put.
type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// EnsureSchema creates the storage tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
    const q = `
        CREATE TABLE IF NOT EXISTS issue_history(
            issue_key  text NOT NULL,
            day        date NOT NULL,
            records    jsonb NOT NULL,
            fetched_at timestamptz NOT NULL DEFAULT now(),
            PRIMARY KEY(issue_key, day)
        );
        CREATE TABLE IF NOT EXISTS eval_runs(
            id          bigserial PRIMARY KEY,
            run_uid     text NOT NULL,
            metric      text NOT NULL,
            mode        text NOT NULL,
            issues      int NOT NULL DEFAULT 0,
            windows     int NOT NULL DEFAULT 0,
            started_at  timestamptz NOT NULL DEFAULT now(),
            finished_at timestamptz,
            ok          boolean NOT NULL DEFAULT false,
            note        text NOT NULL DEFAULT ''
        );`
    _, err := r.db.Pool.Exec(ctx, q)
    return err
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// Get returns the cached history snapshot for (issue, day), if any.
func (r *Repository) Get(ctx context.Context, issueID string, date time.Time) (domain.CacheEntry, bool, error) {
    const q = `SELECT records FROM issue_history WHERE issue_key=$1 AND day=$2`
    var raw []byte
    err := r.db.Pool.QueryRow(ctx, q, issueID, date).Scan(&raw)
    if errors.Is(err, pgx.ErrNoRows) { return domain.CacheEntry{}, false, nil }
    if err != nil { return domain.CacheEntry{}, false, err }
    entry := domain.CacheEntry{IssueID: issueID, Date: date}
    if err := json.Unmarshal(raw, &entry.Records); err != nil {
        return domain.CacheEntry{}, false, err
    }
    return entry, true, nil
}

// Put stores today's snapshot, superseding any entry left from an earlier day.
func (r *Repository) Put(ctx context.Context, issueID string, date time.Time, records []domain.ChangeRecord) error {
    raw, err := json.Marshal(records)
    if err != nil { return err }
    const q = `
        INSERT INTO issue_history(issue_key, day, records, fetched_at)
        VALUES($1,$2,$3,now())
        ON CONFLICT (issue_key, day) DO UPDATE SET records=EXCLUDED.records, fetched_at=now()`
    _, err = r.db.Pool.Exec(ctx, q, issueID, date, raw)
    return err
}

// PruneBefore drops snapshots older than the given day.
func (r *Repository) PruneBefore(ctx context.Context, day time.Time) (int64, error) {
    tag, err := r.db.Pool.Exec(ctx, `DELETE FROM issue_history WHERE day < $1`, day)
    if err != nil { return 0, err }
    return tag.RowsAffected(), nil
}

func (r *Repository) StartEvalRun(ctx context.Context, runUID, metric, mode string, issues int) (int64, error) {
    const q = `INSERT INTO eval_runs(run_uid, metric, mode, issues) VALUES($1,$2,$3,$4) RETURNING id`
    var id int64
    err := r.db.Pool.QueryRow(ctx, q, runUID, metric, mode, issues).Scan(&id)
    return id, err
}

func (r *Repository) FinishEvalRun(ctx context.Context, id int64, windows int, ok bool, note string) error {
    const q = `UPDATE eval_runs SET finished_at=now(), windows=$2, ok=$3, note=$4 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, windows, ok, note)
    return err
}

func (r *Repository) GetLastRun(ctx context.Context) (*domain.EvalRun, error) {
    const q = `SELECT id, run_uid, metric, mode, issues, windows, started_at, finished_at, ok, note
        FROM eval_runs ORDER BY id DESC LIMIT 1`
    var run domain.EvalRun
    err := r.db.Pool.QueryRow(ctx, q).Scan(&run.ID, &run.RunUID, &run.Metric, &run.Mode,
        &run.Issues, &run.Windows, &run.StartedAt, &run.FinishedAt, &run.OK, &run.Note)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &run, nil
}
