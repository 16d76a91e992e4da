/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package window

import (
    "errors"
    "fmt"
    "time"

    "github.com/valeriy-chepelev/expendo/internal/domain"
)

// ErrInvalidWindow rejects window configurations before any evaluation work
// starts: non-positive sprint length or an inverted range.
var ErrInvalidWindow = errors.New("invalid window configuration")

// Mode selects the evaluation granularity.
type Mode string

const (
    ModeInstant Mode = "instant"
    ModeDaily   Mode = "daily"
    ModeSprint  Mode = "sprint"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
    switch Mode(s) {
    case ModeInstant, ModeDaily, ModeSprint:
        return Mode(s), nil
    }
    return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidWindow, s)
}

const day = 24 * time.Hour

func midnight(t time.Time) time.Time {
    y, m, d := t.UTC().Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Generate produces the ordered evaluation windows for one engine run.
// Instant mode yields the single window [to, to]. Daily mode yields one
// half-open window per calendar day of [from, to]. Sprint mode yields
// sprintLen-day windows anchored to base (start = base + k*len), beginning
// with the first window that intersects [from, to]; anchoring to base keeps
// sprint boundaries identical across queries with different ranges.
func Generate(mode Mode, base, from, to time.Time, sprintLen int) ([]domain.Window, error) {
    if to.Before(from) { return nil, fmt.Errorf("%w: range end %s before start %s", ErrInvalidWindow, to.Format(time.RFC3339), from.Format(time.RFC3339)) }
    switch mode {
    case ModeInstant:
        return []domain.Window{{Start: to, End: to}}, nil
    case ModeDaily:
        var out []domain.Window
        for d := midnight(from); !d.After(midnight(to)); d = d.Add(day) {
            out = append(out, domain.Window{Start: d, End: d.Add(day)})
        }
        return out, nil
    case ModeSprint:
        if sprintLen <= 0 { return nil, fmt.Errorf("%w: sprint length %d", ErrInvalidWindow, sprintLen) }
        length := time.Duration(sprintLen) * day
        base = midnight(base)
        // smallest k such that [base+k*len, base+(k+1)*len) intersects the range,
        // i.e. k = floor((from-base)/len) with flooring toward minus infinity
        diff := midnight(from).Sub(base)
        k := diff / length
        if diff < 0 && diff%length != 0 { k-- }
        var out []domain.Window
        for s := base.Add(k * length); !s.Add(length).After(midnight(to)); s = s.Add(length) {
            out = append(out, domain.Window{Start: s, End: s.Add(length)})
        }
        return out, nil
    }
    return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidWindow, mode)
}
