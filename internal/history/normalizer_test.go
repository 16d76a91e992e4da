package history

import (
    "testing"
    "time"

    "github.com/rs/zerolog"

    "github.com/valeriy-chepelev/expendo/internal/domain"
)

func ts(day, hour int) time.Time {
    return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func status(at time.Time, seq int, val string) domain.ChangeRecord {
    return domain.ChangeRecord{IssueID: "T-1", Field: domain.FieldStatus, NewValue: val, At: at, Seq: seq}
}

func TestBuild_OrderIndependent(t *testing.T) {
    n := NewNormalizer(zerolog.Nop())
    recs := []domain.ChangeRecord{
        status(ts(1, 9), 0, "open"),
        status(ts(2, 10), 1, "inProgress"),
        status(ts(5, 16), 2, "resolved"),
    }
    shuffled := []domain.ChangeRecord{recs[2], recs[0], recs[1]}

    a, _ := n.Build("T-1", recs)
    b, _ := n.Build("T-1", shuffled)
    sa, sb := a.Field(domain.FieldStatus), b.Field(domain.FieldStatus)
    if len(sa) != 3 || len(sb) != 3 { t.Fatalf("expected 3 status records, got %d and %d", len(sa), len(sb)) }
    for i := range sa {
        if sa[i].NewValue != sb[i].NewValue || !sa[i].At.Equal(sb[i].At) {
            t.Fatalf("order dependence at %d: %+v vs %+v", i, sa[i], sb[i])
        }
    }
    if !a.CreatedAt.Equal(ts(1, 9)) { t.Fatalf("CreatedAt = %v, want %v", a.CreatedAt, ts(1, 9)) }
}

func TestBuild_DedupesAndCollapses(t *testing.T) {
    n := NewNormalizer(zerolog.Nop())
    recs := []domain.ChangeRecord{
        status(ts(1, 9), 0, "open"),
        status(ts(1, 9), 1, "open"),  // exact duplicate
        status(ts(2, 10), 2, "inProgress"),
        status(ts(2, 11), 3, "inProgress"), // no-op transition
        status(ts(3, 12), 4, "resolved"),
    }
    tl, dropped := n.Build("T-1", recs)
    if dropped != 0 { t.Fatalf("dropped = %d, want 0", dropped) }
    seq := tl.Field(domain.FieldStatus)
    if len(seq) != 3 { t.Fatalf("expected 3 records after dedupe+collapse, got %d", len(seq)) }
    want := []string{"open", "inProgress", "resolved"}
    for i, w := range want {
        if seq[i].NewValue != w { t.Fatalf("seq[%d] = %q, want %q", i, seq[i].NewValue, w) }
    }
}

func TestBuild_DropsUnknownFieldsAndBadDurations(t *testing.T) {
    n := NewNormalizer(zerolog.Nop())
    recs := []domain.ChangeRecord{
        status(ts(1, 9), 0, "open"),
        {IssueID: "T-1", Field: "priority", NewValue: "high", At: ts(1, 10), Seq: 1},
        {IssueID: "T-1", Field: domain.FieldEstimation, NewValue: "PxH", At: ts(1, 11), Seq: 2},
        {IssueID: "T-1", Field: domain.FieldEstimation, NewValue: "PT4H", At: ts(1, 12), Seq: 3},
    }
    tl, dropped := n.Build("T-1", recs)
    if dropped != 2 { t.Fatalf("dropped = %d, want 2", dropped) }
    if got := tl.Field(domain.FieldEstimation); len(got) != 1 || got[0].NewValue != "PT4H" {
        t.Fatalf("estimation timeline = %+v", got)
    }
    if got := tl.Field("priority"); len(got) != 0 {
        t.Fatalf("unknown field survived: %+v", got)
    }
}

func TestBuild_TimestampTiesBreakOnSeq(t *testing.T) {
    n := NewNormalizer(zerolog.Nop())
    recs := []domain.ChangeRecord{
        status(ts(2, 10), 5, "resolved"),
        status(ts(2, 10), 4, "inProgress"),
    }
    tl, _ := n.Build("T-1", recs)
    seq := tl.Field(domain.FieldStatus)
    if len(seq) != 2 || seq[0].NewValue != "inProgress" || seq[1].NewValue != "resolved" {
        t.Fatalf("tie-break failed: %+v", seq)
    }
}
