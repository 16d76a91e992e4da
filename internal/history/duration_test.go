package history

import "testing"

func TestIsoHours_WorkCalendar(t *testing.T) {
    cases := []struct {
        in   string
        want int
    }{
        {"", 0},
        {"PT3H", 3},
        {"P2D", 16},
        {"P1W", 40},
        {"P1W2DT3H", 59},
        {"P3DT5H", 29},
        {"PT0H", 0},
    }
    for _, c := range cases {
        got, err := IsoHours(c.in)
        if err != nil { t.Fatalf("IsoHours(%q): %v", c.in, err) }
        if got != c.want { t.Fatalf("IsoHours(%q) = %d, want %d", c.in, got, c.want) }
    }
}

func TestIsoHours_Malformed(t *testing.T) {
    for _, in := range []string{"PxD", "P1.5D", "PTxH"} {
        if _, err := IsoHours(in); err == nil {
            t.Fatalf("IsoHours(%q): expected error", in)
        }
    }
}

func TestIsoDays_RoundsPartialDaysUp(t *testing.T) {
    cases := []struct {
        in   string
        want int
    }{
        {"", 0},
        {"PT8H", 1},
        {"PT9H", 2},
        {"P2D", 2},
        {"P1WT1H", 6},
    }
    for _, c := range cases {
        got, err := IsoDays(c.in)
        if err != nil { t.Fatalf("IsoDays(%q): %v", c.in, err) }
        if got != c.want { t.Fatalf("IsoDays(%q) = %d, want %d", c.in, got, c.want) }
    }
}
