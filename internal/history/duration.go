/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "fmt"
    "strconv"
    "strings"
)

// isoSplit consumes the leading component of s up to the divider letter.
func isoSplit(s, div string) (int, string, error) {
    if !strings.Contains(s, div) { return 0, s, nil }
    head, rest, _ := strings.Cut(s, div)
    if head == "" { return 0, rest, nil }
    n, err := strconv.Atoi(head)
    if err != nil { return 0, rest, fmt.Errorf("bad %q component in %q", div, s) }
    return n, rest, nil
}

// IsoHours converts tracker work-duration notation ("P1W2DT3H") to hours,
// on an 8 hours/day, 5 days/week calendar. Components other than weeks,
// days and hours are ignored. Empty input means zero.
func IsoHours(s string) (int, error) {
    if s == "" { return 0, nil }
    // Remove prefix
    if i := strings.LastIndex(s, "P"); i >= 0 { s = s[i+1:] }
    weeks, s, err := isoSplit(s, "W")
    if err != nil { return 0, err }
    days, s, err := isoSplit(s, "D")
    if err != nil { return 0, err }
    _, s, _ = isoSplit(s, "T")
    hours, _, err := isoSplit(s, "H")
    if err != nil { return 0, err }
    return (weeks*5+days)*8 + hours, nil
}

// IsoDays converts work-duration notation to days, rounding partial days up.
func IsoDays(s string) (int, error) {
    h, err := IsoHours(s)
    if err != nil { return 0, err }
    return (h + 7) / 8, nil
}
