/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

// Reducer names a per-window cross-issue reduction strategy.
type Reducer string

const (
    ReduceSum         Reducer = "sum"
    ReduceCount       Reducer = "count"
    ReduceMean        Reducer = "mean"
    ReduceRatioOfSums Reducer = "ratio_of_sums"
)

// RatioPair is one issue's contribution to a ratio-of-sums reduction.
type RatioPair struct {
    Num float64
    Den float64
}

// Aggregate reduces defined per-issue values into one summary value and the
// count of contributing issues. Callers exclude undefined values before
// calling; an empty input reduces to zero with zero contributors.
func Aggregate(red Reducer, values []float64) (float64, int) {
    n := len(values)
    switch red {
    case ReduceCount:
        return float64(n), n
    case ReduceMean:
        if n == 0 { return 0, 0 }
        var s float64
        for _, v := range values { s += v }
        return s / float64(n), n
    default: // sum
        var s float64
        for _, v := range values { s += v }
        return s, n
    }
}

// AggregateRatio divides the sum of numerators by the sum of denominators.
// Summing before dividing keeps issues with small denominators from skewing
// the result the way a mean of per-issue ratios would.
func AggregateRatio(pairs []RatioPair) (float64, int) {
    var num, den float64
    for _, p := range pairs {
        num += p.Num
        den += p.Den
    }
    if den == 0 { return 0, len(pairs) }
    return num / den, len(pairs)
}
