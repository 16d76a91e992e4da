/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package tracker

import (
    "context"
    "fmt"
    "net/http"
    "net/url"
)

type searchHit struct {
    Key  string `json:"key"`
    Type struct {
        Key string `json:"key"`
    } `json:"type"`
}

type linkEntry struct {
    Type struct {
        ID string `json:"id"`
    } `json:"type"`
    Direction string `json:"direction"`
    Object    struct {
        Key string `json:"key"`
    } `json:"object"`
}

// Search runs a tracker query and returns matching issue keys. The query
// language itself is opaque to this service; the string passes through.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
    if query == "" { return nil, fmt.Errorf("tracker: empty query") }
    var keys []string
    page := 1
    for {
        q := url.Values{}
        q.Set("perPage", "100")
        if page > 1 { q.Set("page", fmt.Sprint(page)) }
        var hits []searchHit
        u := c.apiURL("/v2/issues/_search", q)
        if err := c.do(ctx, http.MethodPost, u, map[string]string{"query": query}, &hits); err != nil {
            return nil, err
        }
        if len(hits) == 0 { break }
        for _, h := range hits { keys = append(keys, h.Key) }
        if len(hits) < 100 { break }
        page++
    }
    return keys, nil
}

// Links lists the subtask keys directly linked under an issue.
func (c *Client) Links(ctx context.Context, key string) ([]string, error) {
    var links []linkEntry
    u := c.apiURL("/v2/issues/"+url.PathEscape(key)+"/links", nil)
    if err := c.do(ctx, http.MethodGet, u, nil, &links); err != nil { return nil, err }
    var out []string
    for _, l := range links {
        if l.Type.ID == "subtask" && l.Direction == "outward" && l.Object.Key != "" {
            out = append(out, l.Object.Key)
        }
    }
    return out, nil
}

// SelectIssues resolves a query into a flat issue set, optionally scanning
// the subtask tree under every hit. Ancestors found while scanning are
// walked too; duplicates collapse on key. Issues whose subtrees are not
// accessible are skipped with a warning rather than failing the selection.
func (c *Client) SelectIssues(ctx context.Context, query string, scan bool) ([]string, error) {
    roots, err := c.Search(ctx, query)
    if err != nil { return nil, err }
    if !scan { return roots, nil }
    seen := map[string]struct{}{}
    var out []string
    stack := append([]string(nil), roots...)
    for len(stack) > 0 {
        key := stack[len(stack)-1]
        stack = stack[:len(stack)-1]
        if _, ok := seen[key]; ok { continue }
        seen[key] = struct{}{}
        out = append(out, key)
        children, err := c.Links(ctx, key)
        if err != nil {
            c.log.Warn().Err(err).Str("issue", key).Msg("tracker: subtask scan skipped")
            continue
        }
        stack = append(stack, children...)
    }
    return out, nil
}
