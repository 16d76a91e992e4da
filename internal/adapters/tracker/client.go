/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package tracker

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "github.com/valeriy-chepelev/expendo/internal/config"
    "github.com/valeriy-chepelev/expendo/internal/domain"
)

var (
    ErrNotFound     = errors.New("tracker: issue not found")
    ErrAccessDenied = errors.New("tracker: access denied")
)

// fieldNames maps tracker changelog field ids to the engine's field set.
// Everything else passes through raw and fails closed in the normalizer.
var fieldNames = map[string]domain.Field{
    "status":             domain.FieldStatus,
    "estimation":         domain.FieldEstimation,
    "spent":              domain.FieldSpent,
    "originalEstimation": domain.FieldOriginalEstimate,
    "assignee":           domain.FieldAssignee,
}

type Client struct {
    baseURL string
    token   string
    org     string
    http    *http.Client
    log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: strings.TrimRight(cfg.TrackerBaseURL, "/"),
        token:   cfg.TrackerToken,
        org:     cfg.TrackerOrg,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    u := c.baseURL + path
    if len(q) > 0 { u += "?" + q.Encode() }
    return u
}

func (c *Client) do(ctx context.Context, method, u string, body any, out any) error {
    if c.baseURL == "" { return errors.New("tracker: empty baseURL") }
    var payload string
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = string(b)
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if body != nil { r = strings.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return err }
        if body != nil { req.Header.Set("Content-Type", "application/json") }
        req.Header.Set("Authorization", "OAuth "+c.token)
        req.Header.Set("X-Org-ID", c.org)
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err } else {
            func() {
                defer resp.Body.Close()
                switch {
                case resp.StatusCode == http.StatusNotFound:
                    lastErr = ErrNotFound
                case resp.StatusCode == http.StatusForbidden:
                    lastErr = ErrAccessDenied
                case resp.StatusCode >= 300:
                    b, _ := io.ReadAll(resp.Body)
                    lastErr = fmt.Errorf("tracker api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
                default:
                    lastErr = json.NewDecoder(resp.Body).Decode(out)
                }
            }()
            // only 429/5xx are worth retrying
            if lastErr == nil || errors.Is(lastErr, ErrNotFound) || errors.Is(lastErr, ErrAccessDenied) {
                return lastErr
            }
            if !retriable(resp.StatusCode) { return lastErr }
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return lastErr
}

func retriable(status int) bool { return status == 429 || status >= 500 }

type changeValue struct {
    Key     string `json:"key,omitempty"`
    ID      string `json:"id,omitempty"`
    Display string `json:"display,omitempty"`
}

// changelog "to"/"from" come as a status object, a user object or a plain
// duration string depending on the field.
type changeSide struct {
    str string
    obj *changeValue
}

func (v *changeSide) UnmarshalJSON(b []byte) error {
    if len(b) == 0 || string(b) == "null" { return nil }
    if b[0] == '"' { return json.Unmarshal(b, &v.str) }
    v.obj = &changeValue{}
    return json.Unmarshal(b, v.obj)
}

func (v changeSide) value() string {
    if v.obj == nil { return v.str }
    if v.obj.Key != "" { return v.obj.Key }
    if v.obj.Display != "" { return v.obj.Display }
    return v.obj.ID
}

type changelogEntry struct {
    ID        string `json:"id"`
    UpdatedAt string `json:"updatedAt"`
    UpdatedBy struct {
        Display string `json:"display"`
    } `json:"updatedBy"`
    Fields []struct {
        Field struct {
            ID string `json:"id"`
        } `json:"field"`
        From changeSide `json:"from"`
        To   changeSide `json:"to"`
    } `json:"fields"`
}

// IssueInfo is the subset of issue fields the engine cares about.
type IssueInfo struct {
    Key       string `json:"key"`
    CreatedAt string `json:"createdAt"`
    CreatedBy struct {
        Display string `json:"display"`
    } `json:"createdBy"`
    Type struct {
        Key string `json:"key"`
    } `json:"type"`
}

func parseTrackerTime(s string) (time.Time, error) {
    for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339Nano, time.RFC3339} {
        if t, err := time.Parse(layout, s); err == nil { return t.UTC(), nil }
    }
    return time.Time{}, fmt.Errorf("tracker: bad timestamp %q", s)
}

// Issue fetches basic issue info.
func (c *Client) Issue(ctx context.Context, key string) (IssueInfo, error) {
    var info IssueInfo
    if key == "" { return info, errors.New("tracker: empty issue key") }
    err := c.do(ctx, http.MethodGet, c.apiURL("/v2/issues/"+url.PathEscape(key), nil), nil, &info)
    return info, err
}

// FetchHistory pages the issue changelog into change records. A synthetic
// status record marks the creation instant so projections know when the
// issue came into existence. Seq numbering follows arrival order.
func (c *Client) FetchHistory(ctx context.Context, issueID string) ([]domain.ChangeRecord, error) {
    info, err := c.Issue(ctx, issueID)
    if err != nil { return nil, err }
    var out []domain.ChangeRecord
    seq := 0
    if created, err := parseTrackerTime(info.CreatedAt); err == nil {
        out = append(out, domain.ChangeRecord{
            IssueID: issueID, Field: domain.FieldStatus,
            NewValue: "open", At: created, Author: info.CreatedBy.Display, Seq: seq,
        })
        seq++
    }
    page := 1
    for {
        q := url.Values{}
        q.Set("perPage", "100")
        if page > 1 { q.Set("page", fmt.Sprint(page)) }
        var entries []changelogEntry
        u := c.apiURL("/v2/issues/"+url.PathEscape(issueID)+"/changelog", q)
        if err := c.do(ctx, http.MethodGet, u, nil, &entries); err != nil { return nil, err }
        if len(entries) == 0 { break }
        for _, e := range entries {
            at, err := parseTrackerTime(e.UpdatedAt)
            if err != nil {
                c.log.Warn().Str("issue", issueID).Str("entry", e.ID).Msg("tracker: changelog entry without timestamp skipped")
                continue
            }
            for _, f := range e.Fields {
                field := domain.Field(f.Field.ID)
                if mapped, ok := fieldNames[f.Field.ID]; ok { field = mapped }
                out = append(out, domain.ChangeRecord{
                    IssueID:  issueID,
                    Field:    field,
                    OldValue: f.From.value(),
                    NewValue: f.To.value(),
                    At:       at,
                    Author:   e.UpdatedBy.Display,
                    Seq:      seq,
                })
                seq++
            }
        }
        if len(entries) < 100 { break }
        page++
    }
    return out, nil
}
