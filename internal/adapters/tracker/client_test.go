package tracker

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/rs/zerolog"

    "github.com/valeriy-chepelev/expendo/internal/config"
    "github.com/valeriy-chepelev/expendo/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
    t.Helper()
    srv := httptest.NewServer(handler)
    t.Cleanup(srv.Close)
    cfg := config.Config{
        TrackerBaseURL: srv.URL,
        TrackerToken:   "tok",
        TrackerOrg:     "42",
        HTTPTimeout:    5 * time.Second,
    }
    return NewClient(cfg, zerolog.Nop()), srv
}

func TestParseTrackerTime(t *testing.T) {
    got, err := parseTrackerTime("2026-03-02T09:30:00.000+0300")
    if err != nil { t.Fatal(err) }
    want := time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)
    if !got.Equal(want) { t.Fatalf("got %v, want %v", got, want) }
    if _, err := parseTrackerTime("yesterday"); err == nil {
        t.Fatal("expected error for junk timestamp")
    }
}

func TestChangeSide_StringAndObjectForms(t *testing.T) {
    var v changeSide
    if err := json.Unmarshal([]byte(`"PT4H"`), &v); err != nil { t.Fatal(err) }
    if v.value() != "PT4H" { t.Fatalf("string form = %q", v.value()) }

    v = changeSide{}
    if err := json.Unmarshal([]byte(`{"key":"inProgress","display":"In progress"}`), &v); err != nil { t.Fatal(err) }
    if v.value() != "inProgress" { t.Fatalf("object form = %q", v.value()) }

    v = changeSide{}
    if err := json.Unmarshal([]byte(`null`), &v); err != nil { t.Fatal(err) }
    if v.value() != "" { t.Fatalf("null form = %q", v.value()) }
}

func TestFetchHistory_SyntheticCreationAndFieldMapping(t *testing.T) {
    mux := http.NewServeMux()
    mux.HandleFunc("/v2/issues/T-1", func(w http.ResponseWriter, r *http.Request) {
        if r.Header.Get("Authorization") != "OAuth tok" || r.Header.Get("X-Org-ID") != "42" {
            w.WriteHeader(http.StatusForbidden)
            return
        }
        json.NewEncoder(w).Encode(map[string]any{
            "key":       "T-1",
            "createdAt": "2026-03-01T09:00:00.000+0000",
            "createdBy": map[string]string{"display": "Alice"},
        })
    })
    mux.HandleFunc("/v2/issues/T-1/changelog", func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Query().Get("page") != "" {
            json.NewEncoder(w).Encode([]any{})
            return
        }
        json.NewEncoder(w).Encode([]map[string]any{
            {
                "id":        "100",
                "updatedAt": "2026-03-02T10:00:00.000+0000",
                "updatedBy": map[string]string{"display": "Bob"},
                "fields": []map[string]any{
                    {
                        "field": map[string]string{"id": "status"},
                        "from":  map[string]string{"key": "open"},
                        "to":    map[string]string{"key": "inProgress"},
                    },
                    {
                        "field": map[string]string{"id": "originalEstimation"},
                        "to":    "PT8H",
                    },
                },
            },
        })
    })
    c, _ := testClient(t, mux)

    recs, err := c.FetchHistory(context.Background(), "T-1")
    if err != nil { t.Fatal(err) }
    if len(recs) != 3 { t.Fatalf("records = %d, want 3", len(recs)) }

    if recs[0].Field != domain.FieldStatus || recs[0].NewValue != "open" || recs[0].Author != "Alice" {
        t.Fatalf("synthetic creation record = %+v", recs[0])
    }
    if !recs[0].At.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
        t.Fatalf("creation at = %v", recs[0].At)
    }
    if recs[1].NewValue != "inProgress" || recs[1].OldValue != "open" {
        t.Fatalf("status change = %+v", recs[1])
    }
    if recs[2].Field != domain.FieldOriginalEstimate || recs[2].NewValue != "PT8H" {
        t.Fatalf("originalEstimation not mapped: %+v", recs[2])
    }
    for i, r := range recs {
        if r.Seq != i { t.Fatalf("seq[%d] = %d", i, r.Seq) }
    }
}

func TestFetchHistory_NotFound(t *testing.T) {
    c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
        w.WriteHeader(http.StatusNotFound)
    }))
    if _, err := c.FetchHistory(context.Background(), "NOPE-1"); err != ErrNotFound {
        t.Fatalf("err = %v, want ErrNotFound", err)
    }
}

func TestSelectIssues_WalksSubtaskTree(t *testing.T) {
    mux := http.NewServeMux()
    mux.HandleFunc("/v2/issues/_search", func(w http.ResponseWriter, r *http.Request) {
        var body struct {
            Query string `json:"query"`
        }
        json.NewDecoder(r.Body).Decode(&body)
        if body.Query == "" {
            w.WriteHeader(http.StatusBadRequest)
            return
        }
        json.NewEncoder(w).Encode([]map[string]any{{"key": "E-1"}})
    })
    links := map[string][]map[string]any{
        "E-1": {
            {"type": map[string]string{"id": "subtask"}, "direction": "outward", "object": map[string]string{"key": "E-2"}},
            {"type": map[string]string{"id": "relates"}, "direction": "outward", "object": map[string]string{"key": "X-9"}},
            {"type": map[string]string{"id": "subtask"}, "direction": "inward", "object": map[string]string{"key": "X-8"}},
        },
        "E-2": {},
    }
    mux.HandleFunc("/v2/issues/E-1/links", func(w http.ResponseWriter, _ *http.Request) {
        json.NewEncoder(w).Encode(links["E-1"])
    })
    mux.HandleFunc("/v2/issues/E-2/links", func(w http.ResponseWriter, _ *http.Request) {
        json.NewEncoder(w).Encode(links["E-2"])
    })
    c, _ := testClient(t, mux)

    keys, err := c.SelectIssues(context.Background(), "epic: A", true)
    if err != nil { t.Fatal(err) }
    if len(keys) != 2 || keys[0] != "E-1" || keys[1] != "E-2" {
        t.Fatalf("keys = %v", keys)
    }

    flat, err := c.SelectIssues(context.Background(), "epic: A", false)
    if err != nil { t.Fatal(err) }
    if len(flat) != 1 || flat[0] != "E-1" {
        t.Fatalf("unscanned keys = %v", flat)
    }
}
