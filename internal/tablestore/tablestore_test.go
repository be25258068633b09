package tablestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(HTTPConfig{Endpoint: srv.URL, AccountName: "acct", AccountKey: testKey})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func lookupTestKey(account string) ([]byte, bool) {
	if account != "acct" {
		return nil, false
	}
	k, _ := DecodeKey(testKey)
	return k, true
}

func TestQueryEntitiesSignsAndEncodesRange(t *testing.T) {
	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := Verify(r, lookupTestKey, time.Now()); err != nil {
			t.Errorf("Verify: %v", err)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/tables/prefixOperationalTraces/entities" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("partition") != "dep1" || q.Get("order") != "desc" || q.Get("top") != "50" {
			t.Errorf("query = %v", q)
		}
		if q.Get("from") != from.Format(time.RFC3339Nano) || q.Get("to") != to.Format(time.RFC3339Nano) {
			t.Errorf("range = %s..%s", q.Get("from"), q.Get("to"))
		}
		if q.Get("continuation") != "tok1" {
			t.Errorf("continuation = %q", q.Get("continuation"))
		}
		w.Header().Set(ContinuationHeader, "tok2")
		w.Write([]byte(`{"value":[{"EventType":"NodeUp"},{"EventType":"NodeDown"}]}`))
	})

	page, err := c.QueryEntities(context.Background(), Query{
		Table: "prefixOperationalTraces", PartitionKey: "dep1",
		From: from, To: to, Descending: true, Top: 50, Continuation: "tok1",
	})
	if err != nil {
		t.Fatalf("QueryEntities: %v", err)
	}
	if len(page.Entities) != 2 || page.Continuation != "tok2" {
		t.Fatalf("page = %d entities, continuation %q", len(page.Entities), page.Continuation)
	}
	if !strings.Contains(string(page.Entities[1]), "NodeDown") {
		t.Errorf("second entity = %s", page.Entities[1])
	}
}

func TestQueryEntitiesStatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		code      int
		temporary bool
	}{
		{name: "server error", code: http.StatusServiceUnavailable, temporary: true},
		{name: "throttled", code: http.StatusTooManyRequests, temporary: true},
		{name: "forbidden", code: http.StatusForbidden, temporary: false},
		{name: "bad request", code: http.StatusBadRequest, temporary: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(`{"error":"nope"}`))
			})
			_, err := c.QueryEntities(context.Background(), Query{Table: "t"})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StatusError", err)
			}
			if se.Code != tt.code || se.Message != "nope" || se.Temporary() != tt.temporary {
				t.Errorf("StatusError = %+v temporary=%v", se, se.Temporary())
			}
		})
	}
}

func TestInsertEntitiesSendsFlatEntities(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 5, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body struct {
			Value []json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Value) != 1 {
			t.Fatalf("value len = %d", len(body.Value))
		}
		e, err := UnmarshalEntity(body.Value[0])
		if err != nil {
			t.Fatalf("UnmarshalEntity: %v", err)
		}
		if !e.Timestamp.Equal(ts) || e.EventType != "NodeUp" || e.Properties["node"] != "n1" {
			t.Errorf("entity = %+v", e)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.InsertEntities(context.Background(), "t", []model.Entity{{
		PartitionKey: "dep1", RowKey: "r1", Timestamp: ts, EventType: "NodeUp",
		Properties: map[string]string{"node": "n1"},
	}})
	if err != nil {
		t.Fatalf("InsertEntities: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	key, _ := DecodeKey(testKey)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	build := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/tables/t/entities", nil)
		Authorize(r, "acct", key, now)
		return r
	}

	if _, err := Verify(build(), lookupTestKey, now); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := map[string]func(r *http.Request) time.Time{
		"no header": func(r *http.Request) time.Time {
			r.Header.Del("Authorization")
			return now
		},
		"skewed clock": func(r *http.Request) time.Time {
			return now.Add(MaxClockSkew + time.Minute)
		},
		"tampered path": func(r *http.Request) time.Time {
			r.URL.Path = "/tables/other/entities"
			return now
		},
		"unknown account": func(r *http.Request) time.Time {
			r.Header.Set("Authorization", strings.Replace(r.Header.Get("Authorization"), "acct:", "ghost:", 1))
			return now
		},
	}
	for name, mutate := range cases {
		r := build()
		at := mutate(r)
		if _, err := Verify(r, lookupTestKey, at); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	c := &model.EntityCursor{TimestampNanos: 1714564800000000001, RowKey: "r/1"}
	got, err := DecodeToken(EncodeToken(c))
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if *got != *c {
		t.Errorf("cursor = %+v, want %+v", got, c)
	}
	if EncodeToken(nil) != "" {
		t.Error("nil cursor should encode to empty token")
	}
	if _, err := DecodeToken("%%%"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestNewHTTPClientValidates(t *testing.T) {
	cases := map[string]HTTPConfig{
		"bad scheme":  {Endpoint: "ftp://x", AccountName: "a", AccountKey: testKey},
		"no account":  {Endpoint: "http://x", AccountKey: testKey},
		"bad key":     {Endpoint: "http://x", AccountName: "a", AccountKey: "not base64!"},
		"no endpoint": {AccountName: "a", AccountKey: testKey},
	}
	for name, cfg := range cases {
		if _, err := NewHTTPClient(cfg); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
