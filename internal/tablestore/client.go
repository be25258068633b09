// Package tablestore is a client for the trace table service: range queries
// over (partition, event time) with continuation-token pagination.
package tablestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 4 << 10
)

// Query selects one page of entities from a table.
type Query struct {
	Table        string
	PartitionKey string
	From         time.Time
	To           time.Time
	Descending   bool
	Top          int
	Continuation string
}

// Page is one page of raw entities. Continuation is "" on the last page.
type Page struct {
	Entities     [][]byte
	Continuation string
}

// Client is the table service contract used by the cloud table reader.
type Client interface {
	QueryEntities(ctx context.Context, q Query) (Page, error)
	InsertEntities(ctx context.Context, table string, entities []model.Entity) error
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tablestore: status %d: %s", e.Code, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// HTTPConfig holds HTTPClient parameters.
type HTTPConfig struct {
	Endpoint    string
	AccountName string
	AccountKey  string // base64
	HTTPClient  *http.Client
}

// HTTPClient talks to the table service REST API.
type HTTPClient struct {
	base    *url.URL
	account string
	key     []byte
	hc      *http.Client
	now     func() time.Time
}

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("tablestore: parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("tablestore: endpoint must use http:// or https://")
	}
	if base.Host == "" {
		return nil, errors.New("tablestore: endpoint missing host")
	}
	if strings.TrimSpace(cfg.AccountName) == "" {
		return nil, errors.New("tablestore: account name is required")
	}
	key, err := DecodeKey(cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultRequestTimeout}
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &HTTPClient{
		base:    base,
		account: cfg.AccountName,
		key:     key,
		hc:      hc,
		now:     time.Now,
	}, nil
}

// QueryEntities fetches one page. The time range is applied by the server.
func (c *HTTPClient) QueryEntities(ctx context.Context, q Query) (Page, error) {
	if strings.TrimSpace(q.Table) == "" {
		return Page{}, errors.New("tablestore: table is required")
	}

	params := url.Values{}
	if q.PartitionKey != "" {
		params.Set("partition", q.PartitionKey)
	}
	if !q.From.IsZero() {
		params.Set("from", q.From.UTC().Format(time.RFC3339Nano))
	}
	if !q.To.IsZero() {
		params.Set("to", q.To.UTC().Format(time.RFC3339Nano))
	}
	if q.Descending {
		params.Set("order", "desc")
	} else {
		params.Set("order", "asc")
	}
	if q.Top > 0 {
		params.Set("top", strconv.Itoa(q.Top))
	}
	if q.Continuation != "" {
		params.Set("continuation", q.Continuation)
	}

	req, err := c.newRequest(ctx, http.MethodGet, q.Table, params, nil)
	if err != nil {
		return Page{}, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("tablestore: query %s: %w", q.Table, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return Page{}, err
	}

	var body struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Page{}, fmt.Errorf("tablestore: decode page: %w", err)
	}
	page := Page{
		Entities:     make([][]byte, len(body.Value)),
		Continuation: resp.Header.Get(ContinuationHeader),
	}
	for i, v := range body.Value {
		page.Entities[i] = v
	}
	return page, nil
}

// InsertEntities writes entities to table.
func (c *HTTPClient) InsertEntities(ctx context.Context, table string, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	values := make([]json.RawMessage, 0, len(entities))
	for _, e := range entities {
		b, err := MarshalEntity(e)
		if err != nil {
			return fmt.Errorf("tablestore: marshal entity: %w", err)
		}
		values = append(values, b)
	}
	payload, err := json.Marshal(struct {
		Value []json.RawMessage `json:"value"`
	}{Value: values})
	if err != nil {
		return fmt.Errorf("tablestore: marshal batch: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, nil, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("tablestore: insert %s: %w", table, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, table string, params url.Values, body []byte) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + "/tables/" + table + "/entities"
	u.RawPath = c.base.EscapedPath() + "/tables/" + url.PathEscape(table) + "/entities"
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("tablestore: build request: %w", err)
	}
	Authorize(req, c.account, c.key, c.now())
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	text := strings.TrimSpace(string(msg))
	if json.Unmarshal(msg, &body) == nil && body.Error != "" {
		text = body.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: text}
}
