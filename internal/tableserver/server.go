// Package tableserver serves the trace table REST dialect on top of an
// entity store. It backs the emulator binary and the cloud reader tests.
package tableserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/tablestore"
)

const defaultTop = 1000

var tableNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{0,62}$`)

// EntityStore is the narrow store contract required by the table API.
type EntityStore interface {
	InsertEntities(ctx context.Context, table string, entities []model.Entity) error
	QueryEntities(ctx context.Context, q model.EntityQuery) (model.EntityPage, error)
	TableRowCounts(ctx context.Context) (map[string]int64, error)
}

// Server provides the table service HTTP API.
type Server struct {
	addr      string
	store     EntityStore
	keys      map[string][]byte
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	now       func() time.Time
}

// NewServer creates a table server. accounts maps account names to base64
// shared keys.
func NewServer(addr string, store EntityStore, accounts map[string]string) (*Server, error) {
	if addr == "" {
		addr = "127.0.0.1:10002"
	}
	keys := make(map[string][]byte, len(accounts))
	for name, key := range accounts {
		b, err := tablestore.DecodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("tableserver: account %q: %w", name, err)
		}
		keys[name] = b
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		store:     store,
		keys:      keys,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		now:       time.Now,
	}, nil
}

// Handler returns the route tree without binding a listener.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)

	tables := r.Group("/tables", s.authenticate)
	tables.GET("/:table/entities", s.handleQuery)
	tables.POST("/:table/entities", s.handleInsert)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address. After Start it is the bound address.
func (s *Server) Addr() string {
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) authenticate(c *gin.Context) {
	account, err := tablestore.Verify(c.Request, func(name string) ([]byte, bool) {
		k, ok := s.keys[name]
		return k, ok
	}, s.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.Set("account", account)
	c.Next()
}

// storeTable namespaces table per account so accounts never share rows.
func storeTable(c *gin.Context) (string, bool) {
	table := c.Param("table")
	if !tableNameRE.MatchString(table) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table name"})
		return "", false
	}
	return c.GetString("account") + "/" + table, true
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.TableRowCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime":       time.Since(s.startTime).String(),
		"tables":       len(counts),
		"entity_count": total,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	table, ok := storeTable(c)
	if !ok {
		return
	}
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q.Table = table

	page, err := s.store.QueryEntities(c.Request.Context(), q)
	if err != nil {
		log.Printf("tableserver: query %s: %v", table, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	values := make([]json.RawMessage, 0, len(page.Entities))
	for _, e := range page.Entities {
		b, err := tablestore.MarshalEntity(e)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
			return
		}
		values = append(values, b)
	}
	if token := tablestore.EncodeToken(page.Next); token != "" {
		c.Header(tablestore.ContinuationHeader, token)
	}
	c.JSON(http.StatusOK, gin.H{"value": values})
}

func parseQuery(c *gin.Context) (model.EntityQuery, error) {
	q := model.EntityQuery{
		PartitionKey: c.Query("partition"),
		Top:          defaultTop,
	}
	var err error
	if v := c.Query("from"); v != "" {
		if q.From, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return q, errors.New("from must be RFC3339")
		}
	}
	if v := c.Query("to"); v != "" {
		if q.To, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return q, errors.New("to must be RFC3339")
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return q, errors.New("from must not be after to")
	}
	switch strings.ToLower(c.DefaultQuery("order", "asc")) {
	case "asc":
	case "desc":
		q.Descending = true
	default:
		return q, errors.New("order must be asc or desc")
	}
	if v := c.Query("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return q, errors.New("top must be a positive integer")
		}
		q.Top = n
	}
	if q.After, err = tablestore.DecodeToken(c.Query("continuation")); err != nil {
		return q, errors.New("invalid continuation token")
	}
	return q, nil
}

func (s *Server) handleInsert(c *gin.Context) {
	table, ok := storeTable(c)
	if !ok {
		return
	}
	var body struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	entities := make([]model.Entity, 0, len(body.Value))
	for i, raw := range body.Value {
		e, err := tablestore.UnmarshalEntity(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("entity %d: %v", i, err)})
			return
		}
		if e.RowKey == "" {
			e.RowKey = uuid.NewString()
		}
		entities = append(entities, e)
	}

	if err := s.store.InsertEntities(c.Request.Context(), table, entities); err != nil {
		log.Printf("tableserver: insert %s: %v", table, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "insert failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"inserted": len(entities)})
}
