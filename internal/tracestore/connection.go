package tracestore

import (
	"net/http"
	"os"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/logging"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/reader"
	"github.com/tinytelemetry/tracestore/internal/tablestore"
)

// Config holds connection tuning.
type Config struct {
	Reader reader.Config
	// HTTPClient is used for cloud connections. Nil uses a client with a
	// 30s timeout.
	HTTPClient *http.Client
}

// Connection is an open trace store. Its readers share the connection info
// and log provider and stop working once the connection is closed.
type Connection struct {
	info    ConnectionInfo
	events  *reader.Reader
	queries *reader.Reader
	log     logging.Logger

	closeOnce sync.Once
}

// Open validates info and builds both category readers. On error no
// connection is returned.
func Open(info ConnectionInfo, provider logging.Provider, conf ...Config) (*Connection, error) {
	if info == nil {
		return nil, goerr.Wrap(model.ErrInvalidConnectionInfo, "connection info is nil")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	var c Config
	if len(conf) > 0 {
		c = conf[0]
	}
	if provider == nil {
		provider = logging.Discard()
	}

	backend, err := newBackend(info, c)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		info:    info,
		events:  reader.NewEventStoreReader(backend, provider.CreateLogger("tracestore.events"), c.Reader),
		queries: reader.NewQueryStoreReader(backend, provider.CreateLogger("tracestore.queries"), c.Reader),
		log:     provider.CreateLogger("tracestore"),
	}
	conn.log.Infof("tracestore: opened %s connection to %s", info.Kind(), backend.Describe())
	return conn, nil
}

func newBackend(info ConnectionInfo, c Config) (reader.Backend, error) {
	switch in := info.(type) {
	case LocalInfo:
		return localBackend(in)
	case *LocalInfo:
		return localBackend(*in)
	case CloudInfo:
		return cloudBackend(in, c)
	case *CloudInfo:
		return cloudBackend(*in, c)
	default:
		return nil, goerr.Wrap(model.ErrInvalidConnectionInfo, "unsupported connection kind",
			goerr.V("kind", info.Kind().String()))
	}
}

func localBackend(in LocalInfo) (reader.Backend, error) {
	if in.WorkingDirectory != "" {
		if err := os.MkdirAll(in.WorkingDirectory, 0755); err != nil {
			return nil, goerr.Wrap(err, "failed to create working directory",
				goerr.V("path", in.WorkingDirectory))
		}
	}
	return reader.LocalSource{LogRoot: in.LogRoot(), WorkingDirectory: in.WorkingDirectory}, nil
}

func cloudBackend(in CloudInfo, c Config) (reader.Backend, error) {
	client, err := tablestore.NewHTTPClient(tablestore.HTTPConfig{
		Endpoint:    in.Endpoint,
		AccountName: in.AccountName,
		AccountKey:  in.AccountKey.Reveal(),
		HTTPClient:  c.HTTPClient,
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidConnectionInfo, "failed to build table client",
			goerr.V("cause", err.Error()))
	}
	return reader.TableSource{
		Client:          client,
		TableNamePrefix: in.TableNamePrefix,
		DeploymentID:    in.DeploymentID,
	}, nil
}

// EventStoreReader returns the operational event reader.
func (c *Connection) EventStoreReader() reader.StoreReader { return c.events }

// QueryStoreReader returns the query store reader.
func (c *Connection) QueryStoreReader() reader.StoreReader { return c.queries }

// Info returns the connection information the connection was opened with.
func (c *Connection) Info() ConnectionInfo { return c.info }

// Close releases the connection. Later reads fail with model.ErrReaderClosed.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.events.Close()
		c.queries.Close()
		c.log.Infof("tracestore: closed %s connection", c.info.Kind())
	})
	return nil
}
