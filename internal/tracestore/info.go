// Package tracestore opens connections to a trace store. A connection owns
// one reader per trace category over a local directory tree or a cloud
// table account.
package tracestore

import (
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/tablestore"
)

// Kind identifies the backend a ConnectionInfo describes.
type Kind int

const (
	KindLocal Kind = iota + 1
	KindCloud
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindCloud:
		return "cloud"
	default:
		return "unknown"
	}
}

// ConnectionInfo describes where a trace store lives. It is implemented by
// LocalInfo and CloudInfo.
type ConnectionInfo interface {
	Kind() Kind
	Validate() error
}

// LocalInfo locates trace files on disk. A relative LogRootDirectory is
// resolved under TestRootDirectory. When WorkingDirectory is set, files are
// staged there before reading.
type LocalInfo struct {
	TestRootDirectory string
	LogRootDirectory  string
	WorkingDirectory  string
}

// Kind implements ConnectionInfo.
func (LocalInfo) Kind() Kind { return KindLocal }

// Validate implements ConnectionInfo.
func (i LocalInfo) Validate() error {
	if strings.TrimSpace(i.LogRootDirectory) == "" {
		return missing(KindLocal, "LogRootDirectory")
	}
	return nil
}

// LogRoot returns the resolved log root directory.
func (i LocalInfo) LogRoot() string {
	if filepath.IsAbs(i.LogRootDirectory) || i.TestRootDirectory == "" {
		return filepath.Clean(i.LogRootDirectory)
	}
	return filepath.Join(i.TestRootDirectory, i.LogRootDirectory)
}

// CloudInfo locates trace tables in a table service account.
type CloudInfo struct {
	AccountName     string
	AccountKey      Secret
	TableNamePrefix string
	DeploymentID    string
	// Endpoint is the table service base URL, e.g. https://acct.tables.example.net.
	Endpoint string
}

// Kind implements ConnectionInfo.
func (CloudInfo) Kind() Kind { return KindCloud }

// Validate implements ConnectionInfo.
func (i CloudInfo) Validate() error {
	switch {
	case strings.TrimSpace(i.AccountName) == "":
		return missing(KindCloud, "AccountName")
	case i.AccountKey.IsZero():
		return missing(KindCloud, "AccountKey")
	case strings.TrimSpace(i.DeploymentID) == "":
		return missing(KindCloud, "DeploymentID")
	case strings.TrimSpace(i.Endpoint) == "":
		return missing(KindCloud, "Endpoint")
	}
	if _, err := tablestore.DecodeKey(i.AccountKey.Reveal()); err != nil {
		return goerr.Wrap(model.ErrInvalidConnectionInfo, "account key is not valid base64",
			goerr.V("kind", KindCloud.String()), goerr.V("field", "AccountKey"))
	}
	return nil
}

func missing(kind Kind, field string) error {
	return goerr.Wrap(model.ErrInvalidConnectionInfo, "missing required field",
		goerr.V("kind", kind.String()), goerr.V("field", field))
}
