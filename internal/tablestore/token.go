package tablestore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/tinytelemetry/tracestore/internal/model"
)

// EncodeToken renders a page cursor as an opaque continuation token.
// A nil cursor encodes to "".
func EncodeToken(c *model.EntityCursor) string {
	if c == nil {
		return ""
	}
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeToken parses a token produced by EncodeToken. "" decodes to nil.
func DecodeToken(token string) (*model.EntityCursor, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("tablestore: decode continuation token: %w", err)
	}
	var c model.EntityCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("tablestore: parse continuation token: %w", err)
	}
	return &c, nil
}
