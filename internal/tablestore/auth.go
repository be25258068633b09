package tablestore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DateHeader carries the request time covered by the signature.
	DateHeader = "x-ts-date"
	// ContinuationHeader carries the token for the next page.
	ContinuationHeader = "X-Continuation-Token"
	// MaxClockSkew bounds the accepted difference between DateHeader and server time.
	MaxClockSkew = 15 * time.Minute

	authScheme = "SharedKey "
)

var (
	// ErrUnauthorized is returned by Verify for missing or invalid credentials.
	ErrUnauthorized = errors.New("tablestore: unauthorized")
)

// DecodeKey validates a base64 account key and returns its bytes.
func DecodeKey(key string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))
	if err != nil {
		return nil, fmt.Errorf("tablestore: account key is not base64: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("tablestore: account key is empty")
	}
	return b, nil
}

// Signature computes the SharedKey signature for one request.
func Signature(key []byte, account, method, date, path string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strings.ToUpper(method) + "\n" + date + "\n/" + account + path))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Authorize stamps req with the date and SharedKey authorization headers.
func Authorize(req *http.Request, account string, key []byte, now time.Time) {
	date := now.UTC().Format(http.TimeFormat)
	req.Header.Set(DateHeader, date)
	sig := Signature(key, account, req.Method, date, req.URL.EscapedPath())
	req.Header.Set("Authorization", authScheme+account+":"+sig)
}

// Verify checks the SharedKey headers of r. lookup returns the decoded key
// for an account. On success it returns the account name.
func Verify(r *http.Request, lookup func(account string) ([]byte, bool), now time.Time) (string, error) {
	auth := r.Header.Get("Authorization")
	cred, ok := strings.CutPrefix(auth, authScheme)
	if !ok {
		return "", fmt.Errorf("%w: missing SharedKey authorization", ErrUnauthorized)
	}
	account, sig, ok := strings.Cut(cred, ":")
	if !ok || account == "" || sig == "" {
		return "", fmt.Errorf("%w: malformed authorization", ErrUnauthorized)
	}

	date := r.Header.Get(DateHeader)
	at, err := http.ParseTime(date)
	if err != nil {
		return "", fmt.Errorf("%w: invalid %s header", ErrUnauthorized, DateHeader)
	}
	if skew := now.Sub(at); skew > MaxClockSkew || skew < -MaxClockSkew {
		return "", fmt.Errorf("%w: request date outside allowed skew", ErrUnauthorized)
	}

	key, ok := lookup(account)
	if !ok {
		return "", fmt.Errorf("%w: unknown account", ErrUnauthorized)
	}
	want := Signature(key, account, r.Method, date, r.URL.EscapedPath())
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return "", fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
	}
	return account, nil
}
