package model

import "errors"

var (
	// ErrInvalidRange is returned when a duration has start after end.
	ErrInvalidRange = errors.New("invalid range")
	// ErrFilterConditionAlreadyExists is returned when a record type is
	// registered twice with different rules.
	ErrFilterConditionAlreadyExists = errors.New("filter condition already exists")
	// ErrMalformedRecord marks a raw entry of a recognized type that cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrBackendUnavailable is returned when a page or file fetch keeps failing.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrCancelled is returned when the caller cancels a scan.
	ErrCancelled = errors.New("cancelled")
	// ErrReaderBusy is returned when a reader is already running a scan.
	ErrReaderBusy = errors.New("reader busy")
	// ErrReaderClosed is returned by readers of a closed connection.
	ErrReaderClosed = errors.New("reader closed")
	// ErrInvalidConnectionInfo is returned when connection information lacks a required field.
	ErrInvalidConnectionInfo = errors.New("invalid connection information")
)
