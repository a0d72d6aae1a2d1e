package config

import "errors"

var (
	// ErrConfigVersionTooNew is returned when a config file has a version
	// newer than what this binary supports.
	ErrConfigVersionTooNew = errors.New("config version too new")

	// ErrInvalidWellKnownHost is returned when a configured bootstrap host
	// is empty.
	ErrInvalidWellKnownHost = errors.New("invalid well-known host")
)
