package types

import (
	"errors"
	"fmt"
)

// ErrBuildInProgress is returned when a build is triggered while another one
// is still running. Builds are mutually exclusive.
var ErrBuildInProgress = errors.New("index build already in progress")

// ConfigError is a fatal startup error: the configured parameters cannot
// produce a working pipeline.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// BuildError aborts an index build. The previously published generation
// stays intact and queryable.
type BuildError struct {
	Stage string
	Err   error
}

func (e BuildError) Error() string {
	return fmt.Sprintf("index build failed at %s: %v", e.Stage, e.Err)
}

func (e BuildError) Unwrap() error { return e.Err }

// RetrievalError is scoped to a single request; the process and the shared
// index stay healthy.
type RetrievalError struct {
	Err error
}

func (e RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e RetrievalError) Unwrap() error { return e.Err }

// GenerationError is a provider failure or timeout during answer generation,
// surfaced to the caller of that one request.
type GenerationError struct {
	Err error
}

func (e GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e GenerationError) Unwrap() error { return e.Err }
