package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ValidationError is a bad or missing client input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConfigError means the server lacks a credential or identifier it needs.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string { return "Missing " + e.Missing }

// UpstreamError is a non-timeout failure reported by the search or generation API.
type UpstreamError struct {
	Status  int // 0 when the upstream gave none
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
	}
	return "upstream: " + e.Message
}

// HTTPStatus is the status the handler should answer with.
func (e *UpstreamError) HTTPStatus() int {
	if e.Status >= 400 && e.Status <= 599 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// DeadlineError marks a stage aborted by the request deadline or its own
// sub-budget.
type DeadlineError struct {
	Stage string
	Err   error
}

func (e *DeadlineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: deadline exceeded: %v", e.Stage, e.Err)
	}
	return e.Stage + ": deadline exceeded"
}

func (e *DeadlineError) Unwrap() error { return e.Err }

// IsDeadline reports whether err is (or wraps) a DeadlineError.
func IsDeadline(err error) bool {
	var de *DeadlineError
	return errors.As(err, &de)
}

// classify turns a transport error from stage into a DeadlineError when it is
// a timeout or cancellation, and into an UpstreamError otherwise. Errors that
// are already typed pass through.
func classify(ctx context.Context, stage string, err error) error {
	if err == nil {
		return nil
	}
	var (
		de *DeadlineError
		ue *UpstreamError
	)
	if errors.As(err, &de) {
		return err
	}
	if isTimeout(err) || ctx.Err() != nil {
		return &DeadlineError{Stage: stage, Err: err}
	}
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Message: err.Error()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
