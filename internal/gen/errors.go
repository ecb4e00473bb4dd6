package gen

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidate means the service answered without any candidate.
	ErrNoCandidate = errors.New("no candidates in response")
	// ErrNoImage means the candidate carried neither an image nor text.
	ErrNoImage = errors.New("no image or text in response")
	// ErrNotConfigured is returned by a nil or keyless client.
	ErrNotConfigured = errors.New("generation client not configured")
)

// TextResponseError means the model answered with text instead of an image,
// even after the image-only retry.
type TextResponseError struct {
	Text string
}

func (e *TextResponseError) Error() string {
	return "model returned text instead of image"
}

// ServiceError is an upstream or transport failure.
type ServiceError struct {
	Status  int // HTTP status from upstream, 0 if the call never completed
	Details string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generation service error %d: %s", e.Status, e.Details)
	}
	return "generation service error: " + e.Details
}

func (e *ServiceError) Unwrap() error { return e.Err }
