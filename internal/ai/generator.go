// Package ai is the boundary to the text-generation model used for lecture notes.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reason classifies a generation failure
type Reason string

const (
	ReasonDisabled Reason = "disabled"
	ReasonQuota    Reason = "quota"
	ReasonNetwork  Reason = "network"
	ReasonParse    Reason = "parse"
	ReasonUnknown  Reason = "unknown"
)

// ErrDisabled is returned when no model is configured
var ErrDisabled = errors.New("text generation is not configured")

// ErrEmptyOutput is returned when the model produced only whitespace
var ErrEmptyOutput = errors.New("model returned empty output")

// GenerationError is the only error type a Generator in this package returns.
// Callers treat it as "no update this round".
type GenerationError struct {
	Reason Reason
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Disabled is the default generator; every call fails with ReasonDisabled
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, prompt string) (string, error) {
	return "", &GenerationError{Reason: ReasonDisabled, Err: ErrDisabled}
}

// Func adapts a plain function into a Generator. Errors that are not already
// a *GenerationError are wrapped, and blank output is a parse failure.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := f(ctx, prompt)
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return "", err
		}
		reason := ReasonUnknown
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			reason = ReasonNetwork
		}
		return "", &GenerationError{Reason: reason, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &GenerationError{Reason: ReasonParse, Err: ErrEmptyOutput}
	}
	return text, nil
}

// IsDisabled reports whether err came from the Disabled generator
func IsDisabled(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Reason == ReasonDisabled
}
