package crawl

import (
	"errors"
	"fmt"
)

// ErrExtraction indicates a selector or structure assumption failed for
// one page or item. Extraction continues with the next item.
type ErrExtraction struct {
	Err error
}

func (e ErrExtraction) Error() string {
	return fmt.Errorf("extraction: %w", e.Err).Error()
}

func (e ErrExtraction) Unwrap() error {
	return e.Err
}

// ErrInteraction indicates a hover or click failure during mega-menu or
// pagination handling. Callers break the surrounding loop early instead
// of propagating.
type ErrInteraction struct {
	Err error
}

func (e ErrInteraction) Error() string {
	return fmt.Errorf("interaction: %w", e.Err).Error()
}

func (e ErrInteraction) Unwrap() error {
	return e.Err
}

// ErrRun indicates the browser engine failed to complete a run. The job
// transitions to failed; there is no automatic retry.
type ErrRun struct {
	Err error
}

func (e ErrRun) Error() string {
	return fmt.Errorf("run: %w", e.Err).Error()
}

func (e ErrRun) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var extraction ErrExtraction
	if errors.As(err, &extraction) {
		return "extraction"
	}
	var interaction ErrInteraction
	if errors.As(err, &interaction) {
		return "interaction"
	}
	var run ErrRun
	if errors.As(err, &run) {
		return "run"
	}
	return "other"
}
