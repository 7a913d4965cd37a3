package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for catalog lookups.
var (
	ErrMetricNotFound = errors.New("metric not found")
	ErrModelNotFound  = errors.New("model not found")
	ErrJobNotFound    = errors.New("job not found")
)

// MaterializationError reports a schema mismatch between a model definition
// and the rows its source query actually returned. It aborts the refresh
// before any delete or insert happens.
type MaterializationError struct {
	ModelID string
	Column  string
	Reason  string
}

func (e *MaterializationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("materialization failed for model %s: column %q %s", e.ModelID, e.Column, e.Reason)
	}
	return fmt.Sprintf("materialization failed for model %s: %s", e.ModelID, e.Reason)
}

// ValidationError reports a statement that failed the read-only SQL check.
// Pattern names the denylist entry that matched.
type ValidationError struct {
	Pattern   string
	Statement string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("statement rejected: matched mutating keyword %q", e.Pattern)
}
