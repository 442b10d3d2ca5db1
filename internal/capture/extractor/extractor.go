// Package extractor models the opaque free-text extraction service (§6,
// "Extractor service (consumed)") as a narrow Go interface, the way the
// teacher treats its AI classification step in
// internal/inbox/services/ai_processor.go as a swappable
// types.ClassifierEngine rather than baking a specific model into the
// caller.
package extractor

import (
	"context"
	"time"
)

// Deadline carries the extractor's inferred deadline, if any.
type Deadline struct {
	DateTime time.Time
	Kind     string // "time" | "date"
	Source   string
}

// ScheduledTime carries an inferred explicit start preference.
type ScheduledTime struct {
	DateTime  time.Time
	Precision string
	Source    string
}

// ExecutionWindow carries an inferred window or "before X" relation.
type ExecutionWindow struct {
	Relation string // "within" | "before_deadline"
	Start    time.Time
	End      time.Time
	Source   string
}

// TimePreferences carries coarse, non-binding hints.
type TimePreferences struct {
	TimeOfDay string
	Day       string
}

// Importance carries the extractor's inferred importance facets.
type Importance struct {
	Urgency           int
	Impact            int
	ReschedulePenalty int
	Blocking          bool
	Rationale         string
}

// Flexibility carries the extractor's inferred flexibility facets.
type Flexibility struct {
	CannotOverlap       bool
	StartFlexibility    string
	DurationFlexibility string
	MinChunkMinutes     int
	MaxSplits           int
}

// Result is the structured extraction returned for one piece of free text.
type Result struct {
	Title             string
	EstimatedMinutes  int
	Deadline          *Deadline
	ScheduledTime     *ScheduledTime
	ExecutionWindow   *ExecutionWindow
	TimePreferences   TimePreferences
	Importance        Importance
	Flexibility       Flexibility
	Kind              string
	Missing           []string
	ClarifyingQuestion string
	Notes             []string
}

// Service extracts structured fields from free-form capture text. The
// engine maps the result onto a Capture's fields; nothing else about the
// implementation is assumed (§6).
type Service interface {
	Extract(ctx context.Context, text string, timezone string, now time.Time) (Result, error)
}

// NoOp is a Service that performs no extraction, used for tests and for
// deployments with no configured Extractor endpoint.
type NoOp struct{}

func (NoOp) Extract(ctx context.Context, text string, timezone string, now time.Time) (Result, error) {
	return Result{Title: text, EstimatedMinutes: 0}, nil
}
