// Package decay computes exponentially time-decayed event scores.
//
// A score is weight * exp(-rate * elapsed) where elapsed is measured in
// seconds between the event and the evaluation time. The package is pure:
// nothing here reads the clock or touches shared state.
package decay

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidArgument reports numeric input the evaluator cannot score.
var ErrInvalidArgument = errors.New("invalid argument")

// Mode selects when decay is applied to a stored entry.
type Mode string

const (
	// ModeWrite evaluates decay once at ingestion; stored scores never change afterwards.
	ModeWrite Mode = "write"
	// ModeRead stores a time-invariant key and decays it on every read.
	ModeRead Mode = "read"
)

// ParseMode validates a configured mode; empty means ModeWrite.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeWrite:
		return ModeWrite, nil
	case ModeRead:
		return ModeRead, nil
	default:
		return "", fmt.Errorf("decay mode %q: %w", s, ErrInvalidArgument)
	}
}

// Score returns weight * exp(-rate * (evalTime - eventTime)).
//
// An event in the future relative to evalTime yields a score above weight;
// that is accepted, not clamped.
func Score(weight float64, eventTime, evalTime int64, rate float64) (float64, error) {
	if err := Validate(weight, rate); err != nil {
		return 0, err
	}
	elapsed := float64(evalTime - eventTime)
	score := weight * math.Exp(-rate*elapsed)
	if math.IsInf(score, 0) || math.IsNaN(score) {
		return 0, fmt.Errorf("score overflow for elapsed=%d: %w", evalTime-eventTime, ErrInvalidArgument)
	}
	return score, nil
}

// Key returns ln(weight) + rate*eventTime.
//
// For a fixed rate, exp(Key - rate*t) equals Score at evaluation time t, so
// ordering items by Key is the same as ordering them by their decayed score
// at any common evaluation time. Keys never need rewriting as time passes.
func Key(weight float64, eventTime int64, rate float64) (float64, error) {
	if err := Validate(weight, rate); err != nil {
		return 0, err
	}
	return math.Log(weight) + rate*float64(eventTime), nil
}

// FromKey converts a key produced by Key into the decayed score at evalTime.
func FromKey(key float64, evalTime int64, rate float64) float64 {
	return math.Exp(key - rate*float64(evalTime))
}

// Validate checks the inputs shared by Score and Key.
func Validate(weight, rate float64) error {
	switch {
	case math.IsNaN(weight) || math.IsInf(weight, 0):
		return fmt.Errorf("weight must be finite: %w", ErrInvalidArgument)
	case weight <= 0:
		return fmt.Errorf("weight must be > 0, got %g: %w", weight, ErrInvalidArgument)
	case math.IsNaN(rate) || math.IsInf(rate, 0):
		return fmt.Errorf("decay rate must be finite: %w", ErrInvalidArgument)
	case rate < 0:
		return fmt.Errorf("decay rate must be >= 0, got %g: %w", rate, ErrInvalidArgument)
	}
	return nil
}
