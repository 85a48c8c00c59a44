package scheduler

import (
	"fmt"
	"time"
)

// Strategy selects the new assignee of an escalated task
type Strategy string

const (
	// StrategyFirst picks the first eligible role holder in user id order
	StrategyFirst Strategy = "first"
	// StrategyLeastLoaded picks the eligible holder with the fewest open tasks
	StrategyLeastLoaded Strategy = "least_loaded"
)

// Config controls the SLA and escalation phases of a tick
type Config struct {
	SLAEnabled          bool
	EscalationEnabled   bool
	EscalationGrace     time.Duration
	EscalationRole      string
	EscalationExtension time.Duration
	Strategy            Strategy
	BatchSize           int
	Workers             int
	MaxConflictRetries  int
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		SLAEnabled:          true,
		EscalationEnabled:   true,
		EscalationGrace:     24 * time.Hour,
		EscalationRole:      "ESCALATION_MANAGER",
		EscalationExtension: 24 * time.Hour,
		Strategy:            StrategyFirst,
		BatchSize:           100,
		Workers:             1,
		MaxConflictRetries:  3,
	}
}

// Validate rejects settings the scheduler cannot run with
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("max conflict retries must not be negative")
	}
	if c.EscalationGrace < 0 || c.EscalationExtension <= 0 {
		return fmt.Errorf("escalation grace must not be negative and extension must be positive")
	}
	switch c.Strategy {
	case StrategyFirst, StrategyLeastLoaded:
	default:
		return fmt.Errorf("unknown escalation strategy %q", c.Strategy)
	}
	return nil
}
