package api

import (
	"fmt"
	"time"
)

// Frequency is the declared evaluation cadence of a contract.
type Frequency string

const (
	FrequencyAdHoc   Frequency = "ad-hoc"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency validates s. An empty string defaults to ad-hoc.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case "":
		return FrequencyAdHoc, nil
	case FrequencyAdHoc, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// Window returns the implicit look-back window used when evaluating an open
// contract. Monthly is a fixed 30 days, not calendar aware. Ad-hoc has no
// window (zero).
func (f Frequency) Window() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Next returns the next run date after a run at from.
// Ad-hoc contracts are due again immediately.
func (f Frequency) Next(from time.Time) time.Time {
	return from.Add(f.Window())
}

// Contract is a stored behavioral rule. A contract with an empty
// TriggerEvent is "open" and is evaluated on a schedule instead of on
// events.
type Contract struct {
	ID               int64
	Name             string
	Description      string
	Frequency        Frequency
	TriggerEvent     string
	Conditions       string
	ViolationMessage string
	StartTime        time.Time
	EndTime          time.Time
	LastRunDate      time.Time
	NextRunDate      time.Time
	IsValid          bool
}

// IsOpen reports whether the contract has no trigger event.
func (c *Contract) IsOpen() bool {
	return c.TriggerEvent == ""
}

// ActiveAt reports whether now falls in [StartTime, EndTime). A zero
// StartTime means "since forever"; a zero EndTime means "never ends".
func (c *Contract) ActiveAt(now time.Time) bool {
	if !c.StartTime.IsZero() && now.Before(c.StartTime) {
		return false
	}
	if !c.EndTime.IsZero() && !now.Before(c.EndTime) {
		return false
	}
	return true
}

// DueAt reports whether an open contract should be swept at now.
func (c *Contract) DueAt(now time.Time) bool {
	return c.NextRunDate.IsZero() || !now.Before(c.NextRunDate)
}

// MarkRun records an evaluation at 'at' and schedules the next one.
func (c *Contract) MarkRun(at time.Time) {
	c.LastRunDate = at
	c.NextRunDate = c.Frequency.Next(at)
}

// ViolationEvent builds the synthetic event appended when the contract is
// violated.
func (c *Contract) ViolationEvent(at time.Time) Event {
	desc := c.ViolationMessage
	if desc == "" {
		desc = fmt.Sprintf("Contract: %s rendered invalid", c.Name)
	}
	return NewEvent(EventTypeContractInvalidation, at, desc, "contracts", "notification")
}

// QueueStats is the durable cursor of a named queue consumer.
type QueueStats struct {
	Name           string
	LastConsumedID int64
}
