package alarm

import (
	"fmt"
)

// State is the alarm lifecycle state.
//
// Transitions: OK → TRIGGERED on breach; TRIGGERED → ACKNOWLEDGED by
// operator action; TRIGGERED/ACKNOWLEDGED → OK when the condition clears;
// ACKNOWLEDGED → TRIGGERED on re-breach (the acknowledgement is reset).
type State string

const (
	StateOK           State = "OK"
	StateTriggered    State = "TRIGGERED"
	StateAcknowledged State = "ACKNOWLEDGED"
)

// Operator compares the computed metric to the threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

// Condition is an operator/threshold pair evaluated against the metric.
type Condition struct {
	Op        Operator `json:"op"`
	Threshold int      `json:"threshold"`
}

// Breached reports whether a metric value violates the condition.
func (c Condition) Breached(metric int) bool {
	switch c.Op {
	case OpGreater:
		return metric > c.Threshold
	case OpLess:
		return metric < c.Threshold
	case OpGreaterEqual:
		return metric >= c.Threshold
	case OpLessEqual:
		return metric <= c.Threshold
	case OpEqual:
		return metric == c.Threshold
	default:
		return false
	}
}

// Validate checks the operator and threshold
func (c Condition) Validate() error {
	switch c.Op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual:
	default:
		return fmt.Errorf("unsupported condition operator %q", c.Op)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("condition threshold must be non-negative")
	}
	return nil
}

// ChannelType is the closed set of supported notification channels.
type ChannelType string

const (
	ChannelEmail     ChannelType = "email"
	ChannelSlack     ChannelType = "slack"
	ChannelWebhook   ChannelType = "webhook"
	ChannelPagerDuty ChannelType = "pagerduty"
	ChannelOpsGenie  ChannelType = "opsgenie"
)

// Channel describes where one notification goes: an email address, a
// slack channel, a webhook URL, an integration key.
type Channel struct {
	Type        ChannelType       `json:"type"`
	Destination string            `json:"destination"`
	Config      map[string]string `json:"config,omitempty"`
}

// Alarm is a saved query re-evaluated on a schedule against a threshold.
// Created and edited through the external API; State and the evaluation
// bookkeeping fields are mutated only by the Engine (Acknowledge being
// the one operator-driven exception).
type Alarm struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Query     string    `json:"query"`
	Condition Condition `json:"condition"`

	// TimeWindowMinutes is a sliding window ending at "now", re-evaluated
	// each cycle.
	TimeWindowMinutes int `json:"time_window_minutes"`

	NotificationChannels []Channel `json:"notification_channels,omitempty"`
	Enabled              bool      `json:"enabled"`

	// ThrottleWindowMinutes caps notifications per sliding window; 0
	// disables throttling. MaxNotificationsPerWindow defaults to 1.
	ThrottleWindowMinutes     int `json:"throttle_window_minutes,omitempty"`
	MaxNotificationsPerWindow int `json:"max_notifications_per_window,omitempty"`

	State                   State `json:"state"`
	LastEvaluatedAt         int64 `json:"last_evaluated_at,omitempty"`
	LastTriggeredAt         int64 `json:"last_triggered_at,omitempty"`
	ConsecutiveTriggerCount int   `json:"consecutive_trigger_count"`
}

// Validate checks alarm invariants before save
func (a *Alarm) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("alarm name is required")
	}
	if a.Query == "" {
		return fmt.Errorf("alarm query is required")
	}
	if err := a.Condition.Validate(); err != nil {
		return err
	}
	if a.TimeWindowMinutes <= 0 {
		return fmt.Errorf("alarm time window must be a positive number of minutes")
	}
	return nil
}

// Verdict is the outcome of a dry-run evaluation: the computed metric
// and whether it breaches the condition. Dry runs never mutate state or
// send notifications.
type Verdict struct {
	Metric   int  `json:"metric"`
	Breached bool `json:"breached"`
}
