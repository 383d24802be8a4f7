package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of an alert threshold crossing.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Alert is a user-defined price threshold watch.
type Alert struct {
	ID              int64
	GroupID         int64
	Query           Query
	Direction       Direction
	Target          decimal.Decimal
	Cooldown        time.Duration
	LastTriggeredAt *time.Time
	Active          bool
}

// Crossed reports whether the current price satisfies the alert condition.
func (a Alert) Crossed(price decimal.Decimal) bool {
	switch a.Direction {
	case DirectionAbove:
		return price.GreaterThanOrEqual(a.Target)
	case DirectionBelow:
		return price.LessThanOrEqual(a.Target)
	}
	return false
}

// CooldownElapsed reports whether the alert is eligible to fire again.
// An alert that never fired is always eligible.
func (a Alert) CooldownElapsed(now time.Time) bool {
	if a.LastTriggeredAt == nil {
		return true
	}
	return now.Sub(*a.LastTriggeredAt) >= a.Cooldown
}
