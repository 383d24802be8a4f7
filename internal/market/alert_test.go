package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAlertCrossed(t *testing.T) {
	above := Alert{Direction: DirectionAbove, Target: decimal.NewFromInt(70000)}
	if !above.Crossed(decimal.NewFromInt(70000)) {
		t.Error("above should fire at exactly the target")
	}
	if !above.Crossed(decimal.NewFromInt(71000)) {
		t.Error("above should fire past the target")
	}
	if above.Crossed(decimal.NewFromInt(69999)) {
		t.Error("above should not fire below the target")
	}

	below := Alert{Direction: DirectionBelow, Target: decimal.NewFromInt(50000)}
	if !below.Crossed(decimal.NewFromInt(50000)) {
		t.Error("below should fire at exactly the target")
	}
	if below.Crossed(decimal.NewFromInt(50001)) {
		t.Error("below should not fire above the target")
	}
}

func TestAlertCooldownElapsed(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := Alert{Cooldown: time.Hour}
	if !fresh.CooldownElapsed(now) {
		t.Error("alert that never fired should be eligible")
	}

	thirtyAgo := now.Add(-30 * time.Minute)
	blocked := Alert{Cooldown: time.Hour, LastTriggeredAt: &thirtyAgo}
	if blocked.CooldownElapsed(now) {
		t.Error("alert triggered 30m ago with 60m cooldown should be blocked")
	}

	ninetyAgo := now.Add(-90 * time.Minute)
	eligible := Alert{Cooldown: time.Hour, LastTriggeredAt: &ninetyAgo}
	if !eligible.CooldownElapsed(now) {
		t.Error("alert triggered 90m ago with 60m cooldown should be eligible")
	}
}
