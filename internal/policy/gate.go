package policy

import "fmt"

// TabState is the coordinator's view of one browser tab at evaluation
// time.
type TabState struct {
	TabID         int
	URL           string
	Active        bool // the focused window's active tab
	WindowFocused bool
	Audible       bool
}

// AccrualGate decides whether a tab should be accruing time right now.
// The tracking gate varied across revisions of this system (focus-gated,
// always-on, audible-tab-inclusive); keeping it behind one interface
// lets the variant be swapped without touching the session clock or the
// ledger.
type AccrualGate interface {
	Name() string
	ShouldAccrue(tab TabState) bool
}

// FocusGated accrues only for the active tab of a focused window.
type FocusGated struct{}

func (FocusGated) Name() string { return "focus" }

func (FocusGated) ShouldAccrue(tab TabState) bool {
	return tab.Active && tab.WindowFocused
}

// AlwaysOn accrues for the active tab regardless of window focus.
type AlwaysOn struct{}

func (AlwaysOn) Name() string { return "always" }

func (AlwaysOn) ShouldAccrue(tab TabState) bool {
	return tab.Active
}

// AudibleAware accrues like FocusGated but also counts tabs that are
// playing media, so a background video still spends the budget.
type AudibleAware struct{}

func (AudibleAware) Name() string { return "audible" }

func (AudibleAware) ShouldAccrue(tab TabState) bool {
	return (tab.Active && tab.WindowFocused) || tab.Audible
}

// GateByName resolves a configured gate variant.
func GateByName(name string) (AccrualGate, error) {
	switch name {
	case "", "focus":
		return FocusGated{}, nil
	case "always":
		return AlwaysOn{}, nil
	case "audible":
		return AudibleAware{}, nil
	default:
		return nil, fmt.Errorf("unknown tracking gate: %q (must be focus, always, or audible)", name)
	}
}
