package storage

// UsageEntry records the seconds accumulated on a domain for one
// calendar day. An entry whose Date is not today is stale and must be
// treated as absent.
type UsageEntry struct {
	Date        string `json:"date"` // YYYY-MM-DD
	UsedSeconds int    `json:"usedSeconds"`
}

// AccountabilitySettings holds the notification recipient identity and
// per-event toggles. Owned by the UI; the core only reads it to decide
// whether and whom to notify.
type AccountabilitySettings struct {
	Name                  string `json:"name"`
	Email                 string `json:"email"`
	NotifyOnLimitAdded    bool   `json:"notifyOnLimitAdded"`
	NotifyOnLimitRemoved  bool   `json:"notifyOnLimitRemoved"`
	NotifyOnBlockAdded    bool   `json:"notifyOnBlockAdded"`
	NotifyOnBlockRemoved  bool   `json:"notifyOnBlockRemoved"`
	NotifyOnLimitExceeded bool   `json:"notifyOnLimitExceeded"`
	NotifyOnLimitExtended bool   `json:"notifyOnLimitExtended"`
}

// DefaultAccountabilitySettings returns the settings used before the
// user has saved any: empty identity, every event toggle on.
func DefaultAccountabilitySettings() AccountabilitySettings {
	return AccountabilitySettings{
		NotifyOnLimitAdded:    true,
		NotifyOnLimitRemoved:  true,
		NotifyOnBlockAdded:    true,
		NotifyOnBlockRemoved:  true,
		NotifyOnLimitExceeded: true,
		NotifyOnLimitExtended: true,
	}
}

// MotivationalSettings configures the text and image shown on the
// block page. Owned entirely by the UI.
type MotivationalSettings struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
}

// DefaultMotivationalSettings returns the block page defaults.
func DefaultMotivationalSettings() MotivationalSettings {
	return MotivationalSettings{
		Text: "Your future self will thank you. Stay the course.",
	}
}
