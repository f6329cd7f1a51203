package domain

// AlertRuleConfig defines a user-configurable alert rule.
// The expression is CEL, evaluated per recent transaction.
type AlertRuleConfig struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over the transaction activation. Must return
	// bool, int, or double; the numeric result is matched against Bands.
	Expression string `json:"expression"`

	// Bands map the expression score to an alert severity.
	Bands []SeverityBand `json:"bands"`

	Enabled bool `json:"enabled"`
}

// SeverityBand maps a score range to a severity. Lower inclusive,
// upper exclusive; a nil upper limit means unbounded.
type SeverityBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Severity   string   `json:"severity"` // info, warning, critical
	Reason     string   `json:"reason"`
}

// GlobalRuleOwner marks rules that apply to every user.
const GlobalRuleOwner = "*"
