package domain

import "strings"

// AlertState is the lifecycle state of an Alert.
type AlertState string

const (
	AlertPending    AlertState = "PENDING"
	AlertInProgress AlertState = "IN_PROGRESS"
	AlertResolved   AlertState = "RESOLVED"
	AlertIgnored    AlertState = "IGNORED"
)

// Terminal reports whether no further transition is allowed from s.
func (s AlertState) Terminal() bool {
	return s == AlertResolved || s == AlertIgnored
}

// Open reports whether the alert still requires action.
func (s AlertState) Open() bool {
	return s == AlertPending || s == AlertInProgress
}

// AlertType identifies the condition that raised an alert.
type AlertType string

const (
	AlertStockCritical AlertType = "STOCK_CRITICAL"
	AlertStockLow      AlertType = "STOCK_LOW"
	AlertReorderPoint  AlertType = "REORDER_POINT"
	AlertForecastStale AlertType = "FORECAST_STALE"
)

// Severity ranks alert urgency.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// POStatusDraft is the status of a freshly generated purchase order.
const POStatusDraft = 0

var poStatusLabels = map[int]string{
	0: "Draft",
	1: "Released",
	2: "Approved",
	3: "Sent",
	4: "Arrived",
	5: "Cancelled",
}

// POStatusLabel returns a human-readable label for a PO status code.
func POStatusLabel(status int) string {
	if label, ok := poStatusLabels[status]; ok {
		return label
	}

	return "Draft"
}

// ParseAlertState parses a state label (case-insensitive).
func ParseAlertState(label string) (AlertState, bool) {
	s := AlertState(strings.ToUpper(strings.TrimSpace(label)))
	switch s {
	case AlertPending, AlertInProgress, AlertResolved, AlertIgnored:
		return s, true
	}
	return "", false
}
