// internal/domain/notification/threshold.go
package notification

// Threshold identifies one of the one-time reminder horizons before expiry.
type Threshold int

const (
	Threshold30 Threshold = 30 // Month-advance reminder
	Threshold7  Threshold = 7  // Urgent reminder
)

// Thresholds lists the horizons in query order.
var Thresholds = []Threshold{Threshold30, Threshold7}

// Days is the number of days before expiry at which the reminder is due.
func (t Threshold) Days() int { return int(t) }

// Column is the items column holding the notified flag for this threshold.
func (t Threshold) Column() string {
	switch t {
	case Threshold30:
		return "notified_30"
	case Threshold7:
		return "notified_7"
	default:
		return ""
	}
}

func (t Threshold) String() string {
	switch t {
	case Threshold30:
		return "30-days-ahead"
	case Threshold7:
		return "7-days-ahead"
	default:
		return "unknown"
	}
}
