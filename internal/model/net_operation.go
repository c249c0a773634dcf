package model

import "time"

// Net operation states. Transitions only move forward:
// scheduled -> active -> completed.
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// DefaultNetName is used when a net is created without a name.
const DefaultNetName = "York County Amateur Radio Society Net"

// NetOperation is one net session together with its ordered check-ins.
// OperatorCallsign is a snapshot taken at creation and is never re-synced.
type NetOperation struct {
	ID               uint64     `json:"id"`
	OperatorID       uint64     `json:"operatorId"`
	OperatorCallsign string     `json:"operatorCallsign"`
	NetName          string     `json:"netName"`
	Frequency        string     `json:"frequency"`
	Notes            string     `json:"notes"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	Status           string     `json:"status"`
	IsScheduled      bool       `json:"isScheduled"`
	Recurrence       string     `json:"recurrence"`
	CheckIns         []CheckIn  `json:"checkIns"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// CheckIn is a station logged during a net. ID is unique within the parent
// operation only.
type CheckIn struct {
	ID                 string    `json:"id"`
	Callsign           string    `json:"callsign"`
	Name               string    `json:"name"`
	Location           string    `json:"location"`
	LicenseClass       string    `json:"license_class"`
	StayingForComments bool      `json:"stayingForComments"`
	Commented          bool      `json:"commented"`
	Notes              string    `json:"notes"`
	Timestamp          time.Time `json:"timestamp"`
}

// CheckInIndex returns the position of the check-in with the given id, or -1.
func (n *NetOperation) CheckInIndex(id string) int {
	for i := range n.CheckIns {
		if n.CheckIns[i].ID == id {
			return i
		}
	}
	return -1
}

// OwnedBy reports whether accountID created the operation.
func (n *NetOperation) OwnedBy(accountID uint64) bool {
	return n.OperatorID == accountID
}
