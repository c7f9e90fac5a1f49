package repo

import "time"

// Status is the disposition of a lead. The set is closed, the machine is
// flat: any status may be overwritten with any other, including back to new.
type Status string

const (
	StatusNew      Status = "new"
	StatusBooked   Status = "booked"
	StatusCallBack Status = "call_back"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a raw status token against the closed set.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusNew, StatusBooked, StatusCallBack, StatusRejected:
		return Status(raw), true
	}
	return "", false
}

// Tenant represents one operator account. Token is issued once and never
// rotated; ChatID is bound when the operator first talks to the bot.
type Tenant struct {
	ID        int64
	ChatID    *int64
	Token     string
	CreatedAt time.Time
}

// Client is a contact known to one tenant, dedup'd by phone.
type Client struct {
	ID        int64
	TenantID  int64
	Name      *string
	Phone     *string
	CreatedAt time.Time
}

// Lead is one inbound contact event. ChatID/MessageID identify the single
// outstanding chat notification representing this lead, if any.
type Lead struct {
	ID        int64
	TenantID  int64
	ClientID  *int64
	Source    string
	Name      *string
	Phone     *string
	Text      string
	Status    Status
	CreatedAt time.Time
	ChatID    *int64
	MessageID *int64
}

// NewLead carries data used to create a lead.
type NewLead struct {
	TenantID int64
	ClientID *int64
	Source   string
	Name     *string
	Phone    *string
	Text     string
	Status   Status
}
