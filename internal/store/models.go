package store

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// User is the users collection document, keyed by phone number.
type User struct {
	Phone       string          `bson:"phone"`
	Name        string          `bson:"name,omitempty"`
	Age         int             `bson:"age,omitempty"`
	Gender      string          `bson:"gender,omitempty"`
	Location    string          `bson:"location,omitempty"`
	ConsentTime string          `bson:"consent_time,omitempty"`
	Language    string          `bson:"language,omitempty"`
	Chats       []ChatTurn      `bson:"chats"`
	Payments    []PaymentRecord `bson:"payments"`
	LastNudge   string          `bson:"last_nudge,omitempty"`
}

// UserProfile carries data used to upsert a user.
type UserProfile struct {
	Phone       string `bson:"phone"`
	Name        string `bson:"name,omitempty"`
	Age         int    `bson:"age,omitempty"`
	Gender      string `bson:"gender,omitempty"`
	Location    string `bson:"location,omitempty"`
	ConsentTime string `bson:"consent_time,omitempty"`
}

// ChatTurn is one input/output exchange embedded on the user.
// Time is an ISO-8601 timestamp; insertion order defines replay order.
type ChatTurn struct {
	Input  string `bson:"input"`
	Output string `bson:"output"`
	Time   string `bson:"time"`
}

// PaymentRecord is one payment-link lifecycle entry embedded on the user.
// A record is created as pending and may only ever move to paid.
type PaymentRecord struct {
	Amount    float64       `bson:"amount"`
	LinkURL   string        `bson:"link_url,omitempty"`
	LinkID    string        `bson:"link_id,omitempty"`
	Status    PaymentStatus `bson:"status"`
	PaymentID string        `bson:"payment_id,omitempty"`
	Time      string        `bson:"time"`
}

// ChatLogRecord is an independent chats-collection entry for one turn.
type ChatLogRecord struct {
	Phone  string `bson:"phone,omitempty"`
	Input  string `bson:"input"`
	Output string `bson:"output"`
	Time   string `bson:"time"`
}

// ConsultRequestRecord captures a paid-consult request.
type ConsultRequestRecord struct {
	RequestID   string      `bson:"request_id"`
	User        UserProfile `bson:"user"`
	Symptoms    SymptomData `bson:"symptoms"`
	ConsultType string      `bson:"consult_type"`
	RequestedAt string      `bson:"requested_at"`
	PaymentLink string      `bson:"payment_link"`
	LinkID      string      `bson:"link_id,omitempty"`
}

// SymptomData describes the complaint attached to a triage or consult request.
type SymptomData struct {
	Description string `bson:"description"`
	Duration    string `bson:"duration,omitempty"`
	Severity    string `bson:"severity,omitempty"`
}

// PaymentEventRecord stores a raw gateway webhook event for auditing.
type PaymentEventRecord struct {
	Event   string `bson:"event"`
	Payload string `bson:"payload"`
	Time    string `bson:"time"`
}

// SummaryRecord is a free-form consultation summary.
type SummaryRecord struct {
	UserPhone string `bson:"user_phone,omitempty"`
	Summary   string `bson:"summary"`
	ConsultID string `bson:"consult_id,omitempty"`
	Time      string `bson:"time"`
}
