package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message kinds carried on the notification queue.
const (
	KindExpenseEvent  = "expense_event"
	KindMonthClosed   = "month_closed"
	KindInviteCreated = "invite_created"
)

// Message is the envelope for every event on the queue. Only the fields
// relevant to the Kind are set; workers fetch full records from the
// database.
type Message struct {
	Kind      string    `json:"kind"`
	Action    string    `json:"action,omitempty"`
	CoupleID  int64     `json:"coupleId,omitempty"`
	ExpenseID int64     `json:"expenseId,omitempty"`
	InviteID  int64     `json:"inviteId,omitempty"`
	Year      int       `json:"year,omitempty"`
	Month     int       `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEventMessage creates a message for an expense mutation.
func NewExpenseEventMessage(action string, coupleID, expenseID int64, year, month int) *Message {
	return &Message{
		Kind:      KindExpenseEvent,
		Action:    action,
		CoupleID:  coupleID,
		ExpenseID: expenseID,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// NewMonthClosedMessage creates a message for a month closure.
func NewMonthClosedMessage(coupleID int64, year, month int) *Message {
	return &Message{
		Kind:      KindMonthClosed,
		CoupleID:  coupleID,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// NewInviteCreatedMessage creates a message for a freshly issued invite.
func NewInviteCreatedMessage(inviteID int64) *Message {
	return &Message{
		Kind:      KindInviteCreated,
		InviteID:  inviteID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		return nil, fmt.Errorf("message missing kind")
	}
	return &msg, nil
}
