package model

import (
	"time"
)

// MessageLog is one relayed message, kept in the in-memory recent-message
// store for the operator API. This is a process-local log, not a system of
// record; the CRM note is the durable copy.
type MessageLog struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"` // inbound, outbound
	Peer      string    `json:"peer"`      // the remote phone number
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	Source    string    `json:"source"` // which trigger produced it
	MessageID string    `json:"message_id,omitempty"`
	ContactID int64     `json:"contact_id,omitempty"`
	DealID    int64     `json:"deal_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Direction constants
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Status constants
const (
	StatusReceived = "received"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Source constants identify the trigger surface that produced a message.
const (
	SourceCarrier      = "carrier"
	SourceAPI          = "api"
	SourceSlackCommand = "slack_command"
	SourceSlackThread  = "slack_thread"
	SourceCRMNote      = "crm_note"
)
