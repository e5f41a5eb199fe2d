package chat

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a chat or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status update would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the delivery status of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// forward lists the statuses each status may advance to.
var forward = map[Status][]Status{
	StatusSent:      {StatusDelivered, StatusRead, StatusFailed},
	StatusDelivered: {StatusRead},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// CanAdvance reports whether a message in status s may move to to.
// Statuses only move forward: sent -> delivered -> read, or sent -> failed.
func (s Status) CanAdvance(to Status) bool {
	for _, next := range forward[s] {
		if next == to {
			return true
		}
	}
	return false
}

// MessageType tags the kind of content a message carries.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeFile     MessageType = "file"
	TypeAudio    MessageType = "audio"
	TypeLocation MessageType = "location"
	TypeContact  MessageType = "contact"
)

// Payload names which field carries a message's primary content.
type Payload int

const (
	PayloadText Payload = iota
	PayloadLocation
	PayloadContact
	PayloadMedia
)

// Location is a shared map position.
type Location struct {
	Latitude  float64
	Longitude float64
	Address   string
	Name      string
}

// Contact is a shared address-book card.
type Contact struct {
	Name   string
	Phone  string
	Email  string
	Avatar string
}

// Message is one message in a conversation. ID is empty until the store
// assigns one on first insert.
type Message struct {
	ID                string
	Text              string
	SenderID          string
	SenderName        string
	ChatID            string
	CompanyID         string
	CreatedAt         time.Time
	MediaURLs         []string
	MessageType       MessageType
	IsEdited          bool
	EditedAt          *time.Time
	ReplyToMessageID  string
	ForwardedFrom     string
	ForwardedFromName string
	Status            Status
	ReadBy            []string
	DeliveredTo       []string
	Location          *Location
	Contact           *Contact
	AudioDuration     *float64
	FileSize          *int64
	FileName          string
}

// Primary reports which payload a renderer should show. Storage does not make
// the fields mutually exclusive, so precedence is location, contact, media,
// then text.
func (m *Message) Primary() Payload {
	switch {
	case m.Location != nil:
		return PayloadLocation
	case m.Contact != nil:
		return PayloadContact
	case len(m.MediaURLs) > 0:
		return PayloadMedia
	default:
		return PayloadText
	}
}

// ReadByUser reports whether userID is in the message's reader set.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Chat is a conversation thread with its denormalized summary.
type Chat struct {
	ID           string
	CompanyID    string
	Name         string
	Participants []string
	Summary      Summary
}

// Summary is the latest-message projection kept on the chat record for list
// rendering. It is written after, and separately from, the message insert.
type Summary struct {
	LastMessage       string
	LastMessageAt     time.Time
	LastMessageSender string
	LastMessageStatus Status
}

// TypingState is one user's typing flag in one chat.
type TypingState struct {
	ChatID    string
	UserID    string
	Typing    bool
	UpdatedAt time.Time
}

// User is the signed-in identity a session composes messages as.
type User struct {
	ID          string
	DisplayName string
	CompanyID   string
}

// Name returns the display name, falling back to "User".
func (u User) Name() string {
	if u.DisplayName == "" {
		return "User"
	}
	return u.DisplayName
}
