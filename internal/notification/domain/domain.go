package domain

import (
	"context"
	"errors"
)

// Property keys populated best-effort on invite notifications.
const (
	PropSenderDisplayName = "sender_display_name"
	PropRoomName          = "room_name"
)

// Payload describes one notification to deliver to a third-party address
// about a room invitation.
type Payload struct {
	RoomID  string
	Sender  string
	Invitee string
	Medium  string
	Address string

	// Properties carries optional enrichment such as sender_display_name
	// and room_name. Absent keys are simply omitted from the rendered
	// notification.
	Properties map[string]string
}

// Sender delivers invite notifications through a medium-specific channel.
type Sender interface {
	SendForInvite(ctx context.Context, payload Payload) error
}

var ErrUnsupportedMedium = errors.New("unsupported_medium")
