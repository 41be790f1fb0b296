package domain

import (
	"context"

	"github.com/smallbiznis/matrixgw/internal/matrix"
	profiledomain "github.com/smallbiznis/matrixgw/internal/profile/domain"
)

// Descriptor identifies a room invitation addressed to a locally-hosted user.
// It lives only for the duration of one transaction's processing.
type Descriptor struct {
	RoomID  string
	Sender  matrix.UserID
	Invitee matrix.UserID
}

// ProfileDirectory resolves user identifiers to display names and third-party
// identifiers. Backed by the homeserver's identity store.
type ProfileDirectory interface {
	ThreePids(ctx context.Context, user matrix.UserID) ([]profiledomain.ThreePid, error)
	DisplayName(ctx context.Context, user matrix.UserID) (string, bool, error)
}

// RoomDirectory resolves room identifiers to display names. The boolean
// result distinguishes "room has no name" from a lookup failure; callers are
// expected to treat both as a missing name.
type RoomDirectory interface {
	RoomName(ctx context.Context, roomID string) (string, bool, error)
}
