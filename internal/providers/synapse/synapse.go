// Package synapse resolves profile and room metadata directly from a Synapse
// homeserver database. All lookups are read-only; the gateway never writes to
// homeserver tables.
package synapse

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/matrixgw/internal/matrix"
	profiledomain "github.com/smallbiznis/matrixgw/internal/profile/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Directory struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDirectory(db *gorm.DB, log *zap.Logger) *Directory {
	return &Directory{
		db:  db,
		log: log.Named("providers.synapse"),
	}
}

// ThreePids lists the third-party identifiers bound to a user.
func (d *Directory) ThreePids(ctx context.Context, user matrix.UserID) ([]profiledomain.ThreePid, error) {
	var rows []struct {
		Medium  string
		Address string
	}
	err := d.db.WithContext(ctx).
		Raw(`SELECT medium, address FROM user_threepids WHERE user_id = ?`, user.String()).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	tpids := make([]profiledomain.ThreePid, 0, len(rows))
	for _, row := range rows {
		tpids = append(tpids, profiledomain.ThreePid{
			Medium:  strings.TrimSpace(row.Medium),
			Address: strings.TrimSpace(row.Address),
		})
	}
	return tpids, nil
}

// DisplayName resolves a user's profile display name. Synapse keys profiles
// by localpart, not by full user ID.
func (d *Directory) DisplayName(ctx context.Context, user matrix.UserID) (string, bool, error) {
	var name *string
	err := d.db.WithContext(ctx).
		Raw(`SELECT displayname FROM profiles WHERE user_id = ?`, user.Localpart).
		Scan(&name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if name == nil || strings.TrimSpace(*name) == "" {
		return "", false, nil
	}
	return *name, true, nil
}

// RoomName resolves the current display name of a room from its state.
func (d *Directory) RoomName(ctx context.Context, roomID string) (string, bool, error) {
	var name *string
	err := d.db.WithContext(ctx).
		Raw(`SELECT rn.name
			FROM room_names rn
			JOIN current_state_events cse ON cse.event_id = rn.event_id
			WHERE cse.room_id = ? AND cse.type = 'm.room.name' AND cse.state_key = ''`,
			roomID).
		Scan(&name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if name == nil || strings.TrimSpace(*name) == "" {
		return "", false, nil
	}
	return *name, true, nil
}
