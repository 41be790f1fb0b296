package service

import (
	"strings"

	"github.com/smallbiznis/matrixgw/internal/config"
	"github.com/smallbiznis/matrixgw/internal/invite/domain"
	"github.com/smallbiznis/matrixgw/internal/matrix"
	"go.uber.org/zap"
)

// Filter classifies raw appservice events, yielding a Descriptor for every
// room invitation addressed to a locally-hosted user. It is stateless and
// performs no external calls; a malformed event is a logged skip, never an
// error, so one bad event can never abort a batch.
type Filter struct {
	domain string
	log    *zap.Logger
}

func NewFilter(cfg config.Config, log *zap.Logger) *Filter {
	return &Filter{
		domain: cfg.Matrix.Domain,
		log:    log.Named("invite.filter"),
	}
}

// Classify runs the event through the invite predicates in order. The second
// return value is false when the event is not a local invite.
func (f *Filter) Classify(ev matrix.ClientEvent) (*domain.Descriptor, bool) {
	evID, ok := eventID(ev)
	if !ok {
		f.log.Warn("event has no ID, skipping")
		return nil, false
	}
	log := f.log.With(zap.String("event_id", evID))
	log.Debug("event processing start")

	roomID, ok := roomID(ev)
	if !ok {
		log.Debug("event has no room ID, skipping")
		return nil, false
	}

	sender, ok := sender(ev)
	if !ok {
		log.Debug("event has no valid sender ID, skipping")
		return nil, false
	}

	if !isMembershipEvent(ev) {
		log.Debug("not a room membership event, skipping")
		return nil, false
	}

	if !isInvite(ev) {
		log.Debug("not an invite event, skipping")
		return nil, false
	}

	invitee, ok := invitee(ev)
	if !ok {
		log.Warn("invalid event: no invitee ID, skipping")
		return nil, false
	}

	if !f.isLocal(invitee) {
		log.Debug("ignoring invite: invitee is not a local user",
			zap.String("invitee", invitee.String()))
		return nil, false
	}

	log.Info("got invite",
		zap.String("sender", sender.String()),
		zap.String("invitee", invitee.String()))

	return &domain.Descriptor{
		RoomID:  roomID,
		Sender:  sender,
		Invitee: invitee,
	}, true
}

func eventID(ev matrix.ClientEvent) (string, bool) {
	id := strings.TrimSpace(ev.EventID)
	return id, id != ""
}

func roomID(ev matrix.ClientEvent) (string, bool) {
	id := strings.TrimSpace(ev.RoomID)
	return id, id != ""
}

func sender(ev matrix.ClientEvent) (matrix.UserID, bool) {
	if strings.TrimSpace(ev.Sender) == "" {
		return matrix.UserID{}, false
	}
	user, err := matrix.ParseUserID(ev.Sender)
	if err != nil {
		return matrix.UserID{}, false
	}
	return user, true
}

func isMembershipEvent(ev matrix.ClientEvent) bool {
	return ev.Type == matrix.EventTypeMember
}

func isInvite(ev matrix.ClientEvent) bool {
	return ev.MembershipState() == matrix.MembershipInvite
}

func invitee(ev matrix.ClientEvent) (matrix.UserID, bool) {
	if strings.TrimSpace(ev.StateKey) == "" {
		return matrix.UserID{}, false
	}
	user, err := matrix.ParseUserID(ev.StateKey)
	if err != nil {
		return matrix.UserID{}, false
	}
	return user, true
}

func (f *Filter) isLocal(user matrix.UserID) bool {
	return user.Domain == f.domain
}
