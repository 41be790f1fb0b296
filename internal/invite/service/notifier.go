package service

import (
	"context"

	"github.com/smallbiznis/matrixgw/internal/invite/domain"
	notificationdomain "github.com/smallbiznis/matrixgw/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/matrixgw/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/matrixgw/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type NotifierParam struct {
	fx.In

	Log      *zap.Logger
	Profiles domain.ProfileDirectory
	Rooms    domain.RoomDirectory
	Sender   notificationdomain.Sender
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Notifier fans an invite descriptor out to zero or more notification
// dispatches, one per email identifier registered for the invitee. Every
// external lookup degrades gracefully: a failing enrichment omits the
// property, a failing dispatch is logged, and nothing escapes Notify.
type Notifier struct {
	log      *zap.Logger
	profiles domain.ProfileDirectory
	rooms    domain.RoomDirectory
	sender   notificationdomain.Sender
	metrics  *obsmetrics.Metrics
}

func NewNotifier(p NotifierParam) *Notifier {
	return &Notifier{
		log:      p.Log.Named("invite.notifier"),
		profiles: p.Profiles,
		rooms:    p.Rooms,
		sender:   p.Sender,
		metrics:  p.Metrics,
	}
}

// Notify dispatches notifications for a single invite. Dispatches are
// independent: failure of one never prevents attempting the others, and no
// failure here affects the enclosing transaction.
func (n *Notifier) Notify(ctx context.Context, d domain.Descriptor) {
	log := n.log.With(
		zap.String("room_id", d.RoomID),
		zap.String("sender", d.Sender.String()),
		zap.String("invitee", d.Invitee.String()),
	)

	tpids, err := n.profiles.ThreePids(ctx, d.Invitee)
	if err != nil {
		log.Warn("could not resolve third-party identifiers", zap.Error(err))
		return
	}

	emails := make([]profiledomain.ThreePid, 0, len(tpids))
	for _, tpid := range tpids {
		if tpid.IsEmail() {
			emails = append(emails, tpid)
		}
	}
	log.Info("resolved identity store emails", zap.Int("count", len(emails)))
	if len(emails) == 0 {
		return
	}

	wasSent := false
	for _, tpid := range emails {
		log.Info("found email to notify about room invitation",
			zap.String("address", tpid.Address))

		payload := notificationdomain.Payload{
			RoomID:     d.RoomID,
			Sender:     d.Sender.String(),
			Invitee:    d.Invitee.String(),
			Medium:     tpid.Medium,
			Address:    tpid.Address,
			Properties: n.buildProperties(ctx, d, log),
		}

		if err := n.sender.SendForInvite(ctx, payload); err != nil {
			log.Error("failed to send invite notification",
				zap.String("address", tpid.Address), zap.Error(err))
			if n.metrics != nil {
				n.metrics.RecordNotificationFailure(ctx, tpid.Medium)
			}
			continue
		}

		log.Info("notification for invite sent", zap.String("address", tpid.Address))
		if n.metrics != nil {
			n.metrics.RecordNotification(ctx, tpid.Medium)
		}
		wasSent = true
	}

	log.Debug("invite notification fan-out done", zap.Bool("was_sent", wasSent))
}

func (n *Notifier) buildProperties(ctx context.Context, d domain.Descriptor, log *zap.Logger) map[string]string {
	properties := make(map[string]string)

	if name, ok, err := n.profiles.DisplayName(ctx, d.Sender); err == nil && ok {
		properties[notificationdomain.PropSenderDisplayName] = name
	}

	name, ok, err := n.rooms.RoomName(ctx, d.RoomID)
	switch {
	case err != nil:
		log.Warn("could not fetch room name", zap.Error(err))
		log.Info("unable to fetch room name: is the homeserver database integration configured?")
	case ok:
		properties[notificationdomain.PropRoomName] = name
	}

	return properties
}
