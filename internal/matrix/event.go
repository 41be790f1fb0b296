package matrix

const (
	// EventTypeMember is the room membership event type.
	EventTypeMember = "m.room.member"

	// MembershipInvite is the membership state carried by an invite event.
	MembershipInvite = "invite"
)

// MemberContent is the content object of an m.room.member event. Only the
// membership field is relevant to the gateway.
type MemberContent struct {
	Membership string `json:"membership"`
}

// ClientEvent is a single event pushed to the application service as part of
// a transaction. Every field is optional on the wire; homeservers have been
// observed to omit any of them.
type ClientEvent struct {
	EventID  string `json:"event_id,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Type     string `json:"type,omitempty"`
	StateKey string `json:"state_key,omitempty"`

	// Membership is the legacy top-level field used when no content object
	// is present.
	Membership string `json:"membership,omitempty"`

	Content *MemberContent `json:"content,omitempty"`
}

// MembershipState reads the membership from the nested content object when
// one is present, falling back to the top-level field otherwise.
func (e ClientEvent) MembershipState() string {
	if e.Content != nil {
		return e.Content.Membership
	}
	return e.Membership
}

// Transaction is the batch of events a homeserver pushes to the application
// service under a single transaction id.
type Transaction struct {
	Events []ClientEvent `json:"events"`
}
