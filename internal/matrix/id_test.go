package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUserID(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		localpart string
		domain    string
		wantErr   bool
	}{
		{name: "plain", raw: "@alice:example.org", localpart: "alice", domain: "example.org"},
		{name: "domain with port", raw: "@bob:example.org:8448", localpart: "bob", domain: "example.org:8448"},
		{name: "surrounding whitespace", raw: "  @carol:example.org ", localpart: "carol", domain: "example.org"},
		{name: "missing sigil", raw: "alice:example.org", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "no colon", raw: "@alice", wantErr: true},
		{name: "empty localpart", raw: "@:example.org", wantErr: true},
		{name: "empty domain", raw: "@alice:", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user, err := ParseUserID(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.localpart, user.Localpart)
			assert.Equal(t, tc.domain, user.Domain)
		})
	}
}

func TestUserIDString(t *testing.T) {
	user := UserID{Localpart: "alice", Domain: "example.org"}
	assert.Equal(t, "@alice:example.org", user.String())
}

func TestMembershipStateFallsBackToTopLevel(t *testing.T) {
	ev := ClientEvent{Membership: MembershipInvite}
	assert.Equal(t, MembershipInvite, ev.MembershipState())

	ev.Content = &MemberContent{}
	assert.Equal(t, "", ev.MembershipState(), "content object takes precedence even when blank")

	ev.Content = &MemberContent{Membership: "join"}
	assert.Equal(t, "join", ev.MembershipState())
}
