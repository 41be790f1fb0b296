package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/smallbiznis/matrixgw/internal/notification/domain"
	profiledomain "github.com/smallbiznis/matrixgw/internal/profile/domain"
	"github.com/smallbiznis/matrixgw/internal/providers/email"
)

var inviteTemplate = template.Must(template.New("invite").Parse(`<html>
<body>
  <p>Hello,</p>
  <p>{{.SenderLabel}} has invited you to join {{.RoomLabel}}.</p>
  <p>Log in to your account to accept or decline this invitation.</p>
</body>
</html>
`))

type inviteTemplateData struct {
	SenderLabel string
	RoomLabel   string
}

// EmailHandler renders invite notifications and hands them to the email
// provider.
type EmailHandler struct {
	provider email.Provider
}

func NewEmailHandler(provider email.Provider) *EmailHandler {
	return &EmailHandler{provider: provider}
}

func (h *EmailHandler) Medium() string { return profiledomain.MediumEmail }

func (h *EmailHandler) Send(ctx context.Context, payload domain.Payload) error {
	data := inviteTemplateData{
		SenderLabel: payload.Sender,
		RoomLabel:   "a room",
	}
	if name := payload.Properties[domain.PropSenderDisplayName]; name != "" {
		data.SenderLabel = fmt.Sprintf("%s (%s)", name, payload.Sender)
	}
	if name := payload.Properties[domain.PropRoomName]; name != "" {
		data.RoomLabel = fmt.Sprintf("%q", name)
	}

	var body bytes.Buffer
	if err := inviteTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render invite template: %w", err)
	}

	subject := fmt.Sprintf("%s invited you to %s", data.SenderLabel, data.RoomLabel)

	return h.provider.Send(ctx, []string{payload.Address}, subject, body.String())
}
