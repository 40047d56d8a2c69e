package target

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/beyondessential/alertd/internal/alertdef"
	sharederrors "github.com/beyondessential/alertd/internal/shared/errors"
)

// defaultSlackFields is used when a slack target carries no explicit
// field map: subject and body are shown as-is.
var defaultSlackFields = []alertdef.SlackField{
	{Name: "Subject", Field: "subject"},
	{Name: "Body", Field: "body"},
}

// SlackSender posts a rendered alert to a Slack incoming webhook.
type SlackSender struct{}

// Send posts subject/body to target.Slack.Webhook as an attachment with one
// field per entry in target.Slack.Fields (or the default subject/body pair).
func (s *SlackSender) Send(ctx context.Context, target alertdef.ExternalTarget, subject, body string) error {
	if target.Slack == nil || target.Slack.Webhook == "" {
		return fmt.Errorf("slack target %s has no webhook", target.ID)
	}

	fields := target.Slack.Fields
	if len(fields) == 0 {
		fields = defaultSlackFields
	}

	vars := map[string]string{"subject": subject, "body": body}
	attachmentFields := make([]slack.AttachmentField, 0, len(fields))
	for _, f := range fields {
		value := f.Value
		if f.Field != "" {
			value = vars[f.Field]
		}
		attachmentFields = append(attachmentFields, slack.AttachmentField{
			Title: f.Name,
			Value: value,
			Short: false,
		})
	}

	msg := &slack.WebhookMessage{
		Attachments: []slack.Attachment{
			{
				Fallback: subject,
				Title:    subject,
				Fields:   attachmentFields,
			},
		},
	}

	if err := slack.PostWebhookContext(ctx, target.Slack.Webhook, msg); err != nil {
		return sharederrors.NetworkError("post slack webhook", target.ID, err)
	}
	return nil
}
