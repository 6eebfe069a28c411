package chatsvc

import (
	"github.com/pkg/errors"
	"github.com/slack-go/slack"

	"github.com/kymoh/elimu/core"
)

type slackService struct {
	webhookURL string
}

var _ core.ChatService = (*slackService)(nil)

// NewSlackService posts to an incoming-webhook URL. Returns nil when the URL
// is not configured so callers can treat chat as optional.
func NewSlackService(conf *core.Config) core.ChatService {
	if conf.Batch.SlackWebhookURL == "" {
		return nil
	}
	return &slackService{webhookURL: conf.Batch.SlackWebhookURL}
}

func (svc slackService) PostMessage(text string) error {
	err := slack.PostWebhook(svc.webhookURL, &slack.WebhookMessage{Text: text})
	return errors.Wrap(err, "posting to slack webhook")
}
