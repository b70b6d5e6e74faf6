package notify

import (
	"github.com/lupppig/dirbackup/internal/config"
)

// BuildNotifier returns nil when nothing is configured.
func BuildNotifier(cfg *config.Config) Notifier {
	var notifiers []Notifier

	if cfg.Notifications.Slack.WebhookURL != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.Notifications.Slack.WebhookURL, cfg.Notifications.Slack.Template))
	}

	for _, w := range cfg.Notifications.Webhooks {
		if w.URL != "" {
			notifiers = append(notifiers, NewWebhookNotifier(w.URL, w.Method, w.Template, w.Headers))
		}
	}

	if len(notifiers) == 0 {
		return nil
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return &MultiNotifier{Notifiers: notifiers}
}
