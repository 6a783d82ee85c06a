package telegram

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestBuildPollerLongpollDefaults(t *testing.T) {
	p, ok := BuildPoller(PollerOptions{RunMode: RunModeLongpoll}).(*tele.LongPoller)
	if !ok {
		t.Fatalf("expected long poller")
	}
	if p.Timeout != defaultLongPollSeconds*time.Second {
		t.Fatalf("timeout = %v", p.Timeout)
	}
	if len(p.AllowedUpdates) != 2 {
		t.Fatalf("allowed updates = %v", p.AllowedUpdates)
	}
}

func TestBuildPollerWebhook(t *testing.T) {
	p, ok := BuildPoller(PollerOptions{
		RunMode: " Webhook ",
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.org/hook", Secret: "s3"},
	}).(*tele.Webhook)
	if !ok {
		t.Fatalf("expected webhook")
	}
	if p.Listen != "0.0.0.0:8443" || p.SecretToken != "s3" {
		t.Fatalf("listen=%q secret=%q", p.Listen, p.SecretToken)
	}
	if p.Endpoint == nil || p.Endpoint.PublicURL != "https://bot.example.org/hook" {
		t.Fatalf("endpoint = %+v", p.Endpoint)
	}
}
