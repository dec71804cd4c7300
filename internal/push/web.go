package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
)

// VAPIDKeys is the signing material for web push requests.
type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// WebSender delivers one encrypted push request per browser endpoint using
// the endpoint's own keys.
type WebSender struct {
	vapid      VAPIDKeys
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebSender(vapid VAPIDKeys, logger *slog.Logger) *WebSender {
	return &WebSender{
		vapid:      vapid,
		httpClient: &http.Client{},
		logger:     logger.With("component", "web-sender"),
	}
}

// Send pushes content to every subscription. Endpoints the push service
// reports as gone (410) or unknown (404) come back in Invalid for cleanup;
// everything else that fails is a transient failure and is only counted.
func (s *WebSender) Send(ctx context.Context, subs []WebSubscription, content Content) ChannelResult {
	var result ChannelResult
	if len(subs) == 0 {
		return result
	}

	payload, err := json.Marshal(map[string]string{
		"title": content.Title,
		"body":  content.Body,
		"url":   content.URL,
	})
	if err != nil {
		result.Temporary = len(subs)
		return result
	}

	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
			HTTPClient:      s.httpClient,
			Subscriber:      s.vapid.Subject,
			VAPIDPublicKey:  s.vapid.PublicKey,
			VAPIDPrivateKey: s.vapid.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			// Transport or key error; the endpoint may still be alive.
			s.logger.Warn("web push send failed", "endpoint", sub.Endpoint, "error", err)
			result.Temporary++
			continue
		}

		switch resp.StatusCode {
		case http.StatusCreated, http.StatusOK:
			result.Success++
		case http.StatusGone, http.StatusNotFound:
			result.Invalid = append(result.Invalid, sub.Endpoint)
		default:
			s.logger.Warn("web push rejected", "endpoint", sub.Endpoint, "status", resp.StatusCode)
			result.Temporary++
		}
		resp.Body.Close()
	}

	return result
}
