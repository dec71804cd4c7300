package push

import (
	"context"
	"log/slog"
)

// WebChannel and MobileChannel are the two sender halves behind the single
// dispatch surface. The state machine and cleanup stay channel-agnostic;
// batching and retry quirks live inside each sender.
type WebChannel interface {
	Send(ctx context.Context, subs []WebSubscription, content Content) ChannelResult
}

type MobileChannel interface {
	Send(ctx context.Context, subs []MobileSubscription, content Content) ChannelResult
}

// SubscriptionCleaner removes subscription records by endpoint value.
type SubscriptionCleaner interface {
	DeleteByEndpoints(ctx context.Context, endpoints []string) (int64, error)
}

// Dispatcher partitions a subscription set, pushes through both channels and
// applies the cleanup policy to whatever the senders flagged as dead.
type Dispatcher struct {
	web    WebChannel
	mobile MobileChannel
	subs   SubscriptionCleaner
	logger *slog.Logger
}

func NewDispatcher(web WebChannel, mobile MobileChannel, subs SubscriptionCleaner, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		web:    web,
		mobile: mobile,
		subs:   subs,
		logger: logger.With("component", "push-dispatcher"),
	}
}

// Dispatch is best-effort and never returns an error: per-endpoint failures
// are aggregated into the result, and only endpoints both senders explicitly
// flagged as permanently invalid are ever deleted.
func (d *Dispatcher) Dispatch(ctx context.Context, subs []RawSubscription, content Content) DeliveryResult {
	parts := Partition(subs)
	droppedSubscriptionsTotal.Add(float64(parts.Dropped))

	webRes := d.web.Send(ctx, parts.Web, content)
	recordChannel("web", webRes)

	mobileRes := d.mobile.Send(ctx, parts.Mobile, content)
	recordChannel("mobile", mobileRes)

	deleted := d.cleanup(ctx, webRes.Invalid, mobileRes.Invalid)

	result := DeliveryResult{
		SuccessCount:          webRes.Success + mobileRes.Success,
		TemporaryFailureCount: webRes.Temporary + mobileRes.Temporary,
		DeletedCount:          deleted,
	}
	result.FailureCount = result.TemporaryFailureCount + len(webRes.Invalid) + len(mobileRes.Invalid)

	d.logger.Info("dispatch complete",
		"success", result.SuccessCount,
		"failed", result.FailureCount,
		"temporary", result.TemporaryFailureCount,
		"deleted", result.DeletedCount,
		"dropped", parts.Dropped,
	)
	return result
}

// cleanup deduplicates the permanently-invalid sets from both senders and
// issues a single bulk delete. Transient failures never reach here.
func (d *Dispatcher) cleanup(ctx context.Context, flagged ...[]string) int {
	seen := make(map[string]struct{})
	var endpoints []string
	for _, set := range flagged {
		for _, endpoint := range set {
			if _, ok := seen[endpoint]; ok {
				continue
			}
			seen[endpoint] = struct{}{}
			endpoints = append(endpoints, endpoint)
		}
	}
	if len(endpoints) == 0 {
		return 0
	}

	count, err := d.subs.DeleteByEndpoints(ctx, endpoints)
	if err != nil {
		d.logger.Error("failed to delete invalid subscriptions", "count", len(endpoints), "error", err)
		return 0
	}
	subscriptionsDeletedTotal.Add(float64(count))
	return int(count)
}
