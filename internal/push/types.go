// Package push fans a single notification out across the two delivery
// channels the platform supports: encrypted web push to browser endpoints and
// token-batch delivery to the mobile app. Channel failures never escape as
// errors; they are aggregated into a DeliveryResult and, for permanently dead
// endpoints, fed back into subscription cleanup.
package push

import "encoding/json"

// RawSubscription is an untrusted subscription record as stored (or as
// snapshotted at schedule time). Keys has no guaranteed shape; the
// partitioner validates it.
type RawSubscription struct {
	Endpoint string          `json:"endpoint"`
	Keys     json.RawMessage `json:"keys,omitempty"`
}

type subscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// WebSubscription is a validated browser push target.
type WebSubscription struct {
	Endpoint string
	P256DH   string
	Auth     string
}

// MobileSubscription is a validated mobile target; Token doubles as the
// endpoint value in the subscription store.
type MobileSubscription struct {
	Token string
}

// Content is what gets delivered, channel-agnostic.
type Content struct {
	Title string
	Body  string
	URL   string
}

// ChannelResult is the uniform per-channel outcome shape. Invalid holds the
// endpoint/token values the provider confirmed will never deliver again.
type ChannelResult struct {
	Success   int
	Temporary int
	Invalid   []string
}

// DeliveryResult aggregates one dispatch attempt across both channels.
// Observability only; nothing downstream branches on it.
type DeliveryResult struct {
	SuccessCount          int `json:"success_count"`
	FailureCount          int `json:"failure_count"`
	TemporaryFailureCount int `json:"temporary_failure_count"`
	DeletedCount          int `json:"deleted_count"`
}
