package push

import (
	"encoding/json"
	"strings"
)

// Mobile clients register their provider token as the endpoint and this
// sentinel as the p256dh key, since token delivery skips payload encryption.
const expoSentinelKey = "expo"

const expoTokenPrefix = "ExponentPushToken["

// PartitionResult splits an input set into the two delivery classes.
// Dropped counts records discarded as malformed.
type PartitionResult struct {
	Web     []WebSubscription
	Mobile  []MobileSubscription
	Dropped int
}

// Partition classifies raw subscription records. Pure: no side effects, and
// every input record lands in exactly one of web, mobile, or dropped.
func Partition(subs []RawSubscription) PartitionResult {
	var out PartitionResult
	for _, sub := range subs {
		var keys subscriptionKeys
		if sub.Endpoint == "" || len(sub.Keys) == 0 {
			out.Dropped++
			continue
		}
		if err := json.Unmarshal(sub.Keys, &keys); err != nil {
			out.Dropped++
			continue
		}
		if keys.P256DH == "" || keys.Auth == "" {
			out.Dropped++
			continue
		}

		if keys.P256DH == expoSentinelKey || strings.HasPrefix(sub.Endpoint, expoTokenPrefix) {
			out.Mobile = append(out.Mobile, MobileSubscription{Token: sub.Endpoint})
			continue
		}

		out.Web = append(out.Web, WebSubscription{
			Endpoint: sub.Endpoint,
			P256DH:   keys.P256DH,
			Auth:     keys.Auth,
		})
	}
	return out
}
