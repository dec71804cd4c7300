package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// DefaultExpoURL is the production push gateway; tests point BaseURL at a
	// local server instead.
	DefaultExpoURL = "https://exp.host"

	expoSendPath     = "/--/api/v2/push/send"
	expoReceiptsPath = "/--/api/v2/push/getReceipts"

	// Provider-mandated batch limits.
	expoSendBatchSize    = 100
	expoReceiptBatchSize = 300
)

// Ticket/receipt error codes that mean the token will never deliver again.
const (
	expoErrDeviceNotRegistered = "DeviceNotRegistered"
	expoErrInvalidCredentials  = "InvalidCredentials"
)

// ExpoSender submits mobile tokens in provider-sized batches and then polls
// delivery receipts for the tickets that looked fine at submission time.
// Submission success does not imply delivery success: a receipt can still
// report the device as unregistered, and those tokens are flagged for cleanup
// exactly like ticket-level failures.
type ExpoSender struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewExpoSender(baseURL, accessToken string, logger *slog.Logger) *ExpoSender {
	if baseURL == "" {
		baseURL = DefaultExpoURL
	}
	return &ExpoSender{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{},
		logger:      logger.With("component", "expo-sender"),
	}
}

type expoMessage struct {
	To       []string          `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type expoSendResponse struct {
	Data []expoTicket `json:"data"`
}

type expoReceiptsResponse struct {
	Data map[string]expoTicket `json:"data"`
}

// ValidExpoToken reports whether a token has the provider's expected shape.
func ValidExpoToken(token string) bool {
	if strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[") {
		return strings.HasSuffix(token, "]") && !strings.Contains(strings.TrimSuffix(token, "]"), "]")
	}
	return false
}

// Send submits the batch and polls receipts. Malformed tokens are silently
// skipped (the partitioner only checks classification, not token shape).
func (s *ExpoSender) Send(ctx context.Context, subs []MobileSubscription, content Content) ChannelResult {
	var result ChannelResult

	tokens := make([]string, 0, len(subs))
	for _, sub := range subs {
		if ValidExpoToken(sub.Token) {
			tokens = append(tokens, sub.Token)
		}
	}
	if len(tokens) == 0 {
		return result
	}

	data := map[string]string{}
	if content.URL != "" {
		data["url"] = content.URL
	}

	// ticket id -> token, for receipt-level invalidation.
	okTickets := make(map[string]string)

	for start := 0; start < len(tokens); start += expoSendBatchSize {
		end := min(start+expoSendBatchSize, len(tokens))
		chunk := tokens[start:end]

		msg := expoMessage{
			To:       chunk,
			Title:    content.Title,
			Body:     content.Body,
			Data:     data,
			Sound:    "default",
			Priority: "high",
		}

		var resp expoSendResponse
		if err := s.post(ctx, expoSendPath, msg, &resp); err != nil {
			s.logger.Warn("expo batch submit failed", "tokens", len(chunk), "error", err)
			result.Temporary += len(chunk)
			continue
		}
		if len(resp.Data) != len(chunk) {
			s.logger.Warn("expo ticket count mismatch", "want", len(chunk), "got", len(resp.Data))
			result.Temporary += len(chunk)
			continue
		}

		for i, ticket := range resp.Data {
			switch {
			case ticket.Status == "ok":
				result.Success++
				if ticket.ID != "" {
					okTickets[ticket.ID] = chunk[i]
				}
			case isPermanentExpoError(ticket.Details.Error):
				result.Invalid = append(result.Invalid, chunk[i])
			default:
				result.Temporary++
			}
		}
	}

	s.pollReceipts(ctx, okTickets, &result)
	return result
}

// pollReceipts asks the provider what actually happened to the tickets that
// were accepted. A receipt reporting permanent invalidity demotes the earlier
// submission success into a cleanup candidate.
func (s *ExpoSender) pollReceipts(ctx context.Context, tickets map[string]string, result *ChannelResult) {
	if len(tickets) == 0 {
		return
	}

	ids := make([]string, 0, len(tickets))
	for id := range tickets {
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += expoReceiptBatchSize {
		end := min(start+expoReceiptBatchSize, len(ids))

		var resp expoReceiptsResponse
		if err := s.post(ctx, expoReceiptsPath, map[string][]string{"ids": ids[start:end]}, &resp); err != nil {
			// Best effort: the sends already happened, we only lose cleanup.
			s.logger.Warn("expo receipt poll failed", "ids", end-start, "error", err)
			continue
		}

		for id, receipt := range resp.Data {
			if receipt.Status == "error" && isPermanentExpoError(receipt.Details.Error) {
				result.Invalid = append(result.Invalid, tickets[id])
				result.Success--
			}
		}
	}
}

func (s *ExpoSender) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo responded %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isPermanentExpoError(code string) bool {
	return code == expoErrDeviceNotRegistered || code == expoErrInvalidCredentials
}
