package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"giveaway-engine/models"
	"giveaway-engine/utils"
)

// Notifier is the outbound messaging collaborator. Delivery is best-effort:
// callers log per-channel failures and never roll back state transitions on them.
type Notifier interface {
	// NotifyWinner sends the claim link to a winner on each requested channel
	// and reports per-channel success/failure.
	NotifyWinner(ctx context.Context, entry *models.Entry, giveaway *models.Giveaway, claimURL string, deadline time.Time, channels []string) []ChannelResult

	// NotifyBonusEvent pings the entrant about a bonus or referral credit.
	// Fire-and-forget; no delivery guarantee.
	NotifyBonusEvent(ctx context.Context, entry *models.Entry, giveaway *models.Giveaway, event string)
}

// ChannelResult records one delivery attempt.
type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HTTPNotifier posts notification jobs to the platform's notification service.
type HTTPNotifier struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewHTTPNotifier() *HTTPNotifier {
	baseURL := os.Getenv("NOTIFY_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("NOTIFY_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("GIVEAWAY_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("GIVEAWAY_SERVICE_TOKEN environment variable is required for notifications")
	}

	return &HTTPNotifier{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

type notifyPayload struct {
	Channel    string `json:"channel"` // "email" or "sms"
	Recipient  string `json:"recipient"`
	Template   string `json:"template"`
	GiveawayID string `json:"giveaway_id"`
	Title      string `json:"title"`
	ClaimURL   string `json:"claim_url,omitempty"`
	Deadline   string `json:"deadline,omitempty"`
}

func (n *HTTPNotifier) NotifyWinner(ctx context.Context, entry *models.Entry, giveaway *models.Giveaway, claimURL string, deadline time.Time, channels []string) []ChannelResult {
	results := make([]ChannelResult, 0, len(channels))
	for _, channel := range channels {
		recipient := entry.Email
		if channel == "sms" {
			recipient = entry.Phone
		}
		if recipient == "" {
			results = append(results, ChannelResult{Channel: channel, Success: false, Error: "no contact on file"})
			continue
		}
		err := n.send(ctx, notifyPayload{
			Channel:    channel,
			Recipient:  recipient,
			Template:   "winner_claim",
			GiveawayID: giveaway.ID,
			Title:      giveaway.Title,
			ClaimURL:   claimURL,
			Deadline:   deadline.Format(time.RFC3339),
		})
		if err != nil {
			results = append(results, ChannelResult{Channel: channel, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, ChannelResult{Channel: channel, Success: true})
	}
	return results
}

func (n *HTTPNotifier) NotifyBonusEvent(ctx context.Context, entry *models.Entry, giveaway *models.Giveaway, event string) {
	contact, contactType := entry.PrimaryContact()
	if contact == "" {
		return
	}
	err := n.send(ctx, notifyPayload{
		Channel:    string(contactType),
		Recipient:  contact,
		Template:   event,
		GiveawayID: giveaway.ID,
		Title:      giveaway.Title,
	})
	if err != nil {
		log.Printf("[NOTIFY] bonus event %q for entry %s failed: %v", event, entry.ID, err)
	}
}

func (n *HTTPNotifier) send(ctx context.Context, payload notifyPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.BaseURL+"/api/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", n.Token)

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification service returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// NoopNotifier records nothing and always succeeds. Used in tests and when no
// notification service is configured.
type NoopNotifier struct{}

func (NoopNotifier) NotifyWinner(_ context.Context, _ *models.Entry, _ *models.Giveaway, _ string, _ time.Time, channels []string) []ChannelResult {
	results := make([]ChannelResult, 0, len(channels))
	for _, ch := range channels {
		results = append(results, ChannelResult{Channel: ch, Success: true})
	}
	return results
}

func (NoopNotifier) NotifyBonusEvent(context.Context, *models.Entry, *models.Giveaway, string) {}
