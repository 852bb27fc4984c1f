package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"

	"hearthledger/internal/model"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON sent to the push service.
type Payload struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// BudgetAlert builds the payload for a budget crossing its limit.
func BudgetAlert(b model.BudgetProgress) Payload {
	return Payload{
		Type:  model.NotifTypeBudgetAlert,
		Title: "Budget alert",
		Body:  fmt.Sprintf("%s is at %d%% of its monthly budget", b.Category, percent(b.SpentCents, b.LimitCents)),
		Tag:   fmt.Sprintf("budget-%s", b.Category),
	}
}

// StreakReminder builds the payload nudging a member to keep a habit streak alive.
func StreakReminder(habit model.Habit, streak int) Payload {
	return Payload{
		Type:  model.NotifTypeStreakReminder,
		Title: "Keep your streak going",
		Body:  fmt.Sprintf("%s: %d in a row, don't break it today", habit.Name, streak),
		Tag:   fmt.Sprintf("streak-%d", habit.ID),
	}
}

// TrialEnding builds the payload warning that a household trial expires soon.
func TrialEnding(daysLeft int) Payload {
	body := fmt.Sprintf("Your Pro trial ends in %d days", daysLeft)
	if daysLeft == 1 {
		body = "Your Pro trial ends tomorrow"
	}
	return Payload{
		Type:  model.NotifTypeTrialEnding,
		Title: "Trial ending",
		Body:  body,
		Tag:   "trial-ending",
	}
}

func percent(spent, limit int64) int {
	if limit <= 0 {
		return 0
	}
	return int(spent * 100 / limit)
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// Service handles sending web push notifications.
type Service struct {
	publicKey  string
	privateKey string
}

// NewService creates a new push service with VAPID keys.
func NewService(publicKey, privateKey string) *Service {
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
	}
}

// Configured returns true when both VAPID keys are set.
func (s *Service) Configured() bool {
	return s.publicKey != "" && s.privateKey != ""
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send sends a push notification to a subscription.
func (s *Service) Send(sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      "mailto:noreply@hearthledger.app",
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// Fanout delivers a payload to every subscription concurrently, at most four
// in flight. Expired subscriptions are reported on the returned slice so the
// caller can prune them; other delivery failures abort the group.
func (s *Service) Fanout(ctx context.Context, subs []model.PushSubscription, payload Payload) ([]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	expired := make([]string, 0)
	var mu sync.Mutex
	for i := range subs {
		sub := subs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := s.Send(&sub, payload)
			if errors.Is(err, ErrExpired) {
				mu.Lock()
				expired = append(expired, sub.Endpoint)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return expired, err
	}
	return expired, nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())

	return publicKey, privateKey, nil
}
