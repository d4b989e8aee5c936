// Package notification delivers operational alerts (failed aggregation runs,
// an open Redis circuit) to a webhook or a Telegram chat.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// Config selects the alert backends. Empty fields disable a backend; with
// none configured alerts are only logged.
type Config struct {
	WebhookURL     string        `env:"WEBHOOK_URL"`
	TelegramToken  string        `env:"TELEGRAM_TOKEN"`
	TelegramChatID string        `env:"TELEGRAM_CHAT_ID"`
	Cooldown       time.Duration `env:"COOLDOWN" envDefault:"15m"`
}

// New builds the notifier described by cfg: every configured backend plus
// the log, with repeats of the same title suppressed for cfg.Cooldown.
func New(cfg Config, logger *slog.Logger) Notifier {
	multi := Multi{NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		multi = append(multi, NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		multi = append(multi, NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	return NewThrottled(multi, cfg.Cooldown)
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, "alert", "title", alert.Title, "message", alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Throttled drops an alert whose title was sent less than cooldown ago.
type Throttled struct {
	next     Notifier
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottled wraps next. A zero cooldown disables throttling.
func NewThrottled(next Notifier, cooldown time.Duration) *Throttled {
	return &Throttled{
		next:     next,
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

func (t *Throttled) Send(ctx context.Context, alert Alert) error {
	now := t.now()
	t.mu.Lock()
	if prev, ok := t.last[alert.Title]; ok && now.Sub(prev) < t.cooldown {
		t.mu.Unlock()
		return nil
	}
	t.last[alert.Title] = now
	t.mu.Unlock()
	return t.next.Send(ctx, alert)
}
