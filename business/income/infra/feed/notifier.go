// Package feed mirrors income notifications onto the WebSocket event feed.
package feed

import (
	"context"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/logger"
)

// Publisher is satisfied by *wsfeed.Hub.
type Publisher interface {
	Publish(v any) error
}

// Event is the JSON shape sent to feed subscribers.
type Event struct {
	domain.Notification
	Income *Income `json:"income,omitempty"`
}

// Income is the wire view of an IncomeEvent.
type Income struct {
	Amount       string        `json:"amount"`
	Currency     string        `json:"currency"`
	CurrencyCode string        `json:"currency_code,omitempty"`
	TotalIncome  string        `json:"total_income,omitempty"`
	Model        string        `json:"model,omitempty"`
	Usage        *domain.Usage `json:"usage,omitempty"`
	Source       string        `json:"source_format"`
}

// Notifier implements app.Notifier over a Publisher.
type Notifier struct {
	pub    Publisher
	logger logger.LoggerInterface
}

// NewNotifier creates a Notifier.
func NewNotifier(pub Publisher, log logger.LoggerInterface) *Notifier {
	return &Notifier{pub: pub, logger: log}
}

// Notify publishes n. Failures are logged, never returned.
func (f *Notifier) Notify(ctx context.Context, n domain.Notification) {
	if err := f.pub.Publish(ToEvent(n)); err != nil {
		f.logger.Warn(ctx, "event feed publish failed", "kind", n.Kind, "error", err)
	}
}

// ToEvent converts a notification to its feed representation.
func ToEvent(n domain.Notification) Event {
	e := Event{Notification: n}
	if ev := n.Event; ev != nil {
		e.Income = &Income{
			Amount:       ev.Amount.String(),
			Currency:     ev.Currency,
			CurrencyCode: string(ev.CurrencyCode),
			Model:        ev.Model,
			Usage:        ev.Usage,
			Source:       string(ev.SourceFormat),
		}
		if ev.TotalIncome.Valid {
			e.Income.TotalIncome = ev.TotalIncome.Decimal.String()
		}
	}
	return e
}
