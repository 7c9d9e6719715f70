// Package console renders income notifications as plain text lines.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/currency"
)

// Reporter implements app.Notifier for terminal output.
type Reporter struct {
	out        io.Writer
	currencies *currency.Registry
	mu         sync.Mutex
}

// NewReporter creates a Reporter writing to stdout.
func NewReporter(currencies *currency.Registry) *Reporter {
	return NewReporterTo(os.Stdout, currencies)
}

// NewReporterTo creates a Reporter writing to out.
func NewReporterTo(out io.Writer, currencies *currency.Registry) *Reporter {
	return &Reporter{out: out, currencies: currencies}
}

// Start prints the banner.
func (r *Reporter) Start(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "Income Channel Started")
	fmt.Fprintln(r.out, "======================")
	fmt.Fprintf(r.out, "Listening on %s\n", addr)
}

// Notify prints one line per notification.
func (r *Reporter) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := n.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	prefix := fmt.Sprintf("[%s]", ts.Format("15:04:05"))

	switch n.Kind {
	case domain.KindConnect:
		fmt.Fprintf(r.out, "%s + %s\n", prefix, n.Content)
	case domain.KindDisconnect:
		fmt.Fprintf(r.out, "%s - %s\n", prefix, n.Content)
	case domain.KindError:
		fmt.Fprintf(r.out, "%s ! %s\n", prefix, n.Content)
	default:
		if n.Event == nil {
			fmt.Fprintf(r.out, "%s   %s\n", prefix, n.Content)
			return
		}
		fmt.Fprintf(r.out, "%s $ %s\n", prefix, r.describe(n))
	}
}

func (r *Reporter) describe(n domain.Notification) string {
	ev := n.Event
	line := "income " + r.format(ev.Amount, ev.Currency)
	if ev.Model != "" {
		line += " model=" + ev.Model
	}
	if ev.Usage != nil && ev.Usage.TotalTokens > 0 {
		line += " tokens=" + humanize.Comma(ev.Usage.TotalTokens)
	}
	if ev.Message != "" && ev.SourceFormat == domain.SourceLegacy {
		line += " (" + ev.Message + ")"
	}
	if n.Total != "" {
		if total, err := decimal.NewFromString(n.Total); err == nil {
			line += " | total " + r.format(total, ev.Currency)
		}
	}
	return line
}

func (r *Reporter) format(amount decimal.Decimal, token string) string {
	if r.currencies != nil {
		if c, ok := r.currencies.Resolve(token); ok {
			return c.Format(amount)
		}
	}
	return amount.String() + " " + token
}

// Stop prints the closing line with the final total.
func (r *Reporter) Stop(snap domain.LedgerSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "")
	fmt.Fprintf(r.out, "Income Channel Stopped: %s events, total %s\n",
		humanize.Comma(int64(snap.Events)), r.format(snap.Total, domain.DefaultCurrency))
}
