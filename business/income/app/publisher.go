package app

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/logger"
)

const (
	priceMessageID   = "model_price_config"
	priceMessageType = "model_prices"
)

// PriceMessage is the server-to-worker price sync payload.
type PriceMessage struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Timestamp int64               `json:"timestamp"`
	Data      []domain.PriceEntry `json:"data"`
}

// PublishResult describes one Publish call.
type PublishResult struct {
	Engine  string // distinct engines in the message, comma separated
	Entries int
	Sent    int  // connections that received it now
	Cached  bool // true when nobody was connected
}

// PriceSyncPublisher builds price sync messages and keeps the latest one
// pending so late connections still receive it.
type PriceSyncPublisher struct {
	log logger.LoggerInterface
	now func() time.Time

	// deliverMu orders deliveries: a Publish and an OnConnect never
	// interleave, so a worker's last received table is the pending one.
	deliverMu sync.Mutex

	mu      sync.Mutex
	pending []byte
}

// NewPriceSyncPublisher creates a publisher with nothing pending.
func NewPriceSyncPublisher(log logger.LoggerInterface) *PriceSyncPublisher {
	return &PriceSyncPublisher{log: log, now: time.Now}
}

// BuildMessage serializes table. Entries missing an engine get
// domain.DefaultEngine and entries missing a price get the global default.
// An empty table yields a single wildcard entry priced at the defaults with
// the engine implied by the mode.
func (p *PriceSyncPublisher) BuildMessage(ctx context.Context, table domain.PriceTable, defaults domain.PriceDefaults) ([]byte, string, error) {
	msg := PriceMessage{
		ID:        priceMessageID,
		Type:      priceMessageType,
		Timestamp: p.now().Unix(),
	}

	if len(table) == 0 {
		p.log.Warn(ctx, "no per-model prices configured, publishing wildcard entry",
			"mode", defaults.Mode, "ippm", defaults.IPPM, "oppm", defaults.OPPM)

		msg.Data = []domain.PriceEntry{{
			Model:  domain.WildcardModel,
			Engine: defaults.Mode.Engine(),
			IPPM:   defaults.IPPM,
			OPPM:   defaults.OPPM,
		}}
	} else {
		msg.Data = make([]domain.PriceEntry, 0, len(table))
		for _, name := range table.Models() {
			entry := table[name]
			if entry.Model == "" {
				entry.Model = name
			}
			if entry.Engine == "" {
				entry.Engine = domain.DefaultEngine
			}
			if entry.IPPM == "" {
				entry.IPPM = defaults.IPPM
			}
			if entry.OPPM == "" {
				entry.OPPM = defaults.OPPM
			}
			msg.Data = append(msg.Data, entry)
		}
	}

	for _, e := range msg.Data {
		if e.IPPM == "" || e.OPPM == "" {
			return nil, "", apperror.New(apperror.CodeInvalidPriceTable,
				apperror.WithContext("model "+e.Model+" has no price"))
		}
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return nil, "", apperror.Wrap(err, apperror.CodeInternalError, "marshal price message")
	}
	return b, enginesOf(msg.Data), nil
}

func enginesOf(entries []domain.PriceEntry) string {
	seen := make(map[string]struct{}, len(entries))
	var engines []string
	for _, e := range entries {
		if _, ok := seen[e.Engine]; ok {
			continue
		}
		seen[e.Engine] = struct{}{}
		engines = append(engines, e.Engine)
	}
	sort.Strings(engines)
	return strings.Join(engines, ",")
}

// Publish builds the message, makes it the pending one and broadcasts it if
// any worker is connected.
func (p *PriceSyncPublisher) Publish(ctx context.Context, b Broadcaster, table domain.PriceTable, defaults domain.PriceDefaults) (PublishResult, error) {
	msg, engine, err := p.BuildMessage(ctx, table, defaults)
	if err != nil {
		return PublishResult{}, err
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	p.pending = msg
	p.mu.Unlock()

	res := PublishResult{Engine: engine, Entries: max(len(table), 1)}
	if b.Count() == 0 {
		res.Cached = true
		p.log.Info(ctx, "no worker connected, price config cached", "engine", engine)
		return res, nil
	}

	res.Sent = b.Broadcast(ctx, msg)
	p.log.Info(ctx, "price config published", "engine", engine, "sent", res.Sent)
	return res, nil
}

// OnConnect sends the pending message, if any, to the new connection only.
// It reports whether anything was sent.
func (p *PriceSyncPublisher) OnConnect(ctx context.Context, b Broadcaster, connID string) (bool, error) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	msg := p.Pending()
	if msg == nil {
		return false, nil
	}
	if err := b.SendTo(ctx, connID, msg); err != nil {
		return false, err
	}
	return true, nil
}

// Pending returns the pending message or nil.
func (p *PriceSyncPublisher) Pending() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}
