package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/apm"
	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/logger"
)

const (
	tracerName = "github.com/fd1az/starfire-income/business/income"
	meterName  = "github.com/fd1az/starfire-income/business/income"
)

// incomeMetrics holds OTEL metric instruments.
type incomeMetrics struct {
	frames      metric.Int64Counter
	events      metric.Int64Counter
	errors      metric.Int64Counter
	connections metric.Int64UpDownCounter
	publishes   metric.Int64Counter
	total       metric.Float64Gauge
}

// IncomeService ties the parser, ledger and publisher to the transport. It
// is the ConnectionHandler the server drives and the control surface the
// rest of the process uses.
type IncomeService struct {
	parser    *Parser
	ledger    *domain.Ledger
	publisher *PriceSyncPublisher
	conns     Broadcaster
	notifier  Notifier
	prices    PriceSource
	logger    logger.LoggerInterface

	mu     sync.RWMutex
	server Lifecycle

	tracer  apm.Tracer
	metrics *incomeMetrics
}

// NewIncomeService creates the service. The transport is attached later with
// AttachServer because it needs the service as its handler.
func NewIncomeService(
	conns Broadcaster,
	notifier Notifier,
	prices PriceSource,
	publisher *PriceSyncPublisher,
	log logger.LoggerInterface,
) (*IncomeService, error) {
	s := &IncomeService{
		parser:    NewParser(),
		ledger:    domain.NewLedger(),
		publisher: publisher,
		conns:     conns,
		notifier:  notifier,
		prices:    prices,
		logger:    log,
		tracer:    apm.NewTracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return s, nil
}

// initMetrics initializes OTEL metric instruments.
func (s *IncomeService) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &incomeMetrics{}

	s.metrics.frames, err = meter.Int64Counter(
		"income_frames_total",
		metric.WithDescription("Frames received from workers, by result"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	s.metrics.events, err = meter.Int64Counter(
		"income_events_total",
		metric.WithDescription("Income events applied to the ledger, by source format"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	s.metrics.errors, err = meter.Int64Counter(
		"income_errors_total",
		metric.WithDescription("Per-connection errors, by code"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.connections, err = meter.Int64UpDownCounter(
		"income_connections",
		metric.WithDescription("Live worker connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}

	s.metrics.publishes, err = meter.Int64Counter(
		"income_price_publishes_total",
		metric.WithDescription("Price sync publishes"),
		metric.WithUnit("{publish}"),
	)
	if err != nil {
		return err
	}

	s.metrics.total, err = meter.Float64Gauge(
		"income_total",
		metric.WithDescription("Cumulative income total"),
	)
	if err != nil {
		return err
	}

	return nil
}

// AttachServer sets the transport controlled by Start and Stop.
func (s *IncomeService) AttachServer(l Lifecycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = l
}

func (s *IncomeService) lifecycle() (Lifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil, apperror.New(apperror.CodeInvalidState, apperror.WithContext("no server attached"))
	}
	return s.server, nil
}

// Start starts listening on host:port.
func (s *IncomeService) Start(ctx context.Context, host string, port int) error {
	l, err := s.lifecycle()
	if err != nil {
		return err
	}
	return l.Start(ctx, host, port)
}

// Stop stops the listener and drops every connection. Safe to call twice.
func (s *IncomeService) Stop(ctx context.Context) error {
	l, err := s.lifecycle()
	if err != nil {
		return err
	}
	return l.Stop(ctx)
}

// State reports the transport state.
func (s *IncomeService) State() ServerState {
	l, err := s.lifecycle()
	if err != nil {
		return StateStopped
	}
	return l.State()
}

// Addr returns the bound listener address, or nil when not running.
func (s *IncomeService) Addr() net.Addr {
	l, err := s.lifecycle()
	if err != nil {
		return nil
	}
	return l.Addr()
}

// Connections returns the number of live workers.
func (s *IncomeService) Connections() int {
	return s.conns.Count()
}

// CurrentTotalIncome returns the ledger total.
func (s *IncomeService) CurrentTotalIncome() decimal.Decimal {
	return s.ledger.Current()
}

// Snapshot returns the ledger with its bookkeeping.
func (s *IncomeService) Snapshot() domain.LedgerSnapshot {
	return s.ledger.Snapshot()
}

// PublishPrices publishes the table currently held by the price source.
func (s *IncomeService) PublishPrices(ctx context.Context) (PublishResult, error) {
	table, defaults := s.prices.Prices()
	return s.Publish(ctx, table, defaults)
}

// Publish publishes table, caching it for workers that connect later.
func (s *IncomeService) Publish(ctx context.Context, table domain.PriceTable, defaults domain.PriceDefaults) (PublishResult, error) {
	ctx, span := s.tracer.StartSpanFromContext(ctx, "income.publish")
	defer span.End()

	res, err := s.publisher.Publish(ctx, s.conns, table, defaults)
	if err != nil {
		span.NoticeError(err)
		s.logger.Error(ctx, "price publish failed", "error", err)
		return res, err
	}

	span.SetAttributes(
		attribute.String("engine", res.Engine),
		attribute.Int("sent", res.Sent),
		attribute.Bool("cached", res.Cached),
	)
	s.metrics.publishes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", res.Cached)))
	return res, nil
}

// OnConnect announces the worker and hands it the pending price config.
func (s *IncomeService) OnConnect(ctx context.Context, peer Peer) {
	s.metrics.connections.Add(ctx, 1)
	s.logger.Info(ctx, "worker connected", "conn_id", peer.ID, "remote", peer.Remote)

	s.notify(ctx, domain.KindConnect, peer, "worker connected: "+peer.Remote, nil)

	sent, err := s.publisher.OnConnect(ctx, s.conns, peer.ID)
	if err != nil {
		s.OnError(ctx, peer, apperror.New(apperror.CodeSendFailure,
			apperror.WithContext("pending price config"), apperror.WithCause(err)))
		return
	}
	if sent {
		s.logger.Debug(ctx, "pending price config delivered", "conn_id", peer.ID)
	}
}

// OnFrame parses one payload and applies any income it carries.
func (s *IncomeService) OnFrame(ctx context.Context, peer Peer, payload []byte) {
	ctx, span := s.tracer.StartSpanFromContext(ctx, "income.frame")
	defer span.End()
	span.SetAttributes(attribute.String("conn_id", peer.ID), attribute.Int("bytes", len(payload)))

	res, err := s.parser.Parse(payload)
	if err != nil {
		span.NoticeError(err)
		s.metrics.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "dropped")))
		s.OnError(ctx, peer, err)
		return
	}

	s.metrics.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(res.Kind))))
	span.SetAttributes(attribute.String("result", string(res.Kind)))

	if len(res.Defaulted) > 0 {
		malformed := apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext("defaulted: "+strings.Join(res.Defaulted, ",")))
		s.logger.Warn(ctx, "payload fields replaced by defaults", append(malformed.ToLog(), "conn_id", peer.ID)...)
	}

	if res.Kind != ResultIncome {
		if res.Kind == ResultLogLine {
			s.logger.Debug(ctx, "worker log line", "conn_id", peer.ID, "code", apperror.CodeUnparseableLine)
		}
		s.notify(ctx, domain.KindMessage, peer, res.Text, nil)
		return
	}

	ev := res.Event
	total := s.ledger.Apply(*ev)

	f, _ := total.Float64()
	s.metrics.total.Record(ctx, f)
	s.metrics.events.Add(ctx, 1, metric.WithAttributes(attribute.String("format", string(ev.SourceFormat))))
	span.SetAttributes(
		attribute.String("format", string(ev.SourceFormat)),
		attribute.String("amount", ev.Amount.String()),
		attribute.String("total", total.String()),
	)

	s.logger.Info(ctx, "income received",
		"conn_id", peer.ID,
		"format", ev.SourceFormat,
		"amount", ev.Amount.String(),
		"currency", ev.Currency,
		"model", ev.Model,
		"total", total.String(),
	)

	s.notify(ctx, domain.KindMessage, peer, res.Text, ev, total)
}

// OnError reports a non-fatal per-connection failure.
func (s *IncomeService) OnError(ctx context.Context, peer Peer, err error) {
	code := apperror.GetCode(err)
	s.metrics.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))

	kv := []any{"conn_id", peer.ID, "remote", peer.Remote}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		kv = append(kv, appErr.ToLog()...)
	} else {
		kv = append(kv, "error", err)
	}
	s.logger.Warn(ctx, "connection error", kv...)

	s.notify(ctx, domain.KindError, peer, err.Error(), nil)
}

// OnDisconnect reports that the worker is gone. err is nil on a clean close.
func (s *IncomeService) OnDisconnect(ctx context.Context, peer Peer, err error) {
	s.metrics.connections.Add(ctx, -1)

	content := "worker disconnected: " + peer.Remote
	if err != nil {
		s.logger.Info(ctx, "worker disconnected", "conn_id", peer.ID, "remote", peer.Remote, "reason", err.Error())
		content += " (" + err.Error() + ")"
	} else {
		s.logger.Info(ctx, "worker disconnected", "conn_id", peer.ID, "remote", peer.Remote)
	}

	s.notify(ctx, domain.KindDisconnect, peer, content, nil)
}

func (s *IncomeService) notify(ctx context.Context, kind domain.Kind, peer Peer, content string, ev *domain.IncomeEvent, total ...decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	n := domain.Notification{
		Kind:         kind,
		ConnectionID: peer.ID,
		Remote:       peer.Remote,
		Content:      content,
		Event:        ev,
		Time:         time.Now(),
	}
	if len(total) > 0 {
		n.Total = total[0].String()
	}
	s.notifier.Notify(ctx, n)
}

// MultiNotifier fans a notification out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n domain.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
