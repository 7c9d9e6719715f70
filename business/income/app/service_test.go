package app

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/logger"
)

func newTestService(t *testing.T, b *fakeBroadcaster, prices PriceSource) (*IncomeService, *recordingNotifier) {
	t.Helper()
	rec := &recordingNotifier{}
	svc, err := NewIncomeService(b, rec, prices, newTestPublisher(), logger.NewDiscard())
	require.NoError(t, err)
	return svc, rec
}

func TestService_FreeTextAccumulates(t *testing.T) {
	svc, rec := newTestService(t, newFakeBroadcaster("c1"), staticPrices{defaults: testDefaults})
	peer := Peer{ID: "c1", Remote: "127.0.0.1:5000"}
	ctx := context.Background()

	svc.OnFrame(ctx, peer, []byte(`{"收益: 12.50 ¥"}`))
	svc.OnFrame(ctx, peer, []byte(`income: 0.5 CNY`))

	assert.Equal(t, "13", svc.CurrentTotalIncome().String())

	last := rec.last()
	assert.Equal(t, domain.KindMessage, last.Kind)
	require.NotNil(t, last.Event)
	assert.Equal(t, domain.SourceFreeText, last.Event.SourceFormat)
	assert.Equal(t, "13", last.Total)
	assert.Equal(t, "c1", last.ConnectionID)
}

func TestService_StructuredResetsTotal(t *testing.T) {
	svc, _ := newTestService(t, newFakeBroadcaster("c1"), staticPrices{defaults: testDefaults})
	peer := Peer{ID: "c1"}
	ctx := context.Background()

	svc.OnFrame(ctx, peer, []byte(`{"total_income": 10.0, "amount": 10.0}`))
	svc.OnFrame(ctx, peer, []byte(`{"total_income": 7.0, "amount": -3.0}`))

	assert.Equal(t, "7", svc.CurrentTotalIncome().String())
	assert.Equal(t, uint64(2), svc.Snapshot().Events)
	assert.Equal(t, domain.SourceStructured, svc.Snapshot().LastDiscipline)
}

func TestService_NonIncomeFrames(t *testing.T) {
	svc, rec := newTestService(t, newFakeBroadcaster("c1"), staticPrices{defaults: testDefaults})
	peer := Peer{ID: "c1"}
	ctx := context.Background()

	svc.OnFrame(ctx, peer, []byte(`{"type":"ack"}`))
	svc.OnFrame(ctx, peer, []byte(`loading model`))
	svc.OnFrame(ctx, peer, []byte{0xff})

	assert.True(t, svc.CurrentTotalIncome().IsZero())
	assert.Equal(t, []domain.Kind{domain.KindMessage, domain.KindMessage, domain.KindError}, rec.kinds())
	assert.Contains(t, rec.last().Content, string(apperror.CodeDecodeError))
}

func TestService_OnConnectDeliversPending(t *testing.T) {
	b := newFakeBroadcaster()
	svc, rec := newTestService(t, b, staticPrices{defaults: testDefaults})
	ctx := context.Background()

	res, err := svc.PublishPrices(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "ollama", res.Engine)

	b.conns["c1"] = false
	svc.OnConnect(ctx, Peer{ID: "c1", Remote: "r1"})

	require.Len(t, b.received("c1"), 1)
	msg := decodeMessage(t, b.received("c1")[0])
	assert.Equal(t, "*", msg.Data[0].Model)
	assert.Equal(t, []domain.Kind{domain.KindConnect}, rec.kinds())

	b.conns["c2"] = true
	svc.OnConnect(ctx, Peer{ID: "c2", Remote: "r2"})
	assert.Equal(t, []domain.Kind{domain.KindConnect, domain.KindConnect, domain.KindError}, rec.kinds())
	assert.Equal(t, 1, svc.Connections())

	svc.OnDisconnect(ctx, Peer{ID: "c2", Remote: "r2"}, nil)
	assert.Equal(t, domain.KindDisconnect, rec.last().Kind)
}

func TestService_PublishTable(t *testing.T) {
	b := newFakeBroadcaster("c1", "c2", "c3")
	svc, _ := newTestService(t, b, staticPrices{
		table:    domain.PriceTable{"llama3": {IPPM: "3.8", OPPM: "8.3"}},
		defaults: testDefaults,
	})

	res, err := svc.PublishPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 1, res.Entries)
}

type fakeLifecycle struct {
	state  ServerState
	starts int
}

func (f *fakeLifecycle) Start(context.Context, string, int) error {
	if f.state == StateRunning {
		return apperror.New(apperror.CodeAlreadyRunning)
	}
	f.starts++
	f.state = StateRunning
	return nil
}

func (f *fakeLifecycle) Stop(context.Context) error {
	f.state = StateStopped
	return nil
}

func (f *fakeLifecycle) State() ServerState { return f.state }
func (f *fakeLifecycle) Addr() net.Addr     { return nil }

func TestService_Lifecycle(t *testing.T) {
	svc, _ := newTestService(t, newFakeBroadcaster(), staticPrices{defaults: testDefaults})
	ctx := context.Background()

	err := svc.Start(ctx, "127.0.0.1", 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	assert.Equal(t, StateStopped, svc.State())

	lc := &fakeLifecycle{state: StateStopped}
	svc.AttachServer(lc)

	require.NoError(t, svc.Start(ctx, "127.0.0.1", 0))
	assert.Equal(t, StateRunning, svc.State())
	assert.True(t, apperror.HasCode(svc.Start(ctx, "127.0.0.1", 0), apperror.CodeAlreadyRunning))
	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Stop(ctx))
	assert.Equal(t, 1, lc.starts)
}

func TestMultiNotifier(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	var calls int
	m := MultiNotifier{a, nil, b, NotifierFunc(func(context.Context, domain.Notification) { calls++ })}

	m.Notify(context.Background(), domain.Notification{Kind: domain.KindConnect})
	assert.Len(t, a.notes, 1)
	assert.Len(t, b.notes, 1)
	assert.Equal(t, 1, calls)
}
