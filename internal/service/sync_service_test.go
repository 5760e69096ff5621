package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/freshdesk"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

var syncNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type syncFixture struct {
	engine     *SyncEngine
	store      *repository.MemoryStore
	source     *fakeSource
	dispatcher *recordingDispatcher
	settings   *SyncConfigService
	lock       *SyncLock
}

func newSyncFixture(t *testing.T, source *fakeSource) *syncFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	return newSyncFixtureWithStore(t, source, store, store)
}

func newSyncFixtureWithStore(t *testing.T, source *fakeSource, mem *repository.MemoryStore, store repository.Store) *syncFixture {
	t.Helper()
	logger := zap.NewNop()
	settings := NewSyncConfigService(SyncConfigDependencies{
		Settings: mem.SyncSettings(),
		Defaults: config.SyncConfig{DefaultCron: "0 0/5 * * * ?", DefaultEnabled: true, Timezone: "UTC"},
		Logger:   logger,
	})
	require.NoError(t, settings.InitDefaults(context.Background()))

	dispatcher := &recordingDispatcher{}
	lock := NewSyncLock()
	engine := NewSyncEngine(SyncDependencies{
		Store:               store,
		Source:              source,
		Dispatcher:          dispatcher,
		Lock:                lock,
		Logs:                NewSyncLogService(mem.SyncLogs(), logger),
		Settings:            settings,
		Logger:              logger,
		Metrics:             observability.NewMetrics(),
		ConversationWorkers: 2,
	})
	engine.now = func() time.Time { return syncNow }
	return &syncFixture{engine: engine, store: mem, source: source, dispatcher: dispatcher, settings: settings, lock: lock}
}

func TestSyncCreatesNewTicketAndDispatchesTranslation(t *testing.T) {
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "It is broken")}}
	f := newSyncFixture(t, source)

	outcome := f.engine.Run(context.Background(), domain.TriggerManual)

	require.True(t, outcome.Success)
	require.Equal(t, 1, outcome.NewCount)
	require.Equal(t, 0, outcome.UpdatedCount)

	ticket, err := f.store.Tickets().GetByExternalID(context.Background(), "77")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatePendingTrans, ticket.State)
	require.Equal(t, "Printer", ticket.Subject)

	require.Equal(t, []domain.TaskKind{domain.TaskTranslate}, f.dispatcher.kinds())
	require.Equal(t, "77", f.dispatcher.tasks[0].ticket.ExternalID)

	logs := f.store.SyncLogEntries()
	require.Len(t, logs, 1)
	require.Equal(t, domain.SyncStatusSuccess, logs[0].Status)
	require.Equal(t, 1, logs[0].TicketsCreated)
	require.Equal(t, domain.TriggerManual, logs[0].TriggerType)

	watermark, err := f.settings.LastSyncTime(context.Background())
	require.NoError(t, err)
	require.True(t, watermark.Equal(syncNow))
	require.False(t, f.lock.IsHeld())

	history, err := f.store.History().ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Nil(t, history[0].FromState)
}

func TestSyncPublishesEnvelopeWithExternalID(t *testing.T) {
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "It is broken")}}
	f := newSyncFixture(t, source)

	broker := events.NewInMemoryPublisher()
	var envelope domain.TaskEnvelope
	broker.Subscribe(domain.TaskTranslate.Topic(), func(_ context.Context, _ string, body []byte) error {
		return json.Unmarshal(body, &envelope)
	})
	f.engine.dispatcher = events.NewTaskDispatcher(broker, zap.NewNop(), nil)

	require.True(t, f.engine.Run(context.Background(), domain.TriggerScheduled).Success)
	require.Equal(t, "77", envelope.Payload.ExternalID)
	require.NotEmpty(t, envelope.MsgID)
	require.NotZero(t, envelope.TicketID)
}

func TestSyncResurfacesCompletedTicket(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer again", "Still broken")}}
	f := newSyncFixture(t, source)

	existing := &domain.Ticket{ExternalID: "77", Subject: "Printer"}
	_, err := f.store.Tickets().UpsertByExternalID(ctx, existing)
	require.NoError(t, err)
	require.NoError(t, f.store.Tickets().UpdateState(ctx, existing.ID, domain.TicketStateCompleted))

	outcome := f.engine.Run(ctx, domain.TriggerScheduled)

	require.True(t, outcome.Success)
	require.Equal(t, 0, outcome.NewCount)
	require.Equal(t, 1, outcome.UpdatedCount)

	ticket, err := f.store.Tickets().GetByID(ctx, existing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatePendingTrans, ticket.State)
	require.Equal(t, "Printer again", ticket.Subject)
	require.Equal(t, []domain.TaskKind{domain.TaskTranslate}, f.dispatcher.kinds())
	require.Equal(t, domain.TicketStatePendingTrans, f.dispatcher.tasks[0].ticket.State)
}

func TestSyncSkipsDispatchForTicketStillPendingTranslation(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "broken")}}
	f := newSyncFixture(t, source)

	require.Equal(t, 1, f.engine.Run(ctx, domain.TriggerManual).NewCount)
	outcome := f.engine.Run(ctx, domain.TriggerManual)

	require.True(t, outcome.Success)
	require.Equal(t, 1, outcome.UpdatedCount)
	require.Len(t, f.dispatcher.kinds(), 1)
	require.Equal(t, 1, f.store.TicketCount())
}

func TestSyncBusyReturnsImmediately(t *testing.T) {
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "broken")}}
	f := newSyncFixture(t, source)
	require.True(t, f.lock.TryAcquire())

	outcome := f.engine.Run(context.Background(), domain.TriggerManual)

	require.Equal(t, domain.SyncOutcome{Success: false, Message: MessageSyncBusy}, outcome)
	require.Empty(t, f.store.SyncLogEntries())
	require.Zero(t, source.calls())
	require.True(t, f.lock.IsHeld())
}

func TestSyncConcurrentRunIsRejected(t *testing.T) {
	source := &fakeSource{block: make(chan struct{})}
	f := newSyncFixture(t, source)

	done := make(chan domain.SyncOutcome, 1)
	go func() { done <- f.engine.Run(context.Background(), domain.TriggerScheduled) }()
	require.Eventually(t, func() bool { return source.calls() == 1 }, time.Second, time.Millisecond)

	second := f.engine.Run(context.Background(), domain.TriggerManual)
	require.False(t, second.Success)
	require.Equal(t, MessageSyncBusy, second.Message)

	close(source.block)
	first := <-done
	require.True(t, first.Success)
	require.Equal(t, MessageNoTickets, first.Message)
	require.Equal(t, 1, source.calls())
	require.Len(t, f.store.SyncLogEntries(), 1)
}

func TestSyncFetchFailureKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{listErr: errors.New("timeout")}
	f := newSyncFixture(t, source)

	outcome := f.engine.Run(ctx, domain.TriggerScheduled)

	require.False(t, outcome.Success)
	require.Contains(t, outcome.Message, "timeout")
	logs := f.store.SyncLogEntries()
	require.Len(t, logs, 1)
	require.Equal(t, domain.SyncStatusFailed, logs[0].Status)
	require.NotNil(t, logs[0].EndTime)
	require.Contains(t, *logs[0].ErrorMessage, "timeout")

	watermark, err := f.settings.LastSyncTime(ctx)
	require.NoError(t, err)
	require.Nil(t, watermark)
	require.False(t, f.lock.IsHeld())
}

func TestSyncPanicIsRecordedAsFailure(t *testing.T) {
	source := &fakeSource{panicOnList: true}
	f := newSyncFixture(t, source)

	outcome := f.engine.Run(context.Background(), domain.TriggerManual)

	require.False(t, outcome.Success)
	require.Equal(t, domain.SyncStatusFailed, f.store.SyncLogEntries()[0].Status)
	require.False(t, f.lock.IsHeld())
}

func TestSyncIgnoresTicketsThatAreNotOpen(t *testing.T) {
	closed := openTicket(5, "Done", "x")
	closed.Status = 5
	source := &fakeSource{tickets: []freshdesk.Ticket{closed}}
	f := newSyncFixture(t, source)

	outcome := f.engine.Run(context.Background(), domain.TriggerManual)

	require.True(t, outcome.Success)
	require.Equal(t, MessageNoTickets, outcome.Message)
	require.Zero(t, f.store.TicketCount())
	require.Empty(t, f.dispatcher.kinds())
}

func TestSyncConversationFailureDegradesToDescription(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{
		tickets: []freshdesk.Ticket{openTicket(77, "A", "desc 77"), openTicket(78, "B", "desc 78")},
		conversations: map[string][]domain.Conversation{
			"78": {{ID: 1, BodyText: "hello"}, {ID: 2, BodyText: " "}},
		},
		convErr: map[string]error{"77": errors.New("500")},
	}
	f := newSyncFixture(t, source)

	outcome := f.engine.Run(ctx, domain.TriggerManual)
	require.True(t, outcome.Success)
	require.Equal(t, 2, outcome.NewCount)

	t77, err := f.store.Tickets().GetByExternalID(ctx, "77")
	require.NoError(t, err)
	content, err := domain.ParseTicketContent(t77.Content, t77.ContentKind)
	require.NoError(t, err)
	require.Equal(t, "desc 77", content.Description)
	require.Empty(t, content.Conversations)

	t78, err := f.store.Tickets().GetByExternalID(ctx, "78")
	require.NoError(t, err)
	content, err = domain.ParseTicketContent(t78.Content, t78.ContentKind)
	require.NoError(t, err)
	require.Len(t, content.Conversations, 1)
}

func TestSyncIncrementalUsesWatermark(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{}
	f := newSyncFixture(t, source)

	require.True(t, f.engine.Run(ctx, domain.TriggerManual).Success)
	require.True(t, f.engine.Run(ctx, domain.TriggerManual).Success)

	require.Len(t, source.sinceSeen, 2)
	require.Nil(t, source.sinceSeen[0])
	require.NotNil(t, source.sinceSeen[1])
	require.True(t, source.sinceSeen[1].Equal(syncNow))
}

func TestSyncDispatchFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "broken")}}
	f := newSyncFixture(t, source)
	f.dispatcher.err = errBroker

	outcome := f.engine.Run(ctx, domain.TriggerManual)
	require.True(t, outcome.Success)

	ticket, err := f.store.Tickets().GetByExternalID(ctx, "77")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatePendingTrans, ticket.State)
}

type flakyStore struct {
	*repository.MemoryStore
	failExternalID string
}

type flakyTickets struct {
	repository.TicketRepository
	failExternalID string
}

func (f flakyTickets) UpsertByExternalID(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	if ticket.ExternalID == f.failExternalID {
		return false, errors.New("constraint violation")
	}
	return f.TicketRepository.UpsertByExternalID(ctx, ticket)
}

func (s *flakyStore) Tickets() repository.TicketRepository {
	return flakyTickets{TicketRepository: s.MemoryStore.Tickets(), failExternalID: s.failExternalID}
}

func (s *flakyStore) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	return fn(ctx, s)
}

func TestSyncIsolatesPerTicketFailures(t *testing.T) {
	mem := repository.NewMemoryStore()
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(1, "a", "a"), openTicket(2, "b", "b")}}
	f := newSyncFixtureWithStore(t, source, mem, &flakyStore{MemoryStore: mem, failExternalID: "1"})

	outcome := f.engine.Run(context.Background(), domain.TriggerManual)

	require.True(t, outcome.Success)
	require.Equal(t, 1, outcome.NewCount)
	require.Equal(t, 1, outcome.FailedCount)
	require.Contains(t, outcome.Message, "failed 1")
	require.Equal(t, 1, mem.SyncLogEntries()[0].TicketsFailed)
}

func TestSyncStatus(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, &fakeSource{})

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.IsSyncing)
	require.Nil(t, status.LastRun)

	f.engine.Run(ctx, domain.TriggerManual)
	status, err = f.engine.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	require.Equal(t, domain.SyncStatusSuccess, status.LastRun.Status)
	require.NotNil(t, status.LastSyncTime)
}

func TestSyncConversationDeadlineFailsRun(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{
		tickets:           []freshdesk.Ticket{openTicket(77, "Printer", "broken"), openTicket(78, "VPN", "down")},
		holdConversations: true,
	}
	f := newSyncFixture(t, source)
	f.engine.fetchTimeout = 50 * time.Millisecond

	outcome := f.engine.Run(ctx, domain.TriggerScheduled)

	require.False(t, outcome.Success)
	require.Contains(t, outcome.Message, "deadline exceeded")
	require.Zero(t, f.store.TicketCount())
	require.Empty(t, f.dispatcher.kinds())

	logs := f.store.SyncLogEntries()
	require.Len(t, logs, 1)
	require.Equal(t, domain.SyncStatusFailed, logs[0].Status)
	require.Contains(t, *logs[0].ErrorMessage, "deadline exceeded")

	watermark, err := f.settings.LastSyncTime(ctx)
	require.NoError(t, err)
	require.Nil(t, watermark)
	require.False(t, f.lock.IsHeld())
}

func TestSyncConversationPanicFailsRun(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{
		tickets:       []freshdesk.Ticket{openTicket(77, "Printer", "broken"), openTicket(78, "VPN", "down")},
		panicOnThread: "78",
	}
	f := newSyncFixture(t, source)

	outcome := f.engine.Run(ctx, domain.TriggerManual)

	require.False(t, outcome.Success)
	require.Contains(t, outcome.Message, "panicked")
	require.Zero(t, f.store.TicketCount())
	require.Equal(t, domain.SyncStatusFailed, f.store.SyncLogEntries()[0].Status)

	watermark, err := f.settings.LastSyncTime(ctx)
	require.NoError(t, err)
	require.Nil(t, watermark)
	require.False(t, f.lock.IsHeld())
}

// hookStore runs callbacks at chosen points of the sync write path.
type hookStore struct {
	*repository.MemoryStore
	afterUpsert   func()
	onUpdateState func()
}

type hookTickets struct {
	repository.TicketRepository
	store *hookStore
}

func (h hookTickets) UpsertByExternalID(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	inserted, err := h.TicketRepository.UpsertByExternalID(ctx, ticket)
	if hook := h.store.afterUpsert; hook != nil {
		h.store.afterUpsert = nil
		hook()
	}
	return inserted, err
}

func (h hookTickets) UpdateState(ctx context.Context, id int64, state domain.TicketState) error {
	if hook := h.store.onUpdateState; hook != nil {
		h.store.onUpdateState = nil
		hook()
	}
	return h.TicketRepository.UpdateState(ctx, id, state)
}

func (s *hookStore) Tickets() repository.TicketRepository {
	return hookTickets{TicketRepository: s.MemoryStore.Tickets(), store: s}
}

func (s *hookStore) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	return fn(ctx, s)
}

func (s *hookStore) WithinTicket(ctx context.Context, ticketID int64, fn repository.TxFunc) error {
	return s.MemoryStore.WithinTicket(ctx, ticketID, func(ctx context.Context, _ repository.Store) error {
		return fn(ctx, s)
	})
}

func requireHistoryChain(t *testing.T, history []domain.TicketHistory) {
	t.Helper()
	for i := 1; i < len(history); i++ {
		require.NotNil(t, history[i].FromState, "entry %d", i)
		require.Equal(t, history[i-1].ToState, *history[i].FromState, "entry %d", i)
	}
}

func seedTicket(t *testing.T, mem *repository.MemoryStore, externalID string, state domain.TicketState) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket := &domain.Ticket{ExternalID: externalID, Subject: "subject " + externalID, IsValid: true}
	_, err := mem.Tickets().UpsertByExternalID(ctx, ticket)
	require.NoError(t, err)
	require.NoError(t, mem.Tickets().UpdateState(ctx, ticket.ID, state))
	return ticket
}

func TestSyncDecidesOnCurrentStateAfterConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	ticket := seedTicket(t, mem, "77", domain.TicketStatePendingReply)
	tickets := NewTicketService(TicketDependencies{Store: mem, Dispatcher: &recordingDispatcher{}, Logger: zap.NewNop()})

	store := &hookStore{MemoryStore: mem}
	store.afterUpsert = func() {
		_, err := tickets.SubmitReply(ctx, ticket.ID, ReplyInput{ReplyLang: "en", TargetReply: "Restart the spooler"})
		require.NoError(t, err)
	}
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "still broken")}}
	f := newSyncFixtureWithStore(t, source, mem, store)

	outcome := f.engine.Run(ctx, domain.TriggerManual)
	require.True(t, outcome.Success)
	require.Equal(t, 1, outcome.UpdatedCount)

	history, err := mem.History().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	requireHistoryChain(t, history)
	last := history[len(history)-1]
	require.Equal(t, "SYNC_RESURFACED", last.Event)
	require.Equal(t, domain.TicketStatePendingAudit, *last.FromState)

	current, err := mem.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatePendingTrans, current.State)
}

func TestSyncHoldsTicketScopeWhileResettingState(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	ticket := seedTicket(t, mem, "77", domain.TicketStatePendingReply)
	tickets := NewTicketService(TicketDependencies{Store: mem, Dispatcher: &recordingDispatcher{}, Logger: zap.NewNop()})

	done := make(chan error, 1)
	store := &hookStore{MemoryStore: mem}
	store.onUpdateState = func() {
		go func() {
			_, err := tickets.SubmitReply(ctx, ticket.ID, ReplyInput{ReplyLang: "en", TargetReply: "Restart the spooler"})
			done <- err
		}()
		select {
		case err := <-done:
			require.Failf(t, "submission ran inside the sync scope", "err: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	}
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "still broken")}}
	f := newSyncFixtureWithStore(t, source, mem, store)

	require.True(t, f.engine.Run(ctx, domain.TriggerManual).Success)
	require.NoError(t, <-done)

	history, err := mem.History().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	requireHistoryChain(t, history)
	require.Equal(t, "SYNC_RESURFACED", history[0].Event)
	require.Equal(t, domain.TicketStatePendingReply, *history[0].FromState)

	current, err := mem.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatePendingAudit, current.State)
}

// flakyLogs fails the first failures calls to Finish.
type flakyLogs struct {
	repository.SyncLogRepository
	failures int
	calls    int
}

func (l *flakyLogs) Finish(ctx context.Context, entry *domain.SyncLog) error {
	l.calls++
	if l.calls <= l.failures {
		return errors.New("connection reset")
	}
	return l.SyncLogRepository.Finish(ctx, entry)
}

func TestSyncRetriesSuccessBookkeepingOnce(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "broken")}}
	f := newSyncFixture(t, source)
	logs := &flakyLogs{SyncLogRepository: f.store.SyncLogs(), failures: 1}
	f.engine.logs = NewSyncLogService(logs, zap.NewNop())

	outcome := f.engine.Run(ctx, domain.TriggerManual)

	require.True(t, outcome.Success)
	require.Equal(t, 2, logs.calls)
	require.Equal(t, domain.SyncStatusSuccess, f.store.SyncLogEntries()[0].Status)
}

func TestSyncMarksRunFailedWhenSuccessCannotBeRecorded(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{tickets: []freshdesk.Ticket{openTicket(77, "Printer", "broken")}}
	f := newSyncFixture(t, source)
	logs := &flakyLogs{SyncLogRepository: f.store.SyncLogs(), failures: 2}
	f.engine.logs = NewSyncLogService(logs, zap.NewNop())

	outcome := f.engine.Run(ctx, domain.TriggerManual)

	require.False(t, outcome.Success)
	require.Contains(t, outcome.Message, "record sync success")
	entries := f.store.SyncLogEntries()
	require.Equal(t, domain.SyncStatusFailed, entries[0].Status)
	require.Equal(t, 1, entries[0].TicketsCreated)
	require.False(t, f.lock.IsHeld())
}
