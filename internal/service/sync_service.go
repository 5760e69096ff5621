package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/freshdesk"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/workflow"
)

const (
	MessageSyncBusy      = "sync already in progress, try again later"
	MessageNoTickets     = "no tickets to sync"
	messageSyncCompleted = "sync completed: created %d, updated %d"
	messageSyncFailed    = "sync failed: %s"
)

// SyncDependencies bundles collaborators for SyncEngine.
type SyncDependencies struct {
	Store      repository.Store
	Source     TicketSource
	Dispatcher TaskDispatcher
	Lock       *SyncLock
	Logs       *SyncLogService
	Settings   *SyncConfigService
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// ConversationWorkers bounds parallel conversation fetches within a run.
	ConversationWorkers int
	// FetchTimeout bounds the external calls of one run. Zero means no extra bound.
	FetchTimeout time.Duration
}

// SyncEngine pulls changed tickets from the external service and feeds them into the workflow.
type SyncEngine struct {
	store        repository.Store
	source       TicketSource
	dispatcher   TaskDispatcher
	lock         *SyncLock
	logs         *SyncLogService
	settings     *SyncConfigService
	logger       *zap.Logger
	metrics      *observability.Metrics
	workers      int
	fetchTimeout time.Duration
	now          func() time.Time
}

// SyncState is the operator-facing view of sync progress.
type SyncState struct {
	IsSyncing    bool
	LastSyncTime *time.Time
	LastRun      *domain.SyncLog
}

type ticketSyncResult struct {
	ticket   *domain.Ticket
	inserted bool
	action   workflow.Action
}

// NewSyncEngine constructs the engine.
func NewSyncEngine(deps SyncDependencies) *SyncEngine {
	workers := deps.ConversationWorkers
	if workers <= 0 {
		workers = 1
	}
	lock := deps.Lock
	if lock == nil {
		lock = NewSyncLock()
	}
	return &SyncEngine{
		store:        deps.Store,
		source:       deps.Source,
		dispatcher:   deps.Dispatcher,
		lock:         lock,
		logs:         deps.Logs,
		settings:     deps.Settings,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		workers:      workers,
		fetchTimeout: deps.FetchTimeout,
		now:          time.Now,
	}
}

// Run performs one sync pass. It never blocks on a concurrent run and always returns an outcome.
func (e *SyncEngine) Run(ctx context.Context, trigger domain.TriggerType) domain.SyncOutcome {
	if !e.lock.TryAcquire() {
		e.metrics.RecordSyncBusy()
		e.logger.Warn("sync already in progress, skipping", zap.String("trigger", string(trigger)))
		return domain.SyncOutcome{Success: false, Message: MessageSyncBusy}
	}
	defer e.lock.Release()

	// Bookkeeping writes must land even if the caller goes away mid-run.
	ctx = context.WithoutCancel(ctx)
	started := e.now()
	e.metrics.RecordSyncStart(started)

	entry, err := e.logs.Start(ctx, trigger)
	if err != nil {
		e.logger.Error("open sync log", zap.Error(err))
		return domain.SyncOutcome{Success: false, Message: fmt.Sprintf(messageSyncFailed, err.Error())}
	}

	e.logger.Info("sync started", zap.Int64("sync_log_id", entry.ID), zap.String("trigger", string(trigger)))
	outcome := e.execute(ctx, entry)
	e.metrics.RecordSync(string(trigger), outcome.Success, outcome.NewCount, outcome.UpdatedCount, outcome.FailedCount, e.now().Sub(started))
	return outcome
}

// Status reports whether a run is active plus the watermark and the latest attempt.
func (e *SyncEngine) Status(ctx context.Context) (SyncState, error) {
	last, err := e.settings.LastSyncTime(ctx)
	if err != nil {
		return SyncState{}, err
	}
	latest, err := e.logs.Latest(ctx)
	if err != nil {
		return SyncState{}, err
	}
	return SyncState{IsSyncing: e.lock.IsHeld(), LastSyncTime: last, LastRun: latest}, nil
}

func (e *SyncEngine) execute(ctx context.Context, entry *domain.SyncLog) (outcome domain.SyncOutcome) {
	var created, updated, failed int
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sync panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			outcome = e.fail(ctx, entry, fmt.Errorf("panic: %v", r), created, updated, failed)
		}
	}()

	since, err := e.settings.LastSyncTime(ctx)
	if err != nil {
		return e.fail(ctx, entry, err, 0, 0, 0)
	}

	fetchCtx := ctx
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	if since == nil {
		e.logger.Info("full sync, no watermark recorded")
	} else {
		e.logger.Info("incremental sync", zap.Time("since", *since))
	}
	fetched, err := e.source.FetchUpdatedSince(fetchCtx, since)
	if err != nil {
		return e.fail(ctx, entry, fmt.Errorf("fetch tickets: %w", err), 0, 0, 0)
	}

	open := make([]freshdesk.Ticket, 0, len(fetched))
	for _, t := range fetched {
		if t.IsOpen() {
			open = append(open, t)
		}
	}
	e.logger.Info("fetched tickets", zap.Int("total", len(fetched)), zap.Int("open", len(open)))

	contents, err := e.buildContents(fetchCtx, open)
	if err != nil {
		return e.fail(ctx, entry, err, 0, 0, 0)
	}
	for i, remote := range open {
		result, err := e.syncTicket(ctx, remote, contents[i])
		if err != nil {
			failed++
			e.logger.Error("sync ticket", zap.String("external_id", remote.ExternalID()), zap.Error(err))
			continue
		}
		if result.inserted {
			created++
		} else {
			updated++
		}
		e.dispatch(ctx, result.action, result.ticket)
	}

	if err := e.settings.UpdateLastSyncTime(ctx, e.now()); err != nil {
		return e.fail(ctx, entry, fmt.Errorf("advance watermark: %w", err), created, updated, failed)
	}
	if err := e.complete(ctx, entry, created, updated, failed); err != nil {
		return e.fail(ctx, entry, fmt.Errorf("record sync success: %w", err), created, updated, failed)
	}

	message := fmt.Sprintf(messageSyncCompleted, created, updated)
	switch {
	case len(open) == 0:
		message = MessageNoTickets
	case failed > 0:
		message += fmt.Sprintf(", failed %d", failed)
	}
	e.logger.Info("sync finished",
		zap.Int64("sync_log_id", entry.ID),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("failed", failed),
	)
	return domain.SyncOutcome{NewCount: created, UpdatedCount: updated, FailedCount: failed, Success: true, Message: message}
}

// buildContents fetches conversation threads in parallel and renders each ticket's content.
// A failed fetch degrades that ticket to description-only content unless the run's
// deadline expired, in which case the whole batch fails before anything is written.
func (e *SyncEngine) buildContents(ctx context.Context, tickets []freshdesk.Ticket) ([]domain.TicketContent, error) {
	contents := make([]domain.TicketContent, len(tickets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, remote := range tickets {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("conversation fetch panicked",
						zap.String("external_id", remote.ExternalID()), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
					err = fmt.Errorf("fetch conversations for ticket %s panicked: %v", remote.ExternalID(), r)
				}
			}()
			turns, err := e.source.FetchConversationThread(gctx, remote.ExternalID())
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return fmt.Errorf("fetch conversations for ticket %s: %w", remote.ExternalID(), ctxErr)
				}
				e.logger.Warn("fetch conversations, using description only",
					zap.String("external_id", remote.ExternalID()), zap.Error(err))
				turns = nil
			}
			contents[i] = domain.NewTicketContent(remote.DescriptionBody(), turns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contents, nil
}

func (e *SyncEngine) syncTicket(ctx context.Context, remote freshdesk.Ticket, content domain.TicketContent) (*ticketSyncResult, error) {
	raw, kind := content.Render()
	if kind == domain.ContentKindPlain {
		e.logger.Warn("content serialization failed, stored plain description", zap.String("external_id", remote.ExternalID()))
	}
	ticket := &domain.Ticket{
		ExternalID:  remote.ExternalID(),
		Subject:     remote.Subject,
		Content:     raw,
		ContentKind: kind,
		IsValid:     true,
	}

	result := &ticketSyncResult{ticket: ticket}
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		inserted, err := tx.Tickets().UpsertByExternalID(ctx, ticket)
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		result.inserted = inserted

		// The transition is decided under the ticket's single-writer scope so a
		// concurrent submission cannot slip in between the read and the reset.
		return tx.WithinTicket(ctx, ticket.ID, func(ctx context.Context, tx repository.Store) error {
			current, err := tx.Tickets().GetByID(ctx, ticket.ID)
			if err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			*ticket = *current

			event := workflow.EventResurfaced
			if inserted {
				event = workflow.EventDiscovered
			}
			decision, err := workflow.Decide(ticket.State, event)
			if err != nil {
				return err
			}
			if decision.NoOp {
				return nil
			}
			if decision.Changed() {
				if err := tx.Tickets().UpdateState(ctx, ticket.ID, decision.Next); err != nil {
					return fmt.Errorf("reset state: %w", err)
				}
				ticket.State = decision.Next
			}
			from := &decision.From
			if inserted {
				from = nil
			}
			if err := recordHistory(ctx, tx, ticket.ID, event, from, decision.Next); err != nil {
				return err
			}
			result.action = decision.Action
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *SyncEngine) dispatch(ctx context.Context, action workflow.Action, ticket *domain.Ticket) {
	kind, ok := action.TaskKind()
	if !ok {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, kind, ticket.Clone()); err != nil {
		e.logger.Warn("task not published, ticket state kept", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
}

// complete marks the entry SUCCESS, retrying once before giving up.
func (e *SyncEngine) complete(ctx context.Context, entry *domain.SyncLog, created, updated, failed int) error {
	err := e.logs.Complete(ctx, entry, created, updated, failed)
	if err == nil {
		return nil
	}
	e.logger.Warn("mark sync log success, retrying", zap.Int64("sync_log_id", entry.ID), zap.Error(err))
	return e.logs.Complete(ctx, entry, created, updated, failed)
}

func (e *SyncEngine) fail(ctx context.Context, entry *domain.SyncLog, cause error, created, updated, failed int) domain.SyncOutcome {
	e.logger.Error("sync failed", zap.Int64("sync_log_id", entry.ID), zap.Error(cause))
	entry.TicketsCreated = created
	entry.TicketsUpdated = updated
	entry.TicketsFailed = failed
	if err := e.logs.Fail(ctx, entry, cause.Error()); err != nil {
		e.logger.Error("mark sync log failed", zap.Int64("sync_log_id", entry.ID), zap.Error(err))
	}
	return domain.SyncOutcome{Success: false, Message: fmt.Sprintf(messageSyncFailed, cause.Error())}
}

func recordHistory(ctx context.Context, tx repository.Store, ticketID int64, event workflow.Event, from *domain.TicketState, to domain.TicketState) error {
	entry := &domain.TicketHistory{
		TicketID:  ticketID,
		Event:     string(event),
		FromState: from,
		ToState:   to,
	}
	if err := tx.History().Create(ctx, entry); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}
