package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/freshdesk"
)

type fakeSource struct {
	mu            sync.Mutex
	tickets       []freshdesk.Ticket
	listErr       error
	conversations map[string][]domain.Conversation
	convErr       map[string]error
	sinceSeen     []*time.Time
	listCalls     int
	block         chan struct{}
	panicOnList   bool
	// holdConversations makes every conversation fetch wait for ctx to end.
	holdConversations bool
	panicOnThread     string
}

func (f *fakeSource) FetchUpdatedSince(_ context.Context, since *time.Time) ([]freshdesk.Ticket, error) {
	f.mu.Lock()
	f.listCalls++
	f.sinceSeen = append(f.sinceSeen, since)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.panicOnList {
		panic("boom")
	}
	return f.tickets, f.listErr
}

func (f *fakeSource) FetchConversationThread(ctx context.Context, externalID string) ([]domain.Conversation, error) {
	if f.holdConversations {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if externalID == f.panicOnThread {
		panic("malformed conversation payload")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.convErr[externalID]; err != nil {
		return nil, err
	}
	return f.conversations[externalID], nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type dispatched struct {
	kind   domain.TaskKind
	ticket domain.Ticket
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []dispatched
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, kind domain.TaskKind, ticket *domain.Ticket) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, dispatched{kind: kind, ticket: *ticket})
	return d.err
}

func (d *recordingDispatcher) kinds() []domain.TaskKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.TaskKind, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, t.kind)
	}
	return out
}

type recordingPusher struct {
	mu     sync.Mutex
	pushed map[string]string
	err    error
}

func (p *recordingPusher) PushReply(_ context.Context, externalID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushed == nil {
		p.pushed = map[string]string{}
	}
	p.pushed[externalID] = text
	return p.err
}

var errBroker = errors.New("broker unreachable")

func strPtr(s string) *string { return &s }

func openTicket(id int64, subject, description string) freshdesk.Ticket {
	return freshdesk.Ticket{ID: id, Subject: subject, DescriptionText: strPtr(description), Status: freshdesk.StatusOpen}
}
