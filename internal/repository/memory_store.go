package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// MemoryStore keeps everything in process memory. It backs local runs without POSTGRES_DSN and tests.
// Writes are applied immediately; WithinTx does not roll back on error.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	seq          int64
	tickets      map[int64]domain.Ticket
	byExternalID map[string]int64
	translations map[int64]map[string]domain.TicketTranslation
	replies      map[int64][]domain.TicketReply
	audits       map[int64][]domain.TicketAudit
	history      map[int64][]domain.TicketHistory
	syncLogs     []domain.SyncLog
	settings     map[string]domain.SyncSetting

	lockMu      sync.Mutex
	ticketLocks map[int64]*sync.Mutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:          time.Now,
		tickets:      make(map[int64]domain.Ticket),
		byExternalID: make(map[string]int64),
		translations: make(map[int64]map[string]domain.TicketTranslation),
		replies:      make(map[int64][]domain.TicketReply),
		audits:       make(map[int64][]domain.TicketAudit),
		history:      make(map[int64][]domain.TicketHistory),
		settings:     make(map[string]domain.SyncSetting),
		ticketLocks:  make(map[int64]*sync.Mutex),
	}
}

func (s *MemoryStore) Tickets() TicketRepository { return memTickets{s} }
func (s *MemoryStore) Translations() TicketTranslationRepository { return memTranslations{s} }
func (s *MemoryStore) Replies() TicketReplyRepository { return memReplies{s} }
func (s *MemoryStore) Audits() TicketAuditRepository { return memAudits{s} }
func (s *MemoryStore) History() TicketHistoryRepository { return memHistory{s} }
func (s *MemoryStore) SyncLogs() SyncLogRepository { return memSyncLogs{s} }
func (s *MemoryStore) SyncSettings() SyncConfigRepository { return memSettings{s} }
func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) WithinTx(ctx context.Context, fn TxFunc) error { return fn(ctx, s) }

func (s *MemoryStore) WithinTicket(ctx context.Context, ticketID int64, fn TxFunc) error {
	s.mu.Lock()
	_, ok := s.tickets[ticketID]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, s)
}

func (s *MemoryStore) ticketLock(ticketID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.ticketLocks[ticketID]
	if !ok {
		lock = &sync.Mutex{}
		s.ticketLocks[ticketID] = lock
	}
	return lock
}

func (s *MemoryStore) nextID() int64 {
	s.seq++
	return s.seq
}

type memTickets struct{ s *MemoryStore }

func (m memTickets) UpsertByExternalID(_ context.Context, ticket *domain.Ticket) (bool, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byExternalID[ticket.ExternalID]; ok {
		stored := s.tickets[id]
		stored.Subject = ticket.Subject
		stored.Content = ticket.Content
		stored.ContentKind = ticket.ContentKind
		stored.UpdatedAt = now
		s.tickets[id] = stored
		*ticket = stored
		return false, nil
	}

	stored := *ticket
	stored.ID = s.nextID()
	stored.State = domain.TicketStatePendingTrans
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.tickets[stored.ID] = stored
	s.byExternalID[stored.ExternalID] = stored.ID
	*ticket = stored
	return true, nil
}

func (m memTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ticket, nil
}

func (m memTickets) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	m.s.mu.Lock()
	id, ok := m.s.byExternalID[externalID]
	m.s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m memTickets) UpdateState(_ context.Context, id int64, state domain.TicketState) error {
	return m.update(id, func(t *domain.Ticket) { t.State = state })
}

func (m memTickets) UpdateValidity(_ context.Context, id int64, valid bool) error {
	return m.update(id, func(t *domain.Ticket) { t.IsValid = valid })
}

func (m memTickets) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range m.s.tickets {
		if filter.matches(ticket) {
			result = append(result, ticket)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit := filter.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f TicketFilter) matches(t domain.Ticket) bool {
	if len(f.States) > 0 {
		found := false
		for _, state := range f.States {
			if state == t.State {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ExternalID != nil && *f.ExternalID != t.ExternalID {
		return false
	}
	if f.IsValid != nil && *f.IsValid != t.IsValid {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(t.Subject), term) {
			return false
		}
	}
	return true
}

func (m memTickets) update(id int64, mutate func(*domain.Ticket)) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	mutate(&ticket)
	ticket.UpdatedAt = s.now()
	s.tickets[id] = ticket
	return nil
}

type memTranslations struct{ s *MemoryStore }

func (m memTranslations) Upsert(_ context.Context, translation *domain.TicketTranslation) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	byLang, ok := s.translations[translation.TicketID]
	if !ok {
		byLang = make(map[string]domain.TicketTranslation)
		s.translations[translation.TicketID] = byLang
	}
	now := s.now()
	if existing, ok := byLang[translation.TargetLang]; ok {
		translation.ID = existing.ID
		translation.CreatedAt = existing.CreatedAt
	} else {
		translation.ID = s.nextID()
		translation.CreatedAt = now
	}
	translation.UpdatedAt = now
	byLang[translation.TargetLang] = *translation
	return nil
}

func (m memTranslations) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketTranslation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []domain.TicketTranslation
	for _, tr := range m.s.translations[ticketID] {
		result = append(result, tr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TargetLang < result[j].TargetLang })
	return result, nil
}

type memReplies struct{ s *MemoryStore }

func (m memReplies) Create(_ context.Context, reply *domain.TicketReply) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	reply.ID = s.nextID()
	reply.IsSelected = false
	reply.CreatedAt = s.now()
	s.replies[reply.TicketID] = append(s.replies[reply.TicketID], *reply)
	return nil
}

func (m memReplies) GetByID(_ context.Context, ticketID, replyID int64) (*domain.TicketReply, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, reply := range m.s.replies[ticketID] {
		if reply.ID == replyID {
			r := reply
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m memReplies) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketReply, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]domain.TicketReply(nil), m.s.replies[ticketID]...), nil
}

func (m memReplies) MarkSelected(_ context.Context, ticketID, replyID int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	replies := m.s.replies[ticketID]
	if len(replies) == 0 {
		return ErrNotFound
	}
	for i := range replies {
		replies[i].IsSelected = replies[i].ID == replyID
	}
	return nil
}

type memAudits struct{ s *MemoryStore }

func (m memAudits) Create(_ context.Context, audit *domain.TicketAudit) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	audit.ID = s.nextID()
	audit.CreatedAt = s.now()
	s.audits[audit.TicketID] = append(s.audits[audit.TicketID], *audit)
	return nil
}

func (m memAudits) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketAudit, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]domain.TicketAudit(nil), m.s.audits[ticketID]...), nil
}

type memHistory struct{ s *MemoryStore }

func (m memHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	history.ID = s.nextID()
	history.CreatedAt = s.now()
	s.history[history.TicketID] = append(s.history[history.TicketID], *history)
	return nil
}

func (m memHistory) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]domain.TicketHistory(nil), m.s.history[ticketID]...), nil
}

type memSyncLogs struct{ s *MemoryStore }

func (m memSyncLogs) Create(_ context.Context, log *domain.SyncLog) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	log.ID = s.nextID()
	s.syncLogs = append(s.syncLogs, *log)
	return nil
}

func (m memSyncLogs) Finish(_ context.Context, log *domain.SyncLog) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.syncLogs {
		if s.syncLogs[i].ID == log.ID {
			s.syncLogs[i] = *log
			return nil
		}
	}
	return ErrNotFound
}

func (m memSyncLogs) Latest(_ context.Context) (*domain.SyncLog, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.syncLogs) == 0 {
		return nil, ErrNotFound
	}
	latest := s.syncLogs[len(s.syncLogs)-1]
	return &latest, nil
}

func (m memSyncLogs) FailRunning(_ context.Context, message string) (int64, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := s.now()
	for i := range s.syncLogs {
		if s.syncLogs[i].Status != domain.SyncStatusRunning {
			continue
		}
		msg := message
		s.syncLogs[i].Status = domain.SyncStatusFailed
		s.syncLogs[i].EndTime = &now
		s.syncLogs[i].ErrorMessage = &msg
		n++
	}
	return n, nil
}

// SyncLogEntries returns a copy of every recorded sync attempt, oldest first.
func (s *MemoryStore) SyncLogEntries() []domain.SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncLog(nil), s.syncLogs...)
}

// TicketCount returns the number of stored tickets.
func (s *MemoryStore) TicketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

type memSettings struct{ s *MemoryStore }

func (m memSettings) Get(_ context.Context, key string) (*domain.SyncSetting, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	setting, ok := m.s.settings[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &setting, nil
}

func (m memSettings) Set(_ context.Context, key, value string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	setting, ok := m.s.settings[key]
	if !ok {
		return ErrNotFound
	}
	setting.Value = value
	setting.UpdatedAt = m.s.now()
	m.s.settings[key] = setting
	return nil
}

func (m memSettings) InsertIfAbsent(_ context.Context, setting domain.SyncSetting) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.settings[setting.Key]; ok {
		return false, nil
	}
	setting.UpdatedAt = m.s.now()
	m.s.settings[setting.Key] = setting
	return true, nil
}
