package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	now     func() time.Time
	tickets map[string]*domain.Ticket
	seq     map[string]int
	nextID  int
}

func newFakeTicketRepo(now func() time.Time) *fakeTicketRepo {
	if now == nil {
		now = time.Now
	}
	return &fakeTicketRepo{now: now, tickets: map[string]*domain.Ticket{}, seq: map[string]int{}}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = r.now()
	}
	if ticket.LastActivityAt.IsZero() {
		ticket.LastActivityAt = ticket.CreatedAt
	}
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.now()
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) GetBySequenceKey(ctx context.Context, key string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.SequenceKey == key {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		result = append(result, *ticket)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func matchesFilter(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
		return false
	}
	if filter.CategoryID != nil && ticket.CategoryID != *filter.CategoryID {
		return false
	}
	if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if filter.Unassigned && ticket.AssigneeID != nil {
		return false
	}
	if filter.FirstResponseUnset && ticket.FirstResponseAt != nil {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.CreatedBefore != nil && !ticket.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	if filter.UpdatedBefore != nil && !ticket.UpdatedAt.Before(*filter.UpdatedBefore) {
		return false
	}
	if filter.LastActivityBefore != nil && !ticket.LastActivityAt.Before(*filter.LastActivityBefore) {
		return false
	}
	return true
}

func (r *fakeTicketRepo) NextDailySequence(ctx context.Context, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[day]++
	return r.seq[day], nil
}

func (r *fakeTicketRepo) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countBetween(func(t *domain.Ticket) *time.Time { return &t.CreatedAt }, from, to), nil
}

func (r *fakeTicketRepo) CountResolvedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countBetween(func(t *domain.Ticket) *time.Time { return t.ResolvedAt }, from, to), nil
}

func (r *fakeTicketRepo) CountClosedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countBetween(func(t *domain.Ticket) *time.Time { return t.ClosedAt }, from, to), nil
}

func (r *fakeTicketRepo) countBetween(field func(*domain.Ticket) *time.Time, from, to time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, ticket := range r.tickets {
		at := field(ticket)
		if at == nil {
			continue
		}
		if !at.Before(from) && at.Before(to) {
			count++
		}
	}
	return count
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.TicketMessage
	nextID   int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = fmt.Sprintf("msg-%d", r.nextID)
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketMessage
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			result = append(result, msg)
		}
	}
	return result, nil
}

type fakeCategoryRepo struct {
	mu         sync.Mutex
	categories map[string]*domain.Category
}

func newFakeCategoryRepo() *fakeCategoryRepo {
	return &fakeCategoryRepo{categories: map[string]*domain.Category{}}
}

func (r *fakeCategoryRepo) Create(ctx context.Context, category *domain.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *category
	r.categories[category.ID] = &copied
	return nil
}

func (r *fakeCategoryRepo) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	category, ok := r.categories[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *category
	return &copied, nil
}

func (r *fakeCategoryRepo) ListActive(ctx context.Context) ([]domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Category
	for _, category := range r.categories {
		if category.IsActive {
			result = append(result, *category)
		}
	}
	return result, nil
}

type fakePolicyRepo struct {
	mu       sync.Mutex
	policies map[string]*domain.SLAPolicy
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{policies: map[string]*domain.SLAPolicy{}}
}

func (r *fakePolicyRepo) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *policy
	r.policies[policy.ID] = &copied
	return nil
}

func (r *fakePolicyRepo) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *policy
	return &copied, nil
}

func (r *fakePolicyRepo) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SLAPolicy
	for _, policy := range r.policies {
		result = append(result, *policy)
	}
	return result, nil
}

type fakeSLARepo struct {
	mu      sync.Mutex
	slas    map[string]*domain.TicketSLA
	tickets *fakeTicketRepo
	nextID  int
}

func newFakeSLARepo(tickets *fakeTicketRepo) *fakeSLARepo {
	return &fakeSLARepo{slas: map[string]*domain.TicketSLA{}, tickets: tickets}
}

func (r *fakeSLARepo) Create(ctx context.Context, sla *domain.TicketSLA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sla.ID = fmt.Sprintf("sla-%d", r.nextID)
	if r.tickets != nil {
		sla.CreatedAt = r.tickets.now()
	} else {
		sla.CreatedAt = time.Now()
	}
	sla.UpdatedAt = sla.CreatedAt
	copied := *sla
	r.slas[sla.ID] = &copied
	return nil
}

func (r *fakeSLARepo) GetByID(ctx context.Context, id string) (*domain.TicketSLA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sla, ok := r.slas[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *sla
	return &copied, nil
}

func (r *fakeSLARepo) GetByTicket(ctx context.Context, ticketID string) (*domain.TicketSLA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sla := range r.slas {
		if sla.TicketID == ticketID {
			copied := *sla
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeSLARepo) ListActiveDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TicketSLA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketSLA
	for _, sla := range r.slas {
		if r.tickets != nil {
			ticket, err := r.tickets.GetByID(ctx, sla.TicketID)
			if err != nil || ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed {
				continue
			}
		}
		responseDue := sla.FirstResponseMetAt == nil && sla.ResponseDueAt.Before(cutoff)
		resolutionDue := sla.ResolutionMetAt == nil && sla.ResolutionDueAt.Before(cutoff)
		if responseDue || resolutionDue {
			result = append(result, *sla)
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *fakeSLARepo) MarkResponseMet(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(id, at, func(sla *domain.TicketSLA) **time.Time { return &sla.FirstResponseMetAt })
}

func (r *fakeSLARepo) MarkResolutionMet(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(id, at, func(sla *domain.TicketSLA) **time.Time { return &sla.ResolutionMetAt })
}

func (r *fakeSLARepo) MarkResponseBreached(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(id, at, func(sla *domain.TicketSLA) **time.Time { return &sla.ResponseBreachedAt })
}

func (r *fakeSLARepo) MarkResolutionBreached(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(id, at, func(sla *domain.TicketSLA) **time.Time { return &sla.ResolutionBreachedAt })
}

func (r *fakeSLARepo) setIfUnset(id string, at time.Time, field func(*domain.TicketSLA) **time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sla, ok := r.slas[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	slot := field(sla)
	if *slot != nil {
		return false, nil
	}
	stamped := at
	*slot = &stamped
	sla.UpdatedAt = at
	return true, nil
}

func (r *fakeSLARepo) AdvanceEscalationLevel(ctx context.Context, id string, from, to int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sla, ok := r.slas[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if sla.EscalationLevel != from {
		return false, nil
	}
	sla.EscalationLevel = to
	return true, nil
}

func (r *fakeSLARepo) CountBreachedBetween(ctx context.Context, axis domain.BreachType, from, to time.Time) (int, error) {
	return r.countBetween(func(sla *domain.TicketSLA) *time.Time { return sla.BreachedAt(axis) }, from, to), nil
}

func (r *fakeSLARepo) CountMetBetween(ctx context.Context, axis domain.BreachType, from, to time.Time) (int, error) {
	return r.countBetween(func(sla *domain.TicketSLA) *time.Time {
		if axis == domain.BreachTypeResponse {
			return sla.FirstResponseMetAt
		}
		return sla.ResolutionMetAt
	}, from, to), nil
}

func (r *fakeSLARepo) countBetween(field func(*domain.TicketSLA) *time.Time, from, to time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, sla := range r.slas {
		at := field(sla)
		if at == nil {
			continue
		}
		if !at.Before(from) && at.Before(to) {
			count++
		}
	}
	return count
}

func (r *fakeSLARepo) ListOrphaned(ctx context.Context, limit int) ([]domain.TicketSLA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketSLA
	for _, sla := range r.slas {
		if r.tickets == nil {
			continue
		}
		if _, err := r.tickets.GetByID(ctx, sla.TicketID); err != nil {
			result = append(result, *sla)
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *fakeSLARepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slas[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.slas, id)
	return nil
}

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (r *eventRecorder) byType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}
