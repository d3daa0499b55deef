package service

import (
	"context"
	"sync"
	"time"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	q "github.com/medirent/equipment-rental/internal/queue"
	"github.com/medirent/equipment-rental/internal/repository"
)

// In-memory stores mirroring the MySQL repositories' contracts, including
// the conditional status write.

type fakeItemStore struct {
	mu    sync.Mutex
	items map[uint64]*model.Item
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[uint64]*model.Item)}
}

func (s *fakeItemStore) add(it model.Item) *model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = &it
	return &it
}

func (s *fakeItemStore) GetByID(_ context.Context, id uint64) (*model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *fakeItemStore) setAvailable(id uint64, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		it.IsAvailable = v
	}
}

type fakeBookingStore struct {
	mu       sync.Mutex
	nextID   uint64
	bookings map[uint64]*model.Booking
	items    *fakeItemStore

	// transitionErr, when set, is returned by the next TransitionStatus call
	// to simulate losing the conditional write.
	transitionErr error
}

func newFakeBookingStore(items *fakeItemStore) *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[uint64]*model.Booking), items: items}
}

func (s *fakeBookingStore) Create(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	b.Status = lifecycle.StatusRequested
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *fakeBookingStore) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeBookingStore) ListInStatus(_ context.Context, status lifecycle.Status) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.Status == status {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeBookingStore) TransitionStatus(_ context.Context, bookingID uint64, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		err := s.transitionErr
		s.transitionErr = nil
		return err
	}
	b, ok := s.bookings[bookingID]
	if !ok {
		return repository.ErrBookingNotFound
	}
	if b.Status != from {
		return repository.ErrConcurrentModification
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	if itemAvailable != nil && s.items != nil {
		s.items.setAvailable(itemID, *itemAvailable)
	}
	return nil
}

// force sets a booking's status directly, bypassing the table, to arrange a
// test precondition.
func (s *fakeBookingStore) force(id uint64, status lifecycle.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.Status = status
		b.UpdatedAt = time.Now().UTC()
	}
}

type codeKey struct {
	bookingID uint64
	phase     model.HandoverPhase
}

type fakeHandoverStore struct {
	mu       sync.Mutex
	codes    map[codeKey]*model.HandoverCode
	bookings *fakeBookingStore

	// getCodeErr, when set, is returned verbatim by GetActiveCode to
	// simulate repository failures, wrapped sentinels included.
	getCodeErr error
}

func newFakeHandoverStore(bookings *fakeBookingStore) *fakeHandoverStore {
	return &fakeHandoverStore{codes: make(map[codeKey]*model.HandoverCode), bookings: bookings}
}

func (s *fakeHandoverStore) SaveCode(_ context.Context, bookingID uint64, phase model.HandoverPhase, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[codeKey{bookingID, phase}] = &model.HandoverCode{
		BookingID: bookingID,
		Phase:     phase,
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *fakeHandoverStore) GetActiveCode(_ context.Context, bookingID uint64, phase model.HandoverPhase) (*model.HandoverCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getCodeErr != nil {
		return nil, s.getCodeErr
	}
	c, ok := s.codes[codeKey{bookingID, phase}]
	if !ok || c.Consumed {
		return nil, repository.ErrNoActiveCode
	}
	cp := *c
	return &cp, nil
}

func (s *fakeHandoverStore) ConsumeAndTransition(ctx context.Context, bookingID uint64, phase model.HandoverPhase, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error {
	s.mu.Lock()
	c, ok := s.codes[codeKey{bookingID, phase}]
	if !ok || c.Consumed {
		s.mu.Unlock()
		return repository.ErrConcurrentModification
	}
	c.Consumed = true
	s.mu.Unlock()
	return s.bookings.TransitionStatus(ctx, bookingID, from, to, itemID, itemAvailable)
}

// capturePublisher records every lifecycle event emitted during a test.
type capturePublisher struct {
	mu     sync.Mutex
	events []q.BookingLifecycleEvent
}

func (p *capturePublisher) publish(_ context.Context, ev q.BookingLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) all() []q.BookingLifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]q.BookingLifecycleEvent(nil), p.events...)
}
