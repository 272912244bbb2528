package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventsphere/engine/internal/model"
)

// NewMemoryStore returns a Store backed by in-process maps. It honors
// the same optimistic-versioning contract as the PostgreSQL backend and
// is used by the tests and for storage-free local runs.
func NewMemoryStore() *Store {
	return &Store{
		Events:        &memoryEventRepository{events: make(map[string]model.Event)},
		Registrations: &memoryRegistrationRepository{regs: make(map[string]model.Registration)},
		Attendance:    &memoryAttendanceRepository{recs: make(map[string]model.AttendanceRecord)},
		EditRequests:  &memoryEditRequestRepository{reqs: make(map[string]model.EventEditRequest)},
	}
}

type memoryEventRepository struct {
	mu     sync.Mutex
	events map[string]model.Event
}

func (r *memoryEventRepository) Create(ctx context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ID] = *e
	return nil
}

func (r *memoryEventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return &e, nil
}

func (r *memoryEventRepository) List(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []model.Event
	for _, e := range r.events {
		if status == "" || e.Status == status {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartTime.After(events[j].StartTime)
	})
	return events, nil
}

func (r *memoryEventRepository) Update(ctx context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[e.ID]
	if !ok {
		return model.ErrEventNotFound
	}
	if stored.Version != e.Version {
		return ErrVersionConflict
	}
	e.Version++
	e.UpdatedAt = time.Now().UTC()
	r.events[e.ID] = *e
	return nil
}

type memoryRegistrationRepository struct {
	mu   sync.Mutex
	regs map[string]model.Registration
}

func (r *memoryRegistrationRepository) Create(ctx context.Context, reg *model.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Same contract as the partial unique index in PostgreSQL: at most
	// one non-cancelled registration per (event, user) pair.
	for _, existing := range r.regs {
		if existing.EventID == reg.EventID && existing.UserID == reg.UserID && existing.Active() {
			return model.ErrAlreadyRegistered
		}
	}
	r.regs[reg.ID] = *reg
	return nil
}

func (r *memoryRegistrationRepository) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	return &reg, nil
}

func (r *memoryRegistrationRepository) GetActiveByEventAndUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if reg.EventID == eventID && reg.UserID == userID && reg.Active() {
			return &reg, nil
		}
	}
	return nil, model.ErrRegistrationNotFound
}

func (r *memoryRegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var regs []model.Registration
	for _, reg := range r.regs {
		if reg.EventID == eventID {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].RegisteredAt.Before(regs[j].RegisteredAt)
	})
	return regs, nil
}

func (r *memoryRegistrationRepository) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var regs []model.Registration
	for _, reg := range r.regs {
		if reg.UserID == userID {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].RegisteredAt.After(regs[j].RegisteredAt)
	})
	return regs, nil
}

func (r *memoryRegistrationRepository) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return model.ErrRegistrationNotFound
	}
	reg.Status = status
	r.regs[id] = reg
	return nil
}

type memoryAttendanceRepository struct {
	mu   sync.Mutex
	recs map[string]model.AttendanceRecord // keyed by eventID+"/"+userID
}

func (r *memoryAttendanceRepository) Create(ctx context.Context, rec *model.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.EventID+"/"+rec.UserID] = *rec
	return nil
}

func (r *memoryAttendanceRepository) GetByEventAndUser(ctx context.Context, eventID, userID string) (*model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[eventID+"/"+userID]
	if !ok {
		return nil, model.ErrAttendanceNotFound
	}
	return &rec, nil
}

func (r *memoryAttendanceRepository) ListByEvent(ctx context.Context, eventID string) ([]model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recs []model.AttendanceRecord
	for _, rec := range r.recs {
		if rec.EventID == eventID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].MarkedAt.After(recs[j].MarkedAt)
	})
	return recs, nil
}

type memoryEditRequestRepository struct {
	mu   sync.Mutex
	reqs map[string]model.EventEditRequest
}

func (r *memoryEditRequestRepository) Create(ctx context.Context, req *model.EventEditRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs[req.ID] = *req
	return nil
}

func (r *memoryEditRequestRepository) GetByID(ctx context.Context, id string) (*model.EventEditRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, model.ErrEditRequestNotFound
	}
	return &req, nil
}

func (r *memoryEditRequestRepository) ListPending(ctx context.Context) ([]model.EventEditRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reqs []model.EventEditRequest
	for _, req := range r.reqs {
		if req.Status == model.EditRequestStatusPending {
			reqs = append(reqs, req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
	return reqs, nil
}

func (r *memoryEditRequestRepository) Update(ctx context.Context, req *model.EventEditRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reqs[req.ID]; !ok {
		return model.ErrEditRequestNotFound
	}
	r.reqs[req.ID] = *req
	return nil
}
