// Package testkit provides in-memory store implementations for tests.
package testkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/worksafe-io/be-permits/internal/errors"
	"github.com/worksafe-io/be-permits/internal/repository"
)

// PermitStore is an in-memory repository.PermitStore-compatible fake
// with the same version-conditioned write semantics as the real one.
type PermitStore struct {
	mu      sync.Mutex
	seq     int
	permits map[string]*repository.Permit

	// OnGet, when set, runs once after the next GetByID and can mutate
	// the store underneath the caller to simulate a concurrent writer.
	OnGet func()
}

// NewPermitStore creates an empty permit store.
func NewPermitStore() *PermitStore {
	return &PermitStore{permits: make(map[string]*repository.Permit)}
}

func (s *PermitStore) Create(_ context.Context, permit *repository.Permit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.permits {
		if existing.PermitNumber == permit.PermitNumber {
			return errors.New(errors.ErrCodeConflict,
				fmt.Sprintf("permit number '%s' already exists", permit.PermitNumber))
		}
	}

	s.seq++
	permit.ID = fmt.Sprintf("permit-%d", s.seq)
	permit.Version = 1
	permit.CreatedAt = time.Now().UTC()
	permit.UpdatedAt = permit.CreatedAt
	s.permits[permit.ID] = clonePermit(permit)
	return nil
}

func (s *PermitStore) GetByID(_ context.Context, id string) (*repository.Permit, error) {
	s.mu.Lock()
	permit, ok := s.permits[id]
	if !ok {
		s.mu.Unlock()
		return nil, errors.NotFound("permit", id)
	}
	result := clonePermit(permit)
	hook := s.OnGet
	s.OnGet = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return result, nil
}

func (s *PermitStore) List(_ context.Context, filter repository.PermitFilter, vis repository.Visibility, limit, offset int) ([]*repository.Permit, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*repository.Permit
	for _, permit := range s.permits {
		if matchPermit(permit, filter, vis) {
			matched = append(matched, clonePermit(permit))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*repository.Permit{}, total, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *PermitStore) Update(_ context.Context, permit *repository.Permit, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.permits[permit.ID]
	if !ok {
		return errors.NotFound("permit", permit.ID)
	}
	if stored.Version != expectedVersion {
		return errors.New(errors.ErrCodeConflict,
			"permit was modified concurrently, please retry")
	}

	permit.Version = expectedVersion + 1
	permit.UpdatedAt = time.Now().UTC()
	s.permits[permit.ID] = clonePermit(permit)
	return nil
}

func (s *PermitStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.permits[id]; !ok {
		return errors.NotFound("permit", id)
	}
	delete(s.permits, id)
	return nil
}

// ApplyDirect overwrites a stored permit, bumping its version. Used to
// simulate a concurrent writer landing between a read and a write.
func (s *PermitStore) ApplyDirect(permit *repository.Permit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := clonePermit(permit)
	stored.Version++
	s.permits[permit.ID] = stored
}

func clonePermit(p *repository.Permit) *repository.Permit {
	c := *p
	c.ApprovalHistory = append([]repository.ApprovalEntry(nil), p.ApprovalHistory...)
	if p.ReturnedInfo != nil {
		info := *p.ReturnedInfo
		c.ReturnedInfo = &info
	}
	return &c
}

func matchPermit(p *repository.Permit, f repository.PermitFilter, vis repository.Visibility) bool {
	exact := func(want *string, have string) bool { return want == nil || *want == have }
	contains := func(want *string, have string) bool {
		return want == nil || strings.Contains(strings.ToLower(have), strings.ToLower(*want))
	}

	if !exact(f.PermitType, p.PermitType) || !exact(f.Status, p.Status) {
		return false
	}
	if f.CurrentLevel != nil && *f.CurrentLevel != p.CurrentLevel {
		return false
	}
	if !exact(f.IssueDate, p.IssueDate) || !exact(f.ExpiryDate, p.ExpiryDate) {
		return false
	}
	if !contains(f.PermitNumber, p.PermitNumber) || !contains(f.PONumber, p.PONumber) ||
		!contains(f.EmployeeName, p.EmployeeName) || !contains(f.Location, p.Location) ||
		!contains(f.Remarks, p.Remarks) {
		return false
	}

	if vis.Admin {
		return true
	}
	return p.CurrentLevel == vis.Level || p.CreatedBy == vis.UserID || p.ApprovedByUser(vis.UserID)
}

// UserStore is an in-memory repository.UserStore-compatible fake.
type UserStore struct {
	mu    sync.Mutex
	seq   int
	users map[string]*repository.User
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*repository.User)}
}

func (s *UserStore) Create(_ context.Context, user *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return errors.New(errors.ErrCodeConflict, "user already registered")
		}
		if user.Role == "ADMIN" && existing.Role == "ADMIN" {
			return errors.New(errors.ErrCodeConflict, "user already registered")
		}
	}

	s.seq++
	user.ID = fmt.Sprintf("user-%d", s.seq)
	user.Email = email
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	copied := *user
	return &copied, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == strings.ToLower(email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, errors.NotFound("user", email)
}

func (s *UserStore) AdminExists(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Role == "ADMIN" {
			return true, nil
		}
	}
	return false, nil
}

func (s *UserStore) ListIDsByLevel(_ context.Context, level int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, user := range s.users {
		if user.Level == level {
			ids = append(ids, user.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// RecordingPublisher captures published events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []RecordedEvent
}

// RecordedEvent is one captured publish call.
type RecordedEvent struct {
	EventType  string
	PermitID   string
	ActorID    string
	Recipients []string
}

func (p *RecordingPublisher) PublishPermitEvent(eventType, permitID, actorID string, recipients []string, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, RecordedEvent{
		EventType:  eventType,
		PermitID:   permitID,
		ActorID:    actorID,
		Recipients: recipients,
	})
}

// Types returns the ordered event types seen so far.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		types = append(types, e.EventType)
	}
	return types
}
