package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/worksafe-io/be-permits/internal/auth"
	"github.com/worksafe-io/be-permits/internal/client"
	"github.com/worksafe-io/be-permits/internal/errors"
	"github.com/worksafe-io/be-permits/internal/logger"
	"github.com/worksafe-io/be-permits/internal/repository"
)

// Authority chain endpoints. Level 1 is the final approval authority,
// level 4 the point of origin; approving moves a permit 4 → 1.
const (
	finalLevel  = repository.LevelFinal
	originLevel = repository.LevelOrigin
)

const dateLayout = "2006-01-02"

// PermitStore is the persistence collaborator for permits.
type PermitStore interface {
	Create(ctx context.Context, permit *repository.Permit) error
	GetByID(ctx context.Context, id string) (*repository.Permit, error)
	List(ctx context.Context, filter repository.PermitFilter, vis repository.Visibility, limit, offset int) ([]*repository.Permit, int64, error)
	Update(ctx context.Context, permit *repository.Permit, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// EventPublisher fans out workflow events; implementations must never
// block the workflow on failure.
type EventPublisher interface {
	PublishPermitEvent(eventType, permitID, actorID string, recipients []string, payload map[string]any)
}

// PermitService owns the permit state machine: level transitions,
// status transitions, return/edit branches, audit-entry construction
// and the authorization checks tied to level and role.
type PermitService struct {
	permits  PermitStore
	users    UserStore
	events   EventPublisher
	validate *validator.Validate
	log      *logger.Logger
}

// NewPermitService creates a new permit service.
func NewPermitService(
	permits PermitStore,
	users UserStore,
	events EventPublisher,
	log *logger.Logger,
) *PermitService {
	return &PermitService{
		permits:  permits,
		users:    users,
		events:   events,
		validate: validator.New(),
		log:      log,
	}
}

// CreatePermitRequest carries the caller-supplied permit fields.
// Status, level and history are never accepted from the caller.
type CreatePermitRequest struct {
	PermitNumber string `json:"permitNumber" validate:"required"`
	PONumber     string `json:"poNumber" validate:"required"`
	EmployeeName string `json:"employeeName" validate:"required,min=3"`
	PermitType   string `json:"permitType" validate:"required,oneof=General Height Confined Excavation Civil Hot"`
	Location     string `json:"location" validate:"required"`
	Remarks      string `json:"remarks"`
	IssueDate    string `json:"issueDate" validate:"required"`
	ExpiryDate   string `json:"expiryDate" validate:"required"`
}

// EditPermitRequest is the partial field set an upstream approver may
// correct. Nil fields are left untouched.
type EditPermitRequest struct {
	PermitNumber *string `json:"permitNumber"`
	PONumber     *string `json:"poNumber"`
	EmployeeName *string `json:"employeeName"`
	PermitType   *string `json:"permitType"`
	Location     *string `json:"location"`
	Remarks      *string `json:"remarks"`
	IssueDate    *string `json:"issueDate"`
	ExpiryDate   *string `json:"expiryDate"`
}

// ── Create ────────────────────────────────────────────────────────────────────

// Create persists a new permit at the origin of the approval chain.
// Only level-4 users may create permits.
func (s *PermitService) Create(ctx context.Context, actor auth.Identity, req *CreatePermitRequest) (*repository.Permit, error) {
	if err := requireOriginLevel(actor); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInputFrom(err)
	}
	if _, _, err := parseDateRange(req.IssueDate, req.ExpiryDate); err != nil {
		return nil, err
	}

	permit := &repository.Permit{
		PermitNumber:    req.PermitNumber,
		PONumber:        req.PONumber,
		EmployeeName:    req.EmployeeName,
		PermitType:      req.PermitType,
		Status:          repository.StatusPending,
		CurrentLevel:    originLevel,
		Location:        req.Location,
		Remarks:         req.Remarks,
		IssueDate:       req.IssueDate,
		ExpiryDate:      req.ExpiryDate,
		CreatedBy:       actor.UserID,
		ApprovalHistory: make([]repository.ApprovalEntry, 0),
	}

	if err := s.permits.Create(ctx, permit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("permit_id", permit.ID).
		Str("permit_number", permit.PermitNumber).
		Str("permit_type", permit.PermitType).
		Str("created_by", actor.UserID).
		Msg("Permit created")

	s.notifyLevel(ctx, client.EventPermitCreated, permit, actor.UserID)
	return permit, nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve records a level approval and moves the permit one step up the
// chain, or into the Approved terminal state at level 1. The write is
// conditioned on the version the permit was read at, so a concurrent
// approval fails with a Conflict instead of double-advancing.
func (s *PermitService) Approve(ctx context.Context, actor auth.Identity, id string) (*repository.Permit, error) {
	permit, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if permit.Status == repository.StatusApproved {
		return nil, errors.New(errors.ErrCodeConflict, "permit is already approved")
	}
	if err := requireLevel(actor, permit.CurrentLevel, "approve"); err != nil {
		return nil, err
	}

	readVersion := permit.Version
	permit.ApprovalHistory = append(permit.ApprovalHistory, repository.ApprovalEntry{
		Level:      actor.Level,
		ApprovedBy: actor.UserID,
		ApprovedAt: time.Now().UTC(),
	})
	if permit.CurrentLevel > finalLevel {
		permit.CurrentLevel--
		permit.Status = repository.StatusPending
	} else {
		permit.Status = repository.StatusApproved
	}

	if err := s.permits.Update(ctx, permit, readVersion); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("permit_id", permit.ID).
		Str("permit_number", permit.PermitNumber).
		Str("approved_by", actor.UserID).
		Int("current_level", permit.CurrentLevel).
		Str("status", permit.Status).
		Msg("Permit approved")

	if permit.Status == repository.StatusApproved {
		s.events.PublishPermitEvent(client.EventPermitApproved, permit.ID, actor.UserID,
			[]string{permit.CreatedBy}, s.eventPayload(permit))
	} else {
		s.notifyLevel(ctx, client.EventApprovalRequired, permit, actor.UserID)
	}
	return permit, nil
}

// ── Return ────────────────────────────────────────────────────────────────────

// Return sends a permit back down the chain for corrections. The latest
// return overwrites any previous one; a return at the origin level
// keeps the level but still marks the permit Returned.
func (s *PermitService) Return(ctx context.Context, actor auth.Identity, id, requiredChanges string) (*repository.Permit, error) {
	if strings.TrimSpace(requiredChanges) == "" {
		return nil, errors.InvalidInput("requiredChanges", "required changes must not be empty")
	}

	permit, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if permit.Status == repository.StatusApproved {
		return nil, errors.New(errors.ErrCodeConflict, "approved permits cannot be returned")
	}
	if err := requireLevel(actor, permit.CurrentLevel, "return"); err != nil {
		return nil, err
	}

	readVersion := permit.Version
	permit.ReturnedInfo = &repository.ReturnedInfo{
		ReturnedBy:      actor.UserID,
		ReturnedAt:      time.Now().UTC(),
		RequiredChanges: requiredChanges,
	}
	if permit.CurrentLevel < originLevel {
		permit.CurrentLevel++
	}
	permit.Status = repository.StatusReturned

	if err := s.permits.Update(ctx, permit, readVersion); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("permit_id", permit.ID).
		Str("permit_number", permit.PermitNumber).
		Str("returned_by", actor.UserID).
		Int("current_level", permit.CurrentLevel).
		Msg("Permit returned for corrections")

	s.events.PublishPermitEvent(client.EventPermitReturned, permit.ID, actor.UserID,
		[]string{permit.CreatedBy}, s.eventPayload(permit))
	return permit, nil
}

// ── Edit ──────────────────────────────────────────────────────────────────────

// Edit lets the next approver up the chain correct a pending permit's
// business fields instead of bouncing it back down. The edit is
// captured in the approval history with a snapshot of the changed
// fields; level and status never change.
func (s *PermitService) Edit(ctx context.Context, actor auth.Identity, id string, req *EditPermitRequest) (*repository.Permit, error) {
	permit, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if permit.Status != repository.StatusPending {
		return nil, errors.Forbidden("only permits in Pending status can be edited")
	}
	if err := requireLevel(actor, permit.CurrentLevel+1, "edit"); err != nil {
		return nil, err
	}

	if req.PermitType != nil && !validPermitType(*req.PermitType) {
		return nil, errors.InvalidInput("permitType", "invalid permit type")
	}

	readVersion := permit.Version
	changes := applyEdit(permit, req)
	if len(changes) == 0 {
		return nil, errors.InvalidInput("body", "no editable fields provided")
	}
	if _, _, err := parseDateRange(permit.IssueDate, permit.ExpiryDate); err != nil {
		return nil, err
	}

	permit.ApprovalHistory = append(permit.ApprovalHistory, repository.ApprovalEntry{
		Level:      actor.Level,
		ApprovedBy: actor.UserID,
		ApprovedAt: time.Now().UTC(),
		Comments:   "Permit details updated by upper-level user",
		Changes:    changes,
	})

	if err := s.permits.Update(ctx, permit, readVersion); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("permit_id", permit.ID).
		Str("permit_number", permit.PermitNumber).
		Str("edited_by", actor.UserID).
		Int("changed_fields", len(changes)).
		Msg("Permit details updated")

	s.events.PublishPermitEvent(client.EventPermitEdited, permit.ID, actor.UserID,
		[]string{permit.CreatedBy}, s.eventPayload(permit))
	return permit, nil
}

// applyEdit copies the non-nil request fields onto the permit and
// returns the snapshot recorded in the audit entry.
func applyEdit(permit *repository.Permit, req *EditPermitRequest) map[string]any {
	changes := make(map[string]any)
	set := func(name string, dst *string, src *string) {
		if src != nil {
			*dst = *src
			changes[name] = *src
		}
	}
	set("permitNumber", &permit.PermitNumber, req.PermitNumber)
	set("poNumber", &permit.PONumber, req.PONumber)
	set("employeeName", &permit.EmployeeName, req.EmployeeName)
	set("permitType", &permit.PermitType, req.PermitType)
	set("location", &permit.Location, req.Location)
	set("remarks", &permit.Remarks, req.Remarks)
	set("issueDate", &permit.IssueDate, req.IssueDate)
	set("expiryDate", &permit.ExpiryDate, req.ExpiryDate)
	return changes
}

// ── Delete ────────────────────────────────────────────────────────────────────

// Delete permanently removes a permit. Only its creator or the ADMIN
// may delete, and never once the permit reached the Approved state.
func (s *PermitService) Delete(ctx context.Context, actor auth.Identity, id string) error {
	permit, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := requireCreatorOrAdmin(actor, permit.CreatedBy, "delete"); err != nil {
		return err
	}
	if permit.Status == repository.StatusApproved {
		return errors.Forbidden("approved permits cannot be deleted")
	}

	if err := s.permits.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().
		Str("permit_id", permit.ID).
		Str("permit_number", permit.PermitNumber).
		Str("deleted_by", actor.UserID).
		Msg("Permit deleted")

	s.events.PublishPermitEvent(client.EventPermitDeleted, permit.ID, actor.UserID,
		[]string{permit.CreatedBy}, s.eventPayload(permit))
	return nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// Get retrieves one permit, applying the single-record visibility rule.
func (s *PermitService) Get(ctx context.Context, actor auth.Identity, id string) (*repository.Permit, error) {
	permit, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireViewer(actor, permit); err != nil {
		return nil, err
	}
	return permit, nil
}

// List returns the permits visible to the caller.
func (s *PermitService) List(ctx context.Context, actor auth.Identity, page, pageSize int) ([]*repository.Permit, int64, error) {
	return s.Search(ctx, actor, repository.PermitFilter{}, page, pageSize)
}

// Pending returns the pending permits awaiting action at the caller's
// level.
func (s *PermitService) Pending(ctx context.Context, actor auth.Identity, page, pageSize int) ([]*repository.Permit, int64, error) {
	status := repository.StatusPending
	level := actor.Level
	return s.Search(ctx, actor, repository.PermitFilter{Status: &status, CurrentLevel: &level}, page, pageSize)
}

// Search composes the caller's field filters with their visibility
// restriction in a single store query.
func (s *PermitService) Search(ctx context.Context, actor auth.Identity, filter repository.PermitFilter, page, pageSize int) ([]*repository.Permit, int64, error) {
	if filter.Status != nil && !validStatus(*filter.Status) {
		return nil, 0, errors.InvalidInput("status", "unknown permit status")
	}
	if filter.PermitType != nil && !validPermitType(*filter.PermitType) {
		return nil, 0, errors.InvalidInput("permitType", "unknown permit type")
	}
	if filter.CurrentLevel != nil && (*filter.CurrentLevel < finalLevel || *filter.CurrentLevel > originLevel) {
		return nil, 0, errors.InvalidInput("currentLevel", "level must be between 1 and 4")
	}
	for _, date := range []*string{filter.IssueDate, filter.ExpiryDate} {
		if date == nil {
			continue
		}
		if _, err := time.Parse(dateLayout, *date); err != nil {
			return nil, 0, errors.InvalidInput("date", "invalid date format, expected YYYY-MM-DD")
		}
	}

	offset := (page - 1) * pageSize
	return s.permits.List(ctx, filter, s.visibilityFor(actor), pageSize, offset)
}

func (s *PermitService) visibilityFor(actor auth.Identity) repository.Visibility {
	return repository.Visibility{
		UserID: actor.UserID,
		Level:  actor.Level,
		Admin:  actor.IsAdmin(),
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// notifyLevel fans an event out to every user at the permit's current
// level. Recipient resolution failures are logged, never propagated.
func (s *PermitService) notifyLevel(ctx context.Context, eventType string, permit *repository.Permit, actorID string) {
	recipients, err := s.users.ListIDsByLevel(ctx, permit.CurrentLevel)
	if err != nil {
		s.log.Warn().Err(err).
			Int("level", permit.CurrentLevel).
			Str("permit_id", permit.ID).
			Msg("Could not resolve notification recipients")
		return
	}
	s.events.PublishPermitEvent(eventType, permit.ID, actorID, recipients, s.eventPayload(permit))
}

func (s *PermitService) eventPayload(permit *repository.Permit) map[string]any {
	return map[string]any{
		"permit_number": permit.PermitNumber,
		"permit_type":   permit.PermitType,
		"status":        permit.Status,
		"current_level": permit.CurrentLevel,
	}
}

func parseDateRange(issue, expiry string) (time.Time, time.Time, error) {
	issueDate, err := time.Parse(dateLayout, issue)
	if err != nil {
		return time.Time{}, time.Time{}, errors.InvalidInput("issueDate", "invalid date format, expected YYYY-MM-DD")
	}
	expiryDate, err := time.Parse(dateLayout, expiry)
	if err != nil {
		return time.Time{}, time.Time{}, errors.InvalidInput("expiryDate", "invalid date format, expected YYYY-MM-DD")
	}
	if !expiryDate.After(issueDate) {
		return time.Time{}, time.Time{}, errors.InvalidInput("expiryDate", "expiry date must be after issue date")
	}
	return issueDate, expiryDate, nil
}

func validPermitType(t string) bool {
	for _, v := range repository.PermitTypes {
		if v == t {
			return true
		}
	}
	return false
}

func validStatus(s string) bool {
	switch s {
	case repository.StatusPending, repository.StatusApproved, repository.StatusRejected,
		repository.StatusClosed, repository.StatusReturned:
		return true
	}
	return false
}

// invalidInputFrom converts a validator error into the coded taxonomy,
// naming the first failing field.
func invalidInputFrom(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		field := verrs[0]
		return errors.InvalidInput(field.Field(),
			fmt.Sprintf("failed '%s' validation", field.Tag()))
	}
	return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request")
}
