package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/worksafe-io/be-permits/internal/database"
	"github.com/worksafe-io/be-permits/internal/errors"
)

const permitColumns = `id, permit_number, po_number, employee_name,
	       permit_type, status, current_level,
	       location, remarks, issue_date::text, expiry_date::text,
	       created_by, approval_history, returned_info,
	       version, created_at, updated_at`

// PermitRepository handles permit persistence. All state transitions go
// through the version-conditioned Update so concurrent approvers cannot
// double-advance a permit.
type PermitRepository struct {
	db *database.DB
}

// NewPermitRepository creates a new permit repository.
func NewPermitRepository(db *database.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

// Create inserts a new permit. A duplicate permit number fails with a
// Conflict.
func (r *PermitRepository) Create(ctx context.Context, permit *Permit) error {
	history, err := json.Marshal(permit.ApprovalHistory)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval history")
	}

	query := `
		INSERT INTO permits (permit_number, po_number, employee_name, permit_type,
		                     status, current_level, location, remarks,
		                     issue_date, expiry_date, created_by, approval_history)
		VALUES ($1, $2, $3, $4::permit_type, $5::permit_status, $6, $7, $8,
		        $9::date, $10::date, $11, $12)
		RETURNING id, version, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		permit.PermitNumber,
		permit.PONumber,
		permit.EmployeeName,
		permit.PermitType,
		permit.Status,
		permit.CurrentLevel,
		permit.Location,
		permit.Remarks,
		permit.IssueDate,
		permit.ExpiryDate,
		permit.CreatedBy,
		history,
	).Scan(&permit.ID, &permit.Version, &permit.CreatedAt, &permit.UpdatedAt)

	if isUniqueViolation(err) {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("permit number '%s' already exists", permit.PermitNumber))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create permit")
	}
	return nil
}

// GetByID retrieves a permit by its id.
func (r *PermitRepository) GetByID(ctx context.Context, id string) (*Permit, error) {
	query := `SELECT ` + permitColumns + ` FROM permits WHERE id = $1`

	permit, err := scanPermit(r.db.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("permit", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get permit")
	}
	return permit, nil
}

// List retrieves permits matching the filter within the caller's
// visibility, newest first.
func (r *PermitRepository) List(ctx context.Context, filter PermitFilter, vis Visibility, limit, offset int) ([]*Permit, int64, error) {
	where, args := buildPermitWhere(filter, vis)

	countQuery := strings.TrimSpace("SELECT COUNT(*) FROM permits " + where)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count permits")
	}

	query := fmt.Sprintf("SELECT %s FROM permits %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		permitColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list permits")
	}
	defer rows.Close()

	permits := make([]*Permit, 0)
	for rows.Next() {
		permit, err := scanPermit(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan permit")
		}
		permits = append(permits, permit)
	}
	return permits, total, rows.Err()
}

// Update writes every mutable permit field conditioned on the version
// the caller read. A stale version on a still-existing permit fails
// with a Conflict so a concurrent transition is never silently applied
// twice.
func (r *PermitRepository) Update(ctx context.Context, permit *Permit, expectedVersion int64) error {
	history, err := json.Marshal(permit.ApprovalHistory)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval history")
	}

	var returned []byte
	if permit.ReturnedInfo != nil {
		if returned, err = json.Marshal(permit.ReturnedInfo); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal returned info")
		}
	}

	query := `
		UPDATE permits
		SET permit_number    = $2,
		    po_number        = $3,
		    employee_name    = $4,
		    permit_type      = $5::permit_type,
		    status           = $6::permit_status,
		    current_level    = $7,
		    location         = $8,
		    remarks          = $9,
		    issue_date       = $10::date,
		    expiry_date      = $11::date,
		    approval_history = $12,
		    returned_info    = $13,
		    version          = version + 1,
		    updated_at       = NOW()
		WHERE id = $1 AND version = $14
		RETURNING version, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		permit.ID,
		permit.PermitNumber,
		permit.PONumber,
		permit.EmployeeName,
		permit.PermitType,
		permit.Status,
		permit.CurrentLevel,
		permit.Location,
		permit.Remarks,
		permit.IssueDate,
		permit.ExpiryDate,
		history,
		returned,
		expectedVersion,
	).Scan(&permit.Version, &permit.UpdatedAt)

	if stderrors.Is(err, pgx.ErrNoRows) {
		return r.staleOrMissing(ctx, permit.ID)
	}
	if isUniqueViolation(err) {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("permit number '%s' already exists", permit.PermitNumber))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update permit")
	}
	return nil
}

// Delete permanently removes a permit. Status preconditions are checked
// by the service before calling.
func (r *PermitRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM permits WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete permit")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("permit", id)
	}
	return nil
}

// staleOrMissing distinguishes a concurrent modification from a deleted
// permit after a version-conditioned update matched no rows.
func (r *PermitRepository) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permits WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to verify permit state")
	}
	if exists {
		return errors.New(errors.ErrCodeConflict,
			"permit was modified concurrently, please retry")
	}
	return errors.NotFound("permit", id)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type permitScanner interface {
	Scan(dest ...any) error
}

func scanPermit(sc permitScanner) (*Permit, error) {
	permit := &Permit{}
	var historyJSON, returnedJSON []byte

	err := sc.Scan(
		&permit.ID,
		&permit.PermitNumber,
		&permit.PONumber,
		&permit.EmployeeName,
		&permit.PermitType,
		&permit.Status,
		&permit.CurrentLevel,
		&permit.Location,
		&permit.Remarks,
		&permit.IssueDate,
		&permit.ExpiryDate,
		&permit.CreatedBy,
		&historyJSON,
		&returnedJSON,
		&permit.Version,
		&permit.CreatedAt,
		&permit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	permit.ApprovalHistory = make([]ApprovalEntry, 0)
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &permit.ApprovalHistory); err != nil {
			return nil, fmt.Errorf("unmarshal approval history: %w", err)
		}
	}
	if returnedJSON != nil {
		permit.ReturnedInfo = &ReturnedInfo{}
		if err := json.Unmarshal(returnedJSON, permit.ReturnedInfo); err != nil {
			return nil, fmt.Errorf("unmarshal returned info: %w", err)
		}
	}
	return permit, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}
