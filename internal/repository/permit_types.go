package repository

import "time"

// ── Domain types for the permit workflow ─────────────────────────────────────

// Permit statuses. Approved is terminal; Rejected and Closed are
// representable for historic records but no engine operation sets them.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
	StatusClosed   = "Closed"
	StatusReturned = "Returned"
)

// Authority levels. Level 1 is the final approver, level 4 the
// originator; a permit travels 4 → 1.
const (
	LevelFinal  = 1
	LevelOrigin = 4
)

// PermitTypes is the fixed set of work-permit categories.
var PermitTypes = []string{"General", "Height", "Confined", "Excavation", "Civil", "Hot"}

// ApprovalEntry is one immutable record in a permit's approval history.
// It captures either a level approval or an edit-with-audit event; for
// edits, Changes snapshots the fields that were altered.
type ApprovalEntry struct {
	Level      int            `json:"level"`
	ApprovedBy string         `json:"approvedBy"`
	ApprovedAt time.Time      `json:"approvedAt"`
	Comments   string         `json:"comments,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
}

// ReturnedInfo records the latest return-for-corrections. It is
// overwritten, not appended, on each new return.
type ReturnedInfo struct {
	ReturnedBy      string    `json:"returnedBy"`
	ReturnedAt      time.Time `json:"returnedAt"`
	RequiredChanges string    `json:"requiredChanges"`
	Comments        string    `json:"comments,omitempty"`
}

// Permit is the permit-to-work document.
type Permit struct {
	ID              string          `json:"id"`
	PermitNumber    string          `json:"permitNumber"`
	PONumber        string          `json:"poNumber"`
	EmployeeName    string          `json:"employeeName"`
	PermitType      string          `json:"permitType"`
	Status          string          `json:"status"`
	CurrentLevel    int             `json:"currentLevel"`
	Location        string          `json:"location"`
	Remarks         string          `json:"remarks"`
	IssueDate       string          `json:"issueDate"`
	ExpiryDate      string          `json:"expiryDate"`
	CreatedBy       string          `json:"createdBy"`
	ApprovalHistory []ApprovalEntry `json:"approvalHistory"`
	ReturnedInfo    *ReturnedInfo   `json:"returnedInfo,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ApprovedBy reports whether userID appears as an approver anywhere in
// the permit's history.
func (p *Permit) ApprovedByUser(userID string) bool {
	for _, entry := range p.ApprovalHistory {
		if entry.ApprovedBy == userID {
			return true
		}
	}
	return false
}

// PermitFilter enumerates every allowed search predicate, one optional
// field per attribute with a fixed match kind. Enum and id fields match
// exactly, date fields by equality, free-text fields by
// case-insensitive substring.
type PermitFilter struct {
	PermitType   *string // exact
	Status       *string // exact
	CurrentLevel *int    // exact
	IssueDate    *string // equality, YYYY-MM-DD
	ExpiryDate   *string // equality, YYYY-MM-DD
	PermitNumber *string // substring
	PONumber     *string // substring
	EmployeeName *string // substring
	Location     *string // substring
	Remarks      *string // substring
}

// Visibility restricts a query to the permits the caller may see:
// permits at the caller's level, permits they approved, and permits
// they created. Admin lifts the restriction entirely.
type Visibility struct {
	UserID string
	Level  int
	Admin  bool
}

// User is the identity record referenced by permits.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Level        int       `json:"level"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
