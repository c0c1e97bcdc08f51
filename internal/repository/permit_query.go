package repository

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildPermitWhere renders a PermitFilter plus a Visibility restriction
// into a WHERE clause with positional args. Only the enumerated filter
// fields can ever reach the SQL text; caller input appears exclusively
// as bind parameters.
func buildPermitWhere(f PermitFilter, vis Visibility) (string, []any) {
	var (
		conds []string
		args  []any
	)

	next := func() int { return len(args) + 1 }

	if f.PermitType != nil {
		conds = append(conds, fmt.Sprintf("permit_type = $%d::permit_type", next()))
		args = append(args, *f.PermitType)
	}
	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d::permit_status", next()))
		args = append(args, *f.Status)
	}
	if f.CurrentLevel != nil {
		conds = append(conds, fmt.Sprintf("current_level = $%d", next()))
		args = append(args, *f.CurrentLevel)
	}
	if f.IssueDate != nil {
		conds = append(conds, fmt.Sprintf("issue_date = $%d::date", next()))
		args = append(args, *f.IssueDate)
	}
	if f.ExpiryDate != nil {
		conds = append(conds, fmt.Sprintf("expiry_date = $%d::date", next()))
		args = append(args, *f.ExpiryDate)
	}

	substring := func(column string, value *string) {
		if value == nil {
			return
		}
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", column, next()))
		args = append(args, "%"+escapeLike(*value)+"%")
	}
	substring("permit_number", f.PermitNumber)
	substring("po_number", f.PONumber)
	substring("employee_name", f.EmployeeName)
	substring("location", f.Location)
	substring("remarks", f.Remarks)

	if !vis.Admin {
		approver, _ := json.Marshal([]map[string]string{{"approvedBy": vis.UserID}})
		conds = append(conds, fmt.Sprintf(
			"(current_level = $%d OR created_by = $%d OR approval_history @> $%d::jsonb)",
			next(), next()+1, next()+2))
		args = append(args, vis.Level, vis.UserID, string(approver))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike neutralizes LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
