package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestBuildPermitWhere_AdminNoFilters(t *testing.T) {
	where, args := buildPermitWhere(PermitFilter{}, Visibility{UserID: "u-1", Level: 1, Admin: true})

	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestBuildPermitWhere_VisibilityOnly(t *testing.T) {
	where, args := buildPermitWhere(PermitFilter{}, Visibility{UserID: "u-7", Level: 2})

	assert.Equal(t,
		"WHERE (current_level = $1 OR created_by = $2 OR approval_history @> $3::jsonb)",
		where)
	require.Len(t, args, 3)
	assert.Equal(t, 2, args[0])
	assert.Equal(t, "u-7", args[1])
	assert.JSONEq(t, `[{"approvedBy":"u-7"}]`, args[2].(string))
}

func TestBuildPermitWhere_ExactAndSubstring(t *testing.T) {
	level := 3
	filter := PermitFilter{
		PermitType:   strptr("Hot"),
		Status:       strptr("Pending"),
		CurrentLevel: &level,
		IssueDate:    strptr("2026-09-01"),
		EmployeeName: strptr("ravi"),
		Location:     strptr("tower"),
	}

	where, args := buildPermitWhere(filter, Visibility{UserID: "u-7", Level: 3})

	assert.Equal(t,
		"WHERE permit_type = $1::permit_type"+
			" AND status = $2::permit_status"+
			" AND current_level = $3"+
			" AND issue_date = $4::date"+
			" AND employee_name ILIKE $5"+
			" AND location ILIKE $6"+
			" AND (current_level = $7 OR created_by = $8 OR approval_history @> $9::jsonb)",
		where)
	require.Len(t, args, 9)
	assert.Equal(t, "Hot", args[0])
	assert.Equal(t, "Pending", args[1])
	assert.Equal(t, 3, args[2])
	assert.Equal(t, "%ravi%", args[4])
	assert.Equal(t, "%tower%", args[5])
}

func TestBuildPermitWhere_EscapesLikeWildcards(t *testing.T) {
	where, args := buildPermitWhere(
		PermitFilter{PermitNumber: strptr(`50%_off\now`)},
		Visibility{Admin: true})

	assert.Equal(t, "WHERE permit_number ILIKE $1", where)
	require.Len(t, args, 1)
	assert.Equal(t, `%50\%\_off\\now%`, args[0])
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `plain`, escapeLike(`plain`))
	assert.Equal(t, `\%\_\\`, escapeLike(`%_\`))
}
