package service

import (
	"fmt"

	"github.com/worksafe-io/be-permits/internal/auth"
	"github.com/worksafe-io/be-permits/internal/errors"
	"github.com/worksafe-io/be-permits/internal/repository"
)

// Authorization gate for every mutating permit operation. Two regimes
// exist: acting at the permit's current level (approve, return) and
// acting from one level above it (edit, i.e. the upstream approver
// correcting a permit that waits below them). Failures never mutate
// and always name the required level.

// requireLevel checks that the actor holds exactly the given authority
// level.
func requireLevel(actor auth.Identity, level int, action string) error {
	if actor.Level != level {
		return errors.Forbidden(
			fmt.Sprintf("only level %d users can %s this permit", level, action))
	}
	return nil
}

// requireOriginLevel checks that the actor sits at the origin of the
// approval chain.
func requireOriginLevel(actor auth.Identity) error {
	if actor.Level != originLevel {
		return errors.Forbidden(
			fmt.Sprintf("only level %d users can create permits", originLevel))
	}
	return nil
}

// requireCreatorOrAdmin checks ownership: the permit's creator and the
// ADMIN may act, nobody else.
func requireCreatorOrAdmin(actor auth.Identity, createdBy, action string) error {
	if actor.UserID == createdBy || actor.IsAdmin() {
		return nil
	}
	return errors.Forbidden(
		fmt.Sprintf("you are not authorized to %s this permit", action))
}

// requireViewer checks the read-visibility rule for a single permit:
// ADMIN, creator, a history participant, or a user at the permit's
// current level.
func requireViewer(actor auth.Identity, permit *repository.Permit) error {
	if actor.IsAdmin() {
		return nil
	}
	if permit.CreatedBy == actor.UserID {
		return nil
	}
	if permit.ApprovedByUser(actor.UserID) {
		return nil
	}
	if permit.CurrentLevel == actor.Level {
		return nil
	}
	return errors.Forbidden("you are not authorized to view this permit")
}
