package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"congregation/internal/domain/member"
)

// MemberStoreForSave defines the store interface needed by SaveMember.
type MemberStoreForSave interface {
	Insert(ctx context.Context, m member.Member) (int64, error)
	Update(ctx context.Context, m member.Member) error
}

// SaveMemberInput carries the add or edit form.
type SaveMemberInput struct {
	ID    int64 // zero creates a new member
	Form  member.Form
	Today time.Time
}

// SaveMemberResult reports what was written.
type SaveMemberResult struct {
	ID      int64
	Created bool
}

// SaveMemberDeps holds dependencies for SaveMember.
type SaveMemberDeps struct {
	MemberStore MemberStoreForSave
	Events      ChangePublisher
}

// ErrSaveFailed is the single message shown when the store rejects a valid form.
var ErrSaveFailed = errors.New("Помилка збереження")

// ExecuteSaveMember validates the form and inserts or updates the member.
// PRE: Input.Today is the caller's current date
// POST: returns member.FieldErrors without touching the store when the form is invalid
// INVARIANT: a stored member never has a baptism date before its birth date
func ExecuteSaveMember(ctx context.Context, input SaveMemberInput, deps SaveMemberDeps) (SaveMemberResult, error) {
	if errs := input.Form.Validate(input.Today); errs != nil {
		return SaveMemberResult{}, errs
	}
	m := input.Form.ToMember(input.ID)
	if err := m.Validate(); err != nil {
		return SaveMemberResult{}, err
	}

	if input.ID == 0 {
		id, err := deps.MemberStore.Insert(ctx, m)
		if err != nil {
			slog.Error("member_event", "event", "insert_failed", "error", err)
			return SaveMemberResult{}, fmt.Errorf("%w: %v", ErrSaveFailed, err)
		}
		slog.Info("member_event", "event", "created", "member_id", id)
		publish(deps.Events, topicMembers)
		return SaveMemberResult{ID: id, Created: true}, nil
	}

	if err := deps.MemberStore.Update(ctx, m); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return SaveMemberResult{}, err
		}
		slog.Error("member_event", "event", "update_failed", "member_id", input.ID, "error", err)
		return SaveMemberResult{}, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	slog.Info("member_event", "event", "updated", "member_id", input.ID)
	publish(deps.Events, topicMembers)
	return SaveMemberResult{ID: input.ID}, nil
}

// MemberStoreForDelete defines the store interface needed by DeleteMember.
type MemberStoreForDelete interface {
	Delete(ctx context.Context, id int64) error
}

// DeleteMemberDeps holds dependencies for DeleteMember.
type DeleteMemberDeps struct {
	MemberStore MemberStoreForDelete
	Events      ChangePublisher
}

// ErrDeleteFailed is shown on the confirmation page when the store fails.
var ErrDeleteFailed = errors.New("Помилка видалення")

// ExecuteDeleteMember removes one member.
// PRE: id > 0
// POST: member.ErrNotFound is passed through; other failures wrap ErrDeleteFailed
func ExecuteDeleteMember(ctx context.Context, id int64, deps DeleteMemberDeps) error {
	if id <= 0 {
		return member.ErrNotFound
	}
	if err := deps.MemberStore.Delete(ctx, id); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return err
		}
		slog.Error("member_event", "event", "delete_failed", "member_id", id, "error", err)
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	slog.Info("member_event", "event", "deleted", "member_id", id)
	publish(deps.Events, topicMembers)
	return nil
}
