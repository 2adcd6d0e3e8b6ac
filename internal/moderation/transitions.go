package moderation

import (
	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
)

type operation string

const (
	opApprove operation = "approve"
	opReject  operation = "reject"
	opEdit    operation = "edit"
	opDelete  operation = "delete"
)

// Таблица переходов комментария: операция -> допустимые исходные статусы -> итог.
// Правка автором любой версии возвращает комментарий на модерацию.
var commentTransitions = map[operation]map[db.CommentStatus]db.CommentStatus{
	opApprove: {
		db.CommentPending: db.CommentApproved,
	},
	opReject: {
		db.CommentPending: db.CommentRejected,
	},
	opEdit: {
		db.CommentPending:  db.CommentPending,
		db.CommentApproved: db.CommentPending,
		db.CommentRejected: db.CommentPending,
	},
	opDelete: {
		db.CommentPending: db.CommentPending,
	},
}

func transit(op operation, from db.CommentStatus) (db.CommentStatus, error) {
	to, ok := commentTransitions[op][from]
	if !ok {
		return "", apperr.Conflict(apperr.CodeCommentNotPending, "cannot %s comment in status %s", op, from)
	}
	return to, nil
}

func moderationOp(target db.CommentStatus) (operation, error) {
	switch target {
	case db.CommentApproved:
		return opApprove, nil
	case db.CommentRejected:
		return opReject, nil
	default:
		return "", apperr.Validation(apperr.CodeCommentBadStatus,
			"status must be APPROVED or REJECTED, got: %q", target)
	}
}
