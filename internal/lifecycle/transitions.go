package lifecycle

import (
	"slices"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
)

type actor string

const (
	actorOwner actor = "owner"
	actorAdmin actor = "admin"
)

type transition struct {
	from []db.EventState
	to   db.EventState
}

// Таблица переходов: действие -> допустимые исходные состояния -> целевое состояние.
// Все, чего нет в таблице, - Conflict.
var transitions = map[actor]map[StateAction]transition{
	actorOwner: {
		SendToReview: {from: []db.EventState{db.EventPending, db.EventCanceled}, to: db.EventPending},
		CancelReview: {from: []db.EventState{db.EventPending, db.EventCanceled}, to: db.EventCanceled},
	},
	actorAdmin: {
		PublishEvent: {from: []db.EventState{db.EventPending}, to: db.EventPublished},
		RejectEvent:  {from: []db.EventState{db.EventPending}, to: db.EventCanceled},
	},
}

// checkAction проверяет, что действие вообще доступно этому актору
func checkAction(a actor, action StateAction) error {
	if _, ok := transitions[a][action]; !ok {
		return apperr.Validation(apperr.CodeEventInvalidAction, "state action %q is not allowed for %s", action, a)
	}
	return nil
}

// nextState возвращает целевое состояние или Conflict, если переход из current запрещен
func nextState(a actor, action StateAction, current db.EventState) (db.EventState, error) {
	t, ok := transitions[a][action]
	if !ok {
		return "", apperr.Validation(apperr.CodeEventInvalidAction, "state action %q is not allowed for %s", action, a)
	}
	if !slices.Contains(t.from, current) {
		return "", apperr.Conflict(apperr.CodeEventInvalidTransition,
			"cannot apply %s to event in state %s", action, current)
	}
	return t.to, nil
}
