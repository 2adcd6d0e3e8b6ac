package admission

import (
	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
)

type operation string

const (
	opCancel  operation = "cancel"
	opConfirm operation = "confirm"
	opReject  operation = "reject"
)

// outcome результат применения операции к заявке
type outcome struct {
	to           db.ParticipationStatus
	counterDelta int  // изменение confirmedRequests события
	noop         bool // заявка не меняется, операция возвращает текущее состояние
}

// Таблица переходов заявки. Пары (операция, статус), которых нет в таблице, запрещены.
var participationTransitions = map[operation]map[db.ParticipationStatus]outcome{
	opCancel: {
		db.ParticipationPending:   {to: db.ParticipationCanceled},
		db.ParticipationConfirmed: {to: db.ParticipationCanceled, counterDelta: -1},
		db.ParticipationRejected:  {to: db.ParticipationRejected, noop: true},
		db.ParticipationCanceled:  {to: db.ParticipationCanceled, noop: true},
	},
	opConfirm: {
		db.ParticipationPending: {to: db.ParticipationConfirmed, counterDelta: 1},
	},
	opReject: {
		db.ParticipationPending: {to: db.ParticipationRejected},
	},
}

func transit(op operation, from db.ParticipationStatus) (outcome, error) {
	out, ok := participationTransitions[op][from]
	if !ok {
		return outcome{}, apperr.Conflict(apperr.CodeParticipationNotPending,
			"cannot %s request in status %s", op, from)
	}
	return out, nil
}

func operationFor(status db.ParticipationStatus) operation {
	if status == db.ParticipationConfirmed {
		return opConfirm
	}
	return opReject
}
