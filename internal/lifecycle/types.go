package lifecycle

import (
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
)

// StateAction действие над состоянием события
type StateAction string

const (
	SendToReview StateAction = "SEND_TO_REVIEW"
	CancelReview StateAction = "CANCEL_REVIEW"
	PublishEvent StateAction = "PUBLISH_EVENT"
	RejectEvent  StateAction = "REJECT_EVENT"
)

// NewEvent черновик нового события
type NewEvent struct {
	CategoryID        int64       `validate:"gt=0"`
	Title             string      `validate:"notblank,min=3,max=120"`
	Annotation        string      `validate:"notblank,min=20,max=2000"`
	Description       string      `validate:"notblank,min=20,max=7000"`
	Location          db.Location
	Paid              bool
	EventDate         time.Time `validate:"required"`
	ParticipantLimit  int       `validate:"gte=0"`
	RequestModeration *bool     // nil означает true
}

// EventPatch частичное обновление события. nil - поле не меняется.
type EventPatch struct {
	CategoryID        *int64  `validate:"omitempty,gt=0"`
	Title             *string `validate:"omitempty,notblank,min=3,max=120"`
	Annotation        *string `validate:"omitempty,notblank,min=20,max=2000"`
	Description       *string `validate:"omitempty,notblank,min=20,max=7000"`
	Location          *db.Location
	Paid              *bool
	EventDate         *time.Time
	ParticipantLimit  *int `validate:"omitempty,gte=0"`
	RequestModeration *bool
	StateAction       *StateAction
}

// Page пагинация листингов: From - сколько записей пропустить, Size - размер страницы
type Page struct {
	From int `validate:"gte=0"`
	Size int `validate:"gte=0,lte=1000"`
}

func (p Page) size() int {
	if p.Size == 0 {
		return 10
	}
	return p.Size
}

// AdminFilter фильтр админского листинга
type AdminFilter struct {
	Users      []int64
	States     []db.EventState
	Categories []int64
	RangeStart *time.Time
	RangeEnd   *time.Time
	Page
}

// PublicSort порядок публичного листинга
type PublicSort string

const (
	SortEventDate PublicSort = "EVENT_DATE"
	SortRating    PublicSort = "RATING"
)

// PublicFilter фильтр публичного листинга. Всегда только опубликованные события;
// без диапазона дат - только будущие.
type PublicFilter struct {
	Text          string
	Categories    []int64
	Paid          *bool
	RangeStart    *time.Time
	RangeEnd      *time.Time
	OnlyAvailable bool
	Sort          PublicSort `validate:"omitempty,oneof=EVENT_DATE RATING"`
	Page
}
