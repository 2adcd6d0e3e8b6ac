package db

import "time"

// EventState состояние события
type EventState string

const (
	EventPending   EventState = "PENDING"
	EventPublished EventState = "PUBLISHED"
	EventCanceled  EventState = "CANCELED"
)

// ParticipationStatus статус заявки на участие
type ParticipationStatus string

const (
	ParticipationPending   ParticipationStatus = "PENDING"
	ParticipationConfirmed ParticipationStatus = "CONFIRMED"
	ParticipationRejected  ParticipationStatus = "REJECTED"
	ParticipationCanceled  ParticipationStatus = "CANCELED"
)

// CommentStatus статус комментария
type CommentStatus string

const (
	CommentPending  CommentStatus = "PENDING"
	CommentApproved CommentStatus = "APPROVED"
	CommentRejected CommentStatus = "REJECTED"
)

// Location координаты места проведения
type Location struct {
	Lat float64
	Lon float64
}

// Event представляет событие в системе.
// ConfirmedRequests и Rating - производные поля: первое пишет только admission,
// второе только moderation.
type Event struct {
	ID                int64
	InitiatorID       int64
	CategoryID        int64
	Title             string
	Annotation        string
	Description       string
	Location          Location
	Paid              bool
	EventDate         time.Time
	ParticipantLimit  int
	RequestModeration bool
	ConfirmedRequests int
	Rating            float64
	State             EventState
	CreatedOn         time.Time
	PublishedOn       *time.Time
}

// LimitReached - лимит участников исчерпан. Лимит 0 означает отсутствие ограничения.
func (e *Event) LimitReached() bool {
	return e.ParticipantLimit > 0 && e.ConfirmedRequests >= e.ParticipantLimit
}

// Participation заявка пользователя на участие в событии
type Participation struct {
	ID          int64
	EventID     int64
	RequesterID int64
	Status      ParticipationStatus
	Created     time.Time
}

// Comment комментарий пользователя к событию, опционально с оценкой 1..5
type Comment struct {
	ID          int64
	EventID     int64
	CommenterID int64
	Text        string
	Rate        *int
	Status      CommentStatus
	Created     time.Time
}

// Counted - комментарий участвует в рейтинге события
func (c *Comment) Counted() bool {
	return c.Status == CommentApproved && c.Rate != nil
}

// User пользователь сервиса
type User struct {
	ID    int64
	Name  string
	Email string
}

// Category представляет категорию событий
type Category struct {
	ID   int64
	Name string
}

// Compilation подборка событий. Порядок EventIDs совпадает с порядком добавления.
type Compilation struct {
	ID       int64
	Title    string
	Pinned   bool
	EventIDs []int64
}
