package db

import "time"

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// EventSort порядок выдачи событий
type EventSort string

const (
	SortByID        EventSort = "ID"
	SortByEventDate EventSort = "EVENT_DATE"
	SortByRating    EventSort = "RATING"
)

// EventFilter содержит фильтры для событий в PostgreSQL.
// Один и тот же фильтр используется для листинга владельца, админского и публичного листинга.
type EventFilter struct {
	IDs           []int64      // Фильтр по ID событий
	InitiatorIDs  []int64      // Фильтр по инициаторам
	States        []EventState // Фильтр по состояниям
	CategoryIDs   []int64      // Фильтр по массиву ID категорий
	Text          *string      // Подстрока в аннотации или описании, без учета регистра
	Paid          *bool        // Платные/бесплатные
	DateFrom      *time.Time   // Дата начала диапазона (включительно)
	DateTo        *time.Time   // Дата окончания диапазона (включительно)
	OnlyAvailable bool         // Только события, где лимит не исчерпан
	Sort          EventSort

	// Пагинация
	Limit  *int
	Offset *int
}

// FilterOption функциональная опция для конфигурации фильтра.
type FilterOption func(*EventFilter)

// WithIDs ограничивает выборку конкретными событиями
func WithIDs(ids ...int64) FilterOption {
	return func(f *EventFilter) {
		f.IDs = ids
	}
}

// WithInitiators добавляет фильтр по инициаторам событий
func WithInitiators(userIDs ...int64) FilterOption {
	return func(f *EventFilter) {
		f.InitiatorIDs = userIDs
	}
}

// WithStates добавляет фильтр по состояниям
func WithStates(states ...EventState) FilterOption {
	return func(f *EventFilter) {
		f.States = states
	}
}

// WithCategory добавляет фильтр по одной или нескольким категориям.
// Если передано несколько ID, будет использоваться условие IN.
func WithCategory(categoryIDs ...int64) FilterOption {
	return func(f *EventFilter) {
		f.CategoryIDs = categoryIDs
	}
}

// WithText ищет подстроку в аннотации и описании
func WithText(text string) FilterOption {
	return func(f *EventFilter) {
		f.Text = &text
	}
}

// WithPaid фильтр по признаку платного участия
func WithPaid(paid bool) FilterOption {
	return func(f *EventFilter) {
		f.Paid = &paid
	}
}

// WithDateRange добавляет фильтр по диапазону дат.
// Можно передать только from (to = nil) или только to (from = nil).
func WithDateRange(from, to *time.Time) FilterOption {
	return func(f *EventFilter) {
		f.DateFrom = from
		f.DateTo = to
	}
}

// WithDateFrom добавляет фильтр только по начальной дате.
func WithDateFrom(dateFrom time.Time) FilterOption {
	return func(f *EventFilter) {
		f.DateFrom = &dateFrom
	}
}

// WithOnlyAvailable оставляет только события со свободными местами
func WithOnlyAvailable() FilterOption {
	return func(f *EventFilter) {
		f.OnlyAvailable = true
	}
}

// WithSort задает порядок выдачи
func WithSort(sort EventSort) FilterOption {
	return func(f *EventFilter) {
		f.Sort = sort
	}
}

// WithPagination добавляет параметры пагинации.
// limit - максимальное количество записей в ответе.
// offset - количество записей, которые нужно пропустить.
func WithPagination(limit, offset int) FilterOption {
	return func(f *EventFilter) {
		f.Limit = &limit
		f.Offset = &offset
	}
}

// WithLimit добавляет только лимит без offset.
func WithLimit(limit int) FilterOption {
	return func(f *EventFilter) {
		f.Limit = &limit
	}
}

// NewEventFilter создает новый фильтр с применением переданных опций.
func NewEventFilter(opts ...FilterOption) *EventFilter {
	filter := &EventFilter{}
	for _, opt := range opts {
		opt(filter)
	}
	return filter
}

// IsEmpty проверяет, является ли фильтр пустым (без условий).
func (f *EventFilter) IsEmpty() bool {
	return len(f.IDs) == 0 &&
		len(f.InitiatorIDs) == 0 &&
		len(f.States) == 0 &&
		len(f.CategoryIDs) == 0 &&
		f.Text == nil &&
		f.Paid == nil &&
		f.DateFrom == nil &&
		f.DateTo == nil &&
		!f.OnlyAvailable
}

// GetLimit возвращает лимит или значение по умолчанию.
func (f *EventFilter) GetLimit() int {
	return limitOrDefault(f.Limit)
}

// GetOffset возвращает offset или 0.
func (f *EventFilter) GetOffset() int {
	return offsetOrZero(f.Offset)
}

// ParticipationFilter фильтр заявок. Выдача всегда упорядочена по времени создания.
type ParticipationFilter struct {
	IDs         []int64
	EventID     *int64
	RequesterID *int64
	Statuses    []ParticipationStatus
}

// CommentFilter фильтр комментариев. Выдача упорядочена по времени создания.
type CommentFilter struct {
	EventID     *int64
	CommenterID *int64
	Statuses    []CommentStatus
	Rated       *bool // true - только с оценкой, false - только без оценки

	Limit  *int
	Offset *int
}

// GetLimit возвращает лимит или значение по умолчанию.
func (f *CommentFilter) GetLimit() int {
	return limitOrDefault(f.Limit)
}

// GetOffset возвращает offset или 0.
func (f *CommentFilter) GetOffset() int {
	return offsetOrZero(f.Offset)
}

// Page простая пагинация для справочников
type Page struct {
	Limit  int
	Offset int
}

// Normalize приводит пагинацию к допустимым значениям
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func limitOrDefault(limit *int) int {
	if limit == nil || *limit <= 0 {
		return defaultLimit
	}
	if *limit > maxLimit {
		return maxLimit
	}
	return *limit
}

func offsetOrZero(offset *int) int {
	if offset == nil || *offset < 0 {
		return 0
	}
	return *offset
}
