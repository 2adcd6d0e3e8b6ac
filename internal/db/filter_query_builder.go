package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
)

// whereBuilder накапливает условия WHERE и аргументы с нумерацией $N
type whereBuilder struct {
	conditions []string
	args       []any
}

// arg добавляет аргумент и возвращает его плейсхолдер
func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) add(format string, values ...any) {
	placeholders := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = b.arg(v)
	}
	b.conditions = append(b.conditions, fmt.Sprintf(format, placeholders...))
}

// addIn добавляет условие column = ANY($N)
func (b *whereBuilder) addIn(column string, values any) {
	b.conditions = append(b.conditions, fmt.Sprintf("%s = ANY(%s)", column, b.arg(values)))
}

func (b *whereBuilder) where() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conditions, " AND ")
}

func stateStrings(states []EventState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func (s *PostgresStore) eventConditions(filter *EventFilter) *whereBuilder {
	b := &whereBuilder{}

	if len(filter.IDs) > 0 {
		b.addIn("id", filter.IDs)
	}
	if len(filter.InitiatorIDs) > 0 {
		b.addIn("initiator_id", filter.InitiatorIDs)
	}
	if len(filter.States) > 0 {
		b.addIn("state", stateStrings(filter.States))
	}
	if len(filter.CategoryIDs) > 0 {
		b.addIn("category_id", filter.CategoryIDs)
	}

	// Регистронезависимый поиск по аннотации и описанию
	if filter.Text != nil {
		pattern := "%" + escapeLike(*filter.Text) + "%"
		b.add("(annotation ILIKE %[1]s OR description ILIKE %[1]s)", pattern)
	}
	if filter.Paid != nil {
		b.add("paid = %s", *filter.Paid)
	}
	if filter.DateFrom != nil {
		b.add("event_date >= %s", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		b.add("event_date <= %s", *filter.DateTo)
	}
	if filter.OnlyAvailable {
		b.conditions = append(b.conditions, "(participant_limit = 0 OR confirmed_requests < participant_limit)")
	}

	return b
}

// buildFilteredQuery строит SQL запрос с WHERE условиями на основе фильтра.
// Возвращает готовый SQL запрос и массив аргументов для защиты от SQL injection.
func (s *PostgresStore) buildFilteredQuery(filter *EventFilter) (string, []any) {
	b := s.eventConditions(filter)
	query := selectEventFields + b.where()

	switch filter.Sort {
	case SortByEventDate:
		query += " ORDER BY event_date ASC, id ASC"
	case SortByRating:
		query += " ORDER BY rating DESC, id ASC"
	default:
		query += " ORDER BY id ASC"
	}

	query += fmt.Sprintf(" LIMIT %s OFFSET %s", b.arg(filter.GetLimit()), b.arg(filter.GetOffset()))

	return query, b.args
}

// buildCountQuery строит запрос для подсчета общего количества записей с учетом фильтров.
func (s *PostgresStore) buildCountQuery(filter *EventFilter) (string, []any) {
	b := s.eventConditions(filter)
	return "SELECT COUNT(*) FROM events" + b.where(), b.args
}

func (s *PostgresStore) buildParticipationQuery(filter *ParticipationFilter) (string, []any) {
	b := &whereBuilder{}

	if len(filter.IDs) > 0 {
		b.addIn("id", filter.IDs)
	}
	if filter.EventID != nil {
		b.add("event_id = %s", *filter.EventID)
	}
	if filter.RequesterID != nil {
		b.add("requester_id = %s", *filter.RequesterID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		b.addIn("status", statuses)
	}

	return selectParticipationFields + b.where() + " ORDER BY created ASC, id ASC", b.args
}

func (s *PostgresStore) buildCommentQuery(filter *CommentFilter) (string, []any) {
	b := &whereBuilder{}

	if filter.EventID != nil {
		b.add("event_id = %s", *filter.EventID)
	}
	if filter.CommenterID != nil {
		b.add("commenter_id = %s", *filter.CommenterID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		b.addIn("status", statuses)
	}
	if filter.Rated != nil {
		if *filter.Rated {
			b.conditions = append(b.conditions, "rate IS NOT NULL")
		} else {
			b.conditions = append(b.conditions, "rate IS NULL")
		}
	}

	query := selectCommentFields + b.where() + " ORDER BY created ASC, id ASC"
	query += fmt.Sprintf(" LIMIT %s OFFSET %s", b.arg(filter.GetLimit()), b.arg(filter.GetOffset()))

	return query, b.args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ValidateEventFilter проверяет корректность фильтра перед запросом
func ValidateEventFilter(filter *EventFilter) error {
	if filter == nil {
		return nil
	}

	for _, id := range filter.CategoryIDs {
		if id <= 0 {
			return apperr.Validation(apperr.CodeInvalidArgument, "category id must be positive, got: %d", id)
		}
	}

	// Проверяем диапазон дат
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateFrom.After(*filter.DateTo) {
		return apperr.Validation(apperr.CodeEventInvalidRange, "rangeStart (%s) cannot be after rangeEnd (%s)",
			filter.DateFrom.Format(time.DateTime),
			filter.DateTo.Format(time.DateTime))
	}

	// Проверяем разумные лимиты
	if filter.Limit != nil && *filter.Limit > maxLimit {
		return apperr.Validation(apperr.CodeInvalidArgument, "limit too large, maximum allowed: %d, got: %d", maxLimit, *filter.Limit)
	}
	if filter.Offset != nil && *filter.Offset < 0 {
		return apperr.Validation(apperr.CodeInvalidArgument, "offset cannot be negative, got: %d", *filter.Offset)
	}

	switch filter.Sort {
	case "", SortByID, SortByEventDate, SortByRating:
	default:
		return apperr.Validation(apperr.CodeInvalidArgument, "unknown sort %q", filter.Sort)
	}

	return nil
}
