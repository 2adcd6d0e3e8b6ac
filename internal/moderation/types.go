package moderation

import (
	"unicode/utf8"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
)

const (
	minTextLen = 3
	maxTextLen = 1000
	minRate    = 1
	maxRate    = 5
)

// NewComment входные данные нового комментария
type NewComment struct {
	Text string
	Rate *int
}

// CommentPatch изменение комментария автором. nil поля не меняются.
type CommentPatch struct {
	Text *string
	Rate *int
}

// ListFilter параметры листинга комментариев
type ListFilter struct {
	Statuses []db.CommentStatus
	Rated    *bool
	From     int
	Size     int
}

func (f ListFilter) toDB() *db.CommentFilter {
	size := f.Size
	if size <= 0 {
		size = 10
	}
	from := f.From
	return &db.CommentFilter{
		Statuses: f.Statuses,
		Rated:    f.Rated,
		Limit:    &size,
		Offset:   &from,
	}
}

func checkText(text string) error {
	n := utf8.RuneCountInString(text)
	if n < minTextLen || n > maxTextLen {
		return apperr.Validation(apperr.CodeCommentInvalidText,
			"Field: text. Error: length must be between %d and %d, got: %d", minTextLen, maxTextLen, n)
	}
	return nil
}

func checkRate(rate *int) error {
	if rate != nil && (*rate < minRate || *rate > maxRate) {
		return apperr.Validation(apperr.CodeCommentInvalidRate,
			"Field: rate. Error: must be between %d and %d, got: %d", minRate, maxRate, *rate)
	}
	return nil
}

func sameRate(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
