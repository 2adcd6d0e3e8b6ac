package opensearch

import (
	"strings"
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
)

// buildSearchQuery переводит фильтр событий в запрос OpenSearch.
// Все условия идут в filter context, релевантность не считается:
// порядок задается только явной сортировкой, как и в PostgreSQL.
func buildSearchQuery(filter *db.EventFilter) map[string]any {
	var filters []any

	if len(filter.IDs) > 0 {
		filters = append(filters, terms("id", filter.IDs))
	}
	if len(filter.InitiatorIDs) > 0 {
		filters = append(filters, terms("initiator_id", filter.InitiatorIDs))
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, st := range filter.States {
			states = append(states, string(st))
		}
		filters = append(filters, terms("state", states))
	}
	if len(filter.CategoryIDs) > 0 {
		filters = append(filters, terms("category_id", filter.CategoryIDs))
	}
	if filter.Paid != nil {
		filters = append(filters, term("paid", *filter.Paid))
	}
	if filter.DateFrom != nil || filter.DateTo != nil {
		filters = append(filters, dateRange("event_date", filter.DateFrom, filter.DateTo))
	}
	if filter.OnlyAvailable {
		filters = append(filters, term("available", true))
	}
	if filter.Text != nil && strings.TrimSpace(*filter.Text) != "" {
		filters = append(filters, textFilter(*filter.Text))
	}

	boolQuery := map[string]any{}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	} else {
		boolQuery["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}

	return map[string]any{
		"from":    filter.GetOffset(),
		"size":    filter.GetLimit(),
		"_source": false,
		"query":   map[string]any{"bool": boolQuery},
		"sort":    buildSort(filter.Sort),
	}
}

func buildSort(sort db.EventSort) []any {
	byID := map[string]any{"id": map[string]any{"order": "asc"}}

	switch sort {
	case db.SortByEventDate:
		return []any{map[string]any{"event_date": map[string]any{"order": "asc"}}, byID}
	case db.SortByRating:
		return []any{map[string]any{"rating": map[string]any{"order": "desc"}}, byID}
	default:
		return []any{byID}
	}
}

// textFilter - подстрока в аннотации или описании без учета регистра
func textFilter(text string) map[string]any {
	pattern := "*" + escapeWildcard(strings.ToLower(strings.TrimSpace(text))) + "*"
	return map[string]any{
		"bool": map[string]any{
			"should": []any{
				map[string]any{"wildcard": map[string]any{"annotation.lower": map[string]any{"value": pattern}}},
				map[string]any{"wildcard": map[string]any{"description.lower": map[string]any{"value": pattern}}},
			},
			"minimum_should_match": 1,
		},
	}
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

func terms(field string, values any) map[string]any {
	return map[string]any{"terms": map[string]any{field: values}}
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func dateRange(field string, from, to *time.Time) map[string]any {
	r := map[string]any{}
	if from != nil {
		r["gte"] = from.UTC().Format(time.RFC3339)
	}
	if to != nil {
		r["lte"] = to.UTC().Format(time.RFC3339)
	}
	return map[string]any{"range": map[string]any{field: r}}
}
