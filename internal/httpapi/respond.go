package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/ewm-service/internal/apperr"
)

const maxBodyBytes = 1 << 20

// DateLayout формат дат в запросах и ответах
const DateLayout = time.DateTime

// errorResponse тело ответа с ошибкой
type errorResponse struct {
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	resp := errorResponse{
		Status:    strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		Reason:    reason(apperr.KindOf(err)),
		Code:      string(apperr.CodeOf(err)),
		Message:   err.Error(),
		Timestamp: time.Now().Format(DateLayout),
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Message = "internal server error"
	}
	writeJSON(w, status, resp)
}

func reason(k apperr.Kind) string {
	switch k {
	case apperr.KindValidation:
		return "Incorrectly made request."
	case apperr.KindNotFound:
		return "The required object was not found."
	case apperr.KindConflict:
		return "For the requested operation the conditions are not met."
	default:
		return "Unexpected error."
	}
}

func badRequest(format string, args ...any) error {
	return apperr.Validation(apperr.CodeInvalidArgument, format, args...)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			return badRequest("Field: %s. Error: wrong type", typeErr.Field)
		case errors.As(err, &syntaxErr):
			return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
		default:
			return badRequest("invalid request body: %v", err)
		}
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("path parameter %s must be a positive number, got %q", name, raw)
	}
	return id, nil
}

// query разбирает параметры запроса и запоминает первую ошибку
type query struct {
	r   *http.Request
	err error
}

func newQuery(r *http.Request) *query {
	return &query{r: r}
}

func (q *query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

func (q *query) number(name string, def int) int {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		q.fail(badRequest("parameter %s must be a non-negative number, got %q", name, raw))
		return def
	}
	return v
}

func (q *query) requiredID(name string) int64 {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		q.fail(badRequest("parameter %s is required", name))
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		q.fail(badRequest("parameter %s must be a positive number, got %q", name, raw))
	}
	return v
}

// values поддерживает и повторяющиеся параметры, и списки через запятую
func (q *query) values(name string) []string {
	var out []string
	for _, raw := range q.r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (q *query) ids(name string) []int64 {
	var out []int64
	for _, raw := range q.values(name) {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			q.fail(badRequest("parameter %s must contain numbers, got %q", name, raw))
			return nil
		}
		out = append(out, v)
	}
	return out
}

func (q *query) boolPtr(name string) *bool {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(badRequest("parameter %s must be a boolean, got %q", name, raw))
		return nil
	}
	return &v
}

func (q *query) date(name string) *time.Time {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(DateLayout, raw, time.Local)
	if err != nil {
		q.fail(badRequest("parameter %s must match %q, got %q", name, DateLayout, raw))
		return nil
	}
	return &t
}
