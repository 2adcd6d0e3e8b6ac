// Package apperr описывает доменные ошибки сервиса: ошибки валидации,
// отсутствующие сущности и нарушения бизнес-правил.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain - домен в ErrorInfo деталях gRPC статуса
const ErrorDomain = "ewm-service"

// Kind - класс ошибки
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Code - машиночитаемый код ошибки
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"

	CodeEventDateTooEarly      Code = "EVENT_DATE_TOO_EARLY"
	CodeEventInvalidAction     Code = "EVENT_INVALID_STATE_ACTION"
	CodeEventInvalidTransition Code = "EVENT_INVALID_STATE_TRANSITION"
	CodeEventNotOwner          Code = "EVENT_NOT_OWNER"
	CodeEventPublished         Code = "EVENT_ALREADY_PUBLISHED"
	CodeEventLimitBelowCount   Code = "EVENT_LIMIT_BELOW_CONFIRMED"
	CodeEventInvalidRange      Code = "EVENT_INVALID_DATE_RANGE"

	CodeParticipationOwnsEvent    Code = "PARTICIPATION_OWNS_EVENT"
	CodeParticipationDuplicate    Code = "PARTICIPATION_DUPLICATE"
	CodeParticipationNotPublished Code = "PARTICIPATION_EVENT_NOT_PUBLISHED"
	CodeParticipationLimit        Code = "PARTICIPATION_LIMIT_EXPIRED"
	CodeParticipationNotPending   Code = "PARTICIPATION_NOT_ALL_PENDING"
	CodeParticipationBadStatus    Code = "PARTICIPATION_INVALID_TARGET_STATUS"

	CodeCommentNotPublished    Code = "COMMENT_EVENT_NOT_PUBLISHED"
	CodeCommentDuplicate       Code = "COMMENT_DUPLICATE"
	CodeCommentRateForbidden   Code = "COMMENT_RATING_NEEDS_CONFIRMED_PARTICIPATION"
	CodeCommentNotOwner        Code = "COMMENT_NOT_OWNER"
	CodeCommentNotPending      Code = "COMMENT_NOT_PENDING"
	CodeCommentBadStatus       Code = "COMMENT_INVALID_TARGET_STATUS"
	CodeCommentInvalidRate     Code = "COMMENT_INVALID_RATE"
	CodeCommentInvalidText     Code = "COMMENT_INVALID_TEXT"

	CodeUserDuplicateEmail    Code = "USER_DUPLICATE_EMAIL"
	CodeUserInUse             Code = "USER_IN_USE"
	CodeCategoryDuplicateName Code = "CATEGORY_DUPLICATE_NAME"
	CodeCategoryInUse         Code = "CATEGORY_IN_USE"

	CodeCompilationDuplicateTitle Code = "COMPILATION_DUPLICATE_TITLE"
)

// Error - доменная ошибка с классом и кодом
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Validation - некорректные входные данные
func Validation(code Code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound - сущность не найдена
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict - нарушение бизнес-правила
func Conflict(code Code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap добавляет причину к доменной ошибке
func Wrap(e *Error, cause error) *Error {
	wrapped := *e
	wrapped.Cause = cause
	return &wrapped
}

// KindOf возвращает класс ошибки; для чужих ошибок это KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf возвращает код доменной ошибки или пустую строку
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// HTTPStatus возвращает HTTP статус для ошибки
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode возвращает gRPC код для ошибки
func GRPCCode(err error) codes.Code {
	switch KindOf(err) {
	case KindValidation:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindConflict:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// ToGRPCStatus преобразует ошибку в gRPC статус. Текст внутренних ошибок наружу не отдается,
// код доменной ошибки передается в ErrorInfo.Reason.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := GRPCCode(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal server error")
	}

	st := status.New(code, err.Error())
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(CodeOf(err)),
		Domain:   ErrorDomain,
		Metadata: map[string]string{"kind": KindOf(err).String()},
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ReasonOf достает код доменной ошибки из gRPC статуса
func ReasonOf(err error) Code {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return Code(info.GetReason())
		}
	}
	return ""
}
