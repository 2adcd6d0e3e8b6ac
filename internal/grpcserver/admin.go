package grpcserver

import (
	"context"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/lifecycle"
	"github.com/rx3lixir/ewm-service/internal/moderation"
	"github.com/rx3lixir/ewm-service/pkg/consistency"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AdminServiceName полное имя административного gRPC сервиса
const AdminServiceName = "ewm.v1.Admin"

// AdminServer - административные операции модерации и сверки данных.
// Запросы и ответы - well-known типы protobuf, поэтому сервис обходится без кодогенерации.
type AdminServer interface {
	UpdateEventState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ModerateComment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteComment(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error)
	CheckConsistency(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	RepairConsistency(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ConsistencyManager сверка производных полей событий
type ConsistencyManager interface {
	CheckConsistency(ctx context.Context) (*consistency.CheckResult, error)
	RepairInconsistencies(ctx context.Context, result *consistency.CheckResult) error
}

// Admin реализует AdminServer поверх сервисов жизненного цикла и модерации
type Admin struct {
	lifecycle   *lifecycle.Service
	moderation  *moderation.Service
	consistency ConsistencyManager
	log         logger.Logger
}

func NewAdmin(lc *lifecycle.Service, mod *moderation.Service, cm ConsistencyManager, log logger.Logger) *Admin {
	return &Admin{
		lifecycle:   lc,
		moderation:  mod,
		consistency: cm,
		log:         log.With("component", "grpc_admin"),
	}
}

// UpdateEventState публикует или отклоняет событие. Поля запроса: event_id, state_action.
func (a *Admin) UpdateEventState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	eventID, err := idField(req, "event_id")
	if err != nil {
		return nil, err
	}
	action, err := stringField(req, "state_action")
	if err != nil {
		return nil, err
	}

	a.log.Info("UpdateEventState request received", "method", "UpdateEventState", "event_id", eventID, "state_action", action)

	stateAction := lifecycle.StateAction(action)
	event, err := a.lifecycle.UpdateByAdmin(ctx, eventID, lifecycle.EventPatch{StateAction: &stateAction})
	if err != nil {
		return nil, err
	}
	return eventToStruct(event)
}

// ModerateComment одобряет или отклоняет комментарий. Поля запроса: comment_id, status.
func (a *Admin) ModerateComment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	commentID, err := idField(req, "comment_id")
	if err != nil {
		return nil, err
	}
	status, err := stringField(req, "status")
	if err != nil {
		return nil, err
	}

	a.log.Info("ModerateComment request received", "method", "ModerateComment", "comment_id", commentID, "status", status)

	c, err := a.moderation.Moderate(ctx, commentID, db.CommentStatus(status))
	if err != nil {
		return nil, err
	}
	return commentToStruct(c)
}

func (a *Admin) DeleteComment(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	if req.GetValue() <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "comment id must be positive")
	}
	if err := a.moderation.DeleteByAdmin(ctx, req.GetValue()); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

// CheckConsistency возвращает результат сверки (возможно закешированный)
func (a *Admin) CheckConsistency(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	result, err := a.consistency.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}
	return checkResultToStruct(result)
}

// RepairConsistency сверяет данные и исправляет найденные расхождения
func (a *Admin) RepairConsistency(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	result, err := a.consistency.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}
	if !result.IsConsistent {
		a.log.Warn("repairing inconsistencies", "count", result.Inconsistencies())
		if err := a.consistency.RepairInconsistencies(ctx, result); err != nil {
			return nil, err
		}
	}
	return checkResultToStruct(result)
}

// RegisterAdminServer регистрирует сервис на gRPC сервере
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("UpdateEventState", func() *structpb.Struct { return new(structpb.Struct) }, AdminServer.UpdateEventState),
		unary("ModerateComment", func() *structpb.Struct { return new(structpb.Struct) }, AdminServer.ModerateComment),
		unary("DeleteComment", func() *wrapperspb.Int64Value { return new(wrapperspb.Int64Value) }, AdminServer.DeleteComment),
		unary("CheckConsistency", func() *emptypb.Empty { return new(emptypb.Empty) }, AdminServer.CheckConsistency),
		unary("RepairConsistency", func() *emptypb.Empty { return new(emptypb.Empty) }, AdminServer.RepairConsistency),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ewm/v1/admin.proto",
}

func unary[Req, Res proto.Message](
	name string,
	newReq func() Req,
	call func(AdminServer, context.Context, Req) (Res, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := newReq()
			if err := dec(req); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, r any) (any, error) {
				return call(srv.(AdminServer), ctx, r.(Req))
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/" + name}
			return interceptor(ctx, req, info, handler)
		},
	}
}
