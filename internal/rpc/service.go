// Package rpc exposes the alert manager over gRPC using a JSON codec, so
// producers can raise and resolve alerts without generated stubs.
package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alertline/alertline/internal/alerter"
	"github.com/alertline/alertline/internal/types"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "alertline.v1.AlertService"

// ResolveAlertRequest resolves one alert
type ResolveAlertRequest struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// GetAlertRequest fetches one alert by id
type GetAlertRequest struct {
	ID string `json:"id"`
}

// GetActiveAlertsRequest filters active alerts. Empty fields match everything.
type GetActiveAlertsRequest struct {
	Environment string `json:"environment,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Source      string `json:"source,omitempty"`
}

// GetActiveAlertsResponse lists matching active alerts
type GetActiveAlertsResponse struct {
	Alerts []types.Alert `json:"alerts"`
}

// AlertServiceServer is the server API for AlertService
type AlertServiceServer interface {
	CreateAlert(ctx context.Context, req *alerter.CreateRequest) (*alerter.Outcome, error)
	ResolveAlert(ctx context.Context, req *ResolveAlertRequest) (*alerter.Outcome, error)
	GetActiveAlerts(ctx context.Context, req *GetActiveAlertsRequest) (*GetActiveAlertsResponse, error)
	GetAlert(ctx context.Context, req *GetAlertRequest) (*types.Alert, error)
}

// Service implements AlertServiceServer on top of the engine
type Service struct {
	engine *alerter.Engine
}

// NewService creates the gRPC alert service
func NewService(engine *alerter.Engine) *Service {
	return &Service{engine: engine}
}

func (s *Service) CreateAlert(ctx context.Context, req *alerter.CreateRequest) (*alerter.Outcome, error) {
	out, err := s.engine.Create(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &out, nil
}

func (s *Service) ResolveAlert(ctx context.Context, req *ResolveAlertRequest) (*alerter.Outcome, error) {
	out, err := s.engine.Resolve(ctx, req.ID, req.Message)
	if err != nil {
		return nil, toStatus(err)
	}
	return &out, nil
}

func (s *Service) GetActiveAlerts(_ context.Context, req *GetActiveAlertsRequest) (*GetActiveAlertsResponse, error) {
	filter := types.Filter{Environment: req.Environment, Source: req.Source}
	if req.Severity != "" {
		sev, err := types.ParseSeverity(req.Severity)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		filter.Severity = sev
	}
	return &GetActiveAlertsResponse{Alerts: s.engine.GetActiveAlerts(filter)}, nil
}

func (s *Service) GetAlert(_ context.Context, req *GetAlertRequest) (*types.Alert, error) {
	alert, ok := s.engine.GetAlertByID(req.ID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "%v: %s", alerter.ErrNotFound, req.ID)
	}
	return &alert, nil
}

// toStatus maps engine errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, alerter.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, alerter.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, alerter.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps gRPC codes back onto engine errors for clients.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return wrapStatus(alerter.ErrNotFound, st)
	case codes.FailedPrecondition:
		return wrapStatus(alerter.ErrInvalidState, st)
	case codes.InvalidArgument:
		return wrapStatus(alerter.ErrInvalidArgument, st)
	default:
		return err
	}
}

type statusError struct {
	sentinel error
	st       *status.Status
}

func (e *statusError) Error() string { return e.st.Message() }
func (e *statusError) Unwrap() error { return e.sentinel }
func (e *statusError) GRPCStatus() *status.Status { return e.st }

func wrapStatus(sentinel error, st *status.Status) error {
	return &statusError{sentinel: sentinel, st: st}
}

func _AlertService_CreateAlert_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(alerter.CreateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AlertServiceServer).CreateAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CreateAlert"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AlertServiceServer).CreateAlert(ctx, req.(*alerter.CreateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AlertService_ResolveAlert_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveAlertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AlertServiceServer).ResolveAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ResolveAlert"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AlertServiceServer).ResolveAlert(ctx, req.(*ResolveAlertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AlertService_GetActiveAlerts_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetActiveAlertsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AlertServiceServer).GetActiveAlerts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetActiveAlerts"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AlertServiceServer).GetActiveAlerts(ctx, req.(*GetActiveAlertsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AlertService_GetAlert_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAlertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AlertServiceServer).GetAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetAlert"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AlertServiceServer).GetAlert(ctx, req.(*GetAlertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AlertServiceDesc describes AlertService for grpc.Server.RegisterService
var AlertServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlertServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateAlert", Handler: _AlertService_CreateAlert_Handler},
		{MethodName: "ResolveAlert", Handler: _AlertService_ResolveAlert_Handler},
		{MethodName: "GetActiveAlerts", Handler: _AlertService_GetActiveAlerts_Handler},
		{MethodName: "GetAlert", Handler: _AlertService_GetAlert_Handler},
	},
	Streams: []grpc.StreamDesc{},
}
