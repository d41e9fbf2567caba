package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ops-reports/internal/platform/auth"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
	"github.com/pesio-ai/be-ops-reports/internal/service"
)

// ReportWorkflowServiceName is the fully qualified gRPC service name.
const ReportWorkflowServiceName = "reports.v1.ReportWorkflow"

// ReportWorkflowServer is the server API for reports.v1.ReportWorkflow.
// Requests and responses are JSON-shaped google.protobuf.Struct messages
// using the same field names as the HTTP API.
type ReportWorkflowServer interface {
	CreateReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PendingApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListReports(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ReportWorkflowServiceDesc describes reports.v1.ReportWorkflow.
var ReportWorkflowServiceDesc = grpc.ServiceDesc{
	ServiceName: ReportWorkflowServiceName,
	HandlerType: (*ReportWorkflowServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateReport", ReportWorkflowServer.CreateReport),
		unaryMethod("EditReport", ReportWorkflowServer.EditReport),
		unaryMethod("GetReport", ReportWorkflowServer.GetReport),
		unaryMethod("SubmitReport", ReportWorkflowServer.SubmitReport),
		unaryMethod("ApproveReport", ReportWorkflowServer.ApproveReport),
		unaryMethod("RejectReport", ReportWorkflowServer.RejectReport),
		unaryMethod("AddComment", ReportWorkflowServer.AddComment),
		unaryMethod("PendingApproval", ReportWorkflowServer.PendingApproval),
		unaryMethod("ListReports", ReportWorkflowServer.ListReports),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reports/v1/report_workflow.proto",
}

// RegisterReportWorkflowServer registers srv on s.
func RegisterReportWorkflowServer(s grpc.ServiceRegistrar, srv ReportWorkflowServer) {
	s.RegisterService(&ReportWorkflowServiceDesc, srv)
}

func unaryMethod(name string, call func(ReportWorkflowServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ReportWorkflowServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(ReportWorkflowServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ── Auth ─────────────────────────────────────────────────────────────────────

// UnaryAuthInterceptor resolves the bearer token in the "authorization"
// metadata to a person id. Health and reflection calls pass through.
func UnaryAuthInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ReportWorkflowServiceName+"/") {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				header = vals[0]
			}
		}
		personID, err := verifier.FromHeader(header)
		if err != nil {
			return nil, mapErrorToGRPC(err)
		}
		return handler(WithPersonID(ctx, personID), req)
	}
}

// ── Handler ──────────────────────────────────────────────────────────────────

// GRPCHandler implements ReportWorkflowServer on top of the workflow engine.
type GRPCHandler struct {
	workflow Workflow
	logger   zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(workflow Workflow, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		workflow: workflow,
		logger:   logger.With().Str("handler", "grpc").Logger(),
	}
}

type idRequest struct {
	ID      string  `json:"id"`
	Comment *string `json:"comment"`
	Reason  string  `json:"reason"`
	Text    string  `json:"text"`
}

// CreateReport creates a DRAFT report from a report-shaped struct.
func (h *GRPCHandler) CreateReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var payload repository.Report
	if err := fromStruct(req, &payload); err != nil {
		return nil, err
	}
	report, err := h.workflow.Create(ctx, payload, PersonID(ctx))
	if err != nil {
		return nil, h.fail("CreateReport", err)
	}
	return toStruct(report)
}

// EditReport edits the report named by the struct's "id" field.
func (h *GRPCHandler) EditReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var payload repository.Report
	if err := fromStruct(req, &payload); err != nil {
		return nil, err
	}
	report, err := h.workflow.Edit(ctx, payload, PersonID(ctx))
	if err != nil {
		return nil, h.fail("EditReport", err)
	}
	return toStruct(report)
}

// GetReport returns the report named by "id".
func (h *GRPCHandler) GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	report, err := h.workflow.Get(ctx, in.ID)
	if err != nil {
		return nil, h.fail("GetReport", err)
	}
	return toStruct(report)
}

// SubmitReport submits the report named by "id".
func (h *GRPCHandler) SubmitReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	report, err := h.workflow.Submit(ctx, in.ID, PersonID(ctx))
	if err != nil {
		return nil, h.fail("SubmitReport", err)
	}
	return toStruct(report)
}

// ApproveReport approves the current step of "id" with an optional "comment".
func (h *GRPCHandler) ApproveReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	report, err := h.workflow.Approve(ctx, in.ID, PersonID(ctx), in.Comment)
	if err != nil {
		return nil, h.fail("ApproveReport", err)
	}
	return toStruct(report)
}

// RejectReport rejects "id" with the required "reason".
func (h *GRPCHandler) RejectReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	report, err := h.workflow.Reject(ctx, in.ID, PersonID(ctx), in.Reason)
	if err != nil {
		return nil, h.fail("RejectReport", err)
	}
	return toStruct(report)
}

// AddComment appends "text" to "id".
func (h *GRPCHandler) AddComment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	comment, err := h.workflow.AddComment(ctx, in.ID, PersonID(ctx), in.Text)
	if err != nil {
		return nil, h.fail("AddComment", err)
	}
	return toStruct(comment)
}

// PendingApproval lists reports awaiting the caller's approval.
func (h *GRPCHandler) PendingApproval(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	reports, err := h.workflow.PendingApproval(ctx, PersonID(ctx))
	if err != nil {
		return nil, h.fail("PendingApproval", err)
	}
	return toStruct(map[string]interface{}{"reports": reports, "total": len(reports)})
}

type listRequest struct {
	State         string     `json:"state"`
	OrgID         string     `json:"org"`
	AuthorID      string     `json:"author"`
	Text          string     `json:"q"`
	CreatedSince  *time.Time `json:"createdSince"`
	ReleasedSince *time.Time `json:"releasedSince"`
	Mine          bool       `json:"mine"`
	MyOrg         bool       `json:"myOrg"`
	CreatedToday  bool       `json:"createdToday"`
	ReleasedToday bool       `json:"releasedToday"`
	Page          int        `json:"page"`
	PageSize      int        `json:"pageSize"`
}

// ListReports returns a page of reports matching the request's filters.
func (h *GRPCHandler) ListReports(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	page, err := h.workflow.List(ctx, PersonID(ctx), service.ListQuery{
		Filter: repository.ReportFilter{
			AuthorID:      in.AuthorID,
			State:         repository.ReportState(in.State),
			OrgID:         in.OrgID,
			Text:          in.Text,
			CreatedSince:  in.CreatedSince,
			ReleasedSince: in.ReleasedSince,
		},
		Mine:          in.Mine,
		MyOrg:         in.MyOrg,
		CreatedToday:  in.CreatedToday,
		ReleasedToday: in.ReleasedToday,
		Page:          in.Page,
		PageSize:      in.PageSize,
	})
	if err != nil {
		return nil, h.fail("ListReports", err)
	}
	return toStruct(page)
}

func (h *GRPCHandler) fail(method string, err error) error {
	st := mapErrorToGRPC(err)
	if status.Code(st) == codes.Internal {
		h.logger.Error().Err(err).Str("method", method).Msg("gRPC call failed")
	}
	return st
}

func fromStruct(in *structpb.Struct, dst interface{}) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
