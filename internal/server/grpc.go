package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/pipeline"
)

const jobsServiceName = "docintake.v1.Jobs"

// JobsServer is the gRPC surface of the job state machine.
type JobsServer interface {
	GetJob(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	AdvanceJob(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ReprocessJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterJobsServer registers srv on s.
func RegisterJobsServer(s grpc.ServiceRegistrar, srv JobsServer) {
	s.RegisterService(&jobsServiceDesc, srv)
}

var jobsServiceDesc = grpc.ServiceDesc{
	ServiceName: jobsServiceName,
	HandlerType: (*JobsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetJob", Handler: unaryHandler("GetJob", JobsServer.GetJob)},
		{MethodName: "AdvanceJob", Handler: unaryHandler("AdvanceJob", JobsServer.AdvanceJob)},
		{MethodName: "ReprocessJob", Handler: unaryHandler("ReprocessJob", JobsServer.ReprocessJob)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docintake/v1/jobs.proto",
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler[Req any, PReq interface {
	*Req
}](method string, call func(JobsServer, context.Context, PReq) (*structpb.Struct, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(JobsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + jobsServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(JobsServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ActorInterceptor reads identity from x-user-id, x-agency-id and x-operator metadata.
func ActorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+jobsServiceName+"/") {
		return handler(ctx, req)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	actor := ActorFromHeaders(first("x-user-id"), first("x-agency-id"), first("x-operator"))
	if actor.UserID == "" && !actor.Operator {
		return nil, status.Error(codes.Unauthenticated, "missing user identity")
	}
	ctx = common.WithActor(ctx, actor)
	if rid := first("x-request-id"); rid != "" {
		ctx = common.WithRequestID(ctx, rid)
	}
	return handler(ctx, req)
}

// JobsService adapts the job state machine to JobsServer.
type JobsService struct {
	jobs   JobService
	logger *slog.Logger
}

func NewJobsService(jobs JobService, logger *slog.Logger) *JobsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsService{jobs: jobs, logger: logger}
}

func (s *JobsService) GetJob(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseJobID(req.GetValue())
	if err != nil {
		return nil, err
	}
	view, err := s.jobs.Status(ctx, grpcActor(ctx), id)
	if err != nil {
		s.logger.Warn("grpc get job failed", "job_id", id, "error", err)
		return nil, common.ToGRPCStatus(err)
	}
	return viewStruct(view)
}

func (s *JobsService) AdvanceJob(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseJobID(req.GetValue())
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.Trigger(ctx, grpcActor(ctx), id)
	if err != nil {
		s.logger.Warn("grpc advance job failed", "job_id", id, "error", err)
		return nil, common.ToGRPCStatus(err)
	}
	return viewStruct(pipeline.ViewOf(job))
}

// ReprocessJob takes {"job_id": string, "force": bool}.
func (s *JobsService) ReprocessJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id, err := parseJobID(fields["job_id"].GetStringValue())
	if err != nil {
		return nil, err
	}
	force := fields["force"].GetBoolValue()
	job, err := s.jobs.Reprocess(ctx, grpcActor(ctx), id, force)
	if err != nil {
		s.logger.Warn("grpc reprocess job failed", "job_id", id, "force", force, "error", err)
		return nil, common.ToGRPCStatus(err)
	}
	return viewStruct(pipeline.ViewOf(job))
}

func grpcActor(ctx context.Context) common.Actor {
	a, _ := common.ActorFromContext(ctx)
	return a
}

func parseJobID(raw string) (uuid.UUID, error) {
	id, err := common.ParseID("job_id", raw)
	if err != nil {
		return uuid.Nil, common.ToGRPCStatus(err)
	}
	return id, nil
}

// viewStruct round-trips the JSON view so both transports expose the same field names.
func viewStruct(v pipeline.JobView) (*structpb.Struct, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode job: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, common.InternalErrorf("encode job: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("encode job: %v", err)
	}
	return out, nil
}
