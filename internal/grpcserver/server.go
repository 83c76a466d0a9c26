// Package grpcserver implements the DiscoveryAdmin gRPC service.
//
// It delegates all work to the scheduler, the match service and the
// application service and handles
// only the gRPC transport concerns: request decoding, error mapping and
// conversion of reports into google.protobuf.Struct messages.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/discovery-service/internal/applications"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/relevance"
	"jobmate/discovery-service/internal/scheduler"
	"jobmate/discovery-service/internal/scraper"
	"jobmate/discovery-service/internal/store"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "discovery.v1.DiscoveryAdmin"

// Jobs runs and reports the pipeline jobs.
type Jobs interface {
	TriggerIngestion(ctx context.Context, sources []model.Source, q model.Query) (model.IngestionReport, error)
	TriggerSweep(ctx context.Context, staleAfter time.Duration) (model.RetentionReport, error)
	Status() scheduler.Status
}

// Matcher serves ranked matches.
type Matcher interface {
	Matches(ctx context.Context, userID string) ([]model.MatchResult, error)
}

// Mover moves applications through the status graph.
type Mover interface {
	Move(ctx context.Context, userID, appID, status string) (*model.Application, error)
}

// Server implements DiscoveryAdminServer.
type Server struct {
	jobs    Jobs
	matches Matcher
	apps    Mover
	log     *zap.Logger
}

// NewServer constructs a Server backed by the scheduler, match service and
// application service.
func NewServer(jobs Jobs, matches Matcher, apps Mover, log *zap.Logger) *Server {
	return &Server{jobs: jobs, matches: matches, apps: apps, log: log.Named("grpc")}
}

type ingestionRequest struct {
	Sources    []string `mapstructure:"sources"`
	Keywords   string   `mapstructure:"keywords"`
	Location   string   `mapstructure:"location"`
	MaxResults int      `mapstructure:"maxResults"`
}

type sweepRequest struct {
	StaleAfterDays int `mapstructure:"staleAfterDays"`
}

type matchesRequest struct {
	UserID string `mapstructure:"userId"`
}

type moveRequest struct {
	UserID        string `mapstructure:"userId"`
	ApplicationID string `mapstructure:"applicationId"`
	Status        string `mapstructure:"status"`
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// TriggerIngestion runs one ingestion now. With keywords set it runs that
// query only; otherwise the scheduled queries are used, with location and
// maxResults replacing theirs when given.
func (s *Server) TriggerIngestion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ingestionRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.MaxResults < 0 {
		return nil, status.Error(codes.InvalidArgument, "maxResults must not be negative")
	}
	sources := make([]model.Source, len(in.Sources))
	for i, src := range in.Sources {
		sources[i] = model.Source(src)
	}

	q := model.Query{Keywords: in.Keywords, Location: in.Location, MaxResults: in.MaxResults}
	report, err := s.jobs.TriggerIngestion(ctx, sources, q)
	if err != nil {
		return nil, s.toGRPCError("trigger ingestion", err)
	}
	return toStruct(report)
}

// TriggerRetentionSweep runs one retention sweep now.
func (s *Server) TriggerRetentionSweep(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in sweepRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.StaleAfterDays < 0 {
		return nil, status.Error(codes.InvalidArgument, "staleAfterDays must not be negative")
	}
	report, err := s.jobs.TriggerSweep(ctx, time.Duration(in.StaleAfterDays)*24*time.Hour)
	if err != nil {
		return nil, s.toGRPCError("retention sweep", err)
	}
	return toStruct(report)
}

// GetStatus returns the scheduler status.
func (s *Server) GetStatus(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(s.jobs.Status())
}

// GetMatches returns the ranked matches of a user, taken from the request
// or from the x-user-id metadata forwarded by the gateway.
func (s *Server) GetMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in matchesRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	userID := in.UserID
	if userID == "" {
		var err error
		if userID, err = userIDFromCtx(ctx); err != nil {
			return nil, err
		}
	}
	matches, err := s.matches.Matches(ctx, userID)
	if err != nil {
		return nil, s.toGRPCError("get matches", err)
	}
	return toStruct(map[string]any{"userId": userID, "matches": matches})
}

// MoveApplication moves an application to a new status. The owner is taken
// from the request or from the x-user-id metadata.
func (s *Server) MoveApplication(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in moveRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.ApplicationID == "" || in.Status == "" {
		return nil, status.Error(codes.InvalidArgument, "applicationId and status are required")
	}
	userID := in.UserID
	if userID == "" {
		var err error
		if userID, err = userIDFromCtx(ctx); err != nil {
			return nil, err
		}
	}
	app, err := s.apps.Move(ctx, userID, in.ApplicationID, in.Status)
	if err != nil {
		return nil, s.toGRPCError("move application", err)
	}
	return toStruct(app)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.InvalidArgument, "userId is required")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.InvalidArgument, "userId is required")
	}
	return vals[0], nil
}

// toGRPCError maps domain errors to gRPC status errors.
func (s *Server) toGRPCError(op string, err error) error {
	switch {
	case errors.Is(err, relevance.ErrScoringUnavailable):
		return status.Error(codes.Unavailable, "matches temporarily unavailable")
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, scraper.ErrUnknownSource), errors.Is(err, applications.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, applications.ErrForbiddenTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.log.Error(op+" failed", zap.Error(err))
	return status.Error(codes.Internal, "internal server error")
}

// decode copies the request fields into out. Numbers arrive as float64 and
// are converted to the integer fields.
func decode(req *structpb.Struct, out any) error {
	if req == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if err := dec.Decode(req.AsMap()); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("invalid request: %v", err))
	}
	return nil
}

// toStruct renders v through its JSON form so field names match the HTTP
// API.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// New returns a gRPC server with the admin service and the standard health
// service registered. The health server is returned so shutdown can flip it
// to NOT_SERVING.
func New(srv *Server, log *zap.Logger) (*grpc.Server, *health.Server) {
	log = log.Named("grpc")
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(log),
			LoggingInterceptor(log),
		),
	)
	RegisterDiscoveryAdminServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}
