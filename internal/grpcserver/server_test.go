package grpcserver_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/discovery-service/internal/applications"
	"jobmate/discovery-service/internal/grpcserver"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/relevance"
	"jobmate/discovery-service/internal/scheduler"
	"jobmate/discovery-service/internal/scraper"
	"jobmate/discovery-service/internal/store"
)

type fakeJobs struct {
	sources    []model.Source
	query      *model.Query
	staleAfter time.Duration
	err        error
	panic      bool
}

func (f *fakeJobs) TriggerIngestion(_ context.Context, sources []model.Source, q model.Query) (model.IngestionReport, error) {
	if f.panic {
		panic("boom")
	}
	f.sources, f.query = sources, &q
	return model.IngestionReport{RunID: "run-1", Stored: 2}, f.err
}

func (f *fakeJobs) TriggerSweep(_ context.Context, staleAfter time.Duration) (model.RetentionReport, error) {
	f.staleAfter = staleAfter
	return model.RetentionReport{Deleted: 4, DeletedIDs: []string{"a", "b", "c", "d"}}, f.err
}

func (f *fakeJobs) Status() scheduler.Status {
	return scheduler.Status{Retention: scheduler.JobStatus{Runs: 2}, SourceFailures: map[model.Source]int{"hh": 3}}
}

type fakeMatcher struct {
	user string
	err  error
}

func (f *fakeMatcher) Matches(_ context.Context, userID string) ([]model.MatchResult, error) {
	f.user = userID
	if f.err != nil {
		return nil, f.err
	}
	return []model.MatchResult{{UserID: userID, PostingID: "p1", Score: 91.25}}, nil
}

type fakeMover struct {
	user, app, status string
	err               error
}

func (f *fakeMover) Move(_ context.Context, userID, appID, status string) (*model.Application, error) {
	f.user, f.app, f.status = userID, appID, status
	if f.err != nil {
		return nil, f.err
	}
	return &model.Application{ID: appID, UserID: userID, PostingID: "p1", Status: status}, nil
}

type harness struct {
	jobs    *fakeJobs
	matcher *fakeMatcher
	mover   *fakeMover
	client  *grpcserver.Client
	health  healthpb.HealthClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{jobs: &fakeJobs{}, matcher: &fakeMatcher{}, mover: &fakeMover{}}
	gs, _ := grpcserver.New(grpcserver.NewServer(h.jobs, h.matcher, h.mover, zap.NewNop()), zap.NewNop())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	h.client = grpcserver.NewClient(conn)
	h.health = healthpb.NewHealthClient(conn)
	return h
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestTriggerIngestion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.client.TriggerIngestion(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.AsMap()["runId"])
	assert.Equal(t, &model.Query{}, h.jobs.query)

	out, err = h.client.TriggerIngestion(ctx, mustStruct(t, map[string]any{
		"sources":    []any{"adzuna"},
		"keywords":   "go developer",
		"location":   "Lyon",
		"maxResults": 25,
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), out.AsMap()["stored"])
	assert.Equal(t, []model.Source{"adzuna"}, h.jobs.sources)
	assert.Equal(t, &model.Query{Keywords: "go developer", Location: "Lyon", MaxResults: 25}, h.jobs.query)
}

func TestTriggerIngestion_LocationWithoutKeywords(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.TriggerIngestion(context.Background(), mustStruct(t, map[string]any{"location": "Berlin", "maxResults": 10}))
	require.NoError(t, err)
	assert.Equal(t, &model.Query{Location: "Berlin", MaxResults: 10}, h.jobs.query)
}

func TestTriggerIngestion_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.TriggerIngestion(ctx, mustStruct(t, map[string]any{"maxResults": -1}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	h.jobs.err = fmt.Errorf("%w %q", scraper.ErrUnknownSource, "gamma")
	_, err = h.client.TriggerIngestion(ctx, mustStruct(t, map[string]any{"sources": []any{"gamma"}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	h.jobs.err = assert.AnError
	_, err = h.client.TriggerIngestion(ctx, nil)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "internal server error", status.Convert(err).Message())
}

func TestTriggerRetentionSweep(t *testing.T) {
	h := newHarness(t)

	out, err := h.client.TriggerRetentionSweep(context.Background(), mustStruct(t, map[string]any{"staleAfterDays": 10}))
	require.NoError(t, err)
	assert.Equal(t, float64(4), out.AsMap()["deleted"])
	assert.Len(t, out.AsMap()["deletedIds"], 4)
	assert.Equal(t, 240*time.Hour, h.jobs.staleAfter)
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.client.GetStatus(context.Background(), nil)
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, float64(2), m["retention"].(map[string]any)["runs"])
	assert.Equal(t, float64(3), m["sourceFailures"].(map[string]any)["hh"])
}

func TestGetMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.client.GetMatches(ctx, mustStruct(t, map[string]any{"userId": "u1"}))
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, "u1", m["userId"])
	require.Len(t, m["matches"], 1)
	assert.Equal(t, 91.25, m["matches"].([]any)[0].(map[string]any)["score"])

	mdCtx := metadata.AppendToOutgoingContext(ctx, "x-user-id", "u2")
	_, err = h.client.GetMatches(mdCtx, nil)
	require.NoError(t, err)
	assert.Equal(t, "u2", h.matcher.user)

	_, err = h.client.GetMatches(ctx, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetMatches_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("%w: embed profile", relevance.ErrScoringUnavailable), codes.Unavailable},
		{fmt.Errorf("get profile: %w", store.ErrNotFound), codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{assert.AnError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			h := newHarness(t)
			h.matcher.err = tc.err
			_, err := h.client.GetMatches(context.Background(), mustStruct(t, map[string]any{"userId": "u1"}))
			assert.Equal(t, tc.code, status.Code(err))
		})
	}
}

func TestMoveApplication(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.client.MoveApplication(ctx, mustStruct(t, map[string]any{"userId": "u1", "applicationId": "a1", "status": "APPLIED"}))
	require.NoError(t, err)
	assert.Equal(t, "APPLIED", out.AsMap()["status"])
	assert.Equal(t, "a1", out.AsMap()["id"])

	mdCtx := metadata.AppendToOutgoingContext(ctx, "x-user-id", "u2")
	_, err = h.client.MoveApplication(mdCtx, mustStruct(t, map[string]any{"applicationId": "a1", "status": "INTERVIEW"}))
	require.NoError(t, err)
	assert.Equal(t, "u2", h.mover.user)
	assert.Equal(t, "INTERVIEW", h.mover.status)

	_, err = h.client.MoveApplication(ctx, mustStruct(t, map[string]any{"userId": "u1", "status": "APPLIED"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMoveApplication_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("%w: APPLIED → TO_APPLY", applications.ErrForbiddenTransition), codes.FailedPrecondition},
		{fmt.Errorf("%w: \"MAYBE\"", applications.ErrInvalidStatus), codes.InvalidArgument},
		{fmt.Errorf("get application: %w", store.ErrNotFound), codes.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			h := newHarness(t)
			h.mover.err = tc.err
			_, err := h.client.MoveApplication(context.Background(), mustStruct(t, map[string]any{"userId": "u1", "applicationId": "a1", "status": "TO_APPLY"}))
			assert.Equal(t, tc.code, status.Code(err))
		})
	}
}

func TestRecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.jobs.panic = true

	_, err := h.client.TriggerIngestion(context.Background(), nil)
	assert.Equal(t, codes.Internal, status.Code(err))

	h.jobs.panic = false
	_, err = h.client.TriggerIngestion(context.Background(), nil)
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp, err := h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
