package applications_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/applications"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/store"
	"jobmate/discovery-service/internal/testutil"
)

func setup(t *testing.T) (*applications.Service, *store.MemoryStore, string) {
	t.Helper()
	s := store.NewMemoryStore()
	id, err := s.InsertPosting(context.Background(), &model.Posting{
		CanonicalURL: "https://x/1",
		Title:        "Go Developer",
		FirstSeenAt:  testutil.Day(0),
		LastSeenAt:   testutil.Day(0),
	}, time.Hour)
	require.NoError(t, err)
	return applications.NewService(s, zap.NewNop()), s, id
}

func TestRecord(t *testing.T) {
	svc, s, postingID := setup(t)
	ctx := context.Background()

	a, err := svc.Record(ctx, "u1", postingID, "")
	require.NoError(t, err)
	assert.Equal(t, "APPLIED", a.Status)

	again, err := svc.Record(ctx, "u1", postingID, "TO_APPLY")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID, "one application per user and posting")

	has, err := s.HasApplication(ctx, postingID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRecord_Errors(t *testing.T) {
	svc, _, postingID := setup(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "u1", postingID, "WISHLIST")
	assert.ErrorIs(t, err, applications.ErrInvalidStatus)

	_, err = svc.Record(ctx, "u1", "missing", "APPLIED")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMove(t *testing.T) {
	svc, _, postingID := setup(t)
	ctx := context.Background()
	a, err := svc.Record(ctx, "u1", postingID, "TO_APPLY")
	require.NoError(t, err)

	moved, err := svc.Move(ctx, "u1", a.ID, "APPLIED")
	require.NoError(t, err)
	assert.Equal(t, "APPLIED", moved.Status)

	_, err = svc.Move(ctx, "u1", a.ID, "HIRED")
	assert.ErrorIs(t, err, applications.ErrForbiddenTransition)

	_, err = svc.Move(ctx, "u2", a.ID, "INTERVIEW")
	assert.ErrorIs(t, err, store.ErrNotFound, "applications are scoped to their owner")
}
