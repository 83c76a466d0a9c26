package applications_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/discovery-service/internal/applications"
)

var allStatuses = []applications.Status{
	applications.StatusToApply,
	applications.StatusApplied,
	applications.StatusInterview,
	applications.StatusOffer,
	applications.StatusHired,
	applications.StatusRejected,
}

// ── ParseStatus ────────────────────────────────────────────────────────────

func TestParseStatus_RoundTrip(t *testing.T) {
	for _, s := range allStatuses {
		got, err := applications.ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestParseStatus_Invalid(t *testing.T) {
	for _, s := range []string{"", "UNKNOWN", "applied", " APPLIED", "APPLIED "} {
		_, err := applications.ParseStatus(s)
		assert.ErrorIs(t, err, applications.ErrInvalidStatus, "ParseStatus(%q)", s)
	}
}

// ── IsTransitionAllowed ────────────────────────────────────────────────────

func TestIsTransitionAllowed_Forward(t *testing.T) {
	cases := []struct{ from, to applications.Status }{
		{applications.StatusToApply, applications.StatusApplied},
		{applications.StatusApplied, applications.StatusInterview},
		{applications.StatusInterview, applications.StatusOffer},
		{applications.StatusOffer, applications.StatusHired},
	}
	for _, c := range cases {
		assert.True(t, applications.IsTransitionAllowed(c.from, c.to), "%s → %s", c.from, c.to)
	}
}

func TestIsTransitionAllowed_ToRejected(t *testing.T) {
	for _, from := range allStatuses[:4] {
		assert.True(t, applications.IsTransitionAllowed(from, applications.StatusRejected), "%s → REJECTED", from)
	}
}

func TestIsTransitionAllowed_Forbidden(t *testing.T) {
	cases := []struct{ from, to applications.Status }{
		{applications.StatusToApply, applications.StatusInterview}, // skip
		{applications.StatusApplied, applications.StatusHired},     // skip
		{applications.StatusInterview, applications.StatusApplied}, // backwards
		{applications.StatusOffer, applications.StatusInterview},   // backwards
		{applications.StatusApplied, applications.StatusApplied},   // self
	}
	for _, c := range cases {
		assert.False(t, applications.IsTransitionAllowed(c.from, c.to), "%s → %s", c.from, c.to)
	}
}

// ── Terminal states ────────────────────────────────────────────────────────

func TestTerminalStatesHaveNoOutgoing(t *testing.T) {
	for _, from := range []applications.Status{applications.StatusHired, applications.StatusRejected} {
		assert.True(t, applications.IsTerminal(from))
		for _, to := range allStatuses {
			assert.False(t, applications.IsTransitionAllowed(from, to), "%s → %s", from, to)
		}
	}
	assert.False(t, applications.IsTerminal(applications.StatusToApply))
}
