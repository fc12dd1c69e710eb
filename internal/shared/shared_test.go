package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	_, ok := PrincipalFromContext(ctx)
	require.False(t, ok)
	require.Zero(t, ActorID(ctx))

	ctx = ContextWithPrincipal(ctx, Principal{UserID: 9, Username: "cashier", IsActive: true})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "cashier", p.Username)
	require.EqualValues(t, 9, ActorID(ctx))
}

func TestErrorKinds(t *testing.T) {
	require.ErrorIs(t, ErrInvalidCredentials, httpx.ErrUnauthorized)
	require.ErrorIs(t, ErrInactiveUser, httpx.ErrUnauthorized)
	require.ErrorIs(t, ErrAdminRequired, httpx.ErrForbidden)
	require.ErrorIs(t, ErrIdempotencyConflict, httpx.ErrDuplicate)
	require.Equal(t, "sales:abc", scopedKey("abc", "sales"))
}

func TestAuditLoggerRequiresPool(t *testing.T) {
	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "x", Entity: "y", EntityID: "1"}))
	require.Error(t, NewAuditLogger(nil).Record(context.Background(), AuditLog{}))
}
