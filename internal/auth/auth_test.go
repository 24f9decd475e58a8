package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
)

func TestService_IssueAndVerify(t *testing.T) {
	svc := NewService("test-secret", "risk-monitor", time.Hour)

	token, err := svc.IssueToken("client-1", RoleReader)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, RoleReader, claims.Role)
	assert.Equal(t, "risk-monitor", claims.Issuer)
}

func TestService_RejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", "risk-monitor", time.Hour)
	verifier := NewService("secret-b", "risk-monitor", time.Hour)

	token, err := issuer.IssueToken("client-1", RoleReader)
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}

func TestService_RejectsExpiredToken(t *testing.T) {
	svc := NewService("test-secret", "risk-monitor", -time.Minute)

	token, err := svc.IssueToken("client-1", RoleReader)
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestService_RejectsWrongIssuer(t *testing.T) {
	issuer := NewService("test-secret", "other-service", time.Hour)
	verifier := NewService("test-secret", "risk-monitor", time.Hour)

	token, err := issuer.IssueToken("client-1", RoleReader)
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}

func TestService_FromRequest(t *testing.T) {
	svc := NewService("test-secret", "risk-monitor", time.Hour)
	token, err := svc.IssueToken("client-1", RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/assess", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	claims, err := svc.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)

	req.Header.Del("Authorization")
	_, err = svc.FromRequest(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Basic abc")
	_, err = svc.FromRequest(req)
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	assert.NoError(t, RequireRole(&Claims{Role: RoleAdmin}, RoleReader))
	assert.NoError(t, RequireRole(&Claims{Role: RoleReader}, RoleReader))

	err := RequireRole(&Claims{Role: RoleReader}, RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))
}

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "third immediate request must exceed the burst")

	// A different client has its own bucket.
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.ActiveClients())

	rl.lastSeen = func() time.Time { return time.Now().Add(20 * time.Minute) }
	rl.Cleanup()
	assert.Equal(t, 0, rl.ActiveClients())
}
