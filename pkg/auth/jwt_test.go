package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/bibbank/invoice-anomaly/pkg/auth"
)

func newHMACService(t *testing.T, expiration time.Duration) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:     "test-secret-key-for-unit-tests",
		Issuer:     "bib-identity",
		Expiration: expiration,
	})
	require.NoError(t, err)
	return svc
}

func rsaKeyPEMs(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}))
	return privPEM, pubPEM
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := newHMACService(t, 15*time.Minute)
	userID, tenantID := uuid.New(), uuid.New()

	token, err := svc.GenerateToken(userID, tenantID, []string{auth.RoleIngest})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, "bib-identity", claims.Issuer)
	assert.True(t, claims.HasRole(auth.RoleIngest))
	assert.False(t, claims.HasRole(auth.RoleReviewer))
}

func TestJWTService_RejectsInvalidTokens(t *testing.T) {
	svc := newHMACService(t, 15*time.Minute)

	t.Run("expired", func(t *testing.T) {
		expired := newHMACService(t, -time.Minute)
		token, err := expired.GenerateToken(uuid.New(), uuid.New(), nil)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := auth.NewJWTService(auth.JWTConfig{Secret: "other", Issuer: "bib-identity", Expiration: time.Minute})
		require.NoError(t, err)
		token, err := other.GenerateToken(uuid.New(), uuid.New(), nil)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret-key-for-unit-tests", Issuer: "elsewhere", Expiration: time.Minute})
		require.NoError(t, err)
		token, err := other.GenerateToken(uuid.New(), uuid.New(), nil)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("no tenant", func(t *testing.T) {
		token, err := svc.GenerateToken(uuid.New(), uuid.Nil, nil)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorContains(t, err, "no tenant")
	})
}

func TestJWTService_RSAValidationOnly(t *testing.T) {
	privPEM, pubPEM := rsaKeyPEMs(t)
	issuer, err := auth.NewJWTService(auth.JWTConfig{PrivateKeyPEM: privPEM, Issuer: "bib-identity", Expiration: time.Minute})
	require.NoError(t, err)
	validator, err := auth.NewJWTService(auth.JWTConfig{PublicKeyPEM: pubPEM, Issuer: "bib-identity"})
	require.NoError(t, err)

	token, err := issuer.GenerateToken(uuid.New(), uuid.New(), []string{auth.RoleReviewer})
	require.NoError(t, err)

	claims, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.HasRole(auth.RoleReviewer))

	_, err = validator.GenerateToken(uuid.New(), uuid.New(), nil)
	assert.ErrorContains(t, err, "validation-only")

	hmac := newHMACService(t, time.Minute)
	hmacToken, err := hmac.GenerateToken(uuid.New(), uuid.New(), nil)
	require.NoError(t, err)
	_, err = validator.ValidateToken(hmacToken)
	assert.Error(t, err, "HS256 tokens must not validate against an RSA key")
}

func TestNewJWTService_RequiresKey(t *testing.T) {
	_, err := auth.NewJWTService(auth.JWTConfig{Issuer: "bib-identity"})
	assert.Error(t, err)
}

func TestHasRole_AdminHoldsEveryRole(t *testing.T) {
	claims := auth.Claims{Roles: []string{auth.RoleAdmin}}
	assert.True(t, claims.HasRole(auth.RoleIngest))
	assert.True(t, claims.HasRole(auth.RoleReviewer))
}

func TestUnaryAuthInterceptor(t *testing.T) {
	svc := newHMACService(t, time.Minute)
	policy := auth.Policy{
		Public:  []string{"/grpc.health.v1.Health/Check"},
		Methods: map[string][]string{"/anomaly.v1.AnomalyService/ScoreBatch": {auth.RoleIngest}},
	}
	interceptor := auth.UnaryAuthInterceptor(svc, policy)

	tenantID := uuid.New()
	var seen *auth.Claims
	handler := func(ctx context.Context, _ any) (any, error) {
		seen, _ = auth.ClaimsFromContext(ctx)
		return "ok", nil
	}
	withToken := func(roles ...string) context.Context {
		token, err := svc.GenerateToken(uuid.New(), tenantID, roles)
		require.NoError(t, err)
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	}
	call := func(ctx context.Context, method string) error {
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}

	tests := []struct {
		name   string
		ctx    context.Context
		method string
		want   codes.Code
	}{
		{"public method", context.Background(), "/grpc.health.v1.Health/Check", codes.OK},
		{"allowed role", withToken(auth.RoleIngest), "/anomaly.v1.AnomalyService/ScoreBatch", codes.OK},
		{"missing role", withToken(auth.RoleReviewer), "/anomaly.v1.AnomalyService/ScoreBatch", codes.PermissionDenied},
		{"unlisted method", withToken(auth.RoleAdmin), "/anomaly.v1.AnomalyService/Drop", codes.PermissionDenied},
		{"no metadata", context.Background(), "/anomaly.v1.AnomalyService/ScoreBatch", codes.Unauthenticated},
		{
			"garbage token",
			metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope")),
			"/anomaly.v1.AnomalyService/ScoreBatch",
			codes.Unauthenticated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := call(tt.ctx, tt.method)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}

	require.NoError(t, call(withToken(auth.RoleIngest), "/anomaly.v1.AnomalyService/ScoreBatch"))
	require.NotNil(t, seen)
	assert.Equal(t, tenantID, seen.TenantID)
}
