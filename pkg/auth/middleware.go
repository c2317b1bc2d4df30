package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey struct{}

// ContextWithClaims returns a new context carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext extracts the claims attached by the interceptor.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}

// Policy maps full gRPC method names to the roles allowed to call them. Methods in
// Public skip authentication; methods absent from both are denied.
type Policy struct {
	Public  []string
	Methods map[string][]string
}

// UnaryAuthInterceptor authenticates the bearer token and enforces policy.
func UnaryAuthInterceptor(jwtService *JWTService, policy Policy) grpc.UnaryServerInterceptor {
	public := make(map[string]struct{}, len(policy.Public))
	for _, m := range policy.Public {
		public[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := public[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		allowed, ok := policy.Methods[info.FullMethod]
		if !ok {
			return nil, status.Errorf(codes.PermissionDenied, "method %s is not exposed", info.FullMethod)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		claims, err := jwtService.ValidateToken(strings.TrimPrefix(values[0], "Bearer "))
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}

		for _, role := range allowed {
			if claims.HasRole(role) {
				return handler(ContextWithClaims(ctx, claims), req)
			}
		}
		return nil, status.Errorf(codes.PermissionDenied, "required role(s): %v", allowed)
	}
}
