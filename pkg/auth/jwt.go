package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTConfig holds JWT configuration. Exactly one key source is needed: a private key
// (sign and validate), a public key (validate only) or an HMAC secret.
type JWTConfig struct {
	PrivateKeyPEM string
	PublicKeyPEM  string
	Secret        string
	Issuer        string
	Expiration    time.Duration
}

// JWTService signs and validates tokens.
type JWTService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	secret     []byte
	parser     *jwt.Parser
	issuer     string
	expiration time.Duration
}

// NewJWTService creates a JWTService from cfg.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	svc := &JWTService{issuer: cfg.Issuer, expiration: cfg.Expiration}

	var method string
	switch {
	case cfg.PrivateKeyPEM != "":
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
		}
		svc.privateKey, svc.publicKey = key, &key.PublicKey
		method = jwt.SigningMethodRS256.Alg()
	case cfg.PublicKeyPEM != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		svc.publicKey = key
		method = jwt.SigningMethodRS256.Alg()
	case cfg.Secret != "":
		svc.secret = []byte(cfg.Secret)
		method = jwt.SigningMethodHS256.Alg()
	default:
		return nil, errors.New("jwt configuration requires PrivateKeyPEM, PublicKeyPEM or Secret")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{method}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	svc.parser = jwt.NewParser(opts...)

	return svc, nil
}

// GenerateToken issues a token for the user. Validation-only services cannot sign.
func (s *JWTService) GenerateToken(userID, tenantID uuid.UUID, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID:   userID,
		TenantID: tenantID,
		Roles:    roles,
	}

	switch {
	case s.privateKey != nil:
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
		if err != nil {
			return "", fmt.Errorf("failed to sign token with RSA: %w", err)
		}
		return signed, nil
	case s.secret != nil:
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil
	default:
		return "", errors.New("cannot generate token: no private key configured (validation-only mode)")
	}
}

// ValidateToken parses and validates a token string, including signing method,
// expiry and issuer. Tokens without a tenant are rejected.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		if s.publicKey != nil {
			return s.publicKey, nil
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.TenantID == uuid.Nil {
		return nil, errors.New("token carries no tenant")
	}
	return claims, nil
}
