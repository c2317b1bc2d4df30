package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims accepted by the anomaly service.
type Claims struct {
	jwt.RegisteredClaims
	Roles    []string  `json:"roles"`
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

// HasRole reports whether the claims include role. Admins hold every role.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role) || slices.Contains(c.Roles, RoleAdmin)
}

// Roles understood by the anomaly service.
const (
	RoleAdmin = "admin"
	// RoleIngest may submit invoice batches for scoring.
	RoleIngest = "invoice_ingest"
	// RoleReviewer may read assessments and verdicts.
	RoleReviewer = "invoice_reviewer"
)
