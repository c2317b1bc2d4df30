package testutil

import (
	"time"

	"github.com/google/uuid"
)

// Fixed identifiers and clock for deterministic tests.
var (
	TestTenantID  = uuid.MustParse("00000000-0000-0000-0000-000000000010")
	OtherTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000011")
	TestUserID    = uuid.MustParse("00000000-0000-0000-0000-000000000001")

	ProcessingTime = time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC)
)

// FixedClock returns a clock that always reports ProcessingTime.
func FixedClock() func() time.Time {
	return func() time.Time { return ProcessingTime }
}
