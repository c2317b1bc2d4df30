package ml

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bibbank/invoice-anomaly/internal/domain/service"
)

// ModelCache keeps one model handle per tenant so a tenant's undersized batches can
// be scored with the model fitted on its previous batch. Handles are never shared
// between tenants.
type ModelCache struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*service.ModelHandle
}

// NewModelCache creates an empty cache.
func NewModelCache() *ModelCache {
	return &ModelCache{handles: make(map[uuid.UUID]*service.ModelHandle)}
}

// Handle returns the tenant's handle, creating it on first use.
func (c *ModelCache) Handle(tenantID uuid.UUID) *service.ModelHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handles[tenantID]
	if !ok {
		h = service.NewModelHandle()
		c.handles[tenantID] = h
	}
	return h
}

// Evict drops the tenant's handle.
func (c *ModelCache) Evict(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, tenantID)
}

// Len returns the number of tenants with a handle.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}
