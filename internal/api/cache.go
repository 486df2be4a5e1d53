package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/model"
)

// view is the published snapshot joined with the inputs it was computed from.
type view struct {
	snap *model.Snapshot
	in   model.Inputs
}

// snapshotCache holds the current view for ttl before reloading it.
type snapshotCache struct {
	src Reader
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	current  *view
	loadedAt time.Time
}

func newSnapshotCache(src Reader, ttl time.Duration) *snapshotCache {
	return &snapshotCache{src: src, ttl: ttl, now: time.Now}
}

// get returns the cached view, reloading it once the ttl has passed. A stale
// view is served when a reload fails.
func (c *snapshotCache) get(ctx context.Context) (*view, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.current, nil
	}

	v, err := c.load(ctx)
	if err != nil {
		if c.current != nil {
			zap.L().Warn("api: snapshot reload failed, serving cached view", zap.Error(err))
			return c.current, nil
		}
		return nil, err
	}
	c.current = v
	c.loadedAt = c.now()
	return v, nil
}

func (c *snapshotCache) load(ctx context.Context) (*view, error) {
	snap, err := c.src.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	in, err := c.src.LoadInputs(ctx)
	if err != nil {
		return nil, err
	}
	return &view{snap: snap, in: in}, nil
}

// invalidate drops the cached view.
func (c *snapshotCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
