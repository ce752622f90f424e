// Package cache memoizes evaluation results for a short time.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/model"
)

const (
	DefaultTTL  = 5 * time.Minute
	DefaultSize = 10000

	sep = "\x00"
)

type entry struct {
	resolution model.Resolution
	expires    time.Time
}

// EvaluationCache is a bounded LRU of resolutions with a fixed time to live.
type EvaluationCache struct {
	lru   *lru.Cache
	ttl   time.Duration
	clock clockwork.Clock
}

func New(size int, ttl time.Duration, clock clockwork.Clock) (*EvaluationCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("unable to create evaluation cache: %w", err)
	}
	return &EvaluationCache{lru: l, ttl: ttl, clock: clock}, nil
}

// Key builds the composite cache key of a flag and the cache-relevant parts of a context.
// Session and custom attributes are folded in as a fingerprint so two contexts that
// differ only there never share an entry.
func Key(flagID string, ctx model.EvaluationContext) string {
	return strings.Join([]string{
		flagID,
		orDefault(ctx.UserID, "anonymous"),
		orDefault(ctx.Country, "unknown"),
		orDefault(ctx.DeviceType, "unknown"),
		fingerprint(ctx),
	}, sep)
}

func (c *EvaluationCache) Get(key string) (model.Resolution, bool) {
	raw, ok := c.lru.Get(key)
	if !ok {
		return model.Resolution{}, false
	}
	e := raw.(entry)
	if !c.clock.Now().Before(e.expires) {
		c.lru.Remove(key)
		return model.Resolution{}, false
	}
	return e.resolution, true
}

func (c *EvaluationCache) Set(key string, res model.Resolution) {
	c.lru.Add(key, entry{resolution: res, expires: c.clock.Now().Add(c.ttl)})
}

func (c *EvaluationCache) Remove(key string) {
	c.lru.Remove(key)
}

// InvalidateFlag drops every entry that belongs to flagID and returns how many were removed.
func (c *EvaluationCache) InvalidateFlag(flagID string) int {
	prefix := flagID + sep
	removed := 0
	for _, k := range c.lru.Keys() {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *EvaluationCache) Purge() {
	c.lru.Purge()
}

func (c *EvaluationCache) Len() int {
	return c.lru.Len()
}

func fingerprint(ctx model.EvaluationContext) string {
	if ctx.SessionID == "" && len(ctx.Attributes) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(ctx.Attributes))
	for k := range ctx.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	_, _ = d.WriteString(ctx.SessionID)
	for _, k := range keys {
		_, _ = fmt.Fprintf(d, "%s%s=%v", sep, k, ctx.Attributes[k])
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
