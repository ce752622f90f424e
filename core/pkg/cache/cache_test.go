package cache

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*EvaluationCache, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	c, err := New(100, time.Minute, clock)
	require.NoError(t, err)
	return c, clock
}

func TestGet_HitWithinTTL(t *testing.T) {
	c, clock := newTestCache(t)
	key := Key("flag", model.EvaluationContext{UserID: "u1"})
	c.Set(key, model.Resolution{FlagID: "flag", Value: true})

	clock.Advance(30 * time.Second)
	res, ok := c.Get(key)

	require.True(t, ok)
	assert.Equal(t, true, res.Value)
}

func TestGet_ExpiredAfterTTL(t *testing.T) {
	c, clock := newTestCache(t)
	key := Key("flag", model.EvaluationContext{})
	c.Set(key, model.Resolution{Value: true})

	clock.Advance(time.Minute)
	_, ok := c.Get(key)

	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestInvalidateFlag_OnlyThatFlag(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set(Key("a", model.EvaluationContext{UserID: "1"}), model.Resolution{})
	c.Set(Key("a", model.EvaluationContext{UserID: "2"}), model.Resolution{})
	c.Set(Key("ab", model.EvaluationContext{UserID: "1"}), model.Resolution{})

	assert.Equal(t, 2, c.InvalidateFlag("a"))
	assert.Equal(t, 1, c.Len())
}

func TestKey_DefaultsForMissingIdentity(t *testing.T) {
	key := Key("flag", model.EvaluationContext{})
	assert.Equal(t, "flag"+sep+"anonymous"+sep+"unknown"+sep+"unknown"+sep+"-", key)
}

func TestKey_CustomAttributesSeparateEntries(t *testing.T) {
	base := model.EvaluationContext{UserID: "u1", Country: "US"}
	premium := base
	premium.Attributes = map[string]any{"userType": "premium"}
	free := base
	free.Attributes = map[string]any{"userType": "free"}

	assert.NotEqual(t, Key("flag", premium), Key("flag", free))
	assert.NotEqual(t, Key("flag", base), Key("flag", premium))
}

func TestKey_AttributeOrderIrrelevant(t *testing.T) {
	a := model.EvaluationContext{Attributes: map[string]any{"x": 1, "y": "two"}}
	b := model.EvaluationContext{Attributes: map[string]any{"y": "two", "x": 1}}

	assert.Equal(t, Key("flag", a), Key("flag", b))
}
