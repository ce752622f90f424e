package flagsync

import (
	"encoding/json"
	"testing"

	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flagIDs(t *testing.T, raw string) []string {
	t.Helper()
	var doc struct {
		Flags []model.Flag `json:"flags"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	ids := []string{}
	for _, f := range doc.Flags {
		ids = append(ids, f.ID)
	}
	return ids
}

func TestRegister_ReturnsSnapshot(t *testing.T) {
	state := store.NewFlags(nil)
	_, _, _ = state.Set(model.Flag{ID: "a"})
	_, _, _ = state.Set(model.Flag{ID: "b"})
	mux, err := NewMux(state)
	require.NoError(t, err)

	all, err := mux.Register("all", make(chan Payload, 1), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, flagIDs(t, all.Flags))

	one, err := mux.Register("one", make(chan Payload, 1), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, flagIDs(t, one.Flags))
}

func TestPublish_RoutesBySelector(t *testing.T) {
	state := store.NewFlags(nil)
	mux, err := NewMux(state)
	require.NoError(t, err)

	all := make(chan Payload, 4)
	onlyA := make(chan Payload, 4)
	onlyB := make(chan Payload, 4)
	_, _ = mux.Register("all", all, "")
	_, _ = mux.Register("a", onlyA, "a")
	_, _ = mux.Register("b", onlyB, "b")

	_, _, _ = state.Set(model.Flag{ID: "a"})
	require.NoError(t, mux.Publish(model.Notification{Type: model.NotificationCreate, FlagID: "a"}))

	require.Len(t, all, 1)
	require.Len(t, onlyA, 1)
	assert.Empty(t, onlyB)

	got := <-onlyA
	assert.Equal(t, model.NotificationCreate, got.Notification.Type)
	assert.Equal(t, []string{"a"}, flagIDs(t, got.Flags))
	assert.Equal(t, []string{"a"}, flagIDs(t, mux.GetAllFlags()))
}

func TestPublish_NeverBlocksOnFullSubscriber(t *testing.T) {
	mux, err := NewMux(store.NewFlags(nil))
	require.NoError(t, err)
	full := make(chan Payload) // unbuffered and never read
	_, _ = mux.Register("stuck", full, "")

	assert.NoError(t, mux.Publish(model.Notification{Type: model.NotificationUpdate, FlagID: "x"}))
}

func TestUnregister(t *testing.T) {
	mux, err := NewMux(store.NewFlags(nil))
	require.NoError(t, err)
	ch := make(chan Payload, 1)
	_, _ = mux.Register("sub", ch, "x")

	mux.Unregister("sub", "x")
	require.NoError(t, mux.Publish(model.Notification{Type: model.NotificationDelete, FlagID: "x"}))

	assert.Empty(t, ch)
}
