// Package flagsync fans flag change notifications out to subscribers.
package flagsync

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/store"
)

// Payload is delivered to subscribers on every change. Flags holds the JSON
// of every flag, or of the selected flag for selector subscriptions.
type Payload struct {
	Notification model.Notification `json:"notification"`
	Flags        string             `json:"flags"`
}

// Multiplexer abstract subscription handling. Flag snapshots are recalculated
// on every publish.
type Multiplexer struct {
	store store.IStore

	subs         map[interface{}]subscription            // subscriptions on all flags
	selectorSubs map[string]map[interface{}]subscription // flag specific subscriptions

	allFlags string // pre-calculated all flags in store as a string

	mu sync.RWMutex
}

type subscription struct {
	id      interface{}
	channel chan Payload
}

// NewMux creates a new notification multiplexer
func NewMux(store store.IStore) (*Multiplexer, error) {
	m := &Multiplexer{
		store:        store,
		subs:         map[interface{}]subscription{},
		selectorSubs: map[string]map[interface{}]subscription{},
	}

	return m, m.reFill()
}

// Register a subscription and return the current snapshot. An empty selector
// subscribes to every flag, otherwise only to the flag with that id.
func (r *Multiplexer) Register(id interface{}, con chan Payload, selector string) (Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := subscription{id: id, channel: con}
	if selector == "" {
		r.subs[id] = sub
		return Payload{Flags: r.allFlags}, nil
	}

	if r.selectorSubs[selector] == nil {
		r.selectorSubs[selector] = map[interface{}]subscription{}
	}
	r.selectorSubs[selector][id] = sub

	flags, err := r.selected(selector)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Flags: flags}, nil
}

// Publish a change to subscriptions. Slow subscribers miss updates rather than
// block the publisher.
func (r *Multiplexer) Publish(n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// perform a refill prior to publishing
	err := r.reFill()
	if err != nil {
		return err
	}

	for _, sub := range r.subs {
		send(sub, Payload{Notification: n, Flags: r.allFlags})
	}

	subs := r.selectorSubs[n.FlagID]
	if len(subs) == 0 {
		return nil
	}
	flags, err := r.selected(n.FlagID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		send(sub, Payload{Notification: n, Flags: flags})
	}

	return nil
}

// Unregister a subscription
func (r *Multiplexer) Unregister(id interface{}, selector string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var from map[interface{}]subscription

	if selector == "" {
		from = r.subs
	} else {
		from = r.selectorSubs[selector]
	}

	delete(from, id)
}

// GetAllFlags returns the last calculated snapshot of every flag
func (r *Multiplexer) GetAllFlags() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.allFlags
}

func send(sub subscription, p Payload) {
	select {
	case sub.channel <- p:
	default:
	}
}

// reFill local configuration values
func (r *Multiplexer) reFill() error {
	bytes, err := json.Marshal(map[string]interface{}{"flags": r.store.GetAll()})
	if err != nil {
		return fmt.Errorf("error marshalling: %w", err)
	}

	r.allFlags = string(bytes)
	return nil
}

func (r *Multiplexer) selected(flagID string) (string, error) {
	flags := []model.Flag{}
	if flag, ok := r.store.Get(flagID); ok {
		flags = append(flags, flag)
	}
	bytes, err := json.Marshal(map[string]interface{}{"flags": flags})
	if err != nil {
		return "", fmt.Errorf("unable to marshal flags: %w", err)
	}
	return string(bytes), nil
}
