package provider

import (
	"context"

	"github.com/open-feature/flagx/core/pkg/model"
)

// IProvider is a source of flag definitions.
type IProvider interface {
	// Fetch reads the current definitions.
	Fetch(ctx context.Context) ([]model.Flag, error)
	// Watch calls fn with the full set of definitions every time the source
	// changes, until ctx is cancelled.
	Watch(ctx context.Context, fn func([]model.Flag)) error
}
