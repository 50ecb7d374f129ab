package mirror

import (
	"context"
	"errors"

	"github.com/guildops/ballast/pkg/resource"
)

var (
	// ErrThrottled indicates the remote side signalled throughput limiting
	// (or timed out, which the core treats identically)
	ErrThrottled = errors.New("mirror: throttled")

	// ErrDisconnected indicates no usable connection to the remote mirror
	ErrDisconnected = errors.New("mirror: not connected")
)

// Connector is the surface the core sees of the remote tabular backend.
// The mirror is never authoritative: Push is a full-resource replace of
// the remote copy, and Pull is a best-effort read used only to bootstrap
// locally missing resources at startup. Failures are transient by
// contract; the core never surfaces them as failures of the caller's
// original mutation.
type Connector interface {
	// IsConnected reports whether the remote side is currently reachable
	IsConnected() bool

	// Push replaces the remote copy of a resource with value
	Push(ctx context.Context, key resource.Key, value any) error

	// Pull reads the remote copy of a resource. The second return is
	// false when the mirror has no data for the key.
	Pull(ctx context.Context, key resource.Key) (any, bool, error)
}

// BatchPusher is an optional connector capability: pushing a large list
// resource as chunked row batches instead of one value per call. The sync
// engine type-asserts for it when a snapshot exceeds its batch threshold.
type BatchPusher interface {
	PushBatch(ctx context.Context, key resource.Key, rows []any, offset, total int) error
}
