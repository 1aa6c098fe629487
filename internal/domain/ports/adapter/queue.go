package adapter

import "context"

// TaskQueue accepts best-effort background work. Submit must not block.
type TaskQueue interface {
	Submit(task func(ctx context.Context) error) error
}
