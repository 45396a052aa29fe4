package redisout

import "context"

// Legacy serves guests built against the ABI that predates connection
// handles: every verb opens a fresh connection for its address, delegates to
// the current adapter, and discards the connection afterward. The lack of
// connection reuse is inherent to that ABI, not an oversight.
type Legacy struct {
	store *Store
}

// NewLegacy wraps store with the per-call-connection compatibility surface.
func NewLegacy(store *Store) *Legacy {
	return &Legacy{store: store}
}

func withConn[T any](ctx context.Context, l *Legacy, address string, op func(handle uint32) (T, error)) (T, error) {
	var zero T
	handle, err := l.store.Open(ctx, address)
	if err != nil {
		return zero, err
	}
	defer l.store.CloseConn(handle)
	return op(handle)
}

// Get returns the value for key, or empty bytes when the key is absent.
func (l *Legacy) Get(ctx context.Context, address, key string) ([]byte, error) {
	return withConn(ctx, l, address, func(handle uint32) ([]byte, error) {
		value, ok, err := l.store.Get(ctx, handle, key)
		if err != nil || !ok {
			return nil, err
		}
		return value, nil
	})
}

// Set stores value under key.
func (l *Legacy) Set(ctx context.Context, address, key string, value []byte) error {
	_, err := withConn(ctx, l, address, func(handle uint32) (struct{}, error) {
		return struct{}{}, l.store.Set(ctx, handle, key, value)
	})
	return err
}

// Incr increments the integer at key by one.
func (l *Legacy) Incr(ctx context.Context, address, key string) (int64, error) {
	return withConn(ctx, l, address, func(handle uint32) (int64, error) {
		return l.store.Incr(ctx, handle, key)
	})
}

// Del removes the given keys.
func (l *Legacy) Del(ctx context.Context, address string, keys []string) (int64, error) {
	return withConn(ctx, l, address, func(handle uint32) (int64, error) {
		return l.store.Del(ctx, handle, keys)
	})
}

// SAdd adds values to the set at key.
func (l *Legacy) SAdd(ctx context.Context, address, key string, values []string) (int64, error) {
	return withConn(ctx, l, address, func(handle uint32) (int64, error) {
		return l.store.SAdd(ctx, handle, key, values)
	})
}

// SRem removes values from the set at key.
func (l *Legacy) SRem(ctx context.Context, address, key string, values []string) (int64, error) {
	return withConn(ctx, l, address, func(handle uint32) (int64, error) {
		return l.store.SRem(ctx, handle, key, values)
	})
}

// SMembers returns every member of the set at key.
func (l *Legacy) SMembers(ctx context.Context, address, key string) ([]string, error) {
	return withConn(ctx, l, address, func(handle uint32) ([]string, error) {
		return l.store.SMembers(ctx, handle, key)
	})
}

// Publish sends payload to every subscriber of channel.
func (l *Legacy) Publish(ctx context.Context, address, channel string, payload []byte) error {
	_, err := withConn(ctx, l, address, func(handle uint32) (struct{}, error) {
		return struct{}{}, l.store.Publish(ctx, handle, channel, payload)
	})
	return err
}

// Execute runs a raw command with typed arguments.
func (l *Legacy) Execute(ctx context.Context, address, command string, args []Parameter) ([]Result, error) {
	return withConn(ctx, l, address, func(handle uint32) ([]Result, error) {
		return l.store.Execute(ctx, handle, command, args)
	})
}
