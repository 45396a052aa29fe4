package mysqlout

import "context"

// Legacy serves guests built against the ABI that predates connection
// handles: each statement opens a fresh session for its address, delegates
// to the current adapter, and discards the session afterward.
type Legacy struct {
	store *Store
}

// NewLegacy wraps store with the per-call-session compatibility surface.
func NewLegacy(store *Store) *Legacy {
	return &Legacy{store: store}
}

func withSession[T any](ctx context.Context, l *Legacy, address string, op func(handle uint32) (T, error)) (T, error) {
	var zero T
	handle, err := l.store.Open(ctx, address)
	if err != nil {
		return zero, err
	}
	defer l.store.CloseConn(handle)
	return op(handle)
}

// Execute runs a statement that returns no rows.
func (l *Legacy) Execute(ctx context.Context, address, statement string, params []Parameter) error {
	_, err := withSession(ctx, l, address, func(handle uint32) (struct{}, error) {
		return struct{}{}, l.store.Execute(ctx, handle, statement, params)
	})
	return err
}

// Query runs a statement and returns its typed result set.
func (l *Legacy) Query(ctx context.Context, address, statement string, params []Parameter) (*RowSet, error) {
	return withSession(ctx, l, address, func(handle uint32) (*RowSet, error) {
		return l.store.Query(ctx, handle, statement, params)
	})
}
