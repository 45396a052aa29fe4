package redisout

import "github.com/gatehouse-host/gatehouse/internal/outbound"

// Factory builds the key-value backend for guest instances.
type Factory struct{}

// Scheme implements outbound.Factory.
func (Factory) Scheme() string { return scheme }

// New implements outbound.Factory.
func (Factory) New(inst *outbound.Instance) (outbound.Backend, error) {
	return NewStore(inst), nil
}
