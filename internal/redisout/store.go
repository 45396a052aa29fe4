// Package redisout is the key-value/pub-sub backend adapter. It authorizes
// destinations against the instance allow-list under the "redis" scheme,
// dials through the blocked-network guarded dialer, and keeps live
// connections in the instance's resource table behind opaque handles.
package redisout

import (
	"context"
	"crypto/tls"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
	"github.com/gatehouse-host/gatehouse/internal/restable"
)

const scheme = "redis"

// Store exposes the key-value/pub-sub verb set to one guest instance.
// Each handle owns a single multiplexed session; the guest is responsible
// for not issuing concurrent calls against one handle.
type Store struct {
	inst   *outbound.Instance
	conns  *restable.Table[*redis.Client]
	logger zerolog.Logger
}

// NewStore creates the adapter bound to inst.
func NewStore(inst *outbound.Instance) *Store {
	return &Store{
		inst:   inst,
		conns:  restable.New[*redis.Client](inst.MaxConnections()),
		logger: inst.Logger().With().Str("backend", scheme).Logger(),
	}
}

// Scheme implements outbound.Backend.
func (s *Store) Scheme() string { return scheme }

// Open authorizes the address, establishes a connection, and returns its
// handle. A denied address fails before any network activity.
func (s *Store) Open(ctx context.Context, address string) (uint32, error) {
	ctx, span := s.span(ctx, "open")
	defer span.End()

	if err := s.inst.Authorize(address, scheme); err != nil {
		return 0, err
	}

	opts, err := parseAddress(address)
	if err != nil {
		return 0, err
	}
	guarded := s.inst.Dialer().DialContext
	if opts.TLSConfig != nil {
		// The driver only performs the TLS wrap inside its default dialer,
		// so the guarded dialer has to wrap the connection itself.
		tlsCfg := s.inst.TLSConfigs().ClientConfig(hostOf(opts.Addr))
		opts.TLSConfig = nil
		opts.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := guarded(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			tlsConn := tls.Client(conn, tlsCfg)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		}
	} else {
		opts.Dialer = guarded
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return 0, outbound.ClassifyDialError(err)
	}

	handle, err := s.conns.Push(client)
	if err != nil {
		client.Close()
		return 0, &outbound.HostError{
			Code:    outbound.CodeTooManyConnections,
			Message: "connection table full",
		}
	}
	return handle, nil
}

func (s *Store) get(handle uint32) (*redis.Client, error) {
	client, ok := s.conns.Get(handle)
	if !ok {
		return nil, outbound.Errf(outbound.CodeNoConnection, "no connection for handle %d", handle)
	}
	return *client, nil
}

// Get returns the value for key, with ok reporting whether the key exists.
func (s *Store) Get(ctx context.Context, handle uint32, key string) ([]byte, bool, error) {
	ctx, span := s.span(ctx, "get")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return nil, false, err
	}
	value, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, handle uint32, key string, value []byte) error {
	ctx, span := s.span(ctx, "set")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return err
	}
	if err := client.Set(ctx, key, value, 0).Err(); err != nil {
		return mapErr(err)
	}
	return nil
}

// Incr increments the integer at key by one and returns the new value.
func (s *Store) Incr(ctx context.Context, handle uint32, key string) (int64, error) {
	ctx, span := s.span(ctx, "incr")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return 0, err
	}
	value, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	return value, nil
}

// Del removes the given keys and returns how many existed.
func (s *Store) Del(ctx context.Context, handle uint32, keys []string) (int64, error) {
	ctx, span := s.span(ctx, "del")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return 0, err
	}
	count, err := client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// SAdd adds values to the set at key and returns how many were new.
func (s *Store) SAdd(ctx context.Context, handle uint32, key string, values []string) (int64, error) {
	ctx, span := s.span(ctx, "sadd")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return 0, err
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	count, err := client.SAdd(ctx, key, args...).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// SRem removes values from the set at key and returns how many were present.
func (s *Store) SRem(ctx context.Context, handle uint32, key string, values []string) (int64, error) {
	ctx, span := s.span(ctx, "srem")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return 0, err
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	count, err := client.SRem(ctx, key, args...).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// SMembers returns every member of the set at key.
func (s *Store) SMembers(ctx context.Context, handle uint32, key string) ([]string, error) {
	ctx, span := s.span(ctx, "smembers")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return nil, err
	}
	members, err := client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return members, nil
}

// Publish sends payload to every subscriber of channel.
func (s *Store) Publish(ctx context.Context, handle uint32, channel string, payload []byte) error {
	ctx, span := s.span(ctx, "publish")
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return err
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return mapErr(err)
	}
	return nil
}

// Execute runs a raw command with typed arguments and returns the flattened
// typed results.
func (s *Store) Execute(ctx context.Context, handle uint32, command string, args []Parameter) ([]Result, error) {
	ctx, span := s.span(ctx, "execute")
	span.SetAttributes(attribute.String("db.operation.name", command))
	defer span.End()

	client, err := s.get(handle)
	if err != nil {
		return nil, err
	}

	argv := make([]interface{}, 0, len(args)+1)
	argv = append(argv, command)
	for _, arg := range args {
		argv = append(argv, arg.arg())
	}

	value, err := client.Do(ctx, argv...).Result()
	if err == redis.Nil {
		return []Result{NilResult()}, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return convertResults(value)
}

// CloseConn drops the handle and closes its connection.
func (s *Store) CloseConn(handle uint32) error {
	client, ok := s.conns.Remove(handle)
	if !ok {
		return outbound.Errf(outbound.CodeNoConnection, "no connection for handle %d", handle)
	}
	if err := client.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("closing key-value connection")
	}
	return nil
}

// Close implements outbound.Backend, releasing every live connection at
// instance teardown.
func (s *Store) Close() error {
	for _, client := range s.conns.Drain() {
		if err := client.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("closing key-value connection")
		}
	}
	return nil
}

func (s *Store) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.inst.Tracer().Start(ctx, "outbound_redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "redis")))
}

// parseAddress builds client options from the guest-supplied address,
// assuming the redis scheme when none is present.
func parseAddress(address string) (*redis.Options, error) {
	raw := address
	if !strings.Contains(raw, "://") {
		raw = "redis://" + raw
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, &outbound.HostError{
			Code:    outbound.CodeInvalidAddress,
			Message: "invalid address",
			Details: err.Error(),
		}
	}
	// One multiplexed session per handle.
	opts.PoolSize = 1
	opts.DisableIndentity = true
	return opts, nil
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// mapErr converts driver errors to the adapter's error set. Backend-reported
// errors pass through with detail; type mismatches get their own code so
// guests can distinguish them from transport failures.
func mapErr(err error) error {
	if redisErr, ok := err.(redis.Error); ok {
		msg := redisErr.Error()
		if strings.HasPrefix(msg, "WRONGTYPE") {
			return &outbound.HostError{
				Code:    outbound.CodeTypeError,
				Message: "operation against a key of the wrong type",
				Details: msg,
			}
		}
		return &outbound.HostError{
			Code:    outbound.CodeBackendError,
			Message: "backend reported an error",
			Details: msg,
		}
	}
	if outbound.IsTimeout(err) {
		return &outbound.HostError{
			Code:    outbound.CodeProtocolError,
			Message: "operation timed out",
			Details: err.Error(),
		}
	}
	return &outbound.HostError{
		Code:    outbound.CodeProtocolError,
		Message: "transport failure",
		Details: err.Error(),
	}
}
