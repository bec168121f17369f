// Package appconfig is the Configuration Client: two logical
// connections to an external Redis store, one for reads (application
// hashes) and one for the pub/sub change feed. Both retry connection
// with a fixed 1-second backoff indefinitely at startup; a connection
// lost after that point is fatal to the frontend process, since
// correctness depends on the configuration store being the single
// source of truth for which applications exist.
package appconfig

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/clipper-ml/clipper/internal/types"
)

const (
	defaultNamespace   = "clipper"
	keyeventChanPrefix = "__keyevent@0__:"
)

// EventCallback is invoked once per configuration-store mutation. Only
// event == "hset" carries an application (re)registration; callers
// ignore every other event type.
type EventCallback func(key, event string)

// Client is the Configuration Client: a read/write connection plus a
// subscriber connection to the same Redis instance.
type Client struct {
	rw        *redis.Client
	sub       *redis.Client
	namespace string
}

// Option configures a Client.
type Option func(*Client)

// WithNamespace overrides the default "clipper" key namespace.
func WithNamespace(ns string) Option {
	return func(c *Client) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// Connect dials both connections, retrying each with a 1-second backoff
// indefinitely until reachable. It blocks until both connections are
// live or ctx is canceled.
func Connect(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	c := &Client{namespace: defaultNamespace}
	for _, opt := range opts {
		opt(c)
	}

	c.rw = redis.NewClient(&redis.Options{Addr: addr})
	c.sub = redis.NewClient(&redis.Options{Addr: addr})

	if err := connectWithBackoff(ctx, c.rw); err != nil {
		return nil, fmt.Errorf("configuration store read/write connection: %w", err)
	}
	if err := connectWithBackoff(ctx, c.sub); err != nil {
		return nil, fmt.Errorf("configuration store subscriber connection: %w", err)
	}

	return c, nil
}

func connectWithBackoff(ctx context.Context, client *redis.Client) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(time.Second), ctx)
	return backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, bo)
}

// applicationKey returns the Redis key for one application's hash.
func (c *Client) applicationKey(name string) string {
	return c.namespace + ":app:" + name
}

// GetApplicationByKey reads the raw field map for one application
// record: {candidate_models, input_type, policy, default_output,
// latency_slo_micros}.
func (c *Client) GetApplicationByKey(ctx context.Context, name string) (map[string]string, error) {
	fields, err := c.rw.HGetAll(ctx, c.applicationKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading application %q: %w", name, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("application %q not found", name)
	}
	return fields, nil
}

// PutApplication writes (or overwrites) the hash record for an
// application. Used by admin tooling and by tests seeding the store;
// the core daemon itself never mutates application records.
func (c *Client) PutApplication(ctx context.Context, app types.Application) error {
	fields := map[string]interface{}{
		"candidate_models":    modelsToStr(app.CandidateModels),
		"input_type":          app.InputType.String(),
		"policy":              app.Policy,
		"default_output":      app.DefaultOutput,
		"latency_slo_micros":  app.LatencySLOMicros,
	}
	if err := c.rw.HSet(ctx, c.applicationKey(app.Name), fields).Err(); err != nil {
		return fmt.Errorf("writing application %q: %w", app.Name, err)
	}
	return nil
}

// StrToModels parses the comma-separated "name:version,name:version"
// encoding used for the candidate_models field.
func StrToModels(s string) ([]types.VersionedModelId, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("candidate_models is empty")
	}
	parts := strings.Split(s, ",")
	models := make([]types.VersionedModelId, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		nv := strings.SplitN(p, ":", 2)
		if len(nv) != 2 || nv[0] == "" || nv[1] == "" {
			return nil, fmt.Errorf("malformed candidate model %q, expected name:version", p)
		}
		models = append(models, types.VersionedModelId{Name: nv[0], Version: nv[1]})
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("candidate_models %q yielded no models", s)
	}
	return models, nil
}

func modelsToStr(models []types.VersionedModelId) string {
	parts := make([]string, len(models))
	for i, m := range models {
		parts[i] = m.Name + ":" + m.Version
	}
	return strings.Join(parts, ",")
}

// SubscribeToApplicationChanges subscribes to the store's keyevent
// notifications and invokes cb for every mutation observed, forever,
// until ctx is canceled. The caller is responsible for filtering to the
// events it cares about; the registrar only acts on event == "hset".
//
// SubscribeToApplicationChanges blocks the calling goroutine; callers
// run it in its own goroutine.
func (c *Client) SubscribeToApplicationChanges(ctx context.Context, cb EventCallback) error {
	pubsub := c.sub.PSubscribe(ctx, keyeventChanPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("configuration store subscriber connection closed")
			}
			// The keyspace-notification payload is the mutated key name;
			// the channel name itself encodes the event type.
			cb(strings.TrimPrefix(msg.Payload, c.namespace+":app:"), strings.TrimPrefix(msg.Channel, keyeventChanPrefix))
		}
	}
}

// Close releases both Redis connections.
func (c *Client) Close() error {
	var firstErr error
	if err := c.rw.Close(); err != nil {
		firstErr = err
	}
	if err := c.sub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
