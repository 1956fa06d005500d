package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relabs-tech/pmpgw/core/config"
)

// kvClient is the C3 key-value adapter.
type kvClient struct {
	id      string
	rdb     *redis.Client
	timeout time.Duration
	resil   *Resilient
}

func newKVClient(id string, def config.ClientDefinition) (Client, error) {
	opts, err := redis.ParseURL(def.ConnectionString)
	if err != nil {
		return nil, err
	}
	return &kvClient{
		id:      id,
		rdb:     redis.NewClient(opts),
		timeout: time.Duration(def.TimeoutSeconds) * time.Second,
		resil:   NewResilient(def.Retry, nil),
	}, nil
}

func (c *kvClient) Close() error { return c.rdb.Close() }

func (c *kvClient) Execute(ctx context.Context, op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
	kvOp, ok := op.(config.KVOp)
	if !ok {
		return nil, protocolError("kv client received non-kv op")
	}
	key := Expand(kvOp.Key, ictx)
	field := Expand(kvOp.Field, ictx)
	value := Expand(kvOp.Value, ictx)

	return c.resil.Do(ctx, func(ctx context.Context) (SubrequestResult, *BackendError) {
		return c.dispatch(ctx, kvOp, key, field, value)
	})
}

func (c *kvClient) dispatch(ctx context.Context, kvOp config.KVOp, key, field, value string) (SubrequestResult, *BackendError) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result := newResult(c.id, "redis")
	result["operation"] = string(kvOp.Operation)

	switch kvOp.Operation {
	case config.KVGet:
		v, err := c.rdb.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			result["value"] = nil
		case err != nil:
			return nil, classifyRedisError(err)
		default:
			result["value"] = v
		}

	case config.KVSet:
		var ttl time.Duration
		if kvOp.TTLSeconds != nil {
			ttl = time.Duration(*kvOp.TTLSeconds) * time.Second
		}
		if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
			return nil, classifyRedisError(err)
		}
		result["value"] = true

	case config.KVDel:
		n, err := c.rdb.Del(ctx, key).Result()
		if err != nil {
			return nil, classifyRedisError(err)
		}
		result["value"] = n

	case config.KVExists:
		n, err := c.rdb.Exists(ctx, key).Result()
		if err != nil {
			return nil, classifyRedisError(err)
		}
		result["value"] = n > 0

	case config.KVHget:
		v, err := c.rdb.HGet(ctx, key, field).Result()
		switch {
		case err == redis.Nil:
			result["value"] = nil
		case err != nil:
			return nil, classifyRedisError(err)
		default:
			result["value"] = v
		}

	case config.KVHset:
		if err := c.rdb.HSet(ctx, key, field, value).Err(); err != nil {
			return nil, classifyRedisError(err)
		}
		result["value"] = true

	default:
		return nil, protocolError(fmt.Sprintf("unknown redis operation %q", kvOp.Operation))
	}
	return result, nil
}

func classifyRedisError(err error) *BackendError {
	switch err {
	case redis.Nil:
		return protocolError(err.Error())
	default:
		return transportError(err.Error())
	}
}
