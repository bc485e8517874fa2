package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "betclever:kv:"

// Each entry is a hash {data, version}; a per-namespace set indexes its keys.
var putScript = redis.NewScript(`
local cur = tonumber(redis.call("HGET", KEYS[1], "version") or "0")
local expect = tonumber(ARGV[2])
if expect >= 0 and expect ~= cur then
  return -1
end
local nxt = cur + 1
redis.call("HSET", KEYS[1], "data", ARGV[1], "version", nxt)
redis.call("SADD", KEYS[2], ARGV[3])
return nxt
`)

var deleteScript = redis.NewScript(`
local n = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return n
`)

type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) entryKey(ns, key string) string { return r.prefix + ns + "/" + key }

func (r *Redis) indexKey(ns string) string { return r.prefix + "index/" + ns }

func (r *Redis) Get(ctx context.Context, ns, key string) (Entry, error) {
	vals, err := r.client.HMGet(ctx, r.entryKey(ns, key), "data", "version").Result()
	if err != nil {
		return Entry{}, err
	}
	return decodeHash(key, vals)
}

func (r *Redis) List(ctx context.Context, ns string) ([]Entry, error) {
	keys, err := r.client.SMembers(ctx, r.indexKey(ns)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(ctx, r.entryKey(ns, k), "data", "version")
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
	}

	out := make([]Entry, 0, len(keys))
	for i, k := range keys {
		e, err := decodeHash(k, cmds[i].Val())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) Put(ctx context.Context, ns, key string, value []byte, expect int64) (int64, error) {
	res, err := putScript.Run(ctx, r.client, []string{r.entryKey(ns, key), r.indexKey(ns)}, value, expect, key).Int64()
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, ErrVersionConflict
	}
	return res, nil
}

func (r *Redis) Delete(ctx context.Context, ns, key string) error {
	n, err := deleteScript.Run(ctx, r.client, []string{r.entryKey(ns, key), r.indexKey(ns)}, key).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.client.Close() }

func decodeHash(key string, vals []interface{}) (Entry, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, ErrNotFound
	}
	data, ok := vals[0].(string)
	if !ok {
		return Entry{}, fmt.Errorf("unexpected redis payload for %q", key)
	}
	verStr, ok := vals[1].(string)
	if !ok {
		return Entry{}, fmt.Errorf("unexpected redis version for %q", key)
	}
	ver, err := strconv.ParseInt(verStr, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse redis version for %q: %w", key, err)
	}
	return Entry{Key: key, Value: []byte(data), Version: ver}, nil
}
