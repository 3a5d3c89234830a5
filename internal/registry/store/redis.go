package store

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
)

// RedisStore keeps each instance as a JSON string under <prefix>instance:<id>
// and the set of ids under <prefix>ids.
type RedisStore struct {
	pool   *redis.Pool
	prefix string
}

// RedisConfig holds configuration for the Redis store
type RedisConfig struct {
	Address string
	Prefix  string
	// Dial overrides how connections are made, used by tests
	Dial func() (redis.Conn, error)
}

// NewRedisStore creates a store backed by a connection pool and checks
// the server is reachable.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	dial := cfg.Dial
	if dial == nil {
		addr := cfg.Address
		dial = func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		}
	}
	s := &RedisStore{
		pool: &redis.Pool{
			Dial:        dial,
			MaxIdle:     4,
			IdleTimeout: 5 * time.Minute,
		},
		prefix: cfg.Prefix,
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		s.pool.Close()
		return nil, storageError("redis.Open", err)
	}
	return s, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "instance:" + id
}

func (s *RedisStore) idsKey() string {
	return s.prefix + "ids"
}

func (s *RedisStore) conn(ctx context.Context) (redis.Conn, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, storageError("redis.Get", err)
	}
	return conn, nil
}

func (s *RedisStore) Put(ctx context.Context, info *discovery.ServiceInfo) error {
	data, err := encode(info)
	if err != nil {
		return storageError("redis.Put", err)
	}
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.Send("MULTI")
	conn.Send("SET", s.key(info.ID), data)
	conn.Send("SADD", s.idsKey(), info.ID)
	if _, err := conn.Do("EXEC"); err != nil {
		return storageError("redis.Put", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*discovery.ServiceInfo, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", s.key(id)))
	if errors.Is(err, redis.ErrNil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storageError("redis.Get", err)
	}
	return decode(data)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.Send("MULTI")
	conn.Send("DEL", s.key(id))
	conn.Send("SREM", s.idsKey(), id)
	if _, err := conn.Do("EXEC"); err != nil {
		return storageError("redis.Delete", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*discovery.ServiceInfo, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("SMEMBERS", s.idsKey()))
	if err != nil {
		return nil, storageError("redis.List", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	args := redis.Args{}
	for _, id := range ids {
		args = args.Add(s.key(id))
	}
	docs, err := redis.ByteSlices(conn.Do("MGET", args...))
	if err != nil {
		return nil, storageError("redis.List", err)
	}

	out := make([]*discovery.ServiceInfo, 0, len(docs))
	for _, data := range docs {
		// ids whose document expired or was removed outside the store
		if data == nil {
			continue
		}
		info, err := decode(data)
		if err != nil {
			return nil, storageError("redis.List", err)
		}
		out = append(out, info)
	}
	discovery.SortByID(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}
