package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/git-hulk/go-nodup/guard"
	"github.com/git-hulk/go-nodup/guard/engine"
	"github.com/git-hulk/go-nodup/guard/engine/store"
)

const defaultStoreTimeout = 3 * time.Second

// booksConfig guards the demo endpoint, a token submitted again within a
// second of its completion is rejected.
var booksConfig = guard.Config{
	Prefix:       "books",
	TTL:          2 * time.Second,
	ReleaseDelay: time.Second,
	Key:    guard.KeyPolicy{Params: []string{"token"}},
}

// newStore builds the lock store selected by the "store" setting. The
// returned close function releases the client.
func newStore(v *viper.Viper) (engine.Store, func() error, error) {
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	switch name := v.GetString("store"); name {
	case "", "memory":
		return store.NewMemory(nil), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         v.GetString("redis-addr"),
			Password:     v.GetString("redis-password"),
			DB:           v.GetInt("redis-db"),
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		})
		return store.NewRedis(client), client.Close, nil
	case "etcd":
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(v.GetString("etcd-endpoints"), ","),
			DialTimeout: timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect etcd: %w", err)
		}
		return store.NewEtcd(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid store %s", name)
	}
}

// operationConfigs reads the "operations" map of the config file, keyed by
// operation name. Names must not contain dots, viper treats them as nesting.
// The demo books endpoint is always present.
func operationConfigs(v *viper.Viper) (map[string]guard.Config, error) {
	configs := map[string]guard.Config{}
	if err := v.UnmarshalKey("operations", &configs); err != nil {
		return nil, fmt.Errorf("parse operations: %w", err)
	}
	if _, ok := configs[booksOperation]; !ok {
		configs[booksOperation] = booksConfig
	}
	return configs, nil
}
