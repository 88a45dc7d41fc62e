package store

import (
	"context"
	"math"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/git-hulk/go-nodup/guard/engine"
	"github.com/git-hulk/go-nodup/internal"
)

var (
	_ engine.Store             = (*Etcd)(nil)
	_ engine.CompareAndDeleter = (*Etcd)(nil)
)

// Etcd implements engine.Store with etcd transactions. Every write is
// attached to a lease granted for its TTL, rounded up to whole seconds.
type Etcd struct {
	client *clientv3.Client
}

func NewEtcd(client *clientv3.Client) *Etcd {
	return &Etcd{client: client}
}

func (e *Etcd) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return e.putIf(ctx, key, value, ttl, clientv3.Compare(clientv3.CreateRevision(key), "=", 0))
}

func (e *Etcd) Get(ctx context.Context, key string) (string, bool, error) {
	rsp, err := e.client.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if len(rsp.Kvs) == 0 {
		return "", false, nil
	}
	return string(rsp.Kvs[0].Value), true, nil
}

func (e *Etcd) Delete(ctx context.Context, key string) error {
	_, err := e.client.Delete(ctx, key)
	return err
}

func (e *Etcd) Replace(ctx context.Context, key, old, value string, ttl time.Duration) (bool, error) {
	return e.putIf(ctx, key, value, ttl, clientv3.Compare(clientv3.Value(key), "=", old))
}

func (e *Etcd) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	rsp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", value)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, err
	}
	return rsp.Succeeded, nil
}

func (e *Etcd) putIf(ctx context.Context, key, value string, ttl time.Duration, cmp clientv3.Cmp) (bool, error) {
	lease, err := e.client.Grant(ctx, ttlSeconds(ttl))
	if err != nil {
		return false, err
	}
	rsp, err := e.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, value, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil || !rsp.Succeeded {
		e.revoke(lease.ID)
	}
	if err != nil {
		return false, err
	}
	return rsp.Succeeded, nil
}

// revoke drops a lease that ended up unused, it would expire by itself anyway.
func (e *Etcd) revoke(id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.client.Revoke(ctx, id); err != nil {
		internal.GetLogger().Printf("Failed to revoke unused lease %x, err: %v", id, err)
	}
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := int64(math.Ceil(ttl.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
