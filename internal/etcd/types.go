package etcd

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
)

//go:generate mockgen -destination=mocks/mock_etcd.go -package=mocks . Client

type Client interface {
	KV
	Watcher
}

// KV is the subset of etcd key-value operations used by the room store
type KV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Txn(ctx context.Context) clientv3.Txn
}

// Watcher is an interface that wraps the etcd client methods used by change feeds
type Watcher interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}
