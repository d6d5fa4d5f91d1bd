package fakes

import (
	"context"
	"sync"

	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdKV is an in-memory single-node etcd with revisions, compare-and-swap
// transactions and watches. Only exact-key operations are supported.
type EtcdKV struct {
	mu       sync.Mutex
	rev      int64
	data     map[string]*mvccpb.KeyValue
	history  []*clientv3.Event
	watchers map[*fakeWatch]struct{}

	// GetErr and TxnErr, when set, are returned by Get and Txn.Commit.
	GetErr error
	TxnErr error
}

type fakeWatch struct {
	key string
	ch  chan clientv3.WatchResponse
}

func NewEtcdKV() *EtcdKV {
	return &EtcdKV{
		data:     make(map[string]*mvccpb.KeyValue),
		watchers: make(map[*fakeWatch]struct{}),
	}
}

func (f *EtcdKV) header() *pb.ResponseHeader {
	return &pb.ResponseHeader{Revision: f.rev}
}

func (f *EtcdKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	resp := &clientv3.GetResponse{Header: f.header()}
	if kv, ok := f.data[key]; ok {
		cp := *kv
		resp.Kvs = []*mvccpb.KeyValue{&cp}
		resp.Count = 1
	}
	return resp, nil
}

func (f *EtcdKV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(key, []byte(val))
	return &clientv3.PutResponse{Header: f.header()}, nil
}

func (f *EtcdKV) Delete(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return &clientv3.DeleteResponse{Header: f.header()}, nil
	}
	f.rev++
	delete(f.data, key)
	f.emit(&clientv3.Event{
		Type: mvccpb.DELETE,
		Kv:   &mvccpb.KeyValue{Key: []byte(key), ModRevision: f.rev},
	})
	return &clientv3.DeleteResponse{Header: f.header(), Deleted: 1}, nil
}

func (f *EtcdKV) Txn(_ context.Context) clientv3.Txn {
	return &fakeTxn{kv: f}
}

// Watch replays history from the requested revision, then streams changes
// until ctx is done.
func (f *EtcdKV) Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan {
	startRev := clientv3.OpGet(key, opts...).Rev()

	f.mu.Lock()
	w := &fakeWatch{key: key, ch: make(chan clientv3.WatchResponse, 256)}
	for _, ev := range f.history {
		if string(ev.Kv.Key) == key && ev.Kv.ModRevision >= startRev {
			w.ch <- clientv3.WatchResponse{Header: *f.header(), Events: []*clientv3.Event{ev}}
		}
	}
	f.watchers[w] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.watchers[w]; ok {
			delete(f.watchers, w)
			close(w.ch)
		}
	}()
	return w.ch
}

// BreakWatches cancels every open watch the way a server-side cancel does.
func (f *EtcdKV) BreakWatches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for w := range f.watchers {
		w.ch <- clientv3.WatchResponse{Header: *f.header(), Canceled: true}
		close(w.ch)
		delete(f.watchers, w)
	}
}

func (f *EtcdKV) put(key string, val []byte) {
	f.rev++
	kv := &mvccpb.KeyValue{Key: []byte(key), Value: val, ModRevision: f.rev, CreateRevision: f.rev, Version: 1}
	if prev, ok := f.data[key]; ok {
		kv.CreateRevision = prev.CreateRevision
		kv.Version = prev.Version + 1
	}
	f.data[key] = kv
	cp := *kv
	f.emit(&clientv3.Event{Type: mvccpb.PUT, Kv: &cp})
}

func (f *EtcdKV) emit(ev *clientv3.Event) {
	f.history = append(f.history, ev)
	for w := range f.watchers {
		if w.key != string(ev.Kv.Key) {
			continue
		}
		select {
		case w.ch <- clientv3.WatchResponse{Header: *f.header(), Events: []*clientv3.Event{ev}}:
		default:
		}
	}
}

func (f *EtcdKV) compare(c clientv3.Cmp) bool {
	pc := (*pb.Compare)(&c)
	kv := f.data[string(pc.Key)]

	var actual, want int64
	switch pc.Target {
	case pb.Compare_MOD:
		want = pc.GetModRevision()
		if kv != nil {
			actual = kv.ModRevision
		}
	case pb.Compare_CREATE:
		want = pc.GetCreateRevision()
		if kv != nil {
			actual = kv.CreateRevision
		}
	case pb.Compare_VERSION:
		want = pc.GetVersion()
		if kv != nil {
			actual = kv.Version
		}
	default:
		return false
	}

	switch pc.Result {
	case pb.Compare_EQUAL:
		return actual == want
	case pb.Compare_NOT_EQUAL:
		return actual != want
	case pb.Compare_GREATER:
		return actual > want
	case pb.Compare_LESS:
		return actual < want
	}
	return false
}

type fakeTxn struct {
	kv      *EtcdKV
	cmps    []clientv3.Cmp
	thenOps []clientv3.Op
	elseOps []clientv3.Op
}

func (t *fakeTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.cmps = append(t.cmps, cs...)
	return t
}

func (t *fakeTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.thenOps = append(t.thenOps, ops...)
	return t
}

func (t *fakeTxn) Else(ops ...clientv3.Op) clientv3.Txn {
	t.elseOps = append(t.elseOps, ops...)
	return t
}

func (t *fakeTxn) Commit() (*clientv3.TxnResponse, error) {
	f := t.kv
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TxnErr != nil {
		return nil, f.TxnErr
	}

	ok := true
	for _, c := range t.cmps {
		if !f.compare(c) {
			ok = false
			break
		}
	}
	ops := t.thenOps
	if !ok {
		ops = t.elseOps
	}
	for _, op := range ops {
		if op.IsPut() {
			f.put(string(op.KeyBytes()), op.ValueBytes())
		}
	}
	return &clientv3.TxnResponse{Header: f.header(), Succeeded: ok}, nil
}
