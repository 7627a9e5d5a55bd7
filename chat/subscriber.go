package chat

import (
	"context"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Subscriber receives every chat message the session reads. HandleMessage runs on the
// session's read loop in blocking mode, so a slow subscriber delays ingestion of later lines.
// Returned errors and panics are logged and counted; they never stop the session.
type Subscriber interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// SubscriberFunc adapts a plain function. Function values are not comparable, so wrap one
// with NewSubscriber to get a handle that can be registered and later unregistered.
type SubscriberFunc func(ctx context.Context, msg Message) error

func (f SubscriberFunc) HandleMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// FuncSubscriber is a registrable handle around a SubscriberFunc. Identity is the pointer.
type FuncSubscriber struct {
	fn SubscriberFunc
}

// NewSubscriber returns a new handle for fn.
func NewSubscriber(fn SubscriberFunc) *FuncSubscriber {
	return &FuncSubscriber{fn: fn}
}

func (f *FuncSubscriber) HandleMessage(ctx context.Context, msg Message) error {
	return f.fn(ctx, msg)
}

// Registry is a concurrency-safe set of subscribers. Membership is by handle identity;
// registering the same handle twice is a no-op. Iteration happens over snapshots, so
// subscribers may be added or removed while a dispatch is in progress.
type Registry struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[Subscriber]uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[Subscriber]uint64)}
}

// Register adds sub to the set. It fails for nil handles and for handles whose dynamic type
// cannot be used as a set key (e.g. a bare SubscriberFunc, or a struct value holding one in
// an interface field).
func (r *Registry) Register(sub Subscriber) (err error) {
	if sub == nil || !reflect.TypeOf(sub).Comparable() {
		return ErrInvalidSubscriber
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	defer recoverUnhashable(&err)
	if _, ok := r.subs[sub]; ok {
		return nil
	}
	r.seq++
	r.subs[sub] = r.seq
	return nil
}

// Unregister removes sub; unknown handles are ignored.
func (r *Registry) Unregister(sub Subscriber) {
	if sub == nil || !reflect.TypeOf(sub).Comparable() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	defer recoverUnhashable(nil)
	delete(r.subs, sub)
}

// recoverUnhashable turns the runtime panic from hashing a non-comparable dynamic value
// into ErrInvalidSubscriber. Any other panic is re-raised.
func recoverUnhashable(err *error) {
	p := recover()
	if p == nil {
		return
	}
	if rerr, ok := p.(runtime.Error); !ok || !strings.Contains(rerr.Error(), "unhashable") {
		panic(p)
	}
	if err != nil {
		*err = ErrInvalidSubscriber
	}
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Snapshot returns the current members in registration order.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.RLock()
	type entry struct {
		sub Subscriber
		seq uint64
	}
	entries := make([]entry, 0, len(r.subs))
	for sub, seq := range r.subs {
		entries = append(entries, entry{sub, seq})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Subscriber, len(entries))
	for i, e := range entries {
		out[i] = e.sub
	}
	return out
}
