// Package docsync 实现文档同步通道：每个活跃房间在内存中有一个权威 CRDT 文档，
// 由 actor 串行地合并各连接的增量、转发给其他连接，并定期写回房间的代码快照。
package docsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"collaborative-editor/internal/domain"

	"github.com/sirupsen/logrus"
)

// ErrLeaseHeld 文档当前由另一个进程实例持有
var ErrLeaseHeld = errors.New("document is owned by another instance")

// Store 加载房间并持久化文档快照。state 是编码后的完整 CRDT 状态。
type Store interface {
	Open(ctx context.Context, slug string) (*domain.Room, error)
	Checkpoint(ctx context.Context, roomID uint, code string, state []byte) (uint64, error)
}

// LeaseStore 文档所有权租约
type LeaseStore interface {
	AcquireLease(ctx context.Context, slug, holder string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, slug, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, slug, holder string) error
}

// Options 注册表参数
type Options struct {
	InstanceID    string        // 租约持有者
	FlushDebounce time.Duration // 0 表示每次变更后立即写回
	FlushRetry    time.Duration // 检查点失败后的首次重试间隔，之后指数退避
	LeaseTTL      time.Duration
	StoreTimeout  time.Duration
}

// Registry 管理内存中的文档：第一次 Attach 时创建，最后一次 Detach 时写回并回收。
// 写回失败的文档不会被回收，直到重试成功。
type Registry struct {
	store  Store
	leases LeaseStore
	opts   Options

	mu      sync.Mutex
	docs    map[string]*Document
	closing map[string]chan struct{} // 正在回收的文档，回收完成后关闭
	live    map[string]int           // 本实例上仍在使用的文档连接
}

// NewRegistry 创建文档注册表
func NewRegistry(store Store, leases LeaseStore, opts Options) *Registry {
	if store == nil || leases == nil {
		panic("store and lease store cannot be nil for Registry")
	}
	if opts.InstanceID == "" {
		panic("instance id cannot be empty for Registry")
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.FlushRetry <= 0 {
		opts.FlushRetry = 500 * time.Millisecond
	}
	return &Registry{
		store:   store,
		leases:  leases,
		opts:    opts,
		docs:    make(map[string]*Document),
		closing: make(map[string]chan struct{}),
		live:    make(map[string]int),
	}
}

// Attach 把连接挂到房间的文档上，必要时加载文档并获取租约。
func (r *Registry) Attach(ctx context.Context, slug string, conn *Conn) error {
	for {
		r.mu.Lock()
		if wait, ok := r.closing[slug]; ok {
			r.mu.Unlock()
			// 上一个实例还在写回，等它结束后重新加载
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		doc, ok := r.docs[slug]
		if !ok {
			doc = newDocument(r, slug)
			r.docs[slug] = doc
		}
		doc.refs++
		r.mu.Unlock()

		if !ok {
			doc.initErr = doc.load(ctx)
			if doc.initErr != nil {
				r.mu.Lock()
				if r.docs[slug] == doc {
					delete(r.docs, slug)
				}
				r.mu.Unlock()
			}
			close(doc.ready)
		} else {
			select {
			case <-doc.ready:
			case <-ctx.Done():
				r.release(doc)
				return ctx.Err()
			}
		}
		if doc.initErr != nil {
			return doc.initErr
		}

		conn.doc = doc
		doc.call(command{kind: cmdAttach, conn: conn})
		return nil
	}
}

// Detach 从文档上摘除连接。最后一个连接离开时写回快照、释放租约并回收文档。
func (r *Registry) Detach(conn *Conn) {
	doc := conn.doc
	if doc == nil {
		return
	}
	doc.call(command{kind: cmdDetach, conn: conn})
	r.release(doc)
}

// release 减少引用，降到 0 时让文档尝试回收
func (r *Registry) release(doc *Document) {
	r.mu.Lock()
	doc.refs--
	idle := doc.refs == 0 && r.docs[doc.slug] == doc
	r.mu.Unlock()
	if !idle {
		return
	}
	<-doc.ready
	if doc.initErr != nil {
		return
	}
	doc.call(command{kind: cmdEvict})
}

// beginEvict 在文档仍无引用时把它移出注册表。
// 回收完成前同一房间的 Attach 会等待返回的通道。
func (r *Registry) beginEvict(doc *Document) (chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.refs > 0 || r.docs[doc.slug] != doc {
		return nil, false
	}
	delete(r.docs, doc.slug)
	done := make(chan struct{})
	r.closing[doc.slug] = done
	return done, true
}

func (r *Registry) endEvict(slug string, done chan struct{}) {
	r.mu.Lock()
	delete(r.closing, slug)
	r.mu.Unlock()
	close(done)
}

// forget 由失去租约的文档调用，之后的 Attach 会重新加载
func (r *Registry) forget(doc *Document) {
	r.mu.Lock()
	if r.docs[doc.slug] == doc {
		delete(r.docs, doc.slug)
	}
	r.mu.Unlock()
}

// SetAccess 把房间内某个用户的新权限应用到本实例上已挂载的文档连接
func (r *Registry) SetAccess(slug string, userID uint, level domain.AccessLevel) {
	r.mu.Lock()
	doc, ok := r.docs[slug]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-doc.ready:
	case <-time.After(r.opts.StoreTimeout):
		return
	}
	if doc.initErr != nil {
		return
	}
	doc.call(command{kind: cmdAccess, userID: userID, readOnly: !level.CanEdit()})
}

// Reserve 在连接的整个生命周期内把 socket 标记为存活，返回释放函数。
func (r *Registry) Reserve(socketID string) func() {
	r.mu.Lock()
	r.live[socketID]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.live[socketID]--; r.live[socketID] <= 0 {
				delete(r.live, socketID)
			}
			r.mu.Unlock()
		})
	}
}

// IsLive 判断 socket 是否仍连接在本实例的文档同步通道上
func (r *Registry) IsLive(socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[socketID] > 0
}

// Len 返回内存中的文档数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

// Close 写回并回收所有文档，用于进程退出。
func (r *Registry) Close() {
	r.mu.Lock()
	docs := make([]*Document, 0, len(r.docs))
	for slug, doc := range r.docs {
		docs = append(docs, doc)
		delete(r.docs, slug)
	}
	r.mu.Unlock()

	for _, doc := range docs {
		select {
		case <-doc.ready:
		case <-time.After(r.opts.StoreTimeout):
			continue
		}
		if doc.initErr == nil {
			doc.call(command{kind: cmdStop})
		}
	}
	logrus.WithField("documents", len(docs)).Info("Document registry closed")
}
