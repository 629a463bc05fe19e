// Package crdt 实现服务端权威的文本 CRDT (RGA)。
//
// 每个字符是一个 Item，由 (Client, Seq) 唯一标识，Seq 在同一客户端内连续递增。
// 插入位置由 Origin (左邻) 决定，同一 Origin 下的并发插入按 (Lamport, Client) 降序排列，
// 因此任意顺序应用同一组更新都会收敛到同一文本。删除只打墓碑。
//
// Doc 不是并发安全的，由持有它的 actor 串行访问。
package crdt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// SnapshotClient 保留给服务端副本。从持久化文本加载的字符使用这个客户端号，
// 相同文本总是生成相同的 ID，重新加载后旧副本仍能识别这些字符。
// 以 SnapshotClient 创建的副本不接受其他副本用该客户端号新建的字符。
const SnapshotClient uint64 = 0

// MaxPending 是等待依赖的操作数上限
const MaxPending = 1 << 16

// ErrTooManyPending 表示增量引用了过多尚不存在的依赖
var ErrTooManyPending = errors.New("crdt: too many operations waiting for dependencies")

// ID 标识一个字符项
type ID struct {
	Client uint64
	Seq    uint64
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Client, id.Seq)
}

// Item 是一次插入的单个字符
type Item struct {
	ID      ID
	Lamport uint64
	Origin  *ID // nil 表示插入在文档开头
	Value   rune
}

// Update 是可在任意副本上以任意顺序、任意次数应用的增量
type Update struct {
	Items   []Item
	Deletes []ID
}

// Empty 判断增量是否不包含任何操作
func (u Update) Empty() bool {
	return len(u.Items) == 0 && len(u.Deletes) == 0
}

type node struct {
	item    Item
	deleted bool
	next    *node
}

// Doc 是一个文本副本
type Doc struct {
	client  uint64
	lamport uint64

	// 文档顺序的单链表，head 是哨兵
	head    *node
	index   map[ID]*node
	visible int

	// 每个客户端已连续集成的最大 Seq
	sv map[uint64]uint64
	// 已生效的删除，编码完整状态时需要带上
	tombstones map[ID]struct{}

	// 依赖尚未满足的操作
	pendingItems   map[ID]Item
	pendingDeletes map[ID]struct{}
	// Origin -> 等待它的字符
	waiting map[ID][]ID
}

// NewDoc 创建空文档，client 是本副本产生本地操作时使用的客户端号
func NewDoc(client uint64) *Doc {
	return &Doc{
		client:         client,
		head:           &node{},
		index:          make(map[ID]*node),
		sv:             make(map[uint64]uint64),
		tombstones:     make(map[ID]struct{}),
		pendingItems:   make(map[ID]Item),
		pendingDeletes: make(map[ID]struct{}),
		waiting:        make(map[ID][]ID),
	}
}

// NewDocFromText 以持久化的文本作为初始状态
func NewDocFromText(client uint64, text string) *Doc {
	d := NewDoc(client)
	tail := d.head
	var seq uint64
	for _, r := range text {
		seq++
		it := Item{ID: ID{Client: SnapshotClient, Seq: seq}, Lamport: seq, Value: r}
		if tail != d.head {
			origin := tail.item.ID
			it.Origin = &origin
		}
		n := &node{item: it}
		tail.next = n
		tail = n
		d.index[it.ID] = n
		d.visible++
	}
	if seq > 0 {
		d.sv[SnapshotClient] = seq
		if seq > d.lamport {
			d.lamport = seq
		}
	}
	return d
}

// LoadDoc 从 EncodeStateAsUpdate(nil) 保存的完整状态恢复副本，字符 ID 保持不变
func LoadDoc(client uint64, state Update) (*Doc, error) {
	d := NewDoc(client)
	for _, it := range state.Items {
		if err := validateItem(it); err != nil {
			return nil, err
		}
	}
	d.merge(state)
	return d, nil
}

// Text 返回当前可见文本
func (d *Doc) Text() string {
	var b strings.Builder
	for n := d.head.next; n != nil; n = n.next {
		if !n.deleted {
			b.WriteRune(n.item.Value)
		}
	}
	return b.String()
}

// Len 返回可见字符数
func (d *Doc) Len() int {
	return d.visible
}

// Pending 返回等待依赖的操作数
func (d *Doc) Pending() int {
	return len(d.pendingItems) + len(d.pendingDeletes)
}

// StateVector 返回每个客户端已集成的 Seq
func (d *Doc) StateVector() map[uint64]uint64 {
	sv := make(map[uint64]uint64, len(d.sv))
	for c, s := range d.sv {
		sv[c] = s
	}
	return sv
}

// Insert 在可见位置 pos 插入文本，返回需要广播的增量
func (d *Doc) Insert(pos int, text string) (Update, error) {
	if pos < 0 || pos > d.Len() {
		return Update{}, fmt.Errorf("crdt: insert position %d out of range [0,%d]", pos, d.Len())
	}
	var origin *ID
	if pos > 0 {
		n := d.visibleAt(pos - 1)
		id := n.item.ID
		origin = &id
	}

	var u Update
	for _, r := range text {
		d.lamport++
		it := Item{
			ID:      ID{Client: d.client, Seq: d.sv[d.client] + 1},
			Lamport: d.lamport,
			Origin:  origin,
			Value:   r,
		}
		d.integrate(it)
		u.Items = append(u.Items, it)
		id := it.ID
		origin = &id
	}
	return u, nil
}

// Delete 删除从可见位置 pos 开始的 length 个字符
func (d *Doc) Delete(pos, length int) (Update, error) {
	if pos < 0 || length < 0 || pos+length > d.Len() {
		return Update{}, fmt.Errorf("crdt: delete range [%d,%d) out of range [0,%d]", pos, pos+length, d.Len())
	}
	var u Update
	visible := 0
	for n := d.head.next; n != nil && visible < pos+length; n = n.next {
		if n.deleted {
			continue
		}
		if visible >= pos {
			u.Deletes = append(u.Deletes, n.item.ID)
		}
		visible++
	}
	for _, id := range u.Deletes {
		d.markDeleted(d.index[id])
	}
	return u, nil
}

// Apply 合并远端增量。重复应用是无操作；依赖缺失的部分会暂存，等依赖到达后再集成。
// 返回可见状态是否发生变化。
//
// 暂存的操作超过 MaxPending 时，本次新增的暂存操作被丢弃并返回 ErrTooManyPending，
// 已经集成的部分保留。
func (d *Doc) Apply(u Update) (bool, error) {
	for _, it := range u.Items {
		if err := validateItem(it); err != nil {
			return false, err
		}
		if d.client == SnapshotClient && it.ID.Client == SnapshotClient && !d.integrated(it.ID) {
			return false, fmt.Errorf("%w: item %s uses the reserved snapshot client", ErrMalformed, it.ID)
		}
	}

	added, changed := d.merge(u)
	if d.Pending() > MaxPending {
		d.dropPending(added)
		return changed, ErrTooManyPending
	}
	return changed, nil
}

// EncodeStateAsUpdate 返回对方 (状态向量 sv) 缺少的全部操作。sv 为 nil 时返回完整状态。
func (d *Doc) EncodeStateAsUpdate(sv map[uint64]uint64) Update {
	var u Update
	for n := d.head.next; n != nil; n = n.next {
		if n.item.ID.Seq > sv[n.item.ID.Client] {
			u.Items = append(u.Items, n.item)
		}
	}
	sort.Slice(u.Items, func(i, j int) bool { return idLess(u.Items[i].ID, u.Items[j].ID) })

	for id := range d.tombstones {
		u.Deletes = append(u.Deletes, id)
	}
	sort.Slice(u.Deletes, func(i, j int) bool { return idLess(u.Deletes[i], u.Deletes[j]) })
	return u
}

// merge 暂存增量中的新操作并集成所有依赖已满足的部分，返回本次新加入暂存区的操作
func (d *Doc) merge(u Update) (Update, bool) {
	var added Update
	for _, it := range u.Items {
		if d.integrated(it.ID) {
			continue
		}
		if _, ok := d.pendingItems[it.ID]; ok {
			continue
		}
		d.pendingItems[it.ID] = it
		if it.Origin != nil {
			if _, ok := d.index[*it.Origin]; !ok {
				d.waiting[*it.Origin] = append(d.waiting[*it.Origin], it.ID)
			}
		}
		added.Items = append(added.Items, it)
	}
	sort.Slice(added.Items, func(i, j int) bool { return idLess(added.Items[i].ID, added.Items[j].ID) })
	changed := d.drain(append([]Item(nil), added.Items...))

	for _, id := range u.Deletes {
		if _, done := d.tombstones[id]; done {
			continue
		}
		if n, ok := d.index[id]; ok {
			d.markDeleted(n)
			changed = true
			continue
		}
		if _, ok := d.pendingDeletes[id]; !ok {
			d.pendingDeletes[id] = struct{}{}
			added.Deletes = append(added.Deletes, id)
		}
	}
	return added, changed
}

// drain 从候选字符出发集成，每集成一个字符只检查它解锁的后继
func (d *Doc) drain(queue []Item) bool {
	changed := false
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if _, ok := d.pendingItems[it.ID]; !ok || !d.canIntegrate(it) {
			continue
		}
		delete(d.pendingItems, it.ID)
		d.integrate(it)
		changed = true

		if next, ok := d.pendingItems[ID{Client: it.ID.Client, Seq: it.ID.Seq + 1}]; ok {
			queue = append(queue, next)
		}
		for _, id := range d.waiting[it.ID] {
			if w, ok := d.pendingItems[id]; ok {
				queue = append(queue, w)
			}
		}
		delete(d.waiting, it.ID)

		if _, ok := d.pendingDeletes[it.ID]; ok {
			delete(d.pendingDeletes, it.ID)
			d.markDeleted(d.index[it.ID])
		}
	}
	return changed
}

func (d *Doc) dropPending(added Update) {
	for _, it := range added.Items {
		if _, ok := d.pendingItems[it.ID]; !ok {
			continue
		}
		delete(d.pendingItems, it.ID)
		if it.Origin == nil {
			continue
		}
		waiters := d.waiting[*it.Origin]
		for i, id := range waiters {
			if id == it.ID {
				waiters = append(waiters[:i], waiters[i+1:]...)
				break
			}
		}
		if len(waiters) == 0 {
			delete(d.waiting, *it.Origin)
		} else {
			d.waiting[*it.Origin] = waiters
		}
	}
	for _, id := range added.Deletes {
		delete(d.pendingDeletes, id)
	}
}

func (d *Doc) integrated(id ID) bool {
	return id.Seq <= d.sv[id.Client]
}

func (d *Doc) canIntegrate(it Item) bool {
	if it.ID.Seq != d.sv[it.ID.Client]+1 {
		return false
	}
	if it.Origin != nil {
		if _, ok := d.index[*it.Origin]; !ok {
			return false
		}
	}
	return true
}

// integrate 把依赖已满足的字符放到确定的位置。
// 从 Origin 出发跳过所有更"新"的字符，Origin 本身通过索引直接定位。
func (d *Doc) integrate(it Item) {
	prev := d.head
	if it.Origin != nil {
		prev = d.index[*it.Origin]
	}
	for prev.next != nil && precedes(prev.next.item, it) {
		prev = prev.next
	}

	n := &node{item: it, next: prev.next}
	prev.next = n
	d.index[it.ID] = n
	d.visible++

	d.sv[it.ID.Client] = it.ID.Seq
	if it.Lamport > d.lamport {
		d.lamport = it.Lamport
	}
}

func (d *Doc) markDeleted(n *node) {
	if !n.deleted {
		n.deleted = true
		d.visible--
	}
	d.tombstones[n.item.ID] = struct{}{}
}

func (d *Doc) visibleAt(pos int) *node {
	visible := 0
	for n := d.head.next; n != nil; n = n.next {
		if n.deleted {
			continue
		}
		if visible == pos {
			return n
		}
		visible++
	}
	return nil
}

// precedes 判断已有字符 a 是否排在新字符 b 之前 (即 a 更"新")
func precedes(a, b Item) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport > b.Lamport
	}
	return a.ID.Client > b.ID.Client
}

func idLess(a, b ID) bool {
	if a.Client != b.Client {
		return a.Client < b.Client
	}
	return a.Seq < b.Seq
}

func validateItem(it Item) error {
	if it.ID.Seq == 0 {
		return fmt.Errorf("%w: item %s has zero sequence", ErrMalformed, it.ID)
	}
	if it.Lamport == 0 {
		return fmt.Errorf("%w: item %s has zero lamport clock", ErrMalformed, it.ID)
	}
	if !utf8.ValidRune(it.Value) {
		return fmt.Errorf("%w: item %s carries an invalid rune", ErrMalformed, it.ID)
	}
	if it.Origin != nil && *it.Origin == it.ID {
		return fmt.Errorf("%w: item %s references itself", ErrMalformed, it.ID)
	}
	return nil
}
