package crdt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/crdt"
)

func mustInsert(t *testing.T, d *crdt.Doc, pos int, text string) crdt.Update {
	t.Helper()
	u, err := d.Insert(pos, text)
	require.NoError(t, err)
	return u
}

func mustApply(t *testing.T, d *crdt.Doc, u crdt.Update) bool {
	t.Helper()
	changed, err := d.Apply(u)
	require.NoError(t, err)
	return changed
}

func TestDoc_LocalEditing(t *testing.T) {
	d := crdt.NewDoc(1)
	mustInsert(t, d, 0, "hello")
	mustInsert(t, d, 5, " world")
	mustInsert(t, d, 0, ">")
	assert.Equal(t, ">hello world", d.Text())

	_, err := d.Delete(1, 6)
	require.NoError(t, err)
	assert.Equal(t, ">world", d.Text())
	assert.Equal(t, 6, d.Len())

	_, err = d.Insert(42, "x")
	assert.Error(t, err)
	_, err = d.Delete(3, 10)
	assert.Error(t, err)
}

func TestDoc_ApplyIsIdempotent(t *testing.T) {
	src := crdt.NewDoc(1)
	ins := mustInsert(t, src, 0, "abc")
	del, err := src.Delete(1, 1)
	require.NoError(t, err)

	dst := crdt.NewDoc(2)
	assert.True(t, mustApply(t, dst, ins))
	assert.True(t, mustApply(t, dst, del))
	once := dst.Text()

	assert.False(t, mustApply(t, dst, ins), "re-applying an insert must be a no-op")
	assert.False(t, mustApply(t, dst, del), "re-applying a delete must be a no-op")
	assert.Equal(t, once, dst.Text())
	assert.Equal(t, "ac", dst.Text())
}

func TestDoc_ApplyIsCommutative(t *testing.T) {
	base := crdt.NewDoc(9)
	seed := mustInsert(t, base, 0, "base")

	a := crdt.NewDoc(1)
	b := crdt.NewDoc(2)
	mustApply(t, a, seed)
	mustApply(t, b, seed)

	ua := mustInsert(t, a, 2, "AA")
	ub := mustInsert(t, b, 2, "BB")
	ubDel, err := b.Delete(0, 1)
	require.NoError(t, err)

	ab := crdt.NewDoc(3)
	mustApply(t, ab, seed)
	mustApply(t, ab, ua)
	mustApply(t, ab, ub)
	mustApply(t, ab, ubDel)

	ba := crdt.NewDoc(4)
	mustApply(t, ba, ubDel)
	mustApply(t, ba, ub)
	mustApply(t, ba, ua)
	mustApply(t, ba, seed)

	assert.Equal(t, ab.Text(), ba.Text())
	assert.Zero(t, ba.Pending())
}

func TestDoc_ConcurrentReplicasConverge(t *testing.T) {
	a := crdt.NewDoc(1)
	b := crdt.NewDoc(2)

	// 两个副本在没有任何同步的情况下在同一位置插入
	ua1 := mustInsert(t, a, 0, "hello")
	ub1 := mustInsert(t, b, 0, "world")
	ua2 := mustInsert(t, a, 5, "!")
	ub2, err := b.Delete(0, 1)
	require.NoError(t, err)

	mustApply(t, a, ub2)
	mustApply(t, a, ub1)
	mustApply(t, b, ua2)
	mustApply(t, b, ua1)

	assert.Equal(t, a.Text(), b.Text())
	assert.Len(t, a.Text(), len("hello!orld"))
	assert.Zero(t, a.Pending())
	assert.Zero(t, b.Pending())
}

func TestDoc_OutOfOrderDeliveryIsBuffered(t *testing.T) {
	src := crdt.NewDoc(1)
	u1 := mustInsert(t, src, 0, "ab")
	u2 := mustInsert(t, src, 2, "cd")
	u3, err := src.Delete(0, 1)
	require.NoError(t, err)

	dst := crdt.NewDoc(2)
	assert.False(t, mustApply(t, dst, u3))
	assert.False(t, mustApply(t, dst, u2))
	assert.Equal(t, 3, dst.Pending())
	assert.True(t, mustApply(t, dst, u1))

	assert.Equal(t, "bcd", dst.Text())
	assert.Zero(t, dst.Pending())
}

func TestDoc_SyncWithStateVector(t *testing.T) {
	server := crdt.NewDocFromText(0, "func main() {}")
	client := crdt.NewDoc(5)

	// 初始同步：客户端发送空状态向量，拿到完整状态
	full := server.EncodeStateAsUpdate(client.StateVector())
	mustApply(t, client, full)
	require.Equal(t, server.Text(), client.Text())

	edit := mustInsert(t, client, 13, "\n")
	mustApply(t, server, edit)

	// 第二个客户端只缺服务端的增量
	late := crdt.NewDoc(6)
	mustApply(t, late, full)
	diff := server.EncodeStateAsUpdate(late.StateVector())
	assert.Len(t, diff.Items, 1)
	mustApply(t, late, diff)
	assert.Equal(t, server.Text(), late.Text())
}

func TestDoc_SnapshotIDsAreDeterministic(t *testing.T) {
	first := crdt.NewDocFromText(0, "same text")
	replica := crdt.NewDoc(3)
	mustApply(t, replica, first.EncodeStateAsUpdate(nil))

	// 重新加载同一文本后，旧副本的状态仍可合并而不会重复
	reloaded := crdt.NewDocFromText(0, "same text")
	assert.False(t, mustApply(t, replica, reloaded.EncodeStateAsUpdate(nil)))
	assert.Equal(t, "same text", replica.Text())
}

func TestDoc_RejectsInvalidItems(t *testing.T) {
	d := crdt.NewDoc(1)
	_, err := d.Apply(crdt.Update{Items: []crdt.Item{{ID: crdt.ID{Client: 1, Seq: 0}, Lamport: 1, Value: 'x'}}})
	assert.ErrorIs(t, err, crdt.ErrMalformed)
	assert.Empty(t, d.Text())
}

func TestDoc_LoadDocKeepsItemIdentity(t *testing.T) {
	server := crdt.NewDocFromText(crdt.SnapshotClient, "")
	editor := crdt.NewDoc(4)
	mustApply(t, server, mustInsert(t, editor, 0, "hi"))

	state, err := crdt.DecodeUpdate(crdt.EncodeUpdate(server.EncodeStateAsUpdate(nil)))
	require.NoError(t, err)
	reloaded, err := crdt.LoadDoc(crdt.SnapshotClient, state)
	require.NoError(t, err)
	assert.Equal(t, "hi", reloaded.Text())

	// 编辑器的两步同步与重新加载后的副本互为无操作
	assert.False(t, mustApply(t, reloaded, editor.EncodeStateAsUpdate(reloaded.StateVector())))
	assert.False(t, mustApply(t, editor, reloaded.EncodeStateAsUpdate(editor.StateVector())))
	assert.Equal(t, "hi", reloaded.Text())
	assert.Equal(t, "hi", editor.Text())
}

func TestDoc_RejectsForgedSnapshotItems(t *testing.T) {
	server := crdt.NewDocFromText(crdt.SnapshotClient, "ab")
	tail := crdt.ID{Client: crdt.SnapshotClient, Seq: 2}
	forged := crdt.Update{Items: []crdt.Item{{ID: crdt.ID{Client: crdt.SnapshotClient, Seq: 3}, Lamport: 9, Origin: &tail, Value: 'x'}}}

	_, err := server.Apply(forged)
	assert.ErrorIs(t, err, crdt.ErrMalformed)
	assert.Equal(t, "ab", server.Text())

	// 回传服务端已有的快照字符是允许的
	changed, err := server.Apply(server.EncodeStateAsUpdate(nil))
	require.NoError(t, err)
	assert.False(t, changed)

	// 普通副本照常接收服务端的快照字符
	replica := crdt.NewDoc(5)
	mustApply(t, replica, server.EncodeStateAsUpdate(nil))
	assert.Equal(t, "ab", replica.Text())
}

func TestDoc_PendingOperationsAreBounded(t *testing.T) {
	d := crdt.NewDoc(crdt.SnapshotClient)
	u := crdt.Update{Items: []crdt.Item{{ID: crdt.ID{Client: 9, Seq: 1}, Lamport: 1, Value: 'x'}}}
	// client 10 的 seq 1 从未出现，后面的字符永远无法集成
	for seq := uint64(2); seq <= crdt.MaxPending+2; seq++ {
		u.Items = append(u.Items, crdt.Item{ID: crdt.ID{Client: 10, Seq: seq}, Lamport: seq, Value: 'y'})
	}

	changed, err := d.Apply(u)
	assert.ErrorIs(t, err, crdt.ErrTooManyPending)
	assert.True(t, changed)
	assert.Equal(t, "x", d.Text())
	assert.Zero(t, d.Pending())

	missing := crdt.ID{Client: 11, Seq: 1}
	_, err = d.Apply(crdt.Update{Deletes: []crdt.ID{missing}})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Pending())
}

func TestDoc_LargeTextLoadsQuickly(t *testing.T) {
	text := strings.Repeat("0123456789abcdef\n", 200_000/17)

	start := time.Now()
	server := crdt.NewDocFromText(crdt.SnapshotClient, text)
	replica := crdt.NewDoc(3)
	mustApply(t, replica, server.EncodeStateAsUpdate(nil))
	reloaded, err := crdt.LoadDoc(crdt.SnapshotClient, replica.EncodeStateAsUpdate(nil))
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, text, reloaded.Text())
	assert.Less(t, elapsed, 5*time.Second)
}

func BenchmarkNewDocFromText(b *testing.B) {
	text := strings.Repeat("x", 100_000)
	for i := 0; i < b.N; i++ {
		crdt.NewDocFromText(crdt.SnapshotClient, text)
	}
}

func BenchmarkLoadDoc(b *testing.B) {
	state := crdt.NewDocFromText(crdt.SnapshotClient, strings.Repeat("x", 100_000)).EncodeStateAsUpdate(nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crdt.LoadDoc(crdt.SnapshotClient, state); err != nil {
			b.Fatal(err)
		}
	}
}
