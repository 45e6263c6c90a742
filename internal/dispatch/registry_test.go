package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

const testSource = "3e805108"

func pkt(typ uint16, seq uint8, source string) *lifx.Packet {
	return &lifx.Packet{Header: lifx.Header{Type: typ, Sequence: seq, Source: source, Target: "d073d5006d72"}}
}

func seqPtr(v uint8) *uint8 { return &v }

type recorder struct {
	calls []string
	errs  []error
}

func (r *recorder) fn(name string) Func {
	return func(err error, p *lifx.Packet, _ Peer) {
		r.calls = append(r.calls, name)
		r.errs = append(r.errs, err)
	}
}

func fire(res Result) {
	for _, c := range res.Calls {
		c.Fire()
	}
}

func TestDispatch_SequenceCorrelation(t *testing.T) {
	r := New(45 * time.Second)
	rec := &recorder{}
	r.Register(lifx.TypeAcknowledgement, rec.fn("seq7"), seqPtr(7))
	r.Register(lifx.TypeAcknowledgement, rec.fn("seq8"), seqPtr(8))

	// 其他序号不触发
	res := r.Dispatch(pkt(lifx.TypeAcknowledgement, 6, testSource), Peer{}, testSource)
	fire(res)
	assert.Empty(t, rec.calls)
	assert.Equal(t, 2, r.Len())

	res = r.Dispatch(pkt(lifx.TypeAcknowledgement, 7, testSource), Peer{Address: "192.168.0.50", Port: 56700}, testSource)
	fire(res)
	assert.Equal(t, []string{"seq7"}, rec.calls)
	assert.Equal(t, []uint8{7}, res.Matched)
	assert.Equal(t, 1, r.Len(), "seq8 仍在等待")

	// 已移除，重复应答不再触发
	fire(r.Dispatch(pkt(lifx.TypeAcknowledgement, 7, testSource), Peer{}, testSource))
	assert.Len(t, rec.calls, 1)

	fire(r.Dispatch(pkt(lifx.TypeAcknowledgement, 8, testSource), Peer{}, testSource))
	assert.Equal(t, []string{"seq7", "seq8"}, rec.calls)
	assert.Equal(t, 0, r.Len())
}

func TestDispatch_PermanentAndOrder(t *testing.T) {
	r := New(45 * time.Second)
	rec := &recorder{}
	r.Register(lifx.TypeStateLabel, rec.fn("first"), nil)
	r.Register(lifx.TypeStateLabel, rec.fn("second"), seqPtr(3))
	r.Register(lifx.TypeStateLabel, rec.fn("third"), nil)
	r.Register(lifx.TypeStatePower, rec.fn("power"), nil)

	fire(r.Dispatch(pkt(lifx.TypeStateLabel, 3, testSource), Peer{}, testSource))
	assert.Equal(t, []string{"first", "second", "third"}, rec.calls)

	rec.calls = nil
	fire(r.Dispatch(pkt(lifx.TypeStateLabel, 3, testSource), Peer{}, testSource))
	assert.Equal(t, []string{"first", "third"}, rec.calls)
	assert.Equal(t, 3, r.Len())
}

func TestDispatch_ForeignSourceIgnored(t *testing.T) {
	r := New(45 * time.Second)
	rec := &recorder{}
	r.Register(lifx.TypeStateService, rec.fn("perm"), nil)
	r.Register(lifx.TypeAcknowledgement, rec.fn("ack"), seqPtr(1))

	res := r.Dispatch(pkt(lifx.TypeStateService, 1, "aaaaaaaa"), Peer{}, testSource)
	assert.Empty(t, res.Calls)
	res = r.Dispatch(pkt(lifx.TypeAcknowledgement, 1, "aaaaaaaa"), Peer{}, testSource)
	assert.Empty(t, res.Calls)
	assert.Equal(t, 2, r.Len())

	// source 比较忽略大小写
	res = r.Dispatch(pkt(lifx.TypeAcknowledgement, 1, "3E805108"), Peer{}, testSource)
	assert.Len(t, res.Calls, 1)
}

func TestDispatch_LazyExpiry(t *testing.T) {
	r := New(45 * time.Second)
	base := time.Unix(1700000000, 0)
	now := base
	r.now = func() time.Time { return now }

	rec := &recorder{}
	r.Register(lifx.TypeStateLight, rec.fn("light"), seqPtr(1))
	r.Register(lifx.TypeStateService, rec.fn("perm"), nil)

	now = base.Add(45 * time.Second)
	assert.Empty(t, r.Expire())

	now = base.Add(45*time.Second + time.Millisecond)
	res := r.Dispatch(pkt(lifx.TypeStatePower, 9, testSource), Peer{}, testSource)
	require.Len(t, res.Calls, 1)
	assert.True(t, errors.Is(res.Calls[0].Err(), ErrHandlerTimeout))
	fire(res)
	assert.Equal(t, []string{"light"}, rec.calls)
	assert.ErrorIs(t, rec.errs[0], ErrHandlerTimeout)

	// 永久处理器不过期
	assert.Equal(t, 1, r.Len())
	assert.Empty(t, r.Expire())
}

func TestExpire_Standalone(t *testing.T) {
	r := New(time.Second)
	base := time.Unix(1700000000, 0)
	now := base
	r.now = func() time.Time { return now }

	rec := &recorder{}
	r.Register(lifx.TypeAcknowledgement, rec.fn("a"), seqPtr(1))
	r.Register(lifx.TypeAcknowledgement, rec.fn("b"), seqPtr(2))
	now = base.Add(2 * time.Second)

	calls := r.Expire()
	require.Len(t, calls, 2)
	for _, c := range calls {
		c.Fire()
	}
	assert.Equal(t, []string{"a", "b"}, rec.calls)
	assert.Equal(t, 0, r.Len())
}

func TestTakeAndCancel(t *testing.T) {
	r := New(0)
	rec := &recorder{}
	r.Register(lifx.TypeAcknowledgement, rec.fn("perm"), nil)
	id := r.Register(lifx.TypeStateLabel, rec.fn("label"), seqPtr(4))
	r.Register(lifx.TypeAcknowledgement, rec.fn("ack"), seqPtr(4))

	fn, ok := r.Take(lifx.TypeAcknowledgement, 4)
	require.True(t, ok)
	fn(ErrHandlerTimeout, nil, Peer{})
	assert.Equal(t, []string{"ack"}, rec.calls)

	_, ok = r.Take(lifx.TypeAcknowledgement, 4)
	assert.False(t, ok)

	assert.True(t, r.Cancel(id))
	assert.False(t, r.Cancel(id))
	assert.Equal(t, 1, r.Len())
}
