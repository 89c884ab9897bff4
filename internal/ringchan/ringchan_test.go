package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDropsOldestWhenFull(t *testing.T) {
	rc := New[int](2)

	rc.Send(1)
	rc.Send(2)
	rc.Send(3) // drops 1

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = rc.TryReceive()
	assert.False(t, ok)
}

func TestForceSendReportsDrop(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.ForceSend("a"))
	assert.True(t, rc.ForceSend("b"), "full buffer must report a drop")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestLenCap(t *testing.T) {
	rc := New[int](4)
	assert.Equal(t, 4, rc.Cap())
	assert.Zero(t, rc.Len())

	rc.Send(1)
	assert.Equal(t, 1, rc.Len())
}

func TestCloseEndsRange(t *testing.T) {
	rc := New[int](4)
	rc.Send(1)
	rc.Send(2)
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
