package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type hornRecorder struct {
	horn, bell []bool
}

func (r *hornRecorder) SetHorn(on bool) { r.horn = append(r.horn, on) }
func (r *hornRecorder) SetBell(on bool) { r.bell = append(r.bell, on) }

func TestHornSingleWithBell(t *testing.T) {
	h := newHornExecutor(HornSingle, 3, true)
	assert.Equal(t, 30., h.totalDuration())

	r := &hornRecorder{}
	h.Start(0, r)
	assert.Equal(t, []bool{true}, r.horn)
	assert.Equal(t, []bool{true}, r.bell)

	assert.False(t, h.Advance(2.5, r))
	assert.False(t, h.Advance(3, r))
	assert.Equal(t, []bool{true, false}, r.horn)
	// 鸣笛结束后铃声持续到开始后30秒
	assert.False(t, h.Advance(29.5, r))
	assert.Equal(t, []bool{true}, r.bell)
	assert.True(t, h.Advance(30, r))
	assert.Equal(t, []bool{true, false}, r.bell)
}

func TestHornUSPattern(t *testing.T) {
	h := newHornExecutor(HornUS, 100, false)
	assert.Equal(t, 15., h.totalDuration())

	r := &hornRecorder{}
	h.Start(10, r)
	done := false
	now := 10.
	for ; now <= 40 && !done; now += 0.5 {
		done = h.Advance(now, r)
	}
	assert.True(t, done)
	assert.Equal(t, 25.5, now)
	assert.Equal(t, []bool{true, false, true, false, true, false, true, false}, r.horn)
	assert.Empty(t, r.bell)
}

func TestHornStop(t *testing.T) {
	h := newHornExecutor(HornSingle, 5, true)
	r := &hornRecorder{}
	h.Start(0, r)
	h.Stop(r)
	assert.Equal(t, []bool{true, false}, r.horn)
	assert.Equal(t, []bool{true, false}, r.bell)
	// 停止后不再产生副作用
	assert.True(t, h.Advance(100, r))
	assert.Len(t, r.horn, 2)
}
