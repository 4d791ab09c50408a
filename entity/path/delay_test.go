package path_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/path"
)

func TestDecodeDelayRanges(t *testing.T) {
	cases := []struct {
		code int32
		want path.Delay
	}{
		{0, path.Delay{Kind: path.WaitRelative}},
		{29999, path.Delay{Kind: path.WaitRelative, Seconds: 29999}},
		{30000, path.Delay{Kind: path.WaitAbsolute}},
		{31430, path.Delay{Kind: path.WaitAbsolute, Hour: 14, Minute: 30}},
		{32400, path.Delay{Kind: path.WaitInvalid}},
		{30060, path.Delay{Kind: path.WaitInvalid}},
		{40315, path.Delay{Kind: path.WaitKeepFront, Cars: 3, Seconds: 15}},
		{51220, path.Delay{Kind: path.WaitDetachRear, Cars: 12, Seconds: 20}},
		{60000, path.Delay{Kind: path.WaitInvalid}},
		{60001, path.Delay{Kind: path.WaitAttach}},
		{60002, path.Delay{Kind: path.WaitPermission}},
		{60003, path.Delay{Kind: path.WaitInvalid}},
		{-1, path.Delay{Kind: path.WaitInvalid}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, path.DecodeDelay(c.code), "code %d", c.code)
	}
}

func TestAbsoluteDelayRoundTrip(t *testing.T) {
	for _, hm := range [][2]int32{{0, 0}, {8, 5}, {14, 30}, {23, 59}} {
		code, err := path.AbsoluteDelay(hm[0], hm[1]).Encode()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, code, int32(30000))
		assert.Less(t, code, int32(40000))
		d := path.DecodeDelay(code)
		require.Equal(t, path.WaitAbsolute, d.Kind)
		// 出发时刻与到达时刻无关，只取决于编码的时分
		target := float64(hm[0]*3600 + hm[1]*60)
		assert.Equal(t, target, d.DepartClock(target))
		if target > 0 {
			assert.Equal(t, target, d.DepartClock(target-1))
			assert.Equal(t, target, d.DepartClock(target-600))
		}
	}
	for _, code := range []int32{0, 120, 40315, 51220, 60001, 60002} {
		got, err := path.DecodeDelay(code).Encode()
		require.NoError(t, err)
		assert.Equal(t, code, got)
	}
	_, err := path.Delay{Kind: path.WaitInvalid}.Encode()
	assert.Error(t, err)
}

func TestDepartClock(t *testing.T) {
	now := 10 * 3600.
	assert.Equal(t, now+45, path.DecodeDelay(45).DepartClock(now))
	assert.Equal(t, now+15, path.DecodeDelay(40315).DepartClock(now))
	assert.Equal(t, now, path.DecodeDelay(60001).DepartClock(now))

	// 已过去不足12小时：立即出发
	assert.Equal(t, now, path.AbsoluteDelay(9, 0).DepartClock(now))
	// 已过去超过12小时：次日
	late := 23 * 3600.
	assert.Equal(t, 86400.+3600, path.AbsoluteDelay(1, 0).DepartClock(late))
	// 第二天的仿真时间
	assert.Equal(t, 86400.+11*3600, path.AbsoluteDelay(11, 0).DepartClock(86400+now))
}
