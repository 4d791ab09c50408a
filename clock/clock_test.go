package clock_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/clock"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
)

func TestClock(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 28800, Total: 3, Interval: 1})
	assert.Equal(t, "08:00:00", c.String())
	assert.False(t, c.Finished())
	c.Tick()
	c.Tick()
	assert.Equal(t, 28802.0, c.T)
	assert.True(t, c.Finished())
	h, m, s := c.GetHourMinuteSecond()
	assert.Equal(t, 8, h)
	assert.Equal(t, 0, m)
	assert.InDelta(t, 2, s, 1e-9)

	resp, err := c.Now(context.Background(), connect.NewRequest(&clockv1.NowRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 28802.0, resp.Msg.T)
}

func TestNowReadsPublishedTime(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 100, Total: 10, Interval: 0.5})
	assert.Equal(t, 50.0, c.Published())

	// 步内直接修改T不影响RPC读到的时刻
	c.T = 999
	resp, err := c.Now(context.Background(), connect.NewRequest(&clockv1.NowRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 50.0, resp.Msg.T)

	c.SetStep(104)
	assert.Equal(t, 52.0, c.T)
	assert.Equal(t, 52.0, c.Published())
	c.Tick()
	assert.Equal(t, int32(105), c.InternalStep)
	assert.Equal(t, 52.5, c.Published())
}

func TestTimeOfDay(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 90000, Total: 1, Interval: 1})
	assert.Equal(t, 3600.0, c.TimeOfDay())
	assert.Equal(t, "-00:01:05", clock.FormatSeconds(-65))
}
