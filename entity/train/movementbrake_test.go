package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
)

// brakeTo 只由分段速度控制驱动列车停在target处
// 返回：停车位置与用时
func brakeTo(t *testing.T, target, v0, allowed, dt float64) (float64, float64) {
	t.Helper()
	cfg := config.DefaultAIConfig()
	p := NewSimplePhysics(entity.ClassPassenger, config.ClassParams{MaxAccel: 1, MaxDecel: 0.5}, 0)
	p.SetFixedSpeed(v0)
	x, now := 0., 0.
	for ; now < 2000; now += dt {
		d := target - x
		if d < cfg.MinStopDistance {
			p.SetThrottlePercent(0)
			p.SetBrakePercent(100)
			if p.Speed() < cfg.StoppedSpeed {
				return x, now
			}
		} else {
			ideal := min(allowed, idealSpeed(d, 0, cfg.BrakingLagFactor, p.MaxDecel()))
			throttle, brake := bandControl(bandInput{
				v:          p.Speed(),
				ideal:      ideal,
				allowedMax: allowed,
				throttle:   p.ThrottlePercent(),
				brake:      p.BrakePercent(),
				efficiency: 1,
				dt:         dt,
			}, &cfg)
			p.SetThrottlePercent(throttle)
			p.SetBrakePercent(brake)
		}
		x += p.Update(dt)
	}
	assert.FailNow(t, "train did not stop")
	return x, now
}

func TestBrakeToStop(t *testing.T) {
	for _, dt := range []float64{0.1, 0.2, 0.5} {
		x, _ := brakeTo(t, 500, 20, 20, dt)
		assert.GreaterOrEqual(t, x, 495., "dt=%v", dt)
		assert.LessOrEqual(t, x, 500.5, "dt=%v", dt)
	}
}

func TestStartAndStop(t *testing.T) {
	x, elapsed := brakeTo(t, 2000, 0, 20, 0.5)
	assert.InDelta(t, 2000, x, 2)
	// 匀速20米/秒需要100秒，加减速使总用时更长
	assert.Greater(t, elapsed, 100.)
}

func TestBandControl(t *testing.T) {
	cfg := config.DefaultAIConfig()
	in := bandInput{v: 20, ideal: 10, allowedMax: 20, throttle: 50, dt: 1, efficiency: 1}
	throttle, brake := bandControl(in, &cfg)
	assert.Equal(t, 0., throttle)
	assert.Equal(t, cfg.BrakeStepLarge, brake)

	in = bandInput{v: 10.7, ideal: 10, allowedMax: 20, throttle: 50, dt: 1, efficiency: 1}
	throttle, brake = bandControl(in, &cfg)
	assert.Equal(t, 0., throttle)
	assert.Equal(t, cfg.BrakeStepSmall, brake)

	in = bandInput{v: 10.2, ideal: 10, allowedMax: 20, throttle: 50, dt: 1, efficiency: 1}
	throttle, brake = bandControl(in, &cfg)
	assert.Equal(t, 50-cfg.ThrottleStep, throttle)
	assert.Equal(t, 0., brake)

	// 先缓解制动再加牵引
	in = bandInput{v: 5, ideal: 10, allowedMax: 20, brake: 30, dt: 1, efficiency: 0.8}
	throttle, brake = bandControl(in, &cfg)
	assert.Equal(t, 0., throttle)
	assert.Equal(t, 0., brake)
	in.brake = 0
	throttle, _ = bandControl(in, &cfg)
	assert.InDelta(t, cfg.ThrottleStep*0.8, throttle, 1e-9)

	in = bandInput{v: 5, ideal: 10, allowedMax: 20, throttle: 99, dt: 1, efficiency: 1}
	throttle, _ = bandControl(in, &cfg)
	assert.Equal(t, 100., throttle)
}
