package train

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/clock"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/section"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/signal"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/metrics"
)

const testDT = 0.5

// testContext 单元测试使用的任务上下文，线路由真实的区段与信号管理器组成
type testContext struct {
	clock    *clock.Clock
	sections *section.SectionManager
	signals  *signal.SignalManager
	trains   *TrainManager
	config   *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock { return c.clock }
func (c *testContext) SectionManager() entity.ISectionManager { return c.sections }
func (c *testContext) SignalManager() entity.ISignalManager { return c.signals }
func (c *testContext) TrainManager() entity.ITrainManager { return c.trains }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.config }
func (c *testContext) Metrics() *metrics.Collector { return nil }

// testWorld 四个1000米的区段 1 -> 2 -> 3 -> 4，区段2末端有信号机10防护区段3
func testWorld() input.World {
	return input.World{
		Sections: []input.Section{
			{ID: 1, Length: 1000},
			{ID: 2, Length: 1000},
			{ID: 3, Length: 1000},
			{ID: 4, Length: 1000},
		},
		Signals: []input.Signal{
			{ID: 10, SectionID: 2, Block: []int32{3}},
		},
		Paths: []input.Path{{
			Name:     "main",
			SubPaths: [][]input.PathElement{{{SectionID: 1}, {SectionID: 2}, {SectionID: 3}, {SectionID: 4}}},
		}},
		Trains: []input.Train{{
			ID:         1,
			Name:       "G1",
			Path:       "main",
			Cars:       4,
			CarLength:  20,
			MaxSpeed:   20,
			Efficiency: 1,
		}},
	}
}

func newTestContext(t *testing.T, world input.World) *testContext {
	step := config.ControlStep{Start: 0, Total: 100000, Interval: testDT}
	rc, err := config.NewRuntimeConfig(config.Config{Control: config.Control{Step: step}})
	require.NoError(t, err)
	c := &testContext{
		clock:  clock.New(step),
		config: rc,
	}
	c.sections = section.NewManager(c)
	c.sections.Init(world.Sections)
	c.signals = signal.NewManager(c)
	c.signals.Init(world.Signals, c.sections)
	c.trains = NewManager(c, 1)
	c.trains.Init(world.Trains, world.Paths)
	return c
}

// step 按任务的顺序推进一步
func (c *testContext) step() {
	c.trains.Prepare()
	c.trains.UpdatePhysics(testDT)
	c.sections.Prepare()
	c.signals.Update()
	c.trains.Update(testDT)
	c.clock.Tick()
}

// runUntil 推进直至cond成立
func (c *testContext) runUntil(t *testing.T, maxSteps int, cond func() bool) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		c.step()
		if cond() {
			return
		}
	}
	require.FailNow(t, fmt.Sprintf("condition not reached in %d steps", maxSteps))
}

func (c *testContext) train(t *testing.T, id int32) *Train {
	tr, err := c.trains.Train(id)
	require.NoError(t, err)
	return tr
}
