package task

import (
	"fmt"
	"os"
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/railsim-ai/clock"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/section"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/signal"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/train"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/metrics"
)

var log = logrus.WithField("module", "task")

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态
// 说明：管理时钟、区段、信号机、列车三类管理器，以及分布式模式下的sidecar
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool
	// sidecar是否已关闭
	sidecarClosed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，处理分布式模式下相关调用，包括与syncer、其他服务的交互
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// 是否由本任务启动sidecar服务
	serving bool

	// 区段管理器
	sectionManager *section.SectionManager
	// 信号机管理器
	signalManager *signal.SignalManager
	// 列车管理器
	trainManager *train.TrainManager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig
	// 运行指标，可为nil
	metrics *metrics.Collector

	// 用于初始化的输入
	initRes *input.World
}

// NewContext 创建新的仿真任务上下文
// 功能：加载输入数据，创建各类管理器并注册RPC服务
// 参数：
//   - job: 任务名称
//   - c: 配置对象
//   - sidecar: sidecar实例
//   - startSidecarServe: 是否启动sidecar服务
//   - collector: 运行指标（可为nil）
//
// 返回：初始化完成的Context实例
func NewContext(
	job string,
	c config.Config,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
	collector *metrics.Collector,
) (*Context, error) {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		return nil, fmt.Errorf("bad config: %w", err)
	}
	initRes, err := input.Init(c.Input)
	if err != nil {
		return nil, fmt.Errorf("load input: %w", err)
	}
	ctx := &Context{
		job:            job,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		serving:        startSidecarServe,
		runtimeConfig:  rc,
		metrics:        collector,
		initRes:        initRes,
	}
	ctx.clock = clock.New(c.Control.Step)

	// 新建各类模拟对象
	ctx.sectionManager = section.NewManager(ctx)
	ctx.signalManager = signal.NewManager(ctx)
	ctx.trainManager = train.NewManager(ctx, c.Control.Seed)

	if sidecar != nil {
		ctx.clock.Register(sidecar)
	}

	// sidecar协程，用于提供gRPC服务
	if sidecar != nil && startSidecarServe {
		go func() {
			err := ctx.sidecar.Serve()
			if err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.sidecarCloseCh <- struct{}{}
		}()
	}
	return ctx, nil
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) SectionManager() entity.ISectionManager {
	return ctx.sectionManager
}

func (ctx *Context) SignalManager() entity.ISignalManager {
	return ctx.signalManager
}

func (ctx *Context) TrainManager() entity.ITrainManager {
	return ctx.trainManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Metrics() *metrics.Collector {
	return ctx.metrics
}

// Trains 列车管理器，供外部控制（放行、挂起、冻结）使用
func (ctx *Context) Trains() *train.TrainManager {
	return ctx.trainManager
}

// Signals 信号机管理器，供外部控制（扣停）使用
func (ctx *Context) Signals() *signal.SignalManager {
	return ctx.signalManager
}

// Init 按依赖顺序初始化：区段、信号机（挂接到区段）、列车（解析路径）
func (ctx *Context) Init() {
	ctx.clock.Init()

	w := ctx.initRes
	log.Infof("Section: %v", len(w.Sections))
	log.Infof("Signal: %v", len(w.Signals))
	log.Infof("Path: %v", len(w.Paths))
	log.Infof("Train: %v", len(w.Trains))

	ctx.sectionManager.Init(w.Sections)
	ctx.signalManager.Init(w.Signals, ctx.sectionManager)
	ctx.trainManager.Init(w.Trains, w.Paths)
}

// LoadState 从存档恢复列车状态与时钟
// 说明：须在Init之后调用；存档以zstd压缩
func (ctx *Context) LoadState(path string, step int32) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ctx.trainManager.LoadCompressed(f); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	ctx.clock.SetStep(step)
	log.Infof("state loaded from %s at %v", path, ctx.clock)
	return nil
}

// SaveState 保存列车状态
func (ctx *Context) SaveState(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ctx.trainManager.SaveCompressed(f); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %w", path, err)
	}
	log.Infof("state saved to %s at %v", path, ctx.clock)
	return f.Close()
}

// Stop 在当前步结束后停止运行
func (ctx *Context) Stop() {
	ctx.closed.Store(true)
}

func (ctx *Context) Close() {
	if ctx.sidecar == nil || ctx.sidecarClosed.Swap(true) {
		return
	}
	ctx.sidecar.Close()
	if ctx.serving {
		// wait for graceful stop
		<-ctx.sidecarCloseCh
	}
}
