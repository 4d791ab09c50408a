package task

import (
	"flag"
	"time"
)

const (
	SelfName = "railsim" // 本程序在模拟任务集群中的名字
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 功能：列车增删与发车生效，更新供其他列车读取的快照
// 说明：确保所有列车在更新阶段前都处于一致的状态
func (ctx *Context) prepare() {
	if ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%d:%.2f) trains: %d waiting: %d",
			ctx.clock.InternalStep,
			hour, minute, second,
			len(ctx.trainManager.Trains()), ctx.trainManager.Waiting(),
		)
	}
	ctx.trainManager.Prepare()
}

// update 更新阶段，每步执行一次
// 算法说明：
// 1. 列车动力学与位置，登记区段占用
// 2. 区段占用快照生效
// 3. 信号机显示
// 4. 列车AI决策（前方扫描、动作仲裁、运动状态机、辅助动作）
// 5. 时钟前进一步
func (ctx *Context) update() {
	dt := ctx.clock.DT
	ctx.trainManager.UpdatePhysics(dt)
	ctx.sectionManager.Prepare()
	ctx.signalManager.Update()
	ctx.trainManager.Update(dt)
	ctx.clock.Tick()
}

// Step 执行一步（准备与更新），供独立运行与测试使用
func (ctx *Context) Step() {
	start := time.Now()
	ctx.prepare()
	ctx.update()
	ctx.metrics.Step(time.Since(start).Seconds(), ctx.clock.TimeOfDay())
}

// Run 运行
// 说明：未配置sidecar时独立运行到结束步
func (ctx *Context) Run() {
	if ctx.sidecar == nil {
		for ctx.clock.InternalStep < ctx.clock.END_STEP && !ctx.closed.Load() {
			ctx.Step()
		}
		log.Infof("engine complete")
		return
	}
	// init syncer
	ctx.sidecar.Step(false)
	for {
		start := time.Now()
		ctx.prepare()
		// 通知准备阶段完成
		log.Debugf("step %d: prepare complete and call NotifyStepReady", ctx.clock.InternalStep)
		ctx.sidecar.NotifyStepReady()
		ctx.update()
		ctx.metrics.Step(time.Since(start).Seconds(), ctx.clock.TimeOfDay())
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		close := ctx.sidecar.Step(ctx.clock.InternalStep >= ctx.clock.END_STEP)
		if close || ctx.closed.Load() {
			break
		}
	}
	log.Infof("engine complete")
	ctx.Close()
}
