package entity

import (
	"io"

	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

// Manager依赖倒置

// entity/section/manager.go的依赖倒置
type ISectionManager interface {
	Init(pbs []input.Section) // 初始化

	// 输入区段ID，查找区段，如果不存在则panic
	Get(id int32) ISection
	// 输入区段ID，查找区段，如果不存在则返回error
	GetOrError(id int32) (ISection, error)

	SetTableAligned(id int32, aligned bool) error // 设置转车台对准状态

	Prepare() // 准备阶段：占用快照更新
}

// entity/signal/manager.go的依赖倒置
type ISignalManager interface {
	Init(pbs []input.Signal, sectionManager ISectionManager) // 初始化

	// 输入信号机ID，查找信号机，如果不存在则panic
	Get(id int32) ISignal
	// 输入信号机ID，查找信号机，如果不存在则返回error
	GetOrError(id int32) (ISignal, error)

	// 请求为列车开放信号，成功时预留整个闭塞分区，返回请求后的显示
	RequestClear(signalID int32, train ITrain) Aspect
	// 请求以限制显示进入被占用的闭塞分区
	RequestPermission(signalID int32, train ITrain) bool
	// 为列车锁闭信号（计数），锁闭期间信号保持停车
	LockForTrain(signalID int32, trainID int32)
	// 解除一次锁闭，没有该列车的锁闭时返回false
	UnlockForTrain(signalID int32, trainID int32) bool
	// 列车越过信号机
	Passed(signalID int32, trainID int32)
	// 列车出清区段，解除预留
	ReleaseSection(sectionID int32, trainID int32)
	// 列车被移除，解除其全部预留与锁闭
	ReleaseTrain(trainID int32)
	// 人工扣停/取消扣停
	SetHold(signalID int32, hold bool) error

	Update() // 更新阶段：重新计算显示
}

// entity/train/manager.go的依赖倒置
type ITrainManager interface {
	Init(pbs []input.Train, paths []input.Path) // 初始化

	// 输入列车ID，查找列车，如果不存在则panic
	Get(id int32) ITrain
	// 输入列车ID，查找列车，如果不存在则返回error
	GetOrError(id int32) (ITrain, error)

	Release(id int32) error // 外部放行受控启动的列车

	Prepare()                 // 准备阶段：增删生效、发车、快照
	UpdatePhysics(dt float64) // 更新阶段：动力学与位置
	Update(dt float64)        // 更新阶段：AI决策

	Save(w io.Writer) error // 保存全部列车的运行状态
	Load(r io.Reader) error // 恢复全部列车的运行状态
}
