package train

import (
	"fmt"
	"slices"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/randengine"
)

// TrainManager 列车管理器
// 功能：管理全部列车，按出发时刻发车，在准备阶段统一生效增删
// 说明：快照并行生成；动力学与决策按列车ID顺序逐一执行，同一种子的运行结果可复现
type TrainManager struct {
	ctx entity.ITaskContext

	data map[int32]*Train

	// 参与计算的列车（已发车的AI列车与静止车辆）
	trains *container.IncrementalArray[*Train]
	// 等待发车的列车，按出发时刻排序
	waiting *container.PriorityQueue[*Train]
	// 按ID排序的参与计算的列车，每次Prepare后重建
	ordered []*Train

	paths map[string]*input.Path

	trainInserted      []*Train // 解编产生的静止车辆
	trainInsertedMutex sync.Mutex
	nextTrainID        int32

	seed uint64
}

// NewManager 创建列车管理器
// 参数：ctx-任务上下文，seed-随机数种子
func NewManager(ctx entity.ITaskContext, seed uint64) *TrainManager {
	return &TrainManager{
		ctx:           ctx,
		data:          make(map[int32]*Train),
		trains:        container.NewIncrementalArray[*Train](),
		waiting:       container.NewPriorityQueue[*Train](),
		paths:         make(map[string]*input.Path),
		trainInserted: make([]*Train, 0),
		nextTrainID:   1,
		seed:          seed,
	}
}

// Init 初始化全部列车
// 功能：建立路径模板索引，创建列车；静止车辆立即参与计算，AI列车进入发车队列
// 参数：pbs-列车数据，paths-路径模板
func (m *TrainManager) Init(pbs []input.Train, paths []input.Path) {
	for i := range paths {
		m.paths[paths[i].Name] = &paths[i]
	}
	trains := lo.Map(pbs, func(pb input.Train, _ int) *Train {
		return newTrain(m.ctx, m, pb, m.paths[pb.Path])
	})
	m.data = lo.SliceToMap(trains, func(t *Train) (int32, *Train) {
		return t.id, t
	})
	if len(m.data) != len(trains) {
		log.Panic("trains have duplicated ids, please check data")
	}
	for _, t := range trains {
		if t.isAI() {
			m.waiting.Push(t, t.startTime)
		} else {
			m.trains.Add(t)
		}
	}
	m.waiting.Heapify()
	if len(m.data) > 0 {
		m.nextTrainID = lo.Max(lo.Keys(m.data)) + 1
	}
	log.Infof("init %d trains, %d waiting", len(m.data), m.waiting.Len())
}

// Get 根据ID获取列车，不存在则panic
func (m *TrainManager) Get(id int32) entity.ITrain {
	if t, ok := m.data[id]; !ok {
		log.Panicf("no id %d in train data", id)
		return nil
	} else {
		return t
	}
}

// GetOrError 根据ID获取列车，不存在则返回错误
func (m *TrainManager) GetOrError(id int32) (entity.ITrain, error) {
	if t, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in train data", id)
	} else {
		return t, nil
	}
}

// Train 根据ID获取列车的完整状态
func (m *TrainManager) Train(id int32) (*Train, error) {
	if t, ok := m.data[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("no id %d in train data", id)
}

// get 更新阶段内查找其他列车，data只在准备阶段修改
func (m *TrainManager) get(id int32) *Train {
	return m.data[id]
}

// Release 外部放行等待受控启动的列车
func (m *TrainManager) Release(id int32) error {
	t, err := m.Train(id)
	if err != nil {
		return err
	}
	t.released.Store(true)
	return nil
}

// Suspend 挂起（外部接管）或恢复列车
// 说明：挂起与恢复都会清空全部动作，由扫描重新生成
func (m *TrainManager) Suspend(id int32, suspend bool) error {
	t, err := m.Train(id)
	if err != nil {
		return err
	}
	if !t.isAI() || t.state == StateStatic {
		return fmt.Errorf("%v is not driven by AI", t)
	}
	t.ResetActions()
	if suspend {
		t.state = StateSuspended
	} else {
		t.state = StateStopped
		t.resumeReason = ResumeNew
	}
	return nil
}

// Freeze 冻结或解冻列车，冻结期间不参与动力学与决策
func (m *TrainManager) Freeze(id int32, freeze bool) error {
	t, err := m.Train(id)
	if err != nil {
		return err
	}
	if !t.isAI() || t.state == StateStatic {
		return fmt.Errorf("%v is not driven by AI", t)
	}
	if freeze {
		t.physics.SetFixedSpeed(0)
		t.state = StateFrozen
	} else {
		t.ResetActions()
		t.state = StateStopped
		t.resumeReason = ResumeNew
	}
	return nil
}

// addStatic 登记解编产生的静止车辆（下一次Prepare时生效）
// 参数：from-解编的列车，cars-车辆数，length-长度，spans-占用
func (m *TrainManager) addStatic(from *Train, cars int32, length float64, spans []occSpan) *Train {
	m.trainInsertedMutex.Lock()
	defer m.trainInsertedMutex.Unlock()
	t := &Train{
		ctx:       m.ctx,
		manager:   m,
		cfg:       from.cfg,
		metrics:   from.metrics,
		seed:      m.trainSeed(m.nextTrainID),
		id:        m.nextTrainID,
		name:      fmt.Sprintf("%s-cut%d", from.name, m.nextTrainID),
		class:     from.class,
		cars:      cars,
		carLength: length / float64(cars),
		length:    length,
		maxSpeed:  from.maxSpeed,
		state:     StateStatic,
		physics:   NewSimplePhysics(from.class, from.cfg.Class(from.class.String()), from.maxSpeed),
		queue:     NewActionQueue("static"),
		deferred:  make(map[int32]int),
		spans:     spans,
		snapshot:  snapshot{static: true, state: StateStatic},
	}
	m.nextTrainID++
	m.trainInserted = append(m.trainInserted, t)
	return t
}

// remove 移除列车（下一次Prepare时生效）
// 返回：列车已被移除时返回false
// 说明：解除其全部辅助动作、信号锁闭与预留
func (m *TrainManager) remove(t *Train, reason string) bool {
	if !t.removed.CompareAndSwap(false, true) {
		return false
	}
	if t.aux != nil {
		t.aux.Clear()
	}
	m.ctx.SignalManager().ReleaseTrain(t.id)
	m.trains.Remove(t)
	t.metrics.Removed(reason)
	log.Infof("%v removed: %s", t, reason)
	return true
}

// Prepare 准备阶段
// 算法说明：
// 1. 静止车辆加入、被移除的列车删除
// 2. 到出发时刻的列车发车
// 3. 增删生效后更新全部列车的快照与指标
func (m *TrainManager) Prepare() {
	for _, t := range m.trainInserted {
		if _, ok := m.data[t.id]; ok {
			log.Panicf("train id %d already exists", t.id)
		}
		m.data[t.id] = t
		m.trains.Add(t)
	}
	m.trainInserted = []*Train{}
	_, removed := m.trains.Pending()
	if removed > 0 {
		for id, t := range m.data {
			if t.removed.Load() {
				delete(m.data, id)
			}
		}
	}
	for _, t := range m.waiting.PopUntil(m.ctx.Clock().T) {
		t.start()
		m.trains.Add(t)
	}
	m.trains.Prepare()
	m.order()
	parallel.GoFor(m.trains.Data(), func(t *Train) { t.prepare() })

	states := make(map[string]int)
	for _, t := range m.trains.Data() {
		states[t.state.String()]++
	}
	m.ctx.Metrics().SetTrains(m.trains.Len(), m.waiting.Len(), states)
}

// order 按ID重建更新顺序
func (m *TrainManager) order() {
	m.ordered = slices.Clone(m.trains.Data())
	slices.SortFunc(m.ordered, func(a, b *Train) int { return int(a.id - b.id) })
}

// trainSeed 列车的随机数种子
func (m *TrainManager) trainSeed(id int32) uint64 {
	return randengine.Derive(m.seed, uint64(id))
}

// UpdatePhysics 更新阶段（一）：动力学、位置与占用
// 说明：按ID顺序执行，同一步内信号的请求先到先得；失控的列车被移除
func (m *TrainManager) UpdatePhysics(dt float64) {
	for _, t := range m.ordered {
		if err := t.updatePosition(dt); err != nil {
			log.Error(err)
			m.remove(t, "out_of_control")
		}
	}
}

// Update 更新阶段（二）：AI决策，按ID顺序执行
func (m *TrainManager) Update(dt float64) {
	for _, t := range m.ordered {
		t.update(dt)
	}
}

// Trains 参与计算的全部列车
func (m *TrainManager) Trains() []*Train {
	return m.trains.Data()
}

// Waiting 等待发车的列车数
func (m *TrainManager) Waiting() int {
	return m.waiting.Len()
}
