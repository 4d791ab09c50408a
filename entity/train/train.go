package train

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/brunoga/deep"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/path"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/metrics"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/randengine"
)

var (
	// ErrOutOfControl 列车未经许可越过停车信号超过容许距离
	ErrOutOfControl = errors.New("train out of control")
	// ErrBadSaveVersion 存档版本不符
	ErrBadSaveVersion = errors.New("bad save version")
)

const (
	defaultMaxSpeed   = 33.33 // 未指定构造速度时的最高速度（米/秒）
	defaultCarLength  = 20.   // 未指定单车长度时的长度（米）
	minEfficiency     = 0.6   // 随机牵引效率的下限
	maxEfficiency     = 1.0   // 随机牵引效率的上限
	sameActivateDelta = 0.5   // 生效点相差小于该值视为同一动作
)

// stationStop 车站停车
type stationStop struct {
	index      int
	name       string
	subPath    int32
	distance   float64
	arrival    float64 // 图定到达
	departure  float64 // 图定出发
	dwell      float64 // 最短停站时间
	exitSignal int32

	actualArrival float64
	actualDepart  float64
}

// stationPhase 停站过程的阶段
type stationPhase int32

const (
	phaseDoorsOpening stationPhase = iota // 开门
	phaseDwelling                         // 停站
	phaseDoorsClosing                     // 关门
	phaseWaitSignal                       // 等待出站信号
)

// occSpan 列车在一个区段上的占用，from/to为沿区段正向的坐标
type occSpan struct {
	section  entity.ISection
	from, to float64
}

// aheadInfo 前方同一子路径上最近的列车
type aheadInfo struct {
	train   *Train
	nearEnd float64 // 其靠近本车一端的里程
	static  bool
	speed   float64
}

// snapshot 供其他列车在更新阶段读取的状态
type snapshot struct {
	speed  float64
	static bool
	state  MovementState
}

// Train AI列车
// 功能：保存列车的全部运行状态，每步依次完成前方扫描、动作仲裁、运动状态机与辅助动作处理
// 说明：更新阶段只修改自身状态，对其他列车与信号的影响都通过管理器的同步调用完成
type Train struct {
	container.IncrementalItemBase

	ctx       entity.ITaskContext
	manager   *TrainManager
	cfg       *config.AIConfig
	metrics   *metrics.Collector
	seed      uint64 // 随机数种子，由全局种子与列车ID派生

	// 静态属性

	id           int32
	name         string
	class        entity.CarClass
	cars         int32
	carLength    float64
	length       float64
	maxSpeed     float64
	efficiency   float64
	startTime    float64
	initialSpeed float64

	path     *path.AIPath
	physics  entity.IPhysics
	stops    []*stationStop
	nextStop int

	// 位置

	subPath   int32
	distance  float64   // 车头里程
	spans     []occSpan // 当前占用
	prevSpans []occSpan // 上一步的占用

	// 决策

	state        MovementState
	queue        *ActionQueue
	active       []*ActionItem // 已到触发距离、仍然有效的动作
	governing    *ActionItem   // 起支配作用的动作
	allowedMax   float64
	signalLimit  float64 // 越过的最后一架信号机给出的限速，0表示无
	// 重新启动后的临时限速，车头到达resumeLimitUntil后解除，0表示无
	resumeLimit      float64
	resumeLimitUntil float64
	resumeReason ResumeReason

	aux        *AuxActionsContainer
	currentAux *AuxActionInstance // 正在处理的独占辅助动作
	deferred   map[int32]int      // 不自动请求开放的信号机

	station       *stationStop
	stationPhase  stationPhase
	phaseUntil    float64
	stationDepart float64
	doorsOpen     bool

	ahead            aheadInfo
	attachRequested  bool
	released         atomic.Bool
	throttleCapUntil float64

	overrunSignal entity.ISignal // 未经许可越过的停车信号
	overrunAt     float64

	hornOn, bellOn bool

	snapshot snapshot
	started  bool // 已到出发时刻
	removed  atomic.Bool
}

// newTrain 根据输入数据创建列车
// 功能：解析车辆类别与动力学参数，为AI列车构建路径、车站与辅助动作
// 参数：pb-列车数据，tpl-共用的路径模板（静止车辆为nil）
// 说明：路径无法解析时列车整体作废为静止，不会部分使用路径
func newTrain(ctx entity.ITaskContext, m *TrainManager, pb input.Train, tpl *input.Path) *Train {
	cfg := &ctx.RuntimeConfig().AI
	class, err := entity.ParseCarClass(pb.Class)
	if err != nil {
		log.Warnf("train %d: %v, use passenger", pb.ID, err)
	}
	t := &Train{
		ctx:          ctx,
		manager:      m,
		cfg:          cfg,
		metrics:      ctx.Metrics(),
		seed:         m.trainSeed(pb.ID),
		id:           pb.ID,
		name:         pb.Name,
		class:        class,
		cars:         max(pb.Cars, 1),
		carLength:    pb.CarLength,
		maxSpeed:     pb.MaxSpeed,
		efficiency:   pb.Efficiency,
		startTime:    pb.StartTime,
		initialSpeed: pb.InitialSpeed,
		state:        StateStatic,
		queue:        NewActionQueue(fmt.Sprintf("train-%d", pb.ID)),
		active:       make([]*ActionItem, 0),
		deferred:     make(map[int32]int),
	}
	if t.name == "" {
		t.name = fmt.Sprintf("T%d", pb.ID)
	}
	if t.carLength <= 0 {
		t.carLength = defaultCarLength
	}
	t.length = float64(t.cars) * t.carLength
	if t.maxSpeed <= 0 {
		t.maxSpeed = defaultMaxSpeed
	}
	if t.efficiency <= 0 {
		t.efficiency = randengine.New(t.seed).Uniform(minEfficiency, maxEfficiency)
	}
	t.physics = NewSimplePhysics(class, cfg.Class(class.String()), t.maxSpeed)
	t.allowedMax = t.maxSpeed

	if pb.Static {
		t.spans = t.staticSpans(pb)
		t.snapshot = snapshot{static: true, state: StateStatic}
		return t
	}
	if tpl == nil {
		log.Warnf("%v: no path %q, train is static", t, pb.Path)
		return t
	}
	cp, err := deep.Copy(*tpl)
	if err != nil {
		log.Panicf("%v: copy path %q: %v", t, pb.Path, err)
	}
	p, err := path.New(cp, ctx.SectionManager())
	if err != nil {
		log.Warnf("%v: %v, train is static", t, err)
		return t
	}
	t.path = p
	p.Log()
	t.stops = t.resolveStops(pb.Stops)
	t.aux = newAuxActionsContainer(t, pb.AuxActions)
	sp := p.SubPath(0)
	t.distance = min(sp.Start+t.length, sp.End)
	t.snapshot = snapshot{static: true, state: StateStatic}
	return t
}

// staticSpans 静止车辆的占用：车头在(section, offset)，车身沿Direction向后延伸
func (t *Train) staticSpans(pb input.Train) []occSpan {
	sec, err := t.ctx.SectionManager().GetOrError(pb.SectionID)
	if err != nil {
		log.Warnf("%v: %v", t, err)
		return nil
	}
	dir := entity.Direction(pb.Direction)
	front := min(max(pb.Offset, 0), sec.Length())
	rear := max(front-t.length, 0)
	a, b := path.SectionOffset(sec, dir, rear), path.SectionOffset(sec, dir, front)
	return []occSpan{{section: sec, from: min(a, b), to: max(a, b)}}
}

// resolveStops 把车站停车解析到路径上，无法解析的停车点被忽略
func (t *Train) resolveStops(pbs []input.Stop) []*stationStop {
	stops := make([]*stationStop, 0, len(pbs))
	for _, pb := range pbs {
		d, ok := t.distanceOfSection(pb.SubPath, pb.SectionID, pb.Offset)
		if !ok {
			log.Warnf("%v: cannot locate stop %q at section %d, ignored", t, pb.Name, pb.SectionID)
			continue
		}
		stops = append(stops, &stationStop{
			index:      len(stops),
			name:       pb.Name,
			subPath:    pb.SubPath,
			distance:   d,
			arrival:    pb.Arrival,
			departure:  pb.Departure,
			dwell:      pb.Dwell,
			exitSignal: pb.ExitSignal,
		})
	}
	return stops
}

// locateSection 在子路径中查找区段的位置
func (t *Train) locateSection(subPath, sectionID int32, offset float64) (path.Location, bool) {
	sp := t.path.SubPath(subPath)
	if sp == nil {
		return path.Location{}, false
	}
	for i, e := range sp.Elements {
		if e.Section.ID() == sectionID {
			return path.Location{
				SubPath:    subPath,
				RouteIndex: int32(i),
				SectionID:  sectionID,
				Direction:  e.Direction,
				Offset:     offset,
			}, true
		}
	}
	return path.Location{}, false
}

func (t *Train) distanceOfSection(subPath, sectionID int32, offset float64) (float64, bool) {
	loc, ok := t.locateSection(subPath, sectionID, offset)
	if !ok {
		return entity.NeverDistance, false
	}
	d := t.path.DistanceOf(loc)
	return d, d != entity.NeverDistance
}

func (t *Train) String() string {
	return fmt.Sprintf("Train %d(%s)", t.id, t.name)
}

func (t *Train) ID() int32 {
	return t.id
}

func (t *Train) Name() string {
	return t.name
}

// Speed 上一次Prepare时的速度
func (t *Train) Speed() float64 {
	return t.snapshot.speed
}

func (t *Train) Length() float64 {
	return t.length
}

func (t *Train) IsStatic() bool {
	return t.snapshot.static
}

func (t *Train) CarClass() entity.CarClass {
	return t.class
}

// State 当前运动状态
func (t *Train) State() MovementState {
	return t.state
}

// Distance 车头里程
func (t *Train) Distance() float64 {
	return t.distance
}

// Governing 起支配作用的动作
func (t *Train) Governing() *ActionItem {
	return t.governing
}

func (t *Train) SetHorn(on bool) {
	t.hornOn = on
}

func (t *Train) SetBell(on bool) {
	t.bellOn = on
}

// HornOn 鸣笛触发状态
func (t *Train) HornOn() bool {
	return t.hornOn
}

// BellOn 打铃触发状态
func (t *Train) BellOn() bool {
	return t.bellOn
}

func (t *Train) isAI() bool {
	return t.path != nil
}

// start 到达出发时刻，进入INIT
func (t *Train) start() {
	if !t.isAI() {
		return
	}
	t.started = true
	t.state = StateInit
	t.snapshot = snapshot{state: StateInit}
	log.Infof("%v starts at %.1f", t, t.distance)
}

// prepare 准备阶段：更新供其他列车读取的快照
func (t *Train) prepare() {
	t.snapshot = snapshot{
		speed:  t.physics.Speed(),
		static: t.state == StateStatic,
		state:  t.state,
	}
}

// updatePosition 更新阶段（一）：动力学、位置、越过信号机与占用
// 返回：越过停车信号超过容许距离时返回ErrOutOfControl
func (t *Train) updatePosition(dt float64) error {
	if t.removed.Load() {
		return nil
	}
	if t.isAI() && t.state != StateStatic && t.state != StateFrozen {
		old := t.distance
		t.distance += t.physics.Update(dt)
		if err := t.checkSignalsPassed(old, t.distance); err != nil {
			return err
		}
		t.spans = t.spansBetween(t.distance-t.length, t.distance)
	}
	t.occupy()
	return nil
}

// checkSignalsPassed 处理(from, to]内越过的信号机
// 算法说明：
// 1. 为本车开放的信号：记录其给出的限速并关闭信号
// 2. 未开放的信号：记为越过停车信号，之后若补开放则视为正常越过
// 3. 越过停车信号后行驶超过容许距离：失控
func (t *Train) checkSignalsPassed(from, to float64) error {
	sm := t.ctx.SignalManager()
	sp := t.path.SubPath(t.subPath)
	for i := sp.ElementIndex(from); i < len(sp.Elements); i++ {
		e := &sp.Elements[i]
		end := e.End()
		if end > to || end > sp.End {
			break
		}
		if end <= from {
			continue
		}
		sig := e.Section.Signal(e.Direction)
		if sig == nil {
			continue
		}
		if sig.ReservedFor() == t.id {
			t.passSignal(sig)
		} else if t.overrunSignal == nil {
			log.Warnf("%v passes %v at %v", t, sig, sig.Aspect())
			t.overrunSignal = sig
			t.overrunAt = end
		}
	}
	if t.overrunSignal != nil {
		if !sm.RequestClear(t.overrunSignal.ID(), t).IsStop() || t.overrunSignal.ReservedFor() == t.id {
			t.passSignal(t.overrunSignal)
			t.overrunSignal = nil
		} else if t.distance-t.overrunAt > t.cfg.ClearingDistance {
			return fmt.Errorf("%w: %v passed %v by %.1fm", ErrOutOfControl, t, t.overrunSignal, t.distance-t.overrunAt)
		}
	}
	return nil
}

// passSignal 越过为本车开放的信号机
func (t *Train) passSignal(sig entity.ISignal) {
	switch sig.Aspect() {
	case entity.AspectRestricted:
		t.signalLimit = t.cfg.RestrictedSpeed
	case entity.AspectApproach:
		t.signalLimit = t.cfg.ApproachAspectSpeed
	default:
		t.signalLimit = sig.SpeedLimit()
	}
	t.ctx.SignalManager().Passed(sig.ID(), t.id)
}

// spansBetween 当前子路径上[from, to]里程范围的占用
func (t *Train) spansBetween(from, to float64) []occSpan {
	sp := t.path.SubPath(t.subPath)
	spans := make([]occSpan, 0, 2)
	for i := range sp.Elements {
		e := &sp.Elements[i]
		lo, hi := max(from, e.Start), min(to, e.End())
		if hi <= lo {
			continue
		}
		a, b := lo-e.Start, hi-e.Start
		if e.Direction == entity.Reverse {
			a, b = e.Section.Length()-b, e.Section.Length()-a
		}
		spans = append(spans, occSpan{section: e.Section, from: a, to: b})
	}
	return spans
}

// occupy 登记本步占用，并解除已出清区段的预留
func (t *Train) occupy() {
	for _, s := range t.spans {
		s.section.Occupy(t, s.from, s.to)
	}
	if t.isAI() {
		t.releaseLeft()
	}
}

// releaseLeft 解除已离开区段的预留
func (t *Train) releaseLeft() {
	sm := t.ctx.SignalManager()
	now := make(map[int32]bool, len(t.spans))
	for _, s := range t.spans {
		now[s.section.ID()] = true
	}
	for _, s := range t.prevSpans {
		if !now[s.section.ID()] {
			sm.ReleaseSection(s.section.ID(), t.id)
		}
	}
	t.prevSpans = t.spans
}

// updateAllowedMax 允许速度：构造速度、车身下各区段限速、转车台限速、信号限速与重新启动限速的最小值
func (t *Train) updateAllowedMax() {
	allowed := t.maxSpeed
	for _, s := range t.spans {
		if v := s.section.MaxV(); v > 0 {
			allowed = min(allowed, v)
		}
		if s.section.IsMovableTable() {
			allowed = min(allowed, t.cfg.MovableTableSpeed)
		}
	}
	if t.signalLimit > 0 {
		allowed = min(allowed, t.signalLimit)
	}
	if t.resumeLimit > 0 {
		if t.distance >= t.resumeLimitUntil {
			t.limitUntil(0, 0)
		} else {
			allowed = min(allowed, t.resumeLimit)
		}
	}
	t.allowedMax = allowed
}

// update 更新阶段（二）：决策
// 算法说明：
// 1. 刚出发的列车先放置辅助动作，委托中的信号不会被本步的扫描请求开放
//    扫描前方生成或取代动作，按当前允许速度提前辅助动作的触发点
// 2. 取出到期动作，移除已越过的非停车动作，仲裁出起支配作用的动作
// 3. 运动状态机的一步
// 4. 推进通用与专用辅助动作
func (t *Train) update(dt float64) {
	if t.removed.Load() || !t.isAI() || t.state == StateStatic || t.state == StateFrozen {
		return
	}
	t.updateAllowedMax()
	again := true
	if t.state == StateInit {
		again = t.updateInit()
	}
	if t.state != StateSuspended {
		t.obtainRequiredActions()
		t.advanceAuxTriggers()
		t.active = append(t.active, t.queue.PopDue(t.distance)...)
		t.dropPassedItems()
		t.governing = t.foldGoverning()
	}
	if again {
		t.updateMovement(dt)
	}
	if t.state == StateStatic || t.aux == nil {
		return
	}
	t.aux.ProcessGenAction(dt)
	t.aux.ProcessSpecAction(dt)
}

// dropPassedItems 车头越过生效点的非停车动作已经完成
func (t *Train) dropPassedItems() {
	kept := t.active[:0]
	for _, item := range t.active {
		if !item.isStop() && item.ActivateDistance <= t.distance {
			continue
		}
		kept = append(kept, item)
	}
	t.active = kept
}

// keyOf 动作的匹配键
type actionKey struct {
	kind   ActionKind
	source int64
}

func keyOf(item *ActionItem) actionKey {
	return actionKey{item.Kind, item.Source}
}

// dropActive 从有效动作中移除与item同键的动作
// 返回：是否移除了起支配作用的动作
func (t *Train) dropActive(item *ActionItem) bool {
	key := keyOf(item)
	found := false
	kept := t.active[:0]
	for _, a := range t.active {
		if keyOf(a) == key {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	t.active = kept
	return found && t.governing != nil && keyOf(t.governing) == key
}

// consume 到达并完成动作
func (t *Train) consume(item *ActionItem) {
	t.queue.Remove(item)
	t.dropActive(item)
	t.governing = t.foldGoverning()
}

// ResetActions 取消全部动作，下一步由扫描重新生成
// 说明：辅助动作的队列动作由其实例持有，保留
func (t *Train) ResetActions() {
	cancelled := t.queue.CancelAll(KindAuxiliary)
	kept := t.active[:0]
	for _, item := range t.active {
		if item.Kind == KindAuxiliary {
			kept = append(kept, item)
		} else {
			cancelled = append(cancelled, item)
		}
	}
	t.active = kept
	t.governing = nil
	log.Debugf("%v: reset, %d actions cancelled", t, len(cancelled))
}

// deferSignal 在独占辅助动作完成前不自动请求开放信号
func (t *Train) deferSignal(id int32, on bool) {
	if on {
		t.deferred[id]++
		return
	}
	if t.deferred[id] <= 1 {
		delete(t.deferred, id)
	} else {
		t.deferred[id]--
	}
}

// isDeferred 信号机是否暂不自动请求开放
// 说明：信号委托中的信号，以及下一车站(或正在停靠的车站)的出站信号
func (t *Train) isDeferred(id int32) bool {
	if t.deferred[id] > 0 {
		return true
	}
	if t.station != nil && t.station.exitSignal == id {
		return true
	}
	if t.nextStop < len(t.stops) {
		st := t.stops[t.nextStop]
		return st.subPath == t.subPath && st.exitSignal == id
	}
	return false
}
