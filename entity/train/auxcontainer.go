package train

import (
	"math"
	"slices"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/path"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/randengine"
)

// AuxActionsContainer 列车的辅助动作容器
// 功能：保存辅助动作引用，在接近时创建实例，按触发距离推进实例并在完成后销毁
// 说明：
// 1. 专用引用按(子路径, 里程)排序，最多只有一个独占实例存在
// 2. 通用引用（如道口鸣笛）由扫描按位置激活，同一位置只激活一次
type AuxActionsContainer struct {
	train *Train

	refs     []AuxActionRef // 按ID索引
	specRefs []AuxRefID     // 尚未完成的专用引用
	genRefs  []AuxRefID

	specLive  map[AuxRefID]*AuxActionInstance
	genLive   map[genKey]*AuxActionInstance
	activated map[genKey]bool // 当前子路径上已激活过的通用动作位置

	specQueue     *container.List[*AuxActionInstance, struct{}] // 按触发距离排序
	genQueue      *container.List[*AuxActionInstance, struct{}]
	specTriggered []*AuxActionInstance
	genTriggered  []*AuxActionInstance
}

// newAuxActionsContainer 根据路径中的等待点与活动规则附加的辅助动作创建容器
// 说明：位置无法解析的引用保留，其里程为NeverDistance，会一直等待
func newAuxActionsContainer(t *Train, pbs []input.AuxAction) *AuxActionsContainer {
	c := &AuxActionsContainer{
		train:     t,
		specLive:  make(map[AuxRefID]*AuxActionInstance),
		genLive:   make(map[genKey]*AuxActionInstance),
		activated: make(map[genKey]bool),
		specQueue: &container.List[*AuxActionInstance, struct{}]{ID: "spec"},
		genQueue:  &container.List[*AuxActionInstance, struct{}]{ID: "gen"},
	}
	for _, n := range t.path.Nodes() {
		if n.Type != path.NodeWaitingPoint {
			continue
		}
		c.addRef(AuxActionRef{
			Kind:         AuxWaitingPoint,
			Location:     n.Locate(t.path),
			WaitingPoint: &WaitingPointParams{Delay: n.WaitTime, LinkedSignal: n.LinkedSignal},
		})
	}
	var genHorn *AuxActionRef
	for _, pb := range pbs {
		kind, err := parseAuxKind(pb.Kind)
		if err != nil {
			log.Warnf("%v: %v", t, err)
			continue
		}
		ref := AuxActionRef{Kind: kind}
		switch kind {
		case AuxWaitingPoint:
			ref.WaitingPoint = &WaitingPointParams{Delay: pb.WaitTime, LinkedSignal: pb.SignalID}
		case AuxHorn:
			ref.Horn = &HornParams{Duration: pb.Duration, Pattern: parseHornPattern(pb.Pattern)}
		case AuxControlledStart:
			ref.ControlledStart = &ControlledStartParams{ReleaseClock: pb.ReleaseTime}
		case AuxSignalDelegate:
			ref.SignalDelegate = &SignalDelegateParams{SignalID: pb.SignalID, Delay: pb.Delay}
		}
		if kind == AuxHorn && pb.SectionID == 0 {
			// 不指定位置的鸣笛替换道口的默认鸣笛
			ref.Generic = true
			ref.Source = SourceLevelCrossing
			genHorn = &ref
			continue
		}
		loc, ok := t.locateSection(pb.SubPath, pb.SectionID, pb.Offset)
		if !ok {
			log.Warnf("%v: cannot locate %v action at section %d, it will never trigger", t, kind, pb.SectionID)
			loc = path.Location{SubPath: pb.SubPath, RouteIndex: -1, SectionID: pb.SectionID, Offset: pb.Offset}
		}
		ref.Location = loc
		c.addRef(ref)
	}
	if genHorn == nil {
		genHorn = &AuxActionRef{
			Kind:    AuxHorn,
			Generic: true,
			Source:  SourceLevelCrossing,
			Horn:    &HornParams{Duration: -1, Pattern: HornSingle},
		}
	}
	c.addRef(*genHorn)

	sort.SliceStable(c.specRefs, func(i, j int) bool {
		a, b := &c.refs[c.specRefs[i]], &c.refs[c.specRefs[j]]
		if a.Location.SubPath != b.Location.SubPath {
			return a.Location.SubPath < b.Location.SubPath
		}
		return t.path.DistanceOf(a.Location) < t.path.DistanceOf(b.Location)
	})
	return c
}

func (c *AuxActionsContainer) addRef(ref AuxActionRef) {
	ref.ID = AuxRefID(len(c.refs))
	c.refs = append(c.refs, ref)
	if ref.Generic {
		c.genRefs = append(c.genRefs, ref.ID)
	} else {
		c.specRefs = append(c.specRefs, ref.ID)
	}
}

// Ref 按ID获取引用
func (c *AuxActionsContainer) Ref(id AuxRefID) *AuxActionRef {
	return &c.refs[id]
}

// SetAuxAction 为接下来的专用引用创建实例
// 算法说明：按(子路径, 里程)顺序检查尚未完成的专用引用
// 1. 已在身后子路径上的引用丢弃；属于之后子路径的引用暂不处理
// 2. 已有实例的引用：独占则停止，否则跳过
// 3. 里程无法解析时停止（等待）；已越过的引用丢弃
// 4. 创建实例；独占实例同时创建辅助停车动作，并锁闭关联信号或暂缓委托信号，然后停止
func (c *AuxActionsContainer) SetAuxAction() {
	t := c.train
	for i := 0; i < len(c.specRefs); {
		ref := &c.refs[c.specRefs[i]]
		if ref.Location.SubPath < t.subPath {
			c.specRefs = slices.Delete(c.specRefs, i, i+1)
			continue
		}
		if ref.Location.SubPath > t.subPath {
			return
		}
		if inst, ok := c.specLive[ref.ID]; ok {
			if inst.kind.exclusive() {
				return
			}
			i++
			continue
		}
		d := t.path.DistanceOf(ref.Location)
		if d == entity.NeverDistance {
			return
		}
		if d < t.distance-t.cfg.ClearingDistance {
			log.Warnf("%v: %v already passed, dropped", t, ref)
			c.specRefs = slices.Delete(c.specRefs, i, i+1)
			continue
		}
		c.newSpecInstance(ref, d)
		if ref.Kind.exclusive() {
			return
		}
		i++
	}
}

// newSpecInstance 创建专用实例并放入触发队列
func (c *AuxActionsContainer) newSpecInstance(ref *AuxActionRef, d float64) *AuxActionInstance {
	t := c.train
	inst := &AuxActionInstance{
		ref:              ref.ID,
		kind:             ref.Kind,
		activateDistance: d,
		triggerDistance:  d,
	}
	if ref.Kind.exclusive() {
		item := newActionItem(KindAuxiliary, int64(ref.ID), 0, d, t.itemParams(0))
		item.Aux = inst
		inst.item = item
		inst.triggerDistance = item.TriggerDistance
		t.queue.Insert(item)
		sm := t.ctx.SignalManager()
		switch ref.Kind {
		case AuxWaitingPoint:
			if id := ref.WaitingPoint.LinkedSignal; id != 0 {
				if sig, err := sm.GetOrError(id); err != nil {
					log.Warnf("%v: %v", t, err)
				} else {
					sm.LockForTrain(id, t.id)
					inst.lockedSignal = sig
				}
			}
		case AuxSignalDelegate:
			inst.delegated = ref.SignalDelegate.SignalID
			t.deferSignal(inst.delegated, true)
		}
	}
	c.specLive[ref.ID] = inst
	inst.node = &auxNode{S: inst.triggerDistance, Value: inst}
	c.specQueue.InsertSorted(inst.node)
	log.Debugf("%v: %v created at %.1f", t, inst, d)
	return inst
}

// CheckGenActions 扫描遇到通用触发来源时激活对应的通用引用
// 参数：source-触发来源，loc-来源所在位置，d-来源的里程
// 返回：新创建的实例，该位置已激活过时返回nil
func (c *AuxActionsContainer) CheckGenActions(source GenSource, loc path.Location, d float64) (created *AuxActionInstance) {
	t := c.train
	for _, id := range c.genRefs {
		ref := &c.refs[id]
		if ref.Source != source {
			continue
		}
		key := genKey{Ref: ref.ID, SubPath: loc.SubPath, RouteIndex: loc.RouteIndex, Offset: int32(math.Round(loc.Offset))}
		if c.activated[key] {
			continue
		}
		c.activated[key] = true
		inst := &AuxActionInstance{
			ref:              ref.ID,
			kind:             ref.Kind,
			generic:          true,
			key:              key,
			activateDistance: d,
			triggerDistance:  d - t.cfg.LevelCrossingHornDistance,
		}
		c.genLive[key] = inst
		inst.node = &auxNode{S: inst.triggerDistance, Value: inst}
		c.genQueue.InsertSorted(inst.node)
		created = inst
	}
	return
}

// popDue 取出触发距离已到的实例
func (c *AuxActionsContainer) popDue(queue *container.List[*AuxActionInstance, struct{}], triggered []*AuxActionInstance) []*AuxActionInstance {
	for node := queue.First(); node != nil && node.S <= c.train.distance; node = queue.First() {
		queue.Remove(node)
		inst := node.Value
		inst.node = nil
		inst.triggered = true
		triggered = append(triggered, inst)
	}
	return triggered
}

// ProcessSpecAction 推进已触发的专用实例
// 说明：独占实例只在列车到达其停车点（INIT_ACTION/HANDLE_ACTION且为当前动作）后处理
func (c *AuxActionsContainer) ProcessSpecAction(dt float64) {
	t := c.train
	c.specTriggered = c.popDue(c.specQueue, c.specTriggered)
	now := t.ctx.Clock().T
	for _, inst := range slices.Clone(c.specTriggered) {
		ref := &c.refs[inst.ref]
		if ref.Location.SubPath < t.subPath {
			c.Remove(inst)
			continue
		}
		if inst.kind == AuxHorn {
			c.processHorn(inst, ref, now)
			continue
		}
		if t.currentAux != inst || (t.state != StateInitAction && t.state != StateHandleAction) {
			continue
		}
		if t.state == StateInitAction {
			c.begin(inst, ref, now)
			t.state = StateHandleAction
		}
		c.handle(inst, ref, now)
	}
}

// ProcessGenAction 推进已触发的通用实例
func (c *AuxActionsContainer) ProcessGenAction(dt float64) {
	t := c.train
	c.genTriggered = c.popDue(c.genQueue, c.genTriggered)
	now := t.ctx.Clock().T
	for _, inst := range slices.Clone(c.genTriggered) {
		if inst.key.SubPath < t.subPath {
			c.Remove(inst)
			continue
		}
		c.processHorn(inst, &c.refs[inst.ref], now)
	}
}

// processHorn 鸣笛
// 说明：停车时的专用鸣笛暂时占用运动状态，鸣笛结束后若未被其他动作接管则恢复；通用鸣笛不改变运动状态
func (c *AuxActionsContainer) processHorn(inst *AuxActionInstance, ref *AuxActionRef, now float64) {
	t := c.train
	if inst.horn == nil {
		duration := ref.Horn.Duration
		if duration < 0 {
			duration = randengine.New(inst.seed(t.seed)).Uniform(t.cfg.HornMinDuration, t.cfg.HornMaxDuration)
		}
		inst.horn = newHornExecutor(ref.Horn.Pattern, duration, t.cfg.BellTriggeredByHorn())
		inst.subState = subHorn
		inst.processing = true
		if !inst.generic && t.state == StateStopped {
			inst.prevState = t.state
			inst.prevSaved = true
			t.state = StateHandleAction
		}
		inst.horn.Start(now, t)
	}
	if !inst.horn.Advance(now, t) {
		return
	}
	if inst.prevSaved && t.state == StateHandleAction && t.currentAux == nil {
		t.state = inst.prevState
	}
	inst.subState = subDone
	t.metrics.AuxDone(inst.kind.String())
	c.Remove(inst)
}

// begin 列车到达独占动作的停车点后开始处理
func (c *AuxActionsContainer) begin(inst *AuxActionInstance, ref *AuxActionRef, now float64) {
	t := c.train
	inst.processing = true
	switch inst.kind {
	case AuxWaitingPoint:
		d := path.DecodeDelay(ref.WaitingPoint.Delay)
		switch d.Kind {
		case path.WaitRelative, path.WaitAbsolute:
			inst.actualDepartClock = d.DepartClock(now)
			inst.subState = subWaiting
		case path.WaitKeepFront, path.WaitDetachRear:
			n := d.Cars
			if d.Kind == path.WaitKeepFront {
				n = t.cars - d.Cars
			}
			t.uncouple(n)
			inst.actualDepartClock = d.DepartClock(now)
			inst.subState = subWaiting
		case path.WaitAttach:
			t.attachRequested = true
			inst.subState = subDone
		case path.WaitPermission:
			inst.subState = subPermission
		default:
			log.Warnf("%v: invalid wait time %d at %v", t, ref.WaitingPoint.Delay, ref.Location)
			inst.subState = subDone
		}
		log.Debugf("%v: waiting point %v", t, d.Kind)
	case AuxControlledStart:
		inst.actualDepartClock = ref.ControlledStart.ReleaseClock
		inst.subState = subHold
	case AuxSignalDelegate:
		inst.actualDepartClock = now + ref.SignalDelegate.Delay
		inst.subState = subDelegate
	}
}

// handle 推进独占实例的子状态，完成后销毁实例并让列车重新出发
func (c *AuxActionsContainer) handle(inst *AuxActionInstance, ref *AuxActionRef, now float64) {
	t := c.train
	sm := t.ctx.SignalManager()
	switch inst.subState {
	case subWaiting:
		if now >= inst.actualDepartClock {
			inst.subState = subDone
		}
	case subPermission:
		if sig := t.nextSignal(); sig == nil || sm.RequestPermission(sig.ID(), t) {
			inst.subState = subDone
		}
	case subHold:
		if (inst.actualDepartClock > 0 && now >= inst.actualDepartClock) || t.released.Load() {
			t.released.Store(false)
			t.throttleCapUntil = now + t.cfg.ControlledStartRamp
			inst.subState = subDone
		}
	case subDelegate:
		if now < inst.actualDepartClock {
			break
		}
		if inst.delegated != 0 {
			t.deferSignal(inst.delegated, false)
			inst.delegated = 0
		}
		if !sm.RequestClear(ref.SignalDelegate.SignalID, t).IsStop() {
			inst.subState = subDone
		}
	}
	if inst.subState != subDone {
		return
	}
	t.metrics.AuxDone(inst.kind.String())
	c.Remove(inst)
	t.state = StateStopped
	t.resumeReason = ResumePathAction
}

// nextSignal 车头前方当前子路径上的第一架信号机
func (t *Train) nextSignal() entity.ISignal {
	sig, _ := t.nextSignalAt()
	return sig
}

// nextSignalAt 车头前方第一架信号机及其所在里程
func (t *Train) nextSignalAt() (entity.ISignal, float64) {
	sp := t.path.SubPath(t.subPath)
	for i := sp.ElementIndex(t.distance); i < len(sp.Elements); i++ {
		e := &sp.Elements[i]
		if e.End() > sp.End {
			break
		}
		if sig := e.Section.Signal(e.Direction); sig != nil && e.End() > t.distance {
			return sig, e.End()
		}
	}
	return nil, 0
}

// detach 释放实例持有的一切：锁闭只解除一次，委托、队列动作与容器中的记录一并清除
func (c *AuxActionsContainer) detach(inst *AuxActionInstance) {
	t := c.train
	if inst.lockedSignal != nil {
		t.ctx.SignalManager().UnlockForTrain(inst.lockedSignal.ID(), t.id)
		inst.lockedSignal = nil
	}
	if inst.delegated != 0 {
		t.deferSignal(inst.delegated, false)
		inst.delegated = 0
	}
	if inst.item != nil {
		t.queue.Remove(inst.item)
		t.dropActive(inst.item)
		inst.item = nil
	}
	if inst.horn != nil && inst.subState != subDone {
		inst.horn.Stop(t)
	}
	if inst.generic {
		if inst.node != nil {
			c.genQueue.Remove(inst.node)
		}
		c.genTriggered = lo.Without(c.genTriggered, inst)
		delete(c.genLive, inst.key)
	} else {
		if inst.node != nil {
			c.specQueue.Remove(inst.node)
		}
		c.specTriggered = lo.Without(c.specTriggered, inst)
		delete(c.specLive, inst.ref)
		c.specRefs = lo.Without(c.specRefs, inst.ref)
	}
	inst.node = nil
	if t.currentAux == inst {
		t.currentAux = nil
	}
}

// Remove 销毁实例；独占实例销毁后为下一个专用引用创建实例
func (c *AuxActionsContainer) Remove(inst *AuxActionInstance) {
	c.detach(inst)
	if !inst.generic && inst.kind.exclusive() {
		c.SetAuxAction()
	}
}

// onSubPathChange 换向后销毁身后子路径上的实例
func (c *AuxActionsContainer) onSubPathChange() {
	t := c.train
	for _, inst := range lo.Values(c.specLive) {
		if c.refs[inst.ref].Location.SubPath < t.subPath {
			c.detach(inst)
		}
	}
	for _, inst := range lo.Values(c.genLive) {
		if inst.key.SubPath < t.subPath {
			c.detach(inst)
		}
	}
	for key := range c.activated {
		if key.SubPath < t.subPath {
			delete(c.activated, key)
		}
	}
}

// Clear 销毁全部实例，不再创建新实例
func (c *AuxActionsContainer) Clear() {
	for _, inst := range lo.Values(c.specLive) {
		c.detach(inst)
	}
	for _, inst := range lo.Values(c.genLive) {
		c.detach(inst)
	}
	c.specRefs = nil
}

// Live 存活的专用实例数与通用实例数
func (c *AuxActionsContainer) Live() (spec, gen int) {
	return len(c.specLive), len(c.genLive)
}
