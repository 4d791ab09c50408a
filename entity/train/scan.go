package train

import (
	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/path"
)

// itemParams 当前状态下创建动作的参数
func (t *Train) itemParams(margin float64) itemParams {
	return itemParams{
		distance:   t.distance,
		speed:      t.physics.Speed(),
		allowedMax: t.allowedMax,
		k:          t.cfg.BrakingLagFactor,
		maxDecel:   t.physics.MaxDecel(),
		margin:     margin,
	}
}

func (t *Train) newItem(kind ActionKind, source int64, required, activate float64) *ActionItem {
	return newActionItem(kind, source, required, activate, t.itemParams(0))
}

// lookAhead 扫描范围：不小于最小前瞻距离，且覆盖从当前速度停车的距离
func (t *Train) lookAhead() float64 {
	v := max(t.physics.Speed(), t.allowedMax)
	return max(t.cfg.MinLookAhead, brakingDistance(v, 0, t.cfg.BrakingLagFactor, t.physics.MaxDecel())+2*t.cfg.ClearingDistance)
}

// speedLimitSource 线路限速动作的来源：子路径与区段下标
func speedLimitSource(subPath int32, index int) int64 {
	return int64(subPath)<<32 | int64(index)
}

// obtainRequiredActions 扫描前方，生成本步应有的全部动作并与已有动作对照
// 算法说明：沿当前子路径逐个区段检查，遇到需要停车的信号机或被其他列车预留的区段时停止扫描
// 1. 区段限速低于当前允许速度：线路限速
// 2. 未对准的转车台：在其前停车；已对准：转车台限速
// 3. 区段被其他列车预留：移动授权终点
// 4. 区段上有其他列车：前方列车
// 5. 道口：交由辅助动作容器生成通用鸣笛
// 6. 区段末端的信号机：按显示生成信号限速、限制显示或信号停车
// 7. 下一车站停车、折返点与路径终点
func (t *Train) obtainRequiredActions() {
	sp := t.path.SubPath(t.subPath)
	until := t.distance + t.lookAhead()
	candidates := make([]*ActionItem, 0, 8)
	sm := t.ctx.SignalManager()
	t.ahead = aheadInfo{}
	blocked := false

	for i := sp.ElementIndex(t.distance); i < len(sp.Elements) && !blocked; i++ {
		e := &sp.Elements[i]
		if e.Start > until || e.Start >= sp.End {
			break
		}
		sec := e.Section
		if v := sec.MaxV(); v > 0 && v < t.allowedMax && e.Start > t.distance {
			candidates = append(candidates, t.newItem(KindSpeedLimit, speedLimitSource(t.subPath, i), v, e.Start))
		}
		if sec.IsMovableTable() && e.Start > t.distance {
			if sec.TableAligned() {
				candidates = append(candidates, t.newItem(KindMovableTable, int64(sec.ID()), t.cfg.MovableTableSpeed, e.Start))
			} else {
				candidates = append(candidates, t.newItem(KindMovableTable, int64(sec.ID()), 0, e.Start-t.cfg.StopMargin))
				break
			}
		}
		if r := sec.ReservedBy(); r != 0 && r != t.id && e.Start > t.distance {
			candidates = append(candidates, t.newItem(KindEndOfAuthority, int64(sec.ID()), 0, e.Start-t.cfg.StopMargin))
			break
		}
		if t.ahead.train == nil {
			if ahead, ok := t.findAhead(e); ok {
				t.ahead = ahead
				keep := t.keepDistance(ahead.static)
				required := 0.
				if !ahead.static {
					required = min(ahead.speed, t.cfg.MaxFollowSpeed)
				}
				candidates = append(candidates, t.newItem(KindTrainAhead, int64(ahead.train.id), required, ahead.nearEnd-keep))
			}
		}
		for _, x := range sec.LevelCrossings() {
			offset := x
			if e.Direction == entity.Reverse {
				offset = sec.Length() - x
			}
			d := e.Start + offset
			if d <= t.distance || d > until || d > sp.End {
				continue
			}
			loc := path.Location{SubPath: t.subPath, RouteIndex: int32(i), SectionID: sec.ID(), Direction: e.Direction, Offset: offset}
			t.aux.CheckGenActions(SourceLevelCrossing, loc, d)
		}

		end := e.End()
		sig := sec.Signal(e.Direction)
		if sig == nil || end > sp.End || end <= t.distance {
			continue
		}
		if item, stop := t.signalItem(sm, sig, end); item != nil {
			candidates = append(candidates, item)
			blocked = stop
		}
	}

	if t.nextStop < len(t.stops) {
		st := t.stops[t.nextStop]
		switch {
		case st.subPath != t.subPath:
		case st.distance < t.distance-t.cfg.ClearingDistance:
			log.Warnf("%v passed stop %s at %.1f without stopping", t, st.name, st.distance)
			t.nextStop++
		case st.distance <= until:
			item := t.newItem(KindStationStop, int64(st.index), 0, st.distance)
			item.Station = st
			candidates = append(candidates, item)
		}
	}
	if sp.End <= until {
		kind := KindReversal
		if t.path.IsLastSubPath(t.subPath) {
			kind = KindEndOfRoute
		}
		candidates = append(candidates, t.newItem(kind, int64(t.subPath), 0, sp.End))
	}
	t.reconcile(candidates)
}

// signalItem 区段末端信号机对应的动作
// 参数：end-信号机所在位置的里程
// 返回：动作（可为nil），以及是否应停止继续扫描
func (t *Train) signalItem(sm entity.ISignalManager, sig entity.ISignal, end float64) (*ActionItem, bool) {
	if sig.ReservedFor() != t.id && !t.isDeferred(sig.ID()) {
		sm.RequestClear(sig.ID(), t)
	}
	source := int64(sig.ID())
	if sig.ReservedFor() == t.id {
		var item *ActionItem
		switch sig.Aspect() {
		case entity.AspectRestricted:
			item = t.newItem(KindSignalRestricted, source, t.cfg.RestrictedSpeed, end)
		case entity.AspectApproach:
			item = t.newItem(KindSpeedSignal, source, t.cfg.ApproachAspectSpeed, end)
		default:
			if limit := sig.SpeedLimit(); limit > 0 && limit < t.allowedMax {
				item = t.newItem(KindSpeedSignal, source, limit, end)
			}
		}
		if item != nil {
			item.Signal = sig
		}
		return item, false
	}
	item := t.newItem(KindSignalStop, source, 0, end-t.cfg.StopMargin)
	item.Signal = sig
	return item, true
}

// findAhead 区段上位于车头前方最近的其他列车
func (t *Train) findAhead(e *path.Element) (aheadInfo, bool) {
	best := aheadInfo{nearEnd: mathutil.INF}
	for _, o := range e.Section.Occupants() {
		if o.Train.ID() == t.id {
			continue
		}
		near, far := o.From, o.To
		if e.Direction == entity.Reverse {
			near, far = e.Section.Length()-o.To, e.Section.Length()-o.From
		}
		if e.Start+far <= t.distance {
			continue
		}
		d := max(e.Start+near, t.distance)
		if d >= best.nearEnd {
			continue
		}
		other := t.manager.get(o.Train.ID())
		if other == nil {
			continue
		}
		best = aheadInfo{train: other, nearEnd: d, static: o.Train.IsStatic(), speed: o.Train.Speed()}
	}
	return best, best.train != nil
}

// sameItem 扫描结果与已有动作是否可视为同一动作
func sameItem(a, b *ActionItem) bool {
	return mathutil.Abs(a.ActivateDistance-b.ActivateDistance) <= sameActivateDelta &&
		mathutil.Abs(a.RequiredSpeed-b.RequiredSpeed) <= 0.01
}

// reconcile 对照扫描结果与已有动作
// 算法说明：
// 1. 已有的扫描类动作若本步仍存在且生效点、要求速度基本不变，保留原动作；
//    但仍在队列中且新的触发点更早时，由新动作替换
// 2. 否则移除；若被移除的是起支配作用的动作，记录重新启动的原因
// 3. 新出现的动作插入队列
func (t *Train) reconcile(candidates []*ActionItem) {
	want := make(map[actionKey]*ActionItem, len(candidates))
	for _, c := range candidates {
		if old, ok := want[keyOf(c)]; ok && old.ActivateDistance <= c.ActivateDistance {
			continue
		}
		want[keyOf(c)] = c
	}
	existing := make(map[actionKey]bool)
	check := func(item *ActionItem, queued bool) bool {
		if !item.Kind.scanOwned() {
			return true
		}
		key := keyOf(item)
		if c, ok := want[key]; ok && sameItem(item, c) {
			// 允许速度升高后触发点提前，用新动作替换仍在队列中的旧动作
			if queued && c.TriggerDistance < item.TriggerDistance-sameActivateDelta {
				return false
			}
			existing[key] = true
			return true
		}
		if t.governing != nil && keyOf(t.governing) == key {
			t.resumeReason = resumeReasonOf(item.Kind)
			if _, ok := want[actionKey{KindSignalRestricted, item.Source}]; ok && item.Kind == KindSignalStop {
				t.resumeReason = ResumeSignalRestricted
			}
		}
		return false
	}
	for _, item := range t.queue.Items() {
		if !check(item, true) {
			t.queue.Remove(item)
		}
	}
	kept := t.active[:0]
	for _, item := range t.active {
		if check(item, false) {
			kept = append(kept, item)
		}
	}
	t.active = kept
	for _, c := range candidates {
		key := keyOf(c)
		if existing[key] || want[key] != c {
			continue
		}
		t.queue.Insert(c)
	}
}

// advanceAuxTriggers 辅助动作的停车动作随允许速度升高提前触发
// 说明：辅助动作不由扫描重新生成，触发点在这里按当前速度重新计算
func (t *Train) advanceAuxTriggers() {
	p := t.itemParams(0)
	v := max(p.speed, p.allowedMax)
	for _, item := range t.queue.Items() {
		if item.Kind != KindAuxiliary || item.Aux == nil {
			continue
		}
		trigger := item.ActivateDistance - brakingDistance(v, item.RequiredSpeed, p.k, p.maxDecel) - p.margin
		if trigger >= item.TriggerDistance-sameActivateDelta {
			continue
		}
		moved := *item
		moved.TriggerDistance = trigger
		t.queue.Remove(item)
		t.queue.Insert(&moved)
		item.Aux.item = &moved
	}
}
