package train

import (
	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
)

// updateInit INIT：设定初速度并放置辅助动作
func (t *Train) updateInit() bool {
	t.physics.SetFixedSpeed(t.initialSpeed)
	if t.aux != nil {
		t.aux.SetAuxAction()
	}
	t.resumeReason = ResumeNew
	if t.initialSpeed > 0 {
		t.state = StateAccelerating
		return true
	}
	t.state = StateStopped
	return false
}

// consumable 到达生效点后即完成的停车动作
func (k ActionKind) consumable() bool {
	switch k {
	case KindStationStop, KindAuxiliary, KindReversal, KindEndOfRoute:
		return true
	}
	return false
}

// updateStopped STOPPED：停车等待，自行查询前方状态决定何时以及以何种方式重新启动
// 算法说明：
// 1. 停车点在MinStopDistance内：可完成的动作立即到达；停在信号前时查询该信号，其余继续等待
// 2. 前方行车许可（未为本车开放的信号、他车预留的区段、停着的前车）不足MinStopDistance时继续等待
// 3. 否则按重新启动的原因出发
func (t *Train) updateStopped() bool {
	t.setControls(0, 100)
	if g := t.governing; g != nil && g.isStop() && g.ActivateDistance-t.distance < t.cfg.MinStopDistance {
		switch {
		case g.Kind.consumable():
			t.arrive(g)
			return t.state != StateStopped
		case g.Signal != nil:
			t.querySignal(g.Signal)
		}
		return false
	}
	auth := t.authorityAhead()
	if auth.distance-t.distance < t.cfg.MinStopDistance {
		if auth.signal != nil {
			t.querySignal(auth.signal)
		}
		return false
	}
	return t.resume()
}

// authority 停车时查询到的前方行车许可终点
type authority struct {
	distance float64
	kind     ActionKind
	signal   entity.ISignal
}

// authorityAhead 从车头起在前瞻范围内查找行车许可终点
// 返回：第一个他车预留的区段起点、未为本车开放的信号机停车点，以及停着的前车保持距离处中最近者；
// 均不存在时距离为无穷远
func (t *Train) authorityAhead() authority {
	auth := authority{distance: mathutil.INF}
	sp := t.path.SubPath(t.subPath)
	until := t.distance + t.cfg.MinLookAhead
	for i := sp.ElementIndex(t.distance); i < len(sp.Elements); i++ {
		e := &sp.Elements[i]
		if e.Start > until || e.Start >= sp.End {
			break
		}
		if r := e.Section.ReservedBy(); r != 0 && r != t.id && e.Start > t.distance {
			auth = authority{distance: e.Start - t.cfg.StopMargin, kind: KindEndOfAuthority}
			break
		}
		end := e.End()
		if sig := e.Section.Signal(e.Direction); sig != nil && end > t.distance && end <= sp.End && sig.ReservedFor() != t.id {
			auth = authority{distance: end - t.cfg.StopMargin, kind: KindSignalStop, signal: sig}
			break
		}
	}
	if ah := t.ahead; ah.train != nil && (ah.static || ah.speed < t.cfg.StoppedSpeed) {
		if d := ah.nearEnd - t.keepDistance(ah.static); d < auth.distance {
			auth = authority{distance: d, kind: KindTrainAhead}
		}
	}
	return auth
}

// querySignal 停在信号机前时查询：请求开放，仍为停车显示的容许信号请求以限制显示进入
func (t *Train) querySignal(sig entity.ISignal) {
	if sig.ReservedFor() == t.id || t.isDeferred(sig.ID()) {
		return
	}
	sm := t.ctx.SignalManager()
	if !sm.RequestClear(sig.ID(), t).IsStop() {
		return
	}
	if sig.Permissive() && sm.RequestPermission(sig.ID(), t) {
		log.Debugf("%v: permission to pass %v", t, sig)
	}
}

// resume 按重新启动的原因出发
// 算法说明：
// 1. 前方列车：转为FOLLOWING接近前车
// 2. 信号限制显示：车尾越过该信号机之前不超过限制速度
// 3. 转车台：车尾离开转车台之前不超过转车台速度
// 4. 其余：转为加速
func (t *Train) resume() bool {
	log.Debugf("%v resumes: %v", t, t.resumeReason)
	switch t.resumeReason {
	case ResumeFollowTrain:
		if t.ahead.train != nil {
			t.state = StateFollowing
			return true
		}
	case ResumeSignalRestricted:
		if sig, end := t.nextSignalAt(); sig != nil && sig.ReservedFor() == t.id {
			t.limitUntil(t.cfg.RestrictedSpeed, end+t.length)
		}
	case ResumeTurntable:
		if end, ok := t.movableTableEnd(); ok {
			t.limitUntil(t.cfg.MovableTableSpeed, end+t.length)
		}
	}
	t.state = StateAccelerating
	return true
}

// limitUntil 车头到达until之前允许速度不超过v
func (t *Train) limitUntil(v, until float64) {
	t.resumeLimit = v
	t.resumeLimitUntil = until
}

// movableTableEnd 车头前方第一处转车台的终点里程
func (t *Train) movableTableEnd() (float64, bool) {
	sp := t.path.SubPath(t.subPath)
	until := t.distance + t.cfg.MinLookAhead
	for i := sp.ElementIndex(t.distance); i < len(sp.Elements) && sp.Elements[i].Start <= until; i++ {
		if e := &sp.Elements[i]; e.Section.IsMovableTable() {
			return e.End(), true
		}
	}
	return 0, false
}

// arrive 在停车动作的生效点停稳
func (t *Train) arrive(item *ActionItem) {
	t.setControls(0, 100)
	switch item.Kind {
	case KindStationStop:
		t.consume(item)
		t.enterStation(item.Station)
	case KindAuxiliary:
		t.consume(item)
		t.currentAux = item.Aux
		t.state = StateInitAction
	case KindReversal:
		t.consume(item)
		t.reverse()
	case KindEndOfRoute:
		t.consume(item)
		t.finishRoute()
	case KindTrainAhead:
		t.state = StateStopped
		t.resumeReason = ResumeFollowTrain
	default:
		// 信号、阻挡点等：停车等待其被取代
		t.state = StateStopped
		t.resumeReason = resumeReasonOf(item.Kind)
	}
}

// enterStation 开始停站
func (t *Train) enterStation(st *stationStop) {
	now := t.ctx.Clock().T
	st.actualArrival = now
	t.station = st
	t.nextStop = st.index + 1
	t.state = StateStationStop
	t.stationPhase = phaseDoorsOpening
	t.phaseUntil = now + t.cfg.DoorOpenTime
	dwell := st.dwell
	if dwell <= 0 {
		dwell = t.cfg.MinDwellTime
	}
	t.stationDepart = max(st.departure, now+dwell)
	log.Infof("%v arrives at %s, departs at %.0f", t, st.name, t.stationDepart)
}

// updateStationStop STATION_STOP：开门、停站、关门、等待出站信号
func (t *Train) updateStationStop() bool {
	t.setControls(0, 100)
	st := t.station
	if st == nil {
		t.state = StateStopped
		return true
	}
	now := t.ctx.Clock().T
	switch t.stationPhase {
	case phaseDoorsOpening:
		if now >= t.phaseUntil {
			t.doorsOpen = true
			t.stationPhase = phaseDwelling
		}
	case phaseDwelling:
		if now >= t.stationDepart {
			t.stationPhase = phaseDoorsClosing
			t.phaseUntil = now + t.cfg.DoorCloseTime
		}
	case phaseDoorsClosing:
		if now >= t.phaseUntil {
			t.doorsOpen = false
			t.stationPhase = phaseWaitSignal
		}
	case phaseWaitSignal:
		t.resumeReason = ResumeNew
		if st.exitSignal != 0 {
			if t.ctx.SignalManager().RequestClear(st.exitSignal, t).IsStop() {
				return false
			}
			t.resumeReason = ResumeSignalCleared
		}
		st.actualDepart = now
		if st.departure > 0 {
			t.metrics.Departed(now - st.departure)
		}
		t.station = nil
		t.state = StateStopped
		return true
	}
	return false
}

// reverse 在折返点换向，进入下一子路径
// 说明：车尾成为新的车头，里程增加一个车长；动作全部重新生成
func (t *Train) reverse() {
	if t.path.IsLastSubPath(t.subPath) {
		t.finishRoute()
		return
	}
	t.subPath++
	t.distance += t.length
	t.signalLimit = 0
	t.limitUntil(0, 0)
	t.physics.SetFixedSpeed(0)
	t.ResetActions()
	t.aux.onSubPathChange()
	t.aux.SetAuxAction()
	t.state = StateStopped
	t.resumeReason = ResumeNew
	log.Infof("%v reverses into sub path %d at %.1f", t, t.subPath, t.distance)
}

// finishRoute 到达路径终点，转为静止
func (t *Train) finishRoute() {
	t.physics.SetFixedSpeed(0)
	t.queue.CancelAll()
	t.active = t.active[:0]
	t.governing = nil
	if t.aux != nil {
		t.aux.Clear()
	}
	t.state = StateStatic
	log.Infof("%v reaches end of route at %.1f", t, t.distance)
}
