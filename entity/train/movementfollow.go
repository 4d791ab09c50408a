package train

// keepDistance 与前方列车的保持距离
func (t *Train) keepDistance(static bool) float64 {
	switch {
	case !static:
		return t.cfg.MovingKeepDistance
	case t.attachRequested:
		return 0
	case t.class.IsFreight():
		return t.cfg.StaticKeepDistanceFreight
	}
	return t.cfg.StaticKeepDistancePassenger
}

// updateFollowing FOLLOWING：跟随前方列车，或接近静止车辆连挂
// 算法说明：
// 1. 起支配作用的不再是前方列车时回到BRAKING
// 2. 请求连挂且前方为静止车辆：几何条件不满足时放弃连挂；否则以连挂速度接近，间隔小于连挂距离时连挂
// 3. 前方车辆停着：在保持距离处停车，距保持距离不足CreepDistance时以蠕行速度接近
// 4. 前方车辆在运行：目标速度不超过跟车最高速度，距离不足时不超过前车速度
func (t *Train) updateFollowing(dt float64) bool {
	g := t.governing
	if g == nil || g.Kind != KindTrainAhead || t.ahead.train == nil {
		t.state = StateBraking
		return true
	}
	v := t.physics.Speed()
	gap := t.ahead.nearEnd - t.distance
	target := t.idealTarget()
	switch {
	case t.attachRequested && t.ahead.static:
		if !t.canCouple(t.ahead.train) {
			log.Warnf("%v cannot couple with %v: beyond end of sub path", t, t.ahead.train)
			t.attachRequested = false
			return false
		}
		if gap <= t.cfg.CouplingDistance {
			t.couple(t.ahead.train)
			return false
		}
		target = min(target, max(t.cfg.CouplingSpeed, t.idealSpeedAt(gap-t.cfg.CouplingDistance, t.cfg.CouplingSpeed)))
		if gap < t.cfg.CreepDistance {
			target = min(target, t.cfg.CreepSpeed)
		}
	case t.ahead.static || t.ahead.speed < t.cfg.StoppedSpeed:
		rest := gap - t.keepDistance(t.ahead.static)
		if rest < t.cfg.MinStopDistance {
			t.setControls(0, 100)
			if v < t.cfg.StoppedSpeed {
				t.arrive(g)
			}
			return false
		}
		if rest < t.cfg.CreepDistance {
			target = min(target, t.cfg.CreepSpeed)
		}
	default:
		target = min(target, t.cfg.MaxFollowSpeed)
		if gap < t.keepDistance(false) {
			target = min(target, t.ahead.speed)
		}
	}
	throttle, brake := bandControl(bandInput{
		v:          v,
		ideal:      target,
		allowedMax: t.allowedMax,
		throttle:   t.physics.ThrottlePercent(),
		brake:      t.physics.BrakePercent(),
		efficiency: t.efficiency,
		dt:         dt,
	}, t.cfg)
	t.setControls(throttle, brake)
	return false
}

// canCouple 连挂后车头不越过当前子路径终点
func (t *Train) canCouple(other *Train) bool {
	sp := t.path.SubPath(t.subPath)
	return !other.removed.Load() && t.ahead.nearEnd+other.length <= sp.End+t.cfg.ClearingDistance
}

// idealSpeedAt 距离distanceToGo处达到requiredSpeed的理想速度
func (t *Train) idealSpeedAt(distanceToGo, requiredSpeed float64) float64 {
	return idealSpeed(distanceToGo, requiredSpeed, t.cfg.BrakingLagFactor, t.physics.MaxDecel())
}

// couple 与前方静止车辆连挂
// 功能：吸收其车辆，车头前移到其远端，静止车辆由管理器移除
func (t *Train) couple(other *Train) {
	if !t.manager.remove(other, "coupled") {
		return
	}
	t.distance = t.ahead.nearEnd + other.length
	t.cars += other.cars
	t.length += other.length
	t.attachRequested = false
	t.physics.SetFixedSpeed(0)
	t.ahead = aheadInfo{}
	t.state = StateStopped
	t.resumeReason = ResumeFollowTrain
	log.Infof("%v coupled with %v, %d cars", t, other, t.cars)
}

// uncouple 解编：列车保留前部继续运行，车尾方向的n辆车留在原地成为静止车辆
// 说明：至少保留一辆；被摘下的车辆位于列车身后，不会阻挡列车前进
func (t *Train) uncouple(n int32) {
	if n >= t.cars {
		log.Warnf("%v: cannot uncouple %d of %d cars, keep one", t, n, t.cars)
		n = t.cars - 1
	}
	if n <= 0 {
		return
	}
	cut := float64(n) * t.length / float64(t.cars)
	rear := t.distance - t.length
	spans := t.spansBetween(rear, rear+cut)
	t.cars -= n
	t.length -= cut
	t.spans = t.spansBetween(t.distance-t.length, t.distance)
	t.manager.addStatic(t, n, cut, spans)
	log.Infof("%v uncoupled %d cars, %d cars remain", t, n, t.cars)
}
