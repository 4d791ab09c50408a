package train

// 仲裁规则名，同时作为指标标签
const (
	ruleExitSignal   = "exit_signal"
	ruleHeldSignal   = "held_signal"
	ruleEndOfRoute   = "end_of_route"
	ruleLinkedSignal = "linked_signal"
	ruleDefault      = "default"
)

// mergeAt 以base的语义、两者中较近的生效点构造新动作
func mergeAt(base, other *ActionItem) *ActionItem {
	merged := *base
	merged.ActivateDistance = min(base.ActivateDistance, other.ActivateDistance)
	merged.TriggerDistance = min(base.TriggerDistance, other.TriggerDistance)
	merged.RequiredSpeed = min(base.RequiredSpeed, other.RequiredSpeed)
	return &merged
}

// pick 把a、b按类别整理为(x, y)，x的类别为kx
func pick(a, b *ActionItem, kx, ky ActionKind) (x, y *ActionItem, ok bool) {
	switch {
	case a.Kind == kx && b.Kind == ky:
		return a, b, true
	case b.Kind == kx && a.Kind == ky:
		return b, a, true
	}
	return nil, nil, false
}

// arbitrate 两个同时有效的动作中选出起支配作用的一个
// 参数：a-当前起支配作用的动作，b-新加入的动作，clearing-越过停车点的容许距离
// 返回：起支配作用的动作（可能为合并后的新动作）与命中的规则
// 算法说明：按以下顺序逐条匹配，均不匹配时取(生效点, 严重程度)最小者，完全相同时保留a
// 1. 本站出站信号的信号停车并入车站停车，取较近的生效点，保留车站停车语义
// 2. 被扣停或锁闭的信号停车不远于车站停车(+容许距离)时优先于车站停车
// 3. 车站停车不远于路径终点(+容许距离)时优先于路径终点
// 4. 锁闭或委托了某信号的辅助动作与该信号的信号停车合并，取较近的生效点，保留辅助动作语义
func arbitrate(a, b *ActionItem, clearing float64) (*ActionItem, string) {
	if s, st, ok := pick(a, b, KindSignalStop, KindStationStop); ok {
		if s.Signal != nil && st.Station != nil && st.Station.exitSignal == s.Signal.ID() {
			return mergeAt(st, s), ruleExitSignal
		}
		if s.Signal != nil && s.Signal.IsHeld() && s.ActivateDistance <= st.ActivateDistance+clearing {
			return s, ruleHeldSignal
		}
	}
	if eor, st, ok := pick(a, b, KindEndOfRoute, KindStationStop); ok {
		if st.ActivateDistance <= eor.ActivateDistance+clearing {
			return st, ruleEndOfRoute
		}
	}
	if aux, s, ok := pick(a, b, KindAuxiliary, KindSignalStop); ok {
		if aux.Aux != nil && s.Signal != nil && aux.Aux.linkedSignalID() == s.Signal.ID() {
			return mergeAt(aux, s), ruleLinkedSignal
		}
	}
	if b.ActivateDistance < a.ActivateDistance ||
		(b.ActivateDistance == a.ActivateDistance && b.Kind.severity() < a.Kind.severity()) {
		return b, ruleDefault
	}
	return a, ruleDefault
}

// foldGoverning 对所有有效动作两两仲裁
// 返回：起支配作用的动作，没有有效动作时为nil
func (t *Train) foldGoverning() *ActionItem {
	var governing *ActionItem
	for _, item := range t.active {
		if governing == nil {
			governing = item
			continue
		}
		var rule string
		governing, rule = arbitrate(governing, item, t.cfg.ClearingDistance)
		if rule != ruleDefault {
			t.metrics.Arbitrated(rule)
		}
	}
	return governing
}
