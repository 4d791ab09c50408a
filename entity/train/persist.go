package train

import (
	"fmt"
	"io"
	"slices"

	"github.com/klauspost/compress/zstd"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	saveMagic   = "railsim-ai"
	saveVersion = 1
)

// saveWriter 按顺序写入字段的msgpack流，出错后忽略后续写入
type saveWriter struct {
	enc *msgpack.Encoder
	err error
}

func (w *saveWriter) int(v int64) {
	if w.err == nil {
		w.err = w.enc.EncodeInt(v)
	}
}

func (w *saveWriter) float(v float64) {
	if w.err == nil {
		w.err = w.enc.EncodeFloat64(v)
	}
}

func (w *saveWriter) bool(v bool) {
	if w.err == nil {
		w.err = w.enc.EncodeBool(v)
	}
}

func (w *saveWriter) string(v string) {
	if w.err == nil {
		w.err = w.enc.EncodeString(v)
	}
}

// saveReader 按写入顺序读取字段，出错后返回零值
type saveReader struct {
	dec *msgpack.Decoder
	err error
}

func (r *saveReader) int() int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeInt64()
	r.err = err
	return v
}

func (r *saveReader) int32() int32 {
	return int32(r.int())
}

func (r *saveReader) float() float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeFloat64()
	r.err = err
	return v
}

func (r *saveReader) bool() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.DecodeBool()
	r.err = err
	return v
}

func (r *saveReader) string() string {
	if r.err != nil {
		return ""
	}
	v, err := r.dec.DecodeString()
	r.err = err
	return v
}

// count 读取列表长度，超出合理范围时报错
func (r *saveReader) count() int {
	n := r.int()
	if r.err == nil && (n < 0 || n > 1<<24) {
		r.err = fmt.Errorf("bad list length %d", n)
		return 0
	}
	return int(n)
}

// Save 保存全部列车的运行状态
// 说明：格式为有序字段流，列表前写入长度；信号的预留不保存，恢复后由扫描重新请求
func (m *TrainManager) Save(w io.Writer) error {
	sw := &saveWriter{enc: msgpack.NewEncoder(w)}
	sw.string(saveMagic)
	sw.int(saveVersion)
	sw.int(int64(m.nextTrainID))
	trains := lo.Filter(append(lo.Values(m.data), m.trainInserted...), func(t *Train, _ int) bool {
		return !t.removed.Load()
	})
	slices.SortFunc(trains, func(a, b *Train) int { return int(a.id - b.id) })
	sw.int(int64(len(trains)))
	for _, t := range trains {
		t.save(sw)
	}
	if sw.err != nil {
		return fmt.Errorf("save trains: %w", sw.err)
	}
	return nil
}

// Load 恢复全部列车的运行状态
// 说明：须在以相同输入Init之后、下一步开始之前调用
func (m *TrainManager) Load(r io.Reader) error {
	sr := &saveReader{dec: msgpack.NewDecoder(r)}
	if magic, version := sr.string(), sr.int(); sr.err == nil && (magic != saveMagic || version != saveVersion) {
		return fmt.Errorf("%w: %q version %d", ErrBadSaveVersion, magic, version)
	}
	nextID := sr.int32()
	n := sr.count()
	loaded := make([]*Train, 0, n)
	for i := 0; i < n && sr.err == nil; i++ {
		t, err := m.loadTrain(sr)
		if err != nil {
			return err
		}
		loaded = append(loaded, t)
	}
	if sr.err != nil {
		return fmt.Errorf("load trains: %w", sr.err)
	}

	m.nextTrainID = nextID
	m.data = lo.SliceToMap(loaded, func(t *Train) (int32, *Train) { return t.id, t })
	m.trains = container.NewIncrementalArray[*Train]()
	m.waiting = container.NewPriorityQueue[*Train]()
	m.trainInserted = []*Train{}
	for _, t := range loaded {
		if t.isAI() && !t.started {
			m.waiting.Push(t, t.startTime)
		} else {
			m.trains.Add(t)
		}
		t.prepare()
	}
	m.waiting.Heapify()
	m.trains.Prepare()
	m.order()
	log.Infof("loaded %d trains, %d waiting", len(loaded), m.waiting.Len())
	return nil
}

func (t *Train) save(w *saveWriter) {
	w.int(int64(t.id))
	w.string(t.name)
	w.int(int64(t.class))
	w.int(int64(t.cars))
	w.float(t.length)
	w.bool(t.isAI())
	w.bool(t.started)
	w.int(int64(t.state))
	saveSpans(w, t.spans)
	if !t.isAI() {
		return
	}
	w.int(int64(t.subPath))
	w.float(t.distance)
	w.float(t.physics.Speed())
	w.float(t.physics.ThrottlePercent())
	w.float(t.physics.BrakePercent())
	w.float(t.efficiency)
	w.float(t.allowedMax)
	w.float(t.signalLimit)
	w.float(t.resumeLimit)
	w.float(t.resumeLimitUntil)
	w.int(int64(t.resumeReason))
	w.int(int64(t.nextStop))
	w.bool(t.attachRequested)
	w.bool(t.released.Load())
	w.float(t.throttleCapUntil)
	w.bool(t.doorsOpen)
	w.bool(t.hornOn)
	w.bool(t.bellOn)
	if t.overrunSignal != nil {
		w.int(int64(t.overrunSignal.ID()))
	} else {
		w.int(0)
	}
	w.float(t.overrunAt)

	w.int(int64(len(t.stops)))
	for _, st := range t.stops {
		w.float(st.actualArrival)
		w.float(st.actualDepart)
	}
	if t.station != nil {
		w.int(int64(t.station.index))
	} else {
		w.int(-1)
	}
	w.int(int64(t.stationPhase))
	w.float(t.phaseUntil)
	w.float(t.stationDepart)

	t.aux.save(w)
	if t.currentAux != nil {
		w.int(int64(t.currentAux.ref))
	} else {
		w.int(-1)
	}
	items := t.queue.Items()
	w.int(int64(len(items)))
	for _, item := range items {
		saveItem(w, item)
	}
	w.int(int64(len(t.active)))
	for _, item := range t.active {
		saveItem(w, item)
	}
}

func saveSpans(w *saveWriter, spans []occSpan) {
	w.int(int64(len(spans)))
	for _, s := range spans {
		w.int(int64(s.section.ID()))
		w.float(s.from)
		w.float(s.to)
	}
}

func saveItem(w *saveWriter, item *ActionItem) {
	w.int(int64(item.Kind))
	w.int(item.Source)
	w.float(item.RequiredSpeed)
	w.float(item.TriggerDistance)
	w.float(item.ActivateDistance)
	w.float(item.InsertedAtDistance)
	if item.Signal != nil {
		w.int(int64(item.Signal.ID()))
	} else {
		w.int(0)
	}
	if item.Station != nil {
		w.int(int64(item.Station.index))
	} else {
		w.int(-1)
	}
	if item.Aux != nil {
		w.int(int64(item.Aux.ref))
	} else {
		w.int(-1)
	}
}

// loadTrain 读取一趟列车
// 说明：输入中的列车在其上恢复状态；存档中多出的静止车辆（解编产生）重新创建
func (m *TrainManager) loadTrain(r *saveReader) (*Train, error) {
	id := r.int32()
	name := r.string()
	class := entity.CarClass(r.int())
	cars := r.int32()
	length := r.float()
	isAI := r.bool()
	started := r.bool()
	state := MovementState(r.int())
	spans, err := m.loadSpans(r)
	if r.err != nil {
		return nil, fmt.Errorf("load train %d: %w", id, r.err)
	}
	if err != nil {
		return nil, fmt.Errorf("load train %d: %w", id, err)
	}
	t := m.data[id]
	if !isAI {
		if t == nil || t.isAI() {
			cfg := &m.ctx.RuntimeConfig().AI
			t = &Train{
				ctx:       m.ctx,
				manager:   m,
				cfg:       cfg,
				metrics:   m.ctx.Metrics(),
				seed:      m.trainSeed(id),
				id:        id,
				name:      name,
				class:     class,
				maxSpeed:  defaultMaxSpeed,
				physics:   NewSimplePhysics(class, cfg.Class(class.String()), defaultMaxSpeed),
				queue:     NewActionQueue("static"),
				deferred:  make(map[int32]int),
			}
		}
		t.cars, t.length, t.carLength = cars, length, length/float64(max(cars, 1))
		t.state = StateStatic
		t.spans = spans
		return t, nil
	}
	if t == nil || !t.isAI() {
		return nil, fmt.Errorf("load train %d: not an AI train in the input", id)
	}
	t.cars, t.length = cars, length
	t.started = started
	t.state = state
	t.spans = spans
	t.prevSpans = spans
	if err := t.load(r); err != nil {
		return nil, fmt.Errorf("load %v: %w", t, err)
	}
	return t, nil
}

func (m *TrainManager) loadSpans(r *saveReader) ([]occSpan, error) {
	n := r.count()
	spans := make([]occSpan, 0, n)
	for i := 0; i < n; i++ {
		id, from, to := r.int32(), r.float(), r.float()
		if r.err != nil {
			return nil, r.err
		}
		sec, err := m.ctx.SectionManager().GetOrError(id)
		if err != nil {
			return nil, err
		}
		spans = append(spans, occSpan{section: sec, from: from, to: to})
	}
	return spans, nil
}

// load 恢复AI列车的运行状态，读取顺序与save的写入顺序一致
func (t *Train) load(r *saveReader) error {
	t.subPath = r.int32()
	if t.path.SubPath(t.subPath) == nil {
		return fmt.Errorf("bad sub path %d", t.subPath)
	}
	t.distance = r.float()
	t.physics.SetFixedSpeed(r.float())
	t.physics.SetThrottlePercent(r.float())
	t.physics.SetBrakePercent(r.float())
	t.efficiency = r.float()
	t.allowedMax = r.float()
	t.signalLimit = r.float()
	t.resumeLimit = r.float()
	t.resumeLimitUntil = r.float()
	t.resumeReason = ResumeReason(r.int())
	t.nextStop = int(r.int())
	t.attachRequested = r.bool()
	t.released.Store(r.bool())
	t.throttleCapUntil = r.float()
	t.doorsOpen = r.bool()
	t.hornOn = r.bool()
	t.bellOn = r.bool()
	t.overrunSignal = t.signalOrNil(r.int32())
	t.overrunAt = r.float()

	if n := r.count(); n != len(t.stops) && r.err == nil {
		return fmt.Errorf("%d stops saved, %d in input", n, len(t.stops))
	}
	for _, st := range t.stops {
		st.actualArrival = r.float()
		st.actualDepart = r.float()
	}
	t.station = nil
	if i := int(r.int()); i >= 0 && i < len(t.stops) {
		t.station = t.stops[i]
	}
	t.stationPhase = stationPhase(r.int())
	t.phaseUntil = r.float()
	t.stationDepart = r.float()

	t.deferred = make(map[int32]int)
	if err := t.aux.load(r); err != nil {
		return err
	}
	t.currentAux = nil
	if ref := r.int(); ref >= 0 {
		t.currentAux = t.aux.specLive[AuxRefID(ref)]
	}
	t.queue.CancelAll()
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		t.queue.Insert(t.loadItem(r))
	}
	n = r.count()
	t.active = make([]*ActionItem, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		t.active = append(t.active, t.loadItem(r))
	}
	t.governing = t.foldGoverning()
	return r.err
}

func (t *Train) signalOrNil(id int32) entity.ISignal {
	if id == 0 {
		return nil
	}
	sig, err := t.ctx.SignalManager().GetOrError(id)
	if err != nil {
		log.Warnf("%v: %v", t, err)
		return nil
	}
	return sig
}

func (t *Train) loadItem(r *saveReader) *ActionItem {
	item := &ActionItem{
		Kind:               ActionKind(r.int()),
		Source:             r.int(),
		RequiredSpeed:      r.float(),
		TriggerDistance:    r.float(),
		ActivateDistance:   r.float(),
		InsertedAtDistance: r.float(),
	}
	item.Signal = t.signalOrNil(r.int32())
	if i := int(r.int()); i >= 0 && i < len(t.stops) {
		item.Station = t.stops[i]
	}
	if ref := r.int(); ref >= 0 {
		if inst := t.aux.specLive[AuxRefID(ref)]; inst != nil {
			item.Aux = inst
			inst.item = item
		}
	}
	return item
}

// save 写入容器的运行状态；引用本身由输入重建，只写入尚未完成的专用引用
func (c *AuxActionsContainer) save(w *saveWriter) {
	w.int(int64(len(c.specRefs)))
	for _, id := range c.specRefs {
		w.int(int64(id))
	}
	saveInstances(w, c.specTriggered)
	saveInstances(w, c.specQueue.Values())
	saveInstances(w, c.genTriggered)
	saveInstances(w, c.genQueue.Values())
	keys := lo.Keys(c.activated)
	slices.SortFunc(keys, compareGenKey)
	w.int(int64(len(keys)))
	for _, k := range keys {
		saveGenKey(w, k)
	}
}

func compareGenKey(a, b genKey) int {
	switch {
	case a.Ref != b.Ref:
		return int(a.Ref - b.Ref)
	case a.SubPath != b.SubPath:
		return int(a.SubPath - b.SubPath)
	case a.RouteIndex != b.RouteIndex:
		return int(a.RouteIndex - b.RouteIndex)
	}
	return int(a.Offset - b.Offset)
}

func saveGenKey(w *saveWriter, k genKey) {
	w.int(int64(k.Ref))
	w.int(int64(k.SubPath))
	w.int(int64(k.RouteIndex))
	w.int(int64(k.Offset))
}

func saveInstances(w *saveWriter, insts []*AuxActionInstance) {
	w.int(int64(len(insts)))
	for _, inst := range insts {
		w.int(int64(inst.ref))
		w.bool(inst.generic)
		saveGenKey(w, inst.key)
		w.bool(inst.triggered)
		w.bool(inst.processing)
		w.int(int64(inst.subState))
		w.float(inst.actualDepartClock)
		w.float(inst.activateDistance)
		w.float(inst.triggerDistance)
		if inst.lockedSignal != nil {
			w.int(int64(inst.lockedSignal.ID()))
		} else {
			w.int(0)
		}
		w.int(int64(inst.delegated))
		w.int(int64(inst.prevState))
		w.bool(inst.prevSaved)
		w.bool(inst.horn != nil)
		if h := inst.horn; h != nil {
			w.int(int64(h.stepIndex))
			w.float(h.nextWake)
			w.float(h.start)
			w.bool(h.bell)
			w.int(int64(len(h.steps)))
			for _, s := range h.steps {
				w.int(int64(s.effect))
				w.float(s.wait)
			}
		}
	}
}

// load 恢复容器的运行状态
// 说明：恢复的锁闭与委托重新登记到信号机与列车上
func (c *AuxActionsContainer) load(r *saveReader) error {
	t := c.train
	c.specLive = make(map[AuxRefID]*AuxActionInstance)
	c.genLive = make(map[genKey]*AuxActionInstance)
	c.activated = make(map[genKey]bool)
	c.specQueue.Clear()
	c.genQueue.Clear()

	n := r.count()
	c.specRefs = make([]AuxRefID, 0, n)
	for i := 0; i < n; i++ {
		id := AuxRefID(r.int())
		if r.err == nil && (id < 0 || int(id) >= len(c.refs)) {
			return fmt.Errorf("bad aux ref %d", id)
		}
		c.specRefs = append(c.specRefs, id)
	}
	var err error
	if c.specTriggered, err = c.loadInstances(r, nil); err != nil {
		return err
	}
	if _, err = c.loadInstances(r, c.specQueue); err != nil {
		return err
	}
	if c.genTriggered, err = c.loadInstances(r, nil); err != nil {
		return err
	}
	if _, err = c.loadInstances(r, c.genQueue); err != nil {
		return err
	}
	n = r.count()
	for i := 0; i < n; i++ {
		c.activated[loadGenKey(r)] = true
	}
	sm := t.ctx.SignalManager()
	for _, inst := range c.specLive {
		if inst.lockedSignal != nil {
			sm.LockForTrain(inst.lockedSignal.ID(), t.id)
		}
		if inst.delegated != 0 {
			t.deferSignal(inst.delegated, true)
		}
	}
	return r.err
}

func loadGenKey(r *saveReader) genKey {
	return genKey{Ref: AuxRefID(r.int()), SubPath: r.int32(), RouteIndex: r.int32(), Offset: r.int32()}
}

// loadInstances 读取一组实例；queue非空时按读取顺序放回触发队列
func (c *AuxActionsContainer) loadInstances(r *saveReader, queue *container.List[*AuxActionInstance, struct{}]) ([]*AuxActionInstance, error) {
	n := r.count()
	insts := make([]*AuxActionInstance, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		ref := AuxRefID(r.int())
		if r.err == nil && (ref < 0 || int(ref) >= len(c.refs)) {
			return nil, fmt.Errorf("bad aux ref %d", ref)
		}
		inst := &AuxActionInstance{
			ref:               ref,
			kind:              c.refs[ref].Kind,
			generic:           r.bool(),
			key:               loadGenKey(r),
			triggered:         r.bool(),
			processing:        r.bool(),
			subState:          auxSubState(r.int()),
			actualDepartClock: r.float(),
			activateDistance:  r.float(),
			triggerDistance:   r.float(),
		}
		inst.lockedSignal = c.train.signalOrNil(r.int32())
		inst.delegated = r.int32()
		inst.prevState = MovementState(r.int())
		inst.prevSaved = r.bool()
		if r.bool() {
			h := &hornExecutor{
				stepIndex: int(r.int()),
				nextWake:  r.float(),
				start:     r.float(),
				bell:      r.bool(),
			}
			m := r.count()
			h.steps = make([]hornStep, 0, m)
			for j := 0; j < m; j++ {
				h.steps = append(h.steps, hornStep{effect: hornEffect(r.int()), wait: r.float()})
			}
			inst.horn = h
		}
		if inst.generic {
			c.genLive[inst.key] = inst
		} else {
			c.specLive[inst.ref] = inst
		}
		if queue != nil {
			inst.node = &auxNode{S: inst.triggerDistance, Value: inst}
			queue.PushBack(inst.node)
		}
		insts = append(insts, inst)
	}
	return insts, r.err
}

// SaveCompressed 以zstd压缩保存
func (m *TrainManager) SaveCompressed(w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := m.Save(zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// LoadCompressed 读取zstd压缩的存档
func (m *TrainManager) LoadCompressed(r io.Reader) error {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return err
	}
	defer zr.Close()
	return m.Load(zr)
}
