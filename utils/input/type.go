package input

// Section 区段（轨道电路）
type Section struct {
	ID             int32     `yaml:"id" bson:"id"`
	Length         float64   `yaml:"length" bson:"length"`                                       // 长度（米）
	MaxV           float64   `yaml:"max_v" bson:"max_v"`                                         // 线路限速（米/秒）
	MovableTable   bool      `yaml:"movable_table,omitempty" bson:"movable_table,omitempty"`     // 是否为转车台
	LevelCrossings []float64 `yaml:"level_crossings,omitempty" bson:"level_crossings,omitempty"` // 道口位置（沿正向的偏移）
}

// Signal 信号机，位于所在区段沿Direction方向的末端
type Signal struct {
	ID         int32   `yaml:"id" bson:"id"`
	SectionID  int32   `yaml:"section_id" bson:"section_id"`
	Direction  int32   `yaml:"direction" bson:"direction"`                           // 0:正向 1:反向
	Block      []int32 `yaml:"block" bson:"block"`                                   // 防护的闭塞分区（区段ID列表）
	NextSignal int32   `yaml:"next_signal,omitempty" bson:"next_signal,omitempty"`   // 闭塞分区出口的信号机，0表示无
	Permissive bool    `yaml:"permissive,omitempty" bson:"permissive,omitempty"`     // 容许信号，停车后可限速越过
	Hold       bool    `yaml:"hold,omitempty" bson:"hold,omitempty"`                 // 初始为人工扣停
	SpeedLimit float64 `yaml:"speed_limit,omitempty" bson:"speed_limit,omitempty"`   // 开放时的限速，0表示无
}

// PathElement 路径中的一个区段及其通过方向
type PathElement struct {
	SectionID int32 `yaml:"section_id" bson:"section_id"`
	Direction int32 `yaml:"direction,omitempty" bson:"direction,omitempty"`
}

// PathNode 路径节点
type PathNode struct {
	ID            int32   `yaml:"id,omitempty" bson:"id,omitempty"`
	Type          string  `yaml:"type" bson:"type"`                                         // normal/waiting_point/reversal
	SubPath       int32   `yaml:"sub_path" bson:"sub_path"`                                 // 所在子路径
	RouteIndex    int32   `yaml:"route_index" bson:"route_index"`                           // 在子路径中的区段下标
	SectionID     int32   `yaml:"section_id" bson:"section_id"`                             // 用于校验的区段ID
	Offset        float64 `yaml:"offset,omitempty" bson:"offset,omitempty"`                 // 沿通过方向的偏移
	WaitTime      int32   `yaml:"wait_time,omitempty" bson:"wait_time,omitempty"`           // 编码后的等待时间
	JunctionIndex *int32  `yaml:"junction_index,omitempty" bson:"junction_index,omitempty"` // 关联的道岔所在区段下标
	LinkedSignal  int32   `yaml:"linked_signal,omitempty" bson:"linked_signal,omitempty"`   // 等待期间锁闭的信号机
}

// Path 路径模板，可被多趟列车共用
type Path struct {
	Name     string          `yaml:"name" bson:"name"`
	SubPaths [][]PathElement `yaml:"sub_paths" bson:"sub_paths"`
	Nodes    []PathNode      `yaml:"nodes,omitempty" bson:"nodes,omitempty"`
}

// Stop 车站停车
type Stop struct {
	Name       string  `yaml:"name" bson:"name"`
	SubPath    int32   `yaml:"sub_path,omitempty" bson:"sub_path,omitempty"`
	SectionID  int32   `yaml:"section_id" bson:"section_id"`
	Offset     float64 `yaml:"offset" bson:"offset"`                                   // 停车点沿通过方向的偏移
	Arrival    float64 `yaml:"arrival,omitempty" bson:"arrival,omitempty"`             // 图定到达时刻（秒）
	Departure  float64 `yaml:"departure,omitempty" bson:"departure,omitempty"`         // 图定出发时刻（秒）
	Dwell      float64 `yaml:"dwell,omitempty" bson:"dwell,omitempty"`                 // 最短停站时间
	ExitSignal int32   `yaml:"exit_signal,omitempty" bson:"exit_signal,omitempty"`     // 出站信号机
}

// AuxAction 活动规则附加的辅助动作
type AuxAction struct {
	Kind        string  `yaml:"kind" bson:"kind"`                                       // horn/controlled_start/signal_delegate/waiting_point
	SubPath     int32   `yaml:"sub_path,omitempty" bson:"sub_path,omitempty"`
	SectionID   int32   `yaml:"section_id" bson:"section_id"`
	Offset      float64 `yaml:"offset,omitempty" bson:"offset,omitempty"`
	Duration    float64 `yaml:"duration,omitempty" bson:"duration,omitempty"`         // 鸣笛时长，负数表示随机
	Pattern     string  `yaml:"pattern,omitempty" bson:"pattern,omitempty"`           // single/us
	ReleaseTime float64 `yaml:"release_time,omitempty" bson:"release_time,omitempty"` // 受控启动的放行时刻，0表示等待外部放行
	SignalID    int32   `yaml:"signal_id,omitempty" bson:"signal_id,omitempty"`
	Delay       float64 `yaml:"delay,omitempty" bson:"delay,omitempty"`               // 信号委托在停稳后延迟开放的秒数
	WaitTime    int32   `yaml:"wait_time,omitempty" bson:"wait_time,omitempty"`       // 等待点编码后的等待时间
}

// Train 列车
type Train struct {
	ID           int32       `yaml:"id" bson:"id"`
	Name         string      `yaml:"name,omitempty" bson:"name,omitempty"`
	Path         string      `yaml:"path,omitempty" bson:"path,omitempty"`             // 路径模板名，静止车辆为空
	Class        string      `yaml:"class,omitempty" bson:"class,omitempty"`           // passenger/freight/emu/dmu
	Cars         int32       `yaml:"cars" bson:"cars"`                                 // 车辆数
	CarLength    float64     `yaml:"car_length" bson:"car_length"`                     // 单车长度
	MaxSpeed     float64     `yaml:"max_speed,omitempty" bson:"max_speed,omitempty"`   // 构造速度
	StartTime    float64     `yaml:"start_time,omitempty" bson:"start_time,omitempty"` // 出发时刻（秒）
	InitialSpeed float64     `yaml:"initial_speed,omitempty" bson:"initial_speed,omitempty"`
	Efficiency   float64     `yaml:"efficiency,omitempty" bson:"efficiency,omitempty"` // 司机牵引效率，0表示随机
	Static       bool        `yaml:"static,omitempty" bson:"static,omitempty"`         // 静止车辆（无AI）
	SectionID    int32       `yaml:"section_id,omitempty" bson:"section_id,omitempty"` // 静止车辆车头所在区段
	Offset       float64     `yaml:"offset,omitempty" bson:"offset,omitempty"`         // 静止车辆车头沿Direction的偏移
	Direction    int32       `yaml:"direction,omitempty" bson:"direction,omitempty"`
	Stops        []Stop      `yaml:"stops,omitempty" bson:"stops,omitempty"`
	AuxActions   []AuxAction `yaml:"aux_actions,omitempty" bson:"aux_actions,omitempty"`
}

// World 全部输入数据
type World struct {
	Sections []Section `yaml:"sections" bson:"sections"`
	Signals  []Signal  `yaml:"signals" bson:"signals"`
	Paths    []Path    `yaml:"paths" bson:"paths"`
	Trains   []Train   `yaml:"trains" bson:"trains"`
}
