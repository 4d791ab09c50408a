package config

// InputPath 指定一类输入数据来源的配置（MongoDB、文件系统）
// 说明：File非空时优先从YAML文件读取，否则从MongoDB的{db}.{col}读取
type InputPath struct {
	DB   string `yaml:"db,omitempty"`   // 数据库名
	Col  string `yaml:"col,omitempty"`  // 集合名
	File string `yaml:"file,omitempty"` // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// IsEmpty 是否未配置任何来源
func (p InputPath) IsEmpty() bool {
	return p.File == "" && (p.DB == "" || p.Col == "")
}

// Input 指定模拟器所有输入数据的配置项
// 功能：定义线路（区段、信号机）、路径模板与列车的数据来源
// 说明：World非空时从单个YAML文件中一次性读取全部数据，忽略其余各项
type Input struct {
	URI      string    `yaml:"uri,omitempty"`   // MongoDB连接字符串，可被环境变量RAILSIM_MONGO_URI覆盖
	World    string    `yaml:"world,omitempty"` // 单文件YAML世界描述
	Sections InputPath `yaml:"sections,omitempty"`
	Signals  InputPath `yaml:"signals,omitempty"`
	Paths    InputPath `yaml:"paths,omitempty"`
	Trains   InputPath `yaml:"trains,omitempty"`
	TrainIDs []int32   `yaml:"train_ids,omitempty"` // 只模拟指定ID的列车，为空则全部模拟
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Control 模拟器控制配置
type Control struct {
	Step ControlStep `yaml:"step"`
	Seed uint64      `yaml:"seed,omitempty"` // 随机数种子
}

// ClassParams 某一车辆类别的牵引与制动能力
type ClassParams struct {
	MaxAccel float64 `yaml:"max_accel"` // 100%牵引时的加速度（米/秒²）
	MaxDecel float64 `yaml:"max_decel"` // 100%制动时的减速度（米/秒²）
}

// AIConfig AI列车控制参数
// 功能：集中保存AI司机使用的全部可调参数，由任务上下文显式传入列车状态机
// 说明：所有速度单位为米/秒，距离单位为米，时间单位为秒，步长单位为百分比/秒
type AIConfig struct {
	CreepSpeed          float64 `yaml:"creep_speed,omitempty"`           // 蠕行速度
	CouplingSpeed       float64 `yaml:"coupling_speed,omitempty"`        // 连挂速度
	MaxFollowSpeed      float64 `yaml:"max_follow_speed,omitempty"`      // 跟车最高速度
	MovableTableSpeed   float64 `yaml:"movable_table_speed,omitempty"`   // 通过转车台的速度
	RestrictedSpeed     float64 `yaml:"restricted_speed,omitempty"`      // 限制显示下的速度
	ApproachAspectSpeed float64 `yaml:"approach_aspect_speed,omitempty"` // 接近显示下的速度

	Hysteresis       float64 `yaml:"hysteresis,omitempty"`         // 速度控制回差
	BrakingLagFactor float64 `yaml:"braking_lag_factor,omitempty"` // 理想速度曲线中的制动滞后系数k
	ClearingDistance float64 `yaml:"clearing_distance,omitempty"`  // 越过停车点的容许距离
	MinStopDistance  float64 `yaml:"min_stop_distance,omitempty"`  // 小于该距离时直接全制动停车
	StopMargin       float64 `yaml:"stop_margin,omitempty"`        // 信号机/阻挡点前的停车余量
	MinLookAhead     float64 `yaml:"min_look_ahead,omitempty"`     // 最小前瞻距离
	StoppedSpeed     float64 `yaml:"stopped_speed,omitempty"`      // 低于该速度视为停稳

	StaticKeepDistancePassenger float64 `yaml:"static_keep_distance_passenger,omitempty"` // 客车与前方静止车辆的保持距离
	StaticKeepDistanceFreight   float64 `yaml:"static_keep_distance_freight,omitempty"`   // 货车与前方静止车辆的保持距离
	MovingKeepDistance          float64 `yaml:"moving_keep_distance,omitempty"`           // 与前方运行车辆的保持距离
	CouplingDistance            float64 `yaml:"coupling_distance,omitempty"`              // 小于该间隔时执行连挂
	CreepDistance               float64 `yaml:"creep_distance,omitempty"`                 // 保持距离之外以蠕行速度接近的范围

	BrakeStepLarge float64 `yaml:"brake_step_large,omitempty"`
	BrakeStepSmall float64 `yaml:"brake_step_small,omitempty"`
	ThrottleStep   float64 `yaml:"throttle_step,omitempty"`

	LevelCrossingHornDistance float64 `yaml:"level_crossing_horn_distance,omitempty"` // 道口前开始鸣笛的距离
	BellWithHorn              *bool   `yaml:"bell_with_horn,omitempty"`               // 鸣笛时同时打铃，30秒后停止
	HornMinDuration           float64 `yaml:"horn_min_duration,omitempty"`
	HornMaxDuration           float64 `yaml:"horn_max_duration,omitempty"`

	DoorOpenTime  float64 `yaml:"door_open_time,omitempty"`
	DoorCloseTime float64 `yaml:"door_close_time,omitempty"`
	MinDwellTime  float64 `yaml:"min_dwell_time,omitempty"`

	ControlledStartThrottle float64 `yaml:"controlled_start_throttle,omitempty"` // 受控启动时的牵引上限
	ControlledStartRamp     float64 `yaml:"controlled_start_ramp,omitempty"`     // 受控启动的限牵引时长

	Classes map[string]ClassParams `yaml:"classes,omitempty"` // 按车辆类别（passenger/freight/emu/dmu）的加减速能力
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input    `yaml:"input"`        // 输入
	Control Control  `yaml:"control"`      // 模拟过程控制
	AI      AIConfig `yaml:"ai,omitempty"` // AI司机参数
}
