package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：File非空时优先从文件读取，否则从MongoDB的{db}.{col}读取
type InputPath struct {
	DB   string `yaml:"db"`             // 数据库名
	Col  string `yaml:"col"`            // 集合名
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

// Input 输入数据配置
type Input struct {
	URI     string    `yaml:"uri,omitempty"` // MongoDB连接字符串
	Network InputPath `yaml:"network"`       // 路口网络（路口、进口道、相位、道路）
}

// ControlStep 指定控制循环时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Thresholds 自适应调整的车辆密度阈值
type Thresholds struct {
	High   int `yaml:"high"`
	Medium int `yaml:"medium"`
	Low    int `yaml:"low"`
}

// Control 控制循环配置
// 说明：省略的数值项在NewRuntimeConfig中补齐缺省值
type Control struct {
	Step          ControlStep `yaml:"step"`
	StartHour     int         `yaml:"start_hour"`               // 仿真起始时刻（小时）
	Realtime      bool        `yaml:"realtime,omitempty"`       // 独立模式下按墙钟节奏推进
	LostTime      float64     `yaml:"lost_time,omitempty"`      // 缺省每周期损失时间（秒）
	MinCycle      int         `yaml:"min_cycle,omitempty"`      // 周期下限（秒）
	MaxCycle      int         `yaml:"max_cycle,omitempty"`      // 周期上限（秒）
	Thresholds    *Thresholds `yaml:"thresholds,omitempty"`     // 密度阈值
	BaseGreen     int         `yaml:"base_green,omitempty"`     // 自适应基础绿灯（秒）
	SourceTimeout float64     `yaml:"source_timeout,omitempty"` // 交通数据读取超时（秒）
	SinkTimeout   float64     `yaml:"sink_timeout,omitempty"`   // 配时下发超时（秒）
}

// Emergency 紧急抢占配置
type Emergency struct {
	Yellow          int                 `yaml:"yellow,omitempty"`           // 抢占方案黄灯（秒）
	DefaultDuration float64             `yaml:"default_duration,omitempty"` // 请求未指定时长时的缺省值（秒）
	MaxDuration     float64             `yaml:"max_duration,omitempty"`     // 请求时长上限（秒）
	DefaultRoutes   map[string][]string `yaml:"default_routes,omitempty"`   // 事件类型->缺省路线，other为兜底
}

// Corridor 绿波协调走廊配置
type Corridor struct {
	Group         string   `yaml:"group"`
	Junctions     []string `yaml:"junctions"`                // 沿行驶方向排列的路口ID
	TargetSpeed   float64  `yaml:"target_speed,omitempty"`   // 目标车速（km/h）
	CycleTime     int      `yaml:"cycle_time,omitempty"`     // 公共周期（秒）
	GreenDuration int      `yaml:"green_duration,omitempty"` // 绿波带宽（秒）
}

// Link 与外部模拟器的连接配置
type Link struct {
	Mode    string `yaml:"mode,omitempty"`    // log | simulet
	Address string `yaml:"address,omitempty"` // 模拟器地址，例如http://localhost:51102
	Seed    uint64 `yaml:"seed,omitempty"`    // 合成交通数据的随机种子
	// 从模拟器同步时钟
	SyncClock bool `yaml:"sync_clock,omitempty"`
}

// Output 输出配置
type Output struct {
	URI   string    `yaml:"uri"`   // MongoDB连接字符串
	Audit InputPath `yaml:"audit"` // 紧急事件审计记录集合
}

// Config YAML配置文件的根结构
type Config struct {
	Input     Input      `yaml:"input"`               // 输入
	Control   Control    `yaml:"control"`             // 控制循环
	Emergency Emergency  `yaml:"emergency,omitempty"` // 紧急抢占
	Corridors []Corridor `yaml:"corridors,omitempty"` // 绿波走廊
	Link      Link       `yaml:"link,omitempty"`      // 外部模拟器
	Output    *Output    `yaml:"output,omitempty"`    // 输出
}
