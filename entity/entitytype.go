package entity

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
)

// 路口接口
type IJunction interface {
	ID() string
	Phases() []timing.Phase // 相位分组（覆盖全部进口道）
	Location() (orb.Point, bool)

	// 紧急车辆所在相位的进口道
	// 按行驶方向、上游路口、首个相位的顺序确定
	EmergencyApproaches(direction, upstream string) []string

	NormalSchedule() (timing.Schedule, bool)  // 最近一次正常配时
	CurrentSchedule() (timing.Schedule, bool) // 最近一次下发的配时（正常或紧急）
}

// 交通数据源
type ITrafficSource interface {
	// 读取路口所有进口道的测量，ctx超时或失败时返回error
	Snapshot(ctx context.Context, junctionID string) (timing.ApproachSnapshot, error)
}

// 配时下发
type ICommandSink interface {
	Apply(ctx context.Context, s timing.Schedule) error
}

// 紧急事件类型
type EmergencyEventKind string

const (
	EventSubmitted EmergencyEventKind = "submitted"
	EventActivated EmergencyEventKind = "activated"
	EventPreempted EmergencyEventKind = "preempted" // 被更高优先级阻塞，进入等待队列
	EventDisplaced EmergencyEventKind = "displaced" // 被替换，剩余时长重新排队
	EventCompleted EmergencyEventKind = "completed"
	EventCancelled EmergencyEventKind = "cancelled"
	EventDropped   EmergencyEventKind = "dropped" // 等待超过自身时长被丢弃
)

// 紧急事件审计记录
type EmergencyEvent struct {
	OverrideID string             `bson:"override_id" json:"override_id"`
	Kind       EmergencyEventKind `bson:"kind" json:"kind"`
	Type       string             `bson:"emergency_type" json:"emergency_type"`
	Priority   int                `bson:"priority" json:"priority"`
	Route      []string           `bson:"route" json:"route"`
	Duration   float64            `bson:"duration" json:"duration"`
	T          float64            `bson:"t" json:"t"` // 仿真时间（秒）
}

// 审计记录器
type IRecorder interface {
	Record(e EmergencyEvent)
	Close()
}

// 抢占结束后释放的路口
type Release struct {
	JunctionID   string
	OverrideID   string
	Preserved    timing.Schedule // 抢占前的正常配时
	HasPreserved bool
}
