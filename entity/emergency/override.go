package emergency

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
)

// Status 抢占状态
type Status int

const (
	StatusPending   Status = iota // 已提交，等待下一个控制步边界
	StatusQueued                  // 路线被更高优先级占用，等待重试
	StatusActive                  // 生效中
	StatusCompleted               // 到期或被显式结束
	StatusCancelled               // 生效前被取消
	StatusDropped                 // 等待超过自身时长
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusQueued:
		return "queued"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDropped:
		return "dropped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal 是否为结束状态
func (s Status) Terminal() bool {
	return s >= StatusCompleted
}

// Override 一次紧急抢占
// 说明：只由Controller持有与修改
type Override struct {
	ID          string
	Type        string
	Priority    int
	Route       []string
	Direction   string
	UserID      string
	Description string

	Duration    float64 // 本次生效时长（被替换后为剩余时长）
	SubmittedAt float64 // 入队时刻，等待超过Duration即丢弃
	StartedAt   float64
	Status      Status
	Reason      string // 等待原因

	PreOverride map[string]timing.Schedule // 路口->抢占前的正常配时
	Schedules   map[string]timing.Schedule // 路口->抢占配时

	seq     uint64 // 提交序号，同优先级按提交顺序
	retried bool   // 是否来自等待队列
}

// before 处理顺序：优先级降序，同优先级按提交顺序
func before(a, b *Override) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

// upstream 路线中junctionID的前一个路口
func (o *Override) upstream(junctionID string) string {
	i := lo.IndexOf(o.Route, junctionID)
	if i <= 0 {
		return ""
	}
	return o.Route[i-1]
}

// Expired 生效时长是否已到
func (o *Override) Expired(now float64) bool {
	return now-o.StartedAt >= o.Duration
}

// Stale 等待是否已超过自身时长
func (o *Override) Stale(now float64) bool {
	return now-o.SubmittedAt >= o.Duration
}

// Remaining 剩余生效时长
func (o *Override) Remaining(now float64) float64 {
	return o.Duration - (now - o.StartedAt)
}

// BuildSchedule 构造抢占配时
// 功能：紧急车辆所在相位绿灯为时长、黄灯为yellow、红灯为0；其余相位绿灯0、黄灯yellow、红灯为周期减黄灯
// 参数：junctionID-路口ID，phases-相位分组，emergencyApproaches-紧急车辆所在相位的进口道，duration-时长（秒），yellow-黄灯，overrideID-抢占ID
// 返回：周期为duration+yellow的抢占配时
func BuildSchedule(junctionID string, phases []timing.Phase, emergencyApproaches []string, duration float64, yellow int, overrideID string) timing.Schedule {
	green := int(math.Round(duration))
	cycle := green + yellow
	s := timing.Schedule{
		JunctionID: junctionID,
		CycleTime:  cycle,
		Phases:     make(map[string]timing.PhaseTiming),
		Groups:     phases,
		Mode:       timing.ModeEmergency,
		OverrideID: overrideID,
	}
	for _, p := range phases {
		for _, name := range p.Approaches {
			if lo.Contains(emergencyApproaches, name) {
				s.Phases[name] = timing.PhaseTiming{Green: green, Yellow: yellow, Red: 0}
			} else {
				s.Phases[name] = timing.PhaseTiming{Green: 0, Yellow: yellow, Red: cycle - yellow}
			}
		}
	}
	return s
}

// View 抢占的只读视图
type View struct {
	ID          string   `json:"id"`
	Type        string   `json:"emergency_type"`
	Priority    int      `json:"priority"`
	Route       []string `json:"route"`
	Status      string   `json:"status"`
	Duration    float64  `json:"duration"`
	SubmittedAt float64  `json:"submitted_at"`
	StartedAt   float64  `json:"started_at"`
	UserID      string   `json:"user_id,omitempty"`
	Description string   `json:"description,omitempty"`
	Warning     string   `json:"warning,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

func (o *Override) view() View {
	return View{
		ID:          o.ID,
		Type:        o.Type,
		Priority:    o.Priority,
		Route:       append([]string(nil), o.Route...),
		Status:      o.Status.String(),
		Duration:    o.Duration,
		SubmittedAt: o.SubmittedAt,
		StartedAt:   o.StartedAt,
		UserID:      o.UserID,
		Description: o.Description,
		Reason:      o.Reason,
	}
}
