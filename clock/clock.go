package clock

import (
	"fmt"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

// Clock 控制循环时钟
// 功能：管理控制循环的时间推进，提供当前仿真时刻与小时
// 说明：T为自仿真零点起的秒数，StartHour为零点对应的墙钟小时
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT         float64 // 每步时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，区间[START, END)
	StartHour  int     // 仿真零点对应的小时

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数
}

// New 根据配置创建新的时钟实例
// 参数：stepConfig-控制步配置，startHour-仿真零点对应的小时
// 返回：初始化完成的时钟实例
func New(stepConfig config.ControlStep, startHour int) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
		StartHour:  startHour,
	}
	c.Init()
	return c
}

// Init 重置时钟状态
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

// Tick 推进一步
func (c *Clock) Tick() {
	c.InternalStep++
	c.T = float64(c.InternalStep) * c.DT
}

// Done 是否已到达结束步
func (c *Clock) Done() bool {
	return c.InternalStep+1 >= c.END_STEP
}

// Hour 当前墙钟小时（0-23）
func (c *Clock) Hour() int {
	hour, _, _ := c.GetHourMinuteSecond()
	return hour
}

// String 获取时钟的字符串表示（HH:MM:SS）
func (c *Clock) String() string {
	h, m, s := c.GetHourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, int(s))
}

// GetHourMinuteSecond 获取当前时刻的小时、分钟、秒
// 返回：小时（0-23，已叠加StartHour并按天取模）、分钟、秒（浮点数）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	t := c.T + float64(c.StartHour*3600)
	day := int(t) / 86400
	t -= float64(day * 86400)
	hour := int(t) / 3600
	minute := int(t) % 3600 / 60
	second := t - float64(hour*3600+minute*60)
	return hour, minute, second
}
