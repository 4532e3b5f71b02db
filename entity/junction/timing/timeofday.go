package timing

import (
	"strings"

	"github.com/samber/lo"
)

const (
	ProfileMorningRush = "morning_rush"
	ProfileEveningRush = "evening_rush"
	ProfileNight       = "night_time"
	ProfileRegular     = "regular"
)

// Profile 时段配时修正
type Profile struct {
	AdjustmentType     string   `json:"adjustment_type"`
	GreenExtension     int      `json:"green_extension"`
	CycleExtension     int      `json:"cycle_extension"`
	PriorityDirections []string `json:"priority_directions"`
}

// ProfileAt 按小时查找时段修正
// 功能：依次匹配早高峰[7,9]、晚高峰[17,19]、夜间（>=22或<=5，跨零点），否则为平峰
// 参数：hour-小时（超出0-23时按24取模）
// 返回：时段修正记录
func ProfileAt(hour int) Profile {
	hour = ((hour % 24) + 24) % 24
	switch {
	case hour >= 7 && hour <= 9:
		return Profile{
			AdjustmentType:     ProfileMorningRush,
			GreenExtension:     15,
			CycleExtension:     20,
			PriorityDirections: []string{"eastbound", "westbound"},
		}
	case hour >= 17 && hour <= 19:
		return Profile{
			AdjustmentType:     ProfileEveningRush,
			GreenExtension:     15,
			CycleExtension:     20,
			PriorityDirections: []string{"westbound", "eastbound"},
		}
	case hour >= 22 || hour <= 5:
		return Profile{
			AdjustmentType:     ProfileNight,
			GreenExtension:     -10,
			CycleExtension:     -30,
			PriorityDirections: []string{},
		}
	default:
		return Profile{
			AdjustmentType:     ProfileRegular,
			PriorityDirections: []string{},
		}
	}
}

// Applies 判断绿灯延长是否作用于该方向
// 说明：无优先方向时作用于全部进口道
func (p Profile) Applies(direction string) bool {
	if len(p.PriorityDirections) == 0 {
		return true
	}
	return lo.ContainsBy(p.PriorityDirections, func(d string) bool {
		return strings.EqualFold(d, direction)
	})
}
