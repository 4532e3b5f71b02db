package emergency

import (
	"fmt"
	"strings"
)

const (
	TypeGeneral     = "general"
	DefaultPriority = 5
)

// priorities 事件类型->优先级，数值越大越优先
var priorities = map[string]int{
	"medical":   10,
	"fire":      9,
	"accident":  8,
	"crime":     7,
	TypeGeneral: DefaultPriority,
	"breakdown": 3,
}

// PriorityOf 查询事件类型的优先级
// 参数：emergencyType-事件类型，大小写不敏感
// 返回：优先级；未知类型返回DefaultPriority与ErrUnknownEmergencyType
func PriorityOf(emergencyType string) (int, error) {
	if p, ok := priorities[strings.ToLower(emergencyType)]; ok {
		return p, nil
	}
	return DefaultPriority, fmt.Errorf("%q: %w", emergencyType, ErrUnknownEmergencyType)
}
