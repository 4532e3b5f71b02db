package emergency

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"
)

const DefaultDuration = 60. // 缺省抢占时长（秒）

// Request 紧急抢占请求
// 说明：路线优先级：显式route > origin/destination最短路 > 按类型的缺省路线
type Request struct {
	Type        string     // 事件类型，缺省general
	Route       []string   // 沿行驶方向排列的路口ID
	Duration    float64    // 请求时长（秒），非正时取缺省值
	Direction   string     // 紧急车辆行驶方向，如eastbound
	Origin      string     // 起点路口
	Destination string     // 终点路口
	Location    *orb.Point // 求助位置，未指定起点时吸附到最近路口
	UserID      string
	Description string
}

// normalize 补齐缺省值
// 参数：defaultDuration-缺省时长，maxDuration-时长上限（非正时不设上限）
// 返回：时长为NaN或无穷时返回ErrInvalidRequest
// 说明：超过上限的时长截断到上限
func (r *Request) normalize(defaultDuration, maxDuration float64) error {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.Type == "" {
		r.Type = TypeGeneral
	}
	if math.IsNaN(r.Duration) || math.IsInf(r.Duration, 0) {
		return fmt.Errorf("duration %v: %w", r.Duration, ErrInvalidRequest)
	}
	if r.Duration <= 0 {
		r.Duration = defaultDuration
	}
	if r.Duration <= 0 {
		r.Duration = DefaultDuration
	}
	if maxDuration > 0 && r.Duration > maxDuration {
		log.Warnf("requested duration %.0fs exceeds %.0fs, truncated", r.Duration, maxDuration)
		r.Duration = maxDuration
	}
	return nil
}

// RequestFromStruct 从google.protobuf.Struct解析请求
// 功能：字段名与HTTP接口一致：emergency_type, route, requested_duration, direction, origin, destination, lat, lon, user_id, description
// 返回：请求；字段类型不符时返回ErrInvalidRequest
func RequestFromStruct(s *structpb.Struct) (Request, error) {
	var r Request
	if s == nil {
		return r, nil
	}
	fields := s.GetFields()
	str := func(key string) (string, error) {
		v, ok := fields[key]
		if !ok {
			return "", nil
		}
		if _, isStr := v.GetKind().(*structpb.Value_StringValue); !isStr {
			return "", fmt.Errorf("field %s must be string: %w", key, ErrInvalidRequest)
		}
		return v.GetStringValue(), nil
	}
	num := func(key string) (float64, bool, error) {
		v, ok := fields[key]
		if !ok {
			return 0, false, nil
		}
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
			return 0, false, fmt.Errorf("field %s must be number: %w", key, ErrInvalidRequest)
		}
		return v.GetNumberValue(), true, nil
	}

	var err error
	if r.Type, err = str("emergency_type"); err != nil {
		return r, err
	}
	if r.Direction, err = str("direction"); err != nil {
		return r, err
	}
	if r.Origin, err = str("origin"); err != nil {
		return r, err
	}
	if r.Destination, err = str("destination"); err != nil {
		return r, err
	}
	if r.UserID, err = str("user_id"); err != nil {
		return r, err
	}
	if r.Description, err = str("description"); err != nil {
		return r, err
	}
	if r.Duration, _, err = num("requested_duration"); err != nil {
		return r, err
	}
	lat, hasLat, err := num("lat")
	if err != nil {
		return r, err
	}
	lon, hasLon, err := num("lon")
	if err != nil {
		return r, err
	}
	if hasLat && hasLon {
		r.Location = &orb.Point{lon, lat}
	}
	if v, ok := fields["route"]; ok {
		list := v.GetListValue()
		if list == nil {
			return r, fmt.Errorf("field route must be list: %w", ErrInvalidRequest)
		}
		for _, item := range list.GetValues() {
			id, isStr := item.GetKind().(*structpb.Value_StringValue)
			if !isStr {
				return r, fmt.Errorf("route items must be string: %w", ErrInvalidRequest)
			}
			r.Route = append(r.Route, id.StringValue)
		}
	}
	return r, nil
}

// validateRoute 路线非空且不含重复路口
func validateRoute(route []string) error {
	if len(route) == 0 {
		return fmt.Errorf("empty route: %w", ErrInvalidRequest)
	}
	if dup := lo.FindDuplicates(route); len(dup) > 0 {
		return fmt.Errorf("route visits %v more than once: %w", dup, ErrInvalidRequest)
	}
	return nil
}
