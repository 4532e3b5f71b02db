package corridor

import (
	"fmt"
	"math"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
)

const kmhToMs = 1 / 3.6

// Signal 走廊中单个路口的绿波参数
type Signal struct {
	JunctionID    string  `json:"junction_id"`
	Distance      float64 `json:"distance"` // 距首个路口的累计距离（米）
	Offset        int     `json:"offset"`   // 相位差（秒），[0, cycle)
	GreenStart    int     `json:"green_start"`
	GreenDuration int     `json:"green_duration"`
}

// Plan 绿波协调方案
type Plan struct {
	Group         string    `json:"group"`
	JunctionIDs   []string  `json:"junction_ids"`
	TargetSpeed   float64   `json:"target_speed"` // km/h
	CycleTime     int       `json:"cycle_time"`
	GreenDuration int       `json:"green_duration"`
	Distances     []float64 `json:"distances"` // 相邻路口间距（米），长度为路口数-1
	Signals       []Signal  `json:"signals"`
}

// Coordinate 计算走廊的绿波相位差
// 功能：路口i的相位差 = 距首个路口的累计距离 / 目标车速，按周期取模后截断为整数秒
// 参数：group-走廊名，junctionIDs-沿行驶方向排列的路口，distances-相邻路口间距，targetSpeed-目标车速（km/h），cycle-公共周期，green-绿波带宽
// 返回：绿波方案；参数非法时返回ErrInvalidConfiguration
func Coordinate(group string, junctionIDs []string, distances []float64, targetSpeed float64, cycle, green int) (Plan, error) {
	if len(junctionIDs) == 0 {
		return Plan{}, fmt.Errorf("corridor %s has no junction: %w", group, timing.ErrInvalidConfiguration)
	}
	if len(distances) != len(junctionIDs)-1 {
		return Plan{}, fmt.Errorf("corridor %s: %d junctions but %d distances: %w", group, len(junctionIDs), len(distances), timing.ErrInvalidConfiguration)
	}
	if targetSpeed <= 0 || cycle <= 0 || green <= 0 || green > cycle {
		return Plan{}, fmt.Errorf("corridor %s speed %v cycle %d green %d: %w", group, targetSpeed, cycle, green, timing.ErrInvalidConfiguration)
	}
	speed := targetSpeed * kmhToMs
	p := Plan{
		Group:         group,
		JunctionIDs:   append([]string(nil), junctionIDs...),
		TargetSpeed:   targetSpeed,
		CycleTime:     cycle,
		GreenDuration: green,
		Distances:     append([]float64(nil), distances...),
		Signals:       make([]Signal, len(junctionIDs)),
	}
	cumulative := 0.
	for i, id := range junctionIDs {
		if i > 0 {
			if distances[i-1] < 0 {
				return Plan{}, fmt.Errorf("corridor %s negative distance before %s: %w", group, id, timing.ErrInvalidConfiguration)
			}
			cumulative += distances[i-1]
		}
		offset := int(math.Mod(cumulative/speed, float64(cycle)))
		p.Signals[i] = Signal{
			JunctionID:    id,
			Distance:      cumulative,
			Offset:        offset,
			GreenStart:    offset,
			GreenDuration: green,
		}
	}
	return p, nil
}

// Offset 路口在方案中的相位差
func (p Plan) Offset(junctionID string) (int, bool) {
	for _, s := range p.Signals {
		if s.JunctionID == junctionID {
			return s.Offset, true
		}
	}
	return 0, false
}

// GeoJSON 将方案导出为GeoJSON FeatureCollection
// 功能：每个有坐标的路口为一个点要素（附相位差、绿灯起点与时长），有两个以上坐标时附加走廊折线
// 参数：locate-路口坐标查询
func (p Plan) GeoJSON(locate func(junctionID string) (orb.Point, bool)) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	line := make([][]float64, 0, len(p.Signals))
	for _, s := range p.Signals {
		pt, ok := locate(s.JunctionID)
		if !ok {
			continue
		}
		coord := []float64{pt.Lon(), pt.Lat()}
		line = append(line, coord)
		f := geojson.NewPointFeature(coord)
		f.SetProperty("group", p.Group)
		f.SetProperty("junction_id", s.JunctionID)
		f.SetProperty("offset", s.Offset)
		f.SetProperty("green_start", s.GreenStart)
		f.SetProperty("green_duration", s.GreenDuration)
		fc.AddFeature(f)
	}
	if len(line) >= 2 {
		f := geojson.NewLineStringFeature(line)
		f.SetProperty("group", p.Group)
		f.SetProperty("target_speed", p.TargetSpeed)
		f.SetProperty("cycle_time", p.CycleTime)
		fc.AddFeature(f)
	}
	return fc.MarshalJSON()
}
