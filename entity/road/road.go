package road

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

const DefaultDistance = 400. // 无法确定距离时的缺省路口间距（米）

// Road 连接两个路口的道路
type Road struct {
	from   string
	to     string
	length float64        // 长度（米）
	geom   orb.LineString // 两端路口坐标，缺少坐标时为空
	oneway bool
}

// newRoad 创建道路
// 功能：长度优先取配置值，其次取两端坐标的球面距离，否则取缺省值
// 参数：base-道路配置，locations-路口坐标
func newRoad(base input.Road, locations map[string]orb.Point) *Road {
	r := &Road{
		from:   base.From,
		to:     base.To,
		length: base.Length,
		oneway: base.Oneway,
	}
	from, okFrom := locations[base.From]
	to, okTo := locations[base.To]
	if okFrom && okTo {
		r.geom = orb.LineString{from, to}
	}
	if r.length <= 0 {
		if r.geom != nil {
			r.length = geo.LengthHaversign(r.geom)
		} else {
			r.length = DefaultDistance
		}
	}
	return r
}

func (r *Road) From() string {
	return r.from
}

func (r *Road) To() string {
	return r.to
}

// Length 道路长度（米）
func (r *Road) Length() float64 {
	return r.length
}

func (r *Road) Oneway() bool {
	return r.oneway
}
