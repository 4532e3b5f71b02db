package road

import (
	"fmt"
	"math"

	"github.com/LdDl/ch"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

var log = logrus.WithField("module", "road")

type edgeKey struct {
	from string
	to   string
}

// RoadManager Road管理器
// 功能：维护路口之间的道路图，提供路口间距离、最短路口序列与最近路口查询
// 说明：初始化后只读，可并发访问
type RoadManager struct {
	ctx entity.ITaskContext

	roads     []*Road
	edges     map[edgeKey]*Road
	locations map[string]orb.Point

	graph    *ch.Graph
	vertices map[string]int64 // 路口ID->图顶点
	names    []string         // 图顶点->路口ID
}

// NewManager 创建Road管理器实例
func NewManager(ctx entity.ITaskContext) *RoadManager {
	return &RoadManager{
		ctx:       ctx,
		roads:     make([]*Road, 0),
		edges:     make(map[edgeKey]*Road),
		locations: make(map[string]orb.Point),
		vertices:  make(map[string]int64),
	}
}

// Init 初始化道路图
// 功能：读取路口坐标与道路，构建以道路长度为权重的收缩层次图
// 参数：n-路口网络
// 返回：构图失败时返回错误
// 算法说明：
// 1. 每个路口对应一个图顶点
// 2. 每条道路加入正向边，非单行道再加入反向边
// 3. 预处理收缩层次，之后最短路查询为只读操作
func (m *RoadManager) Init(n *input.Network) error {
	for _, j := range n.Junctions {
		if j.Location != nil {
			m.locations[j.ID] = orb.Point{j.Location.Lon, j.Location.Lat}
		}
	}
	m.roads = lo.Map(n.Roads, func(r input.Road, _ int) *Road {
		return newRoad(r, m.locations)
	})

	m.graph = &ch.Graph{}
	m.names = lo.Map(n.Junctions, func(j input.Junction, _ int) string { return j.ID })
	for i, id := range m.names {
		m.vertices[id] = int64(i)
		if err := m.graph.CreateVertex(int64(i)); err != nil {
			return errors.Wrapf(err, "create vertex for junction %s", id)
		}
	}
	addEdge := func(r *Road, from, to string) error {
		m.edges[edgeKey{from, to}] = r
		return errors.Wrapf(
			m.graph.AddEdge(m.vertices[from], m.vertices[to], r.Length()),
			"add edge %s->%s", from, to,
		)
	}
	for _, r := range m.roads {
		if err := addEdge(r, r.From(), r.To()); err != nil {
			return err
		}
		if !r.Oneway() {
			if err := addEdge(r, r.To(), r.From()); err != nil {
				return err
			}
		}
	}
	m.graph.PrepareContractionHierarchies()
	log.Infof("road graph: %d junctions, %d roads", len(m.names), len(m.roads))
	return nil
}

// Distance 相邻路口之间的距离（米）
// 功能：依次取道路长度、两端坐标的球面距离、缺省值
func (m *RoadManager) Distance(from, to string) float64 {
	if r, ok := m.edges[edgeKey{from, to}]; ok {
		return r.Length()
	}
	a, okA := m.locations[from]
	b, okB := m.locations[to]
	if okA && okB {
		return geo.LengthHaversign(orb.LineString{a, b})
	}
	return DefaultDistance
}

// Route 起终点之间的最短路口序列
// 返回：包含起终点的路口ID序列；路口不存在或不可达时返回错误
func (m *RoadManager) Route(origin, destination string) ([]string, error) {
	s, ok := m.vertices[origin]
	if !ok {
		return nil, fmt.Errorf("unknown origin junction %s", origin)
	}
	t, ok := m.vertices[destination]
	if !ok {
		return nil, fmt.Errorf("unknown destination junction %s", destination)
	}
	if s == t {
		return []string{origin}, nil
	}
	cost, path := m.graph.ShortestPath(s, t)
	if cost < 0 || len(path) == 0 || math.IsInf(cost, 1) {
		return nil, fmt.Errorf("junction %s is unreachable from %s", destination, origin)
	}
	return lo.Map(path, func(v int64, _ int) string { return m.names[v] }), nil
}

// Nearest 距离给定坐标最近的有坐标路口
func (m *RoadManager) Nearest(p orb.Point) (string, bool) {
	best := ""
	bestDistance := math.Inf(1)
	for _, id := range m.names {
		loc, ok := m.locations[id]
		if !ok {
			continue
		}
		if d := geo.LengthHaversign(orb.LineString{p, loc}); d < bestDistance {
			best, bestDistance = id, d
		}
	}
	return best, best != ""
}

// Location 路口坐标
func (m *RoadManager) Location(junctionID string) (orb.Point, bool) {
	p, ok := m.locations[junctionID]
	return p, ok
}
