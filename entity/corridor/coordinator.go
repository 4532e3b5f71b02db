package corridor

import (
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

var log = logrus.WithField("module", "corridor")

// Coordinator 绿波协调器
// 功能：启动时按配置计算各走廊的相位差，运行时为配时方案附加建议性的相位差
// 说明：初始化后只读
type Coordinator struct {
	ctx entity.ITaskContext

	plans      []Plan
	byJunction map[string]int // 路口->所属方案下标，路口属于多个走廊时取第一个
}

func NewCoordinator(ctx entity.ITaskContext) *Coordinator {
	return &Coordinator{
		ctx:        ctx,
		plans:      make([]Plan, 0),
		byJunction: make(map[string]int),
	}
}

// Init 计算全部走廊的绿波方案
// 参数：corridors-走廊配置，roads-提供相邻路口间距
func (c *Coordinator) Init(corridors []config.Corridor, roads entity.IRoadManager) error {
	for _, cfg := range corridors {
		distances := make([]float64, 0, len(cfg.Junctions))
		for i := 1; i < len(cfg.Junctions); i++ {
			distances = append(distances, roads.Distance(cfg.Junctions[i-1], cfg.Junctions[i]))
		}
		p, err := Coordinate(cfg.Group, cfg.Junctions, distances, cfg.TargetSpeed, cfg.CycleTime, cfg.GreenDuration)
		if err != nil {
			return err
		}
		for _, id := range cfg.Junctions {
			if other, ok := c.byJunction[id]; ok {
				log.Warnf("junction %s in corridors %s and %s, use %s", id, c.plans[other].Group, cfg.Group, c.plans[other].Group)
				continue
			}
			c.byJunction[id] = len(c.plans)
		}
		c.plans = append(c.plans, p)
		log.Infof("corridor %s: %+v", p.Group, p.Signals)
	}
	return nil
}

// Annotate 为配时方案附加走廊名与相位差
func (c *Coordinator) Annotate(s *timing.Schedule) {
	i, ok := c.byJunction[s.JunctionID]
	if !ok {
		return
	}
	p := c.plans[i]
	offset, _ := p.Offset(s.JunctionID)
	s.CorridorGroup = p.Group
	s.Offset = &offset
}

// Plans 全部绿波方案
func (c *Coordinator) Plans() []Plan {
	return c.plans
}

// Get 按走廊名查找方案
func (c *Coordinator) Get(group string) (Plan, bool) {
	for _, p := range c.plans {
		if p.Group == group {
			return p, true
		}
	}
	return Plan{}, false
}
