package junction

import (
	"context"
	"fmt"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

// JunctionManager Junction管理器
// 功能：按控制步驱动所有路口的配时流水线，合并紧急抢占与绿波元数据后下发
type JunctionManager struct {
	ctx entity.ITaskContext

	data      map[string]*Junction
	junctions []*Junction

	releasesMtx sync.Mutex
	releases    map[string]entity.Release // 本步释放的路口，Prepare阶段写入，Update阶段只读
}

// NewManager 创建Junction管理器实例
// 参数：ctx-任务上下文
// 返回：新创建的Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[string]*Junction),
		junctions: make([]*Junction, 0),
		releases:  make(map[string]entity.Release),
	}
}

// Init 初始化所有Junction
// 功能：根据路口网络创建Junction对象
// 参数：n-已校验的路口网络
// 说明：使用并行处理提高初始化效率
func (m *JunctionManager) Init(n *input.Network) {
	m.junctions = parallel.GoMap(n.Junctions, func(base input.Junction) *Junction {
		return newJunction(m.ctx, base)
	})
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (string, *Junction) {
		return j.id, j
	})
	log.Infof("init %d junctions", len(m.junctions))
}

// Get 根据ID获取Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id string) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %s in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例，如果不存在则返回错误
func (m *JunctionManager) GetOrError(id string) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %s in junction data", id)
	} else {
		return junction, nil
	}
}

// Junctions 全部路口，按配置顺序
func (m *JunctionManager) Junctions() []*Junction {
	return m.junctions
}

// SetReleases 记录本步紧急抢占释放的路口
// 说明：在Prepare阶段调用，Update阶段对这些路口优先重新计算，失败时恢复抢占前的配时
func (m *JunctionManager) SetReleases(releases []entity.Release) {
	m.releasesMtx.Lock()
	defer m.releasesMtx.Unlock()
	m.releases = lo.SliceToMap(releases, func(r entity.Release) (string, entity.Release) {
		return r.JunctionID, r
	})
}

// Prepare 准备阶段：并行读取所有路口的交通测量
// 说明：每个路口的读取有独立的超时，超时或失败的路口沿用上一次的测量
func (m *JunctionManager) Prepare() {
	source := m.ctx.Source()
	timeout := m.ctx.RuntimeConfig().SourceTimeout()
	parallel.GoFor(m.junctions, func(j *Junction) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		j.prepare(ctx, source)
	})
}

// Update 更新阶段：并行计算并下发所有路口的配时
func (m *JunctionManager) Update() {
	m.releasesMtx.Lock()
	releases := m.releases
	m.releases = make(map[string]entity.Release)
	m.releasesMtx.Unlock()

	planner := m.ctx.RuntimeConfig().Planner()
	hour := m.ctx.Clock().Hour()
	now := m.ctx.Clock().T
	parallel.GoFor(m.junctions, func(j *Junction) {
		release, released := releases[j.id]
		m.update(j, planner, hour, now, release, released)
	})
}

// update 单个路口的控制步
// 算法说明：
// 1. 运行配时流水线得到正常配时（抢占期间也持续计算）
// 2. 路口处于紧急抢占时以抢占配时下发，与正常配时是否计算成功无关
// 3. 计算失败时：本步刚结束抢占则下发替代配时，保证不再沿用抢占配时；否则跳过该路口
// 4. 附加绿波相位差后下发
func (m *JunctionManager) update(j *Junction, planner timing.Planner, hour int, now float64, release entity.Release, released bool) {
	s, err := j.plan(planner, hour)
	if override, ok := m.ctx.EmergencyController().Active(j.id); ok {
		if err != nil {
			log.Warnf("junction %s plan failed under emergency %s: %v", j.id, override.OverrideID, err)
		}
		s = override
	} else if err != nil {
		if !released {
			log.Errorf("junction %s skipped: %v", j.id, err)
			return
		}
		var source string
		s, source = m.fallback(j, release)
		log.Warnf("junction %s plan failed after emergency %s, use %s: %v", j.id, release.OverrideID, source, err)
	} else if released {
		log.Infof("junction %s released by emergency %s", j.id, release.OverrideID)
	}
	s.IssuedAt = now
	m.ctx.CorridorCoordinator().Annotate(&s)
	j.setCurrent(s)

	ctx, cancel := context.WithTimeout(context.Background(), m.ctx.RuntimeConfig().SinkTimeout())
	defer cancel()
	if err := m.ctx.Sink().Apply(ctx, s); err != nil {
		log.Warnf("junction %s apply %s schedule failed: %v", j.id, s.Mode, err)
	}
}

// fallback 抢占结束且正常配时计算失败时的替代配时
// 返回：替代配时及其来源，依次为抢占前的配时、最近一次正常配时、最小绿灯定时方案
func (m *JunctionManager) fallback(j *Junction, release entity.Release) (timing.Schedule, string) {
	var s timing.Schedule
	var source string
	switch normal, ok := j.NormalSchedule(); {
	case release.HasPreserved:
		s, source = release.Preserved.Clone(), "schedule before emergency"
	case ok:
		s, source = normal, "last normal schedule"
	default:
		s, source = timing.MinimumGreenSchedule(j.id, j.timingPhases(), j.bounds), "minimum green schedule"
	}
	s.Mode = timing.ModeNormal
	s.OverrideID = ""
	return s, source
}
