package emergency

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/container"
)

const historySize = 100 // 保留的已结束抢占数

// slot 路口的抢占占用槽
type slot struct {
	mtx    sync.Mutex
	holder *Override
}

// Controller 紧急抢占控制器
// 功能：接收抢占请求，在控制步边界按优先级整路线原子地生效、替换与释放
// 说明：
// 1. Submit/Complete可在任意协程调用，只写入缓冲区
// 2. Prepare只在控制循环中调用，是占用槽与等待队列的唯一写入者
// 3. 路线生效时按路口ID排序依次加锁，全部校验通过后才提交
type Controller struct {
	ctx entity.ITaskContext

	yellow          int
	defaultDuration float64
	maxDuration     float64
	defaultRoutes   map[string][]string

	mtx     sync.Mutex // 保护inbox、cancels、known、history与Override的状态字段
	seq     uint64
	inbox   []*Override
	cancels []string
	known   map[string]*Override // 未结束的抢占
	history []*Override          // 最近结束的抢占

	// 以下仅控制循环访问
	queue  *container.PriorityQueue[*Override] // 等待重试
	active map[string]*Override

	slotsMtx sync.Mutex
	slots    map[string]*slot
}

// NewController 创建紧急抢占控制器
// 参数：ctx-任务上下文
// 返回：控制器实例，参数取自运行时配置的emergency部分
func NewController(ctx entity.ITaskContext) *Controller {
	e := ctx.RuntimeConfig().All.Emergency
	routes := e.DefaultRoutes
	if routes == nil {
		routes = config.DefaultRoutes()
	}
	return &Controller{
		ctx:             ctx,
		yellow:          e.Yellow,
		defaultDuration: e.DefaultDuration,
		maxDuration:     e.MaxDuration,
		defaultRoutes:   routes,
		known:           make(map[string]*Override),
		history:         make([]*Override, 0),
		queue:           container.NewPriorityQueue(before),
		active:          make(map[string]*Override),
		slots:           make(map[string]*slot),
	}
}

func (c *Controller) slot(junctionID string) *slot {
	c.slotsMtx.Lock()
	defer c.slotsMtx.Unlock()
	s, ok := c.slots[junctionID]
	if !ok {
		s = &slot{}
		c.slots[junctionID] = s
	}
	return s
}

// Submit 提交抢占请求
// 功能：补齐缺省值、确定路线并写入缓冲区，在下一个控制步边界处理
// 参数：req-请求
// 返回：抢占视图（未知事件类型时Warning非空）；路线非法时返回ErrInvalidRequest
func (c *Controller) Submit(req Request) (View, error) {
	if err := req.normalize(c.defaultDuration, c.maxDuration); err != nil {
		return View{}, err
	}
	priority, typeErr := PriorityOf(req.Type)
	if typeErr != nil {
		log.Warnf("%v, use priority %d", typeErr, priority)
	}
	route, err := c.resolveRoute(req)
	if err != nil {
		return View{}, err
	}
	now := c.ctx.Clock().T
	o := &Override{
		ID:          uuid.New().String(),
		Type:        req.Type,
		Priority:    priority,
		Route:       route,
		Direction:   req.Direction,
		UserID:      req.UserID,
		Description: req.Description,
		Duration:    req.Duration,
		SubmittedAt: now,
		Status:      StatusPending,
	}

	c.mtx.Lock()
	c.seq++
	o.seq = c.seq
	c.inbox = append(c.inbox, o)
	c.known[o.ID] = o
	v := o.view()
	c.mtx.Unlock()

	if typeErr != nil {
		v.Warning = typeErr.Error()
	}
	log.Infof("emergency %s submitted: type=%s priority=%d route=%v duration=%.0fs", o.ID, o.Type, o.Priority, o.Route, o.Duration)
	c.record(o, entity.EventSubmitted, now)
	return v, nil
}

// resolveRoute 确定请求的路线
func (c *Controller) resolveRoute(req Request) ([]string, error) {
	route := req.Route
	if len(route) == 0 {
		origin := req.Origin
		if origin == "" && req.Location != nil {
			if id, ok := c.ctx.RoadManager().Nearest(*req.Location); ok {
				origin = id
			}
		}
		if origin != "" && req.Destination != "" {
			var err error
			if route, err = c.ctx.RoadManager().Route(origin, req.Destination); err != nil {
				return nil, fmt.Errorf("route %s->%s: %v: %w", origin, req.Destination, err, ErrInvalidRequest)
			}
		} else if r, ok := c.defaultRoutes[req.Type]; ok {
			route = r
		} else {
			route = c.defaultRoutes[config.DefaultRouteKey]
		}
	}
	if err := validateRoute(route); err != nil {
		return nil, err
	}
	for _, id := range route {
		if _, err := c.ctx.JunctionManager().GetOrError(id); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidRequest)
		}
	}
	return slices.Clone(route), nil
}

// Complete 显式结束抢占
// 说明：在下一个控制步边界生效
func (c *Controller) Complete(id string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if _, ok := c.known[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownOverride)
	}
	c.cancels = append(c.cancels, id)
	return nil
}

// Prepare 控制步边界处理
// 功能：应用缓冲的结束请求、到期与新请求，返回本步释放的路口
// 参数：now-当前仿真时间（秒）
// 算法说明：
// 1. 显式结束或到期的生效抢占：释放整条路线
// 2. 等待队列与新请求合并，已取消的移除，等待超过自身时长的丢弃
// 3. 按优先级降序（同优先级按提交顺序）逐个尝试整路线生效
// 4. 被更高优先级阻塞的进入等待队列；被替换的以剩余时长进入等待队列，下一步重试
func (c *Controller) Prepare(now float64) []entity.Release {
	c.mtx.Lock()
	inbox, cancels := c.inbox, c.cancels
	c.inbox, c.cancels = nil, nil
	c.mtx.Unlock()

	cancelled := lo.SliceToMap(cancels, func(id string) (string, struct{}) {
		return id, struct{}{}
	})
	releases := make([]entity.Release, 0)

	active := lo.Values(c.active)
	sort.Slice(active, func(i, j int) bool { return active[i].seq < active[j].seq })
	for _, o := range active {
		_, cancel := cancelled[o.ID]
		if !cancel && !o.Expired(now) {
			continue
		}
		releases = append(releases, c.release(o)...)
		delete(c.active, o.ID)
		c.finish(o, StatusCompleted, entity.EventCompleted, now)
	}

	candidates := container.NewPriorityQueue(before)
	for _, o := range append(c.queue.Drain(), inbox...) {
		if _, cancel := cancelled[o.ID]; cancel {
			c.finish(o, StatusCancelled, entity.EventCancelled, now)
		} else if o.retried && o.Stale(now) {
			log.Warnf("emergency %s dropped after waiting %.0fs", o.ID, now-o.SubmittedAt)
			c.finish(o, StatusDropped, entity.EventDropped, now)
		} else {
			candidates.Push(o)
		}
	}
	candidates.Heapify()

	for candidates.Len() > 0 {
		o := candidates.HeapPop()
		rel, displaced, err := c.activate(o, now)
		switch {
		case errors.Is(err, ErrPreempted):
			log.Infof("emergency %s queued: %v", o.ID, err)
			if !o.retried {
				c.record(o, entity.EventPreempted, now)
			}
			o.retried = true
			c.queued(o, err)
			c.queue.HeapPush(o)
		case err != nil:
			log.Warnf("emergency %s dropped: %v", o.ID, err)
			c.finish(o, StatusDropped, entity.EventDropped, now)
		default:
			releases = append(releases, rel...)
			c.active[o.ID] = o
			c.mtx.Lock()
			o.Status = StatusActive
			o.Reason = ""
			o.StartedAt = now
			c.mtx.Unlock()
			log.Infof("emergency %s active on %v for %.0fs", o.ID, o.Route, o.Duration)
			c.record(o, entity.EventActivated, now)
			for _, d := range displaced {
				c.requeue(d, now)
			}
		}
	}
	return releases
}

// activate 整路线原子生效
// 返回：被替换抢占在路线外的释放记录、被替换的抢占；存在不可替换的占用时返回ErrPreempted且不做任何修改
func (c *Controller) activate(o *Override, now float64) ([]entity.Release, []*Override, error) {
	schedules := make(map[string]timing.Schedule, len(o.Route))
	normals := make(map[string]timing.Schedule, len(o.Route))
	for _, id := range o.Route {
		j, err := c.ctx.JunctionManager().GetOrError(id)
		if err != nil {
			return nil, nil, fmt.Errorf("%v: %w", err, ErrInvalidRequest)
		}
		s := BuildSchedule(id, j.Phases(), j.EmergencyApproaches(o.Direction, o.upstream(id)), o.Duration, c.yellow, o.ID)
		s.IssuedAt = now
		schedules[id] = s
		if n, ok := j.NormalSchedule(); ok {
			normals[id] = n
		}
	}

	// 需加锁的路口：本路线及其当前占用者的路线
	lockIDs := slices.Clone(o.Route)
	for _, id := range o.Route {
		if h := c.slot(id).holder; h != nil {
			lockIDs = append(lockIDs, h.Route...)
		}
	}
	lockIDs = lo.Uniq(lockIDs)
	sort.Strings(lockIDs)
	locked := make([]*slot, 0, len(lockIDs))
	for _, id := range lockIDs {
		s := c.slot(id)
		s.mtx.Lock()
		locked = append(locked, s)
	}
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mtx.Unlock()
		}
	}()

	displaced := make([]*Override, 0)
	for _, id := range o.Route {
		h := c.slot(id).holder
		if h == nil {
			continue
		}
		if h.Priority > o.Priority {
			return nil, nil, fmt.Errorf("junction %s held by %s (priority %d > %d): %w", id, h.ID, h.Priority, o.Priority, ErrPreempted)
		}
		if o.retried && h.Priority == o.Priority {
			return nil, nil, fmt.Errorf("junction %s held by %s of equal priority %d, retried request does not replace it: %w", id, h.ID, h.Priority, ErrPreempted)
		}
		if !lo.Contains(displaced, h) {
			displaced = append(displaced, h)
		}
	}

	o.Schedules = schedules
	o.PreOverride = make(map[string]timing.Schedule, len(o.Route))
	for _, id := range o.Route {
		s := c.slot(id)
		if h := s.holder; h != nil {
			if pre, ok := h.PreOverride[id]; ok {
				o.PreOverride[id] = pre
			}
		} else if n, ok := normals[id]; ok {
			o.PreOverride[id] = n
		}
		s.holder = o
	}
	releases := make([]entity.Release, 0)
	for _, d := range displaced {
		for _, id := range d.Route {
			if lo.Contains(o.Route, id) {
				continue
			}
			if s := c.slot(id); s.holder == d {
				s.holder = nil
				releases = append(releases, newRelease(d, id))
			}
		}
	}
	return releases, displaced, nil
}

// release 释放抢占的整条路线
func (c *Controller) release(o *Override) []entity.Release {
	ids := slices.Clone(o.Route)
	sort.Strings(ids)
	releases := make([]entity.Release, 0, len(ids))
	for _, id := range ids {
		s := c.slot(id)
		s.mtx.Lock()
		if s.holder == o {
			s.holder = nil
			releases = append(releases, newRelease(o, id))
		}
		s.mtx.Unlock()
	}
	return releases
}

func newRelease(o *Override, junctionID string) entity.Release {
	pre, ok := o.PreOverride[junctionID]
	return entity.Release{
		JunctionID:   junctionID,
		OverrideID:   o.ID,
		Preserved:    pre,
		HasPreserved: ok,
	}
}

// requeue 被替换的抢占以剩余时长重新排队
func (c *Controller) requeue(d *Override, now float64) {
	delete(c.active, d.ID)
	remaining := d.Remaining(now)
	if remaining <= 0 {
		c.finish(d, StatusCompleted, entity.EventCompleted, now)
		return
	}
	c.mtx.Lock()
	d.Duration = remaining
	d.SubmittedAt = now
	d.Status = StatusQueued
	c.mtx.Unlock()
	d.retried = true
	d.Schedules = nil
	d.PreOverride = nil
	log.Infof("emergency %s displaced, %.0fs remaining", d.ID, remaining)
	c.record(d, entity.EventDisplaced, now)
	c.queue.HeapPush(d)
}

// queued 进入等待队列并记录无法生效的原因
func (c *Controller) queued(o *Override, reason error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	o.Status = StatusQueued
	o.Reason = reason.Error()
}

// finish 进入结束状态并移入历史
func (c *Controller) finish(o *Override, status Status, kind entity.EmergencyEventKind, now float64) {
	c.mtx.Lock()
	o.Status = status
	delete(c.known, o.ID)
	c.history = append(c.history, o)
	if len(c.history) > historySize {
		c.history = c.history[len(c.history)-historySize:]
	}
	c.mtx.Unlock()
	c.record(o, kind, now)
}

func (c *Controller) record(o *Override, kind entity.EmergencyEventKind, now float64) {
	r := c.ctx.Recorder()
	if r == nil {
		return
	}
	r.Record(entity.EmergencyEvent{
		OverrideID: o.ID,
		Kind:       kind,
		Type:       o.Type,
		Priority:   o.Priority,
		Route:      slices.Clone(o.Route),
		Duration:   o.Duration,
		T:          now,
	})
}

// Active 路口当前生效的抢占配时
func (c *Controller) Active(junctionID string) (timing.Schedule, bool) {
	s := c.slot(junctionID)
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.holder == nil {
		return timing.Schedule{}, false
	}
	sch, ok := s.holder.Schedules[junctionID]
	if !ok {
		return timing.Schedule{}, false
	}
	return sch.Clone(), true
}

// Holder 路口当前的抢占ID
func (c *Controller) Holder(junctionID string) (string, bool) {
	s := c.slot(junctionID)
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.holder == nil {
		return "", false
	}
	return s.holder.ID, true
}

// Get 查询抢占
func (c *Controller) Get(id string) (View, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if o, ok := c.known[id]; ok {
		return o.view(), true
	}
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].ID == id {
			return c.history[i].view(), true
		}
	}
	return View{}, false
}

// List 列出全部未结束与最近结束的抢占
// 返回：未结束的按提交顺序在前，随后为历史记录
func (c *Controller) List() []View {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	open := lo.Values(c.known)
	sort.Slice(open, func(i, j int) bool { return open[i].seq < open[j].seq })
	views := make([]View, 0, len(open)+len(c.history))
	for _, o := range open {
		views = append(views, o.view())
	}
	for _, o := range c.history {
		views = append(views, o.view())
	}
	return views
}
