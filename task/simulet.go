package task

import (
	"context"
	"flag"
	"time"
)

const (
	SelfName = "tsc" // 本程序在模拟任务集群中的名字
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 功能：在每个控制步开始时推进时钟并处理紧急抢占与交通数据
// 算法说明：
// 1. 更新时钟：增加内部步数并计算当前时间（配置了时钟同步时以模拟器为准）
// 2. 心跳日志：定期输出当前步与时刻
// 3. 紧急抢占：应用缓冲的请求、取消与到期，得到本步释放的路口
// 4. 路口准备：并发读取各路口的交通数据快照
//
// 说明：抢占状态只在此处变化，更新阶段看到的是一致的占用情况
func (ctx *Context) prepare() {
	ctx.clock.Tick()
	if ctx.clockClient != nil {
		c, cancel := context.WithTimeout(context.Background(), ctx.runtimeConfig.SourceTimeout())
		if err := ctx.clock.SyncFrom(c, ctx.clockClient); err != nil {
			log.Warnf("sync clock failed: %v", err)
		}
		cancel()
	}

	if ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		log.Infof("STEP: %d(%v)", ctx.clock.InternalStep, ctx.clock)
	}

	releases := ctx.emergencyController.Prepare(ctx.clock.T)
	ctx.junctionManager.SetReleases(releases)
	ctx.junctionManager.Prepare()
}

// update 更新阶段，每步执行一次
// 功能：为每个路口计算配时（正常或抢占）并下发
func (ctx *Context) update() {
	ctx.junctionManager.Update()
}

// Step 执行一个完整的控制步（准备+更新），不与syncer交互
func (ctx *Context) Step() {
	ctx.prepare()
	ctx.update()
}

// Run 运行
// 功能：初始化后循环执行控制步，直到到达结束步或收到关闭指令
// 说明：sidecar为nil时不与syncer同步；配置了realtime时每步至少间隔DT秒
func (ctx *Context) Run() error {
	// 初始化
	if err := ctx.Init(); err != nil {
		return err
	}
	defer ctx.Close()
	log.Infof("job %s: %d junctions, steps [%d, %d)", ctx.job, len(ctx.network.Junctions), ctx.clock.START_STEP, ctx.clock.END_STEP)
	if ctx.sidecar == nil {
		for !ctx.closed.Load() {
			start := time.Now()
			ctx.Step()
			if ctx.clock.Done() {
				break
			}
			ctx.sleep(start)
		}
		log.Infof("engine complete")
		return nil
	}

	// init syncer
	ctx.sidecar.Step(false)
	for {
		start := time.Now()
		ctx.prepare()
		// 通知准备阶段完成
		log.Debugf("step %d: prepare complete and call NotifyStepReady", ctx.clock.InternalStep)
		ctx.sidecar.NotifyStepReady()
		ctx.update()
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		close := ctx.sidecar.Step(ctx.clock.Done())
		if close || ctx.closed.Load() || ctx.clock.Done() {
			break
		}
		ctx.sleep(start)
	}
	log.Infof("engine complete")
	return nil
}

func (ctx *Context) sleep(start time.Time) {
	if !ctx.realtime {
		return
	}
	if d := time.Duration(ctx.clock.DT*float64(time.Second)) - time.Since(start); d > 0 {
		time.Sleep(d)
	}
}
