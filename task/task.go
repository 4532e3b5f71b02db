package task

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/corridor"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/emergency"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/road"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/link"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/output"
)

// waitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
func waitForServerReady(addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for range retryCount {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Context 控制任务上下文
// 功能：包含一次控制任务的所有变量和状态，替代全局变量
// 说明：管理时钟、路网、各管理器以及与外部模拟器的连接
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock
	// 模拟器时钟客户端（仅在同步时钟时非nil）
	clockClient clockv1connect.ClockServiceClient

	// 辅助程序，处理分布式模式下与syncer的交互并提供RPC服务，为nil时不注册服务
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// sidecar服务是否已启动
	serving bool
	// 独立模式下按墙钟节奏推进
	realtime bool

	// 运行时配置
	runtimeConfig *config.RuntimeConfig
	// 路口网络
	network *input.Network

	// Road管理器
	roadManager *road.RoadManager
	// Junction管理器
	junctionManager *junction.JunctionManager
	// 紧急抢占控制器
	emergencyController *emergency.Controller
	// 绿波协调器
	corridorCoordinator *corridor.Coordinator

	// 交通数据源
	source entity.ITrafficSource
	// 配时下发端
	sink entity.ICommandSink
	// 紧急事件审计
	recorder *output.Recorder
}

// NewContext 创建新的控制任务上下文
// 参数：
//   - job: 任务名称
//   - c: 配置对象
//   - sidecar: 外部sidecar实例，为nil时不注册RPC服务（仅用于测试）
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：上下文；配置非法或路网加载失败时返回错误
// 算法说明：
// 1. 补齐并校验配置，加载路口网络
// 2. 创建时钟与各管理器、数据源、下发端、审计记录器
// 3. 注册RPC服务到sidecar并启动sidecar服务（如果需要）
func NewContext(
	job string,
	c config.Config,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) (*Context, error) {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		return nil, err
	}
	network, err := input.Init(rc.All)
	if err != nil {
		return nil, err
	}
	log.Infof("network: %v", network)

	ctx := &Context{
		job:            job,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		realtime:       rc.C.Realtime,
		runtimeConfig:  rc,
		network:        network,
	}
	ctx.clock = clock.New(rc.C.Step, rc.C.StartHour)

	lc := rc.All.Link
	ctx.source = newSource(ctx, network, lc.Seed)
	switch lc.Mode {
	case config.LinkModeSimulet:
		if err := waitForServerReady(lc.Address, 10, time.Second); err != nil {
			return nil, err
		}
		ctx.sink = newSimuletSink(lc.Address, network)
	default:
		ctx.sink = newLogSink()
	}
	if lc.SyncClock {
		ctx.clockClient = clockv1connect.NewClockServiceClient(http.DefaultClient, lc.Address)
	}
	ctx.recorder = output.New(rc.All.Output)

	ctx.roadManager = road.NewManager(ctx)
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.emergencyController = emergency.NewController(ctx)
	ctx.corridorCoordinator = corridor.NewCoordinator(ctx)

	if sidecar != nil {
		ctx.clock.Register(sidecar)
		ctx.junctionManager.Register(sidecar)
		ctx.emergencyController.Register(sidecar)
		ctx.corridorCoordinator.Register(sidecar)
	}

	// sidecar协程，用于提供gRPC服务
	if sidecar != nil && startSidecarServe {
		ctx.serving = true
		go func() {
			err := ctx.sidecar.Serve()
			if err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.sidecarCloseCh <- struct{}{}
		}()
	}

	return ctx, nil
}

func newSource(ctx entity.ITaskContext, n *input.Network, seed uint64) entity.ITrafficSource {
	return link.NewSyntheticSource(ctx, n, seed)
}

func newSimuletSink(address string, n *input.Network) entity.ICommandSink {
	return link.NewSimuletSink(address, n)
}

func newLogSink() entity.ICommandSink {
	return link.NewLogSink()
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Network() *input.Network {
	return ctx.network
}

func (ctx *Context) RoadManager() entity.IRoadManager {
	return ctx.roadManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) EmergencyController() entity.IEmergencyController {
	return ctx.emergencyController
}

// Emergency 紧急抢占控制器（含提交与查询接口）
func (ctx *Context) Emergency() *emergency.Controller {
	return ctx.emergencyController
}

func (ctx *Context) CorridorCoordinator() entity.ICorridorCoordinator {
	return ctx.corridorCoordinator
}

func (ctx *Context) Source() entity.ITrafficSource {
	return ctx.source
}

func (ctx *Context) Sink() entity.ICommandSink {
	return ctx.sink
}

func (ctx *Context) Recorder() entity.IRecorder {
	return ctx.recorder
}

// Init 初始化时钟与各管理器
// 返回：绿波方案计算失败时返回错误
func (ctx *Context) Init() error {
	ctx.clock.Init()

	log.Infof("Junction: %v", len(ctx.network.Junctions))
	log.Infof("Road: %v", len(ctx.network.Roads))
	log.Infof("Corridor: %v", len(ctx.runtimeConfig.All.Corridors))

	if err := ctx.roadManager.Init(ctx.network); err != nil {
		return err
	}
	ctx.junctionManager.Init(ctx.network)
	return ctx.corridorCoordinator.Init(ctx.runtimeConfig.All.Corridors, ctx.roadManager)
}

func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	ctx.closed.Store(true)
	ctx.recorder.Close()
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
		if ctx.serving {
			// wait for graceful stop
			<-ctx.sidecarCloseCh
		}
	}
}
