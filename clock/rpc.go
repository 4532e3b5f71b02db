package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"git.fiblab.net/sim/syncer/v3"
)

// Register 将ClockService注册到sidecar
func (c *Clock) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		clockv1connect.ClockServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return clockv1connect.NewClockServiceHandler(c, opts...)
		},
	)
}

// Now 获取当前仿真时间
func (c *Clock) Now(ctx context.Context, in *connect.Request[clockv1.NowRequest]) (*connect.Response[clockv1.NowResponse], error) {
	return connect.NewResponse(&clockv1.NowResponse{
		T: c.T,
	}), nil
}

// SyncFrom 从模拟器的ClockService同步当前时间
// 功能：读取远端时间并对齐本地步数，使小时与模拟器一致
// 参数：ctx-上下文，client-模拟器时钟客户端
// 返回：同步失败时返回错误，本地时钟保持不变
func (c *Clock) SyncFrom(ctx context.Context, client clockv1connect.ClockServiceClient) error {
	res, err := client.Now(ctx, connect.NewRequest(&clockv1.NowRequest{}))
	if err != nil {
		return err
	}
	c.T = res.Msg.T
	if c.DT > 0 {
		c.InternalStep = int32(c.T / c.DT)
	}
	return nil
}
