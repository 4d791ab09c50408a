package clock

import (
	"context"
	"math"
	"net/http"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "clock")

// Register 将ClockService注册到sidecar，供调度台等外部系统查询仿真时刻
func (c *Clock) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		clockv1connect.ClockServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return clockv1connect.NewClockServiceHandler(c, opts...)
		},
	)
	log.Infof("clock service registered at %v", c)
}

// publish 发布当前时刻
func (c *Clock) publish() {
	c.published.Store(math.Float64bits(c.T))
}

// Published 最近一步结束时发布的时刻
// 说明：RPC在sidecar的协程中处理，不直接读取由仿真循环修改的T
func (c *Clock) Published() float64 {
	return math.Float64frombits(c.published.Load())
}

// Now 最近一步结束时的仿真时刻（秒）
func (c *Clock) Now(ctx context.Context, in *connect.Request[clockv1.NowRequest]) (*connect.Response[clockv1.NowResponse], error) {
	return connect.NewResponse(&clockv1.NowResponse{
		T: c.Published(),
	}), nil
}
