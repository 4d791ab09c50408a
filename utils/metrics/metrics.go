// 运行指标，基于prometheus的独立Registry暴露/metrics
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "metrics")

// Collector 模拟器指标集合
// 说明：所有记录方法对nil接收者安全，单元测试中可直接传nil
type Collector struct {
	reg *prometheus.Registry

	TrainsActive    prometheus.Gauge
	TrainsWaiting   prometheus.Gauge
	TrainStates     *prometheus.GaugeVec   // state标签：各运动状态的列车数
	Arbitrations    *prometheus.CounterVec // rule标签：仲裁规则命中次数
	Removals        *prometheus.CounterVec // reason标签：列车移除原因
	AuxActions      *prometheus.CounterVec // kind标签：完成的辅助动作
	StationDelay    prometheus.Histogram
	StepDuration    prometheus.Histogram
	SimulationClock prometheus.Gauge
}

// NewCollector 创建并注册全部指标
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		TrainsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "railsim_trains_active",
			Help: "Number of trains currently driven by the AI.",
		}),
		TrainsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "railsim_trains_waiting",
			Help: "Number of trains waiting for their start time.",
		}),
		TrainStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsim_train_states",
			Help: "Number of trains per movement state.",
		}, []string{"state"}),
		Arbitrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railsim_arbitrations_total",
			Help: "Arbitration decisions by rule.",
		}, []string{"rule"}),
		Removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railsim_train_removals_total",
			Help: "Trains removed from the simulation by reason.",
		}, []string{"reason"}),
		AuxActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railsim_aux_actions_total",
			Help: "Completed auxiliary actions by kind.",
		}, []string{"kind"}),
		StationDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "railsim_station_departure_delay_seconds",
			Help:    "Departure delay against the timetable.",
			Buckets: []float64{-60, 0, 30, 60, 120, 300, 600, 1800},
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "railsim_step_duration_seconds",
			Help:    "Wall time of one simulation step.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SimulationClock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "railsim_clock_seconds",
			Help: "Current simulation time of day in seconds.",
		}),
	}
	reg.MustRegister(
		c.TrainsActive, c.TrainsWaiting, c.TrainStates,
		c.Arbitrations, c.Removals, c.AuxActions,
		c.StationDelay, c.StepDuration, c.SimulationClock,
	)
	return c
}

// Handler 指标的HTTP处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve 在addr上启动/metrics服务
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server error: %v", err)
		}
	}()
	log.Infof("metrics listening on %s", addr)
	return srv
}

func (c *Collector) Arbitrated(rule string) {
	if c == nil {
		return
	}
	c.Arbitrations.WithLabelValues(rule).Inc()
}

func (c *Collector) Removed(reason string) {
	if c == nil {
		return
	}
	c.Removals.WithLabelValues(reason).Inc()
}

func (c *Collector) AuxDone(kind string) {
	if c == nil {
		return
	}
	c.AuxActions.WithLabelValues(kind).Inc()
}

func (c *Collector) Departed(delay float64) {
	if c == nil {
		return
	}
	c.StationDelay.Observe(delay)
}

// SetTrains 更新列车数量与各状态分布
func (c *Collector) SetTrains(active, waiting int, states map[string]int) {
	if c == nil {
		return
	}
	c.TrainsActive.Set(float64(active))
	c.TrainsWaiting.Set(float64(waiting))
	c.TrainStates.Reset()
	for s, n := range states {
		c.TrainStates.WithLabelValues(s).Set(float64(n))
	}
}

// Step 记录一步的耗时与当前时刻
func (c *Collector) Step(seconds, clock float64) {
	if c == nil {
		return
	}
	c.StepDuration.Observe(seconds)
	c.SimulationClock.Set(clock)
}
