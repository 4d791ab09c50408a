package entity

import (
	"github.com/tsinghua-fib-lab/railsim-ai/clock"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/metrics"
)

type ITaskContext interface {
	Clock() *clock.Clock
	SectionManager() ISectionManager
	SignalManager() ISignalManager
	TrainManager() ITrainManager
	RuntimeConfig() *config.RuntimeConfig
	Metrics() *metrics.Collector
}
