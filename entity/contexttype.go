package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-tsc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	RuntimeConfig() *config.RuntimeConfig
	RoadManager() IRoadManager
	JunctionManager() IJunctionManager
	EmergencyController() IEmergencyController
	CorridorCoordinator() ICorridorCoordinator
	Source() ITrafficSource
	Sink() ICommandSink
	Recorder() IRecorder
}
