package emergency_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/emergency"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/entitytest"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/road"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

func setup(t *testing.T) (*entitytest.Context, *emergency.Controller) {
	c := config.Config{
		Input: config.Input{Network: config.InputPath{File: "../../data/network.yaml"}},
		Control: config.Control{
			Step:      config.ControlStep{Total: 1000, Interval: 1},
			StartHour: 12,
		},
	}
	n, err := input.Init(c)
	require.NoError(t, err)
	ctx, err := entitytest.NewContext(c)
	require.NoError(t, err)

	roads := road.NewManager(ctx)
	require.NoError(t, roads.Init(n))
	ctx.Roads = roads
	junctions := junction.NewManager(ctx)
	junctions.Init(n)
	ctx.Junctions = junctions
	controller := emergency.NewController(ctx)
	ctx.Emergencies = controller
	return ctx, controller
}

func holder(t *testing.T, c *emergency.Controller, junctionID string) string {
	t.Helper()
	id, _ := c.Holder(junctionID)
	return id
}

func status(t *testing.T, c *emergency.Controller, id string) string {
	t.Helper()
	v, ok := c.Get(id)
	require.True(t, ok)
	return v.Status
}

func TestActivateAndExpire(t *testing.T) {
	ctx, c := setup(t)
	v, err := c.Submit(emergency.Request{Type: "Medical", Route: []string{"J0", "J1"}, Direction: "eastbound", Duration: 10})
	require.NoError(t, err)
	assert.Equal(t, "medical", v.Type)
	assert.Equal(t, 10, v.Priority)
	assert.Equal(t, "pending", v.Status)
	_, ok := c.Active("J0")
	assert.False(t, ok)

	assert.Empty(t, c.Prepare(1))
	assert.Equal(t, "active", status(t, c, v.ID))
	s, ok := c.Active("J1")
	require.True(t, ok)
	assert.Equal(t, timing.ModeEmergency, s.Mode)
	assert.Equal(t, v.ID, s.OverrideID)
	assert.Equal(t, 13, s.CycleTime)
	assert.Equal(t, timing.PhaseTiming{Green: 10, Yellow: 3, Red: 0}, s.Phases["west"])
	assert.Equal(t, timing.PhaseTiming{Green: 10, Yellow: 3, Red: 0}, s.Phases["east"])
	assert.Equal(t, timing.PhaseTiming{Green: 0, Yellow: 3, Red: 10}, s.Phases["north"])

	assert.Empty(t, c.Prepare(10))
	releases := c.Prepare(11)
	require.Len(t, releases, 2)
	assert.Equal(t, "J0", releases[0].JunctionID)
	assert.Equal(t, "J1", releases[1].JunctionID)
	assert.False(t, releases[0].HasPreserved)
	assert.Equal(t, "completed", status(t, c, v.ID))
	_, ok = c.Active("J0")
	assert.False(t, ok)

	assert.Equal(t,
		[]entity.EmergencyEventKind{entity.EventSubmitted, entity.EventActivated, entity.EventCompleted},
		ctx.Rec.(*entitytest.MemoryRecorder).Kinds(v.ID),
	)
}

func TestHigherPriorityBlocksWholeRoute(t *testing.T) {
	ctx, c := setup(t)
	medical, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0", "J1"}})
	require.NoError(t, err)
	c.Prepare(1)

	fire, err := c.Submit(emergency.Request{Type: "fire", Route: []string{"J1", "J5"}})
	require.NoError(t, err)
	c.Prepare(2)
	assert.Equal(t, "queued", status(t, c, fire.ID))
	assert.Equal(t, medical.ID, holder(t, c, "J1"))
	// 整路线原子：未被占用的J5也不生效
	assert.Empty(t, holder(t, c, "J5"))

	require.NoError(t, c.Complete(medical.ID))
	releases := c.Prepare(3)
	assert.Len(t, releases, 2)
	assert.Equal(t, "completed", status(t, c, medical.ID))
	assert.Equal(t, "active", status(t, c, fire.ID))
	assert.Equal(t, fire.ID, holder(t, c, "J1"))
	assert.Equal(t, fire.ID, holder(t, c, "J5"))
	assert.Empty(t, holder(t, c, "J0"))

	assert.Equal(t,
		[]entity.EmergencyEventKind{entity.EventSubmitted, entity.EventPreempted, entity.EventActivated},
		ctx.Rec.(*entitytest.MemoryRecorder).Kinds(fire.ID),
	)
}

func TestDisplacedOverrideResumesWithRemainingTime(t *testing.T) {
	_, c := setup(t)
	general, err := c.Submit(emergency.Request{Type: "general", Route: []string{"J0", "J1", "J5"}, Duration: 60})
	require.NoError(t, err)
	c.Prepare(1)

	medical, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J1"}, Duration: 30})
	require.NoError(t, err)
	releases := c.Prepare(11)
	// J1由medical接管，J0与J5立即释放
	require.Len(t, releases, 2)
	assert.ElementsMatch(t, []string{"J0", "J5"}, []string{releases[0].JunctionID, releases[1].JunctionID})
	assert.Equal(t, medical.ID, holder(t, c, "J1"))
	v, _ := c.Get(general.ID)
	assert.Equal(t, "queued", v.Status)
	assert.Equal(t, 50., v.Duration)

	c.Prepare(12)
	assert.Equal(t, "queued", status(t, c, general.ID))

	require.NoError(t, c.Complete(medical.ID))
	c.Prepare(13)
	assert.Equal(t, "active", status(t, c, general.ID))
	assert.Equal(t, general.ID, holder(t, c, "J0"))
	s, ok := c.Active("J0")
	require.True(t, ok)
	assert.Equal(t, 53, s.CycleTime)
}

func TestEqualPriorityFreshRequestReplaces(t *testing.T) {
	_, c := setup(t)
	a, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0", "J1"}})
	require.NoError(t, err)
	c.Prepare(1)

	b, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J1", "J5"}})
	require.NoError(t, err)
	c.Prepare(2)
	assert.Equal(t, b.ID, holder(t, c, "J1"))
	assert.Empty(t, holder(t, c, "J0"))
	assert.Equal(t, "queued", status(t, c, a.ID))

	// 重试的请求不能替换同优先级的占用者
	c.Prepare(3)
	assert.Equal(t, b.ID, holder(t, c, "J1"))
	v, ok := c.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "queued", v.Status)
	assert.Contains(t, v.Reason, "equal priority 10")
	assert.NotContains(t, v.Reason, ">")

	require.NoError(t, c.Complete(b.ID))
	c.Prepare(4)
	v, _ = c.Get(a.ID)
	assert.Equal(t, "active", v.Status)
	assert.Empty(t, v.Reason)
}

func TestQueuedReasonNamesHigherPriority(t *testing.T) {
	_, c := setup(t)
	_, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0"}})
	require.NoError(t, err)
	general, err := c.Submit(emergency.Request{Type: "general", Route: []string{"J0"}})
	require.NoError(t, err)
	c.Prepare(1)
	v, _ := c.Get(general.ID)
	assert.Equal(t, "queued", v.Status)
	assert.Contains(t, v.Reason, "priority 10 > 5")
}

func TestDurationLimits(t *testing.T) {
	_, c := setup(t)
	for _, d := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0"}, Duration: d})
		assert.ErrorIs(t, err, emergency.ErrInvalidRequest, d)
	}
	assert.Empty(t, c.List())

	v, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0"}, Duration: 1e20})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEmergencyMax, v.Duration)
	c.Prepare(1)
	s, ok := c.Active("J0")
	require.True(t, ok)
	assert.Equal(t, 603, s.CycleTime)
	assert.NoError(t, s.Validate(nil))

	c.Prepare(1 + config.DefaultEmergencyMax)
	_, ok = c.Active("J0")
	assert.False(t, ok)
	assert.Equal(t, "completed", status(t, c, v.ID))
}

func TestStaleQueuedRequestDropped(t *testing.T) {
	ctx, c := setup(t)
	_, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0"}, Duration: 60})
	require.NoError(t, err)
	general, err := c.Submit(emergency.Request{Type: "general", Route: []string{"J0"}, Duration: 5})
	require.NoError(t, err)
	c.Prepare(0)
	assert.Equal(t, "queued", status(t, c, general.ID))

	c.Prepare(4)
	assert.Equal(t, "queued", status(t, c, general.ID))
	c.Prepare(5)
	assert.Equal(t, "dropped", status(t, c, general.ID))
	assert.Contains(t, ctx.Rec.(*entitytest.MemoryRecorder).Kinds(general.ID), entity.EventDropped)
}

func TestCancelBeforeActivation(t *testing.T) {
	_, c := setup(t)
	v, err := c.Submit(emergency.Request{Type: "fire"})
	require.NoError(t, err)
	require.NoError(t, c.Complete(v.ID))
	assert.Empty(t, c.Prepare(1))
	assert.Equal(t, "cancelled", status(t, c, v.ID))
	assert.Empty(t, holder(t, c, "J0"))

	assert.ErrorIs(t, c.Complete(v.ID), emergency.ErrUnknownOverride)
	assert.ErrorIs(t, c.Complete("missing"), emergency.ErrUnknownOverride)
}

func TestResolveRoute(t *testing.T) {
	_, c := setup(t)

	v, err := c.Submit(emergency.Request{Type: "fire"})
	require.NoError(t, err)
	assert.Equal(t, []string{"J0", "J2", "J6"}, v.Route)
	assert.Empty(t, v.Warning)

	v, err = c.Submit(emergency.Request{Type: "alien"})
	require.NoError(t, err)
	assert.Equal(t, []string{"J0", "J3", "J4"}, v.Route)
	assert.Equal(t, emergency.DefaultPriority, v.Priority)
	assert.NotEmpty(t, v.Warning)

	v, err = c.Submit(emergency.Request{Origin: "J7", Destination: "J5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"J7", "J0", "J1", "J5"}, v.Route)
	assert.Equal(t, emergency.TypeGeneral, v.Type)
	assert.Equal(t, config.DefaultEmergencyDuration, v.Duration)

	v, err = c.Submit(emergency.Request{Location: &orb.Point{116.3001, 39.9981}, Destination: "J0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"J6", "J2", "J0"}, v.Route)

	_, err = c.Submit(emergency.Request{Route: []string{"J0", "J1", "J0"}})
	assert.ErrorIs(t, err, emergency.ErrInvalidRequest)
	_, err = c.Submit(emergency.Request{Route: []string{"J0", "J42"}})
	assert.ErrorIs(t, err, emergency.ErrInvalidRequest)
	_, err = c.Submit(emergency.Request{Origin: "J0", Destination: "J42"})
	assert.ErrorIs(t, err, emergency.ErrInvalidRequest)
}

func TestListAndPriorities(t *testing.T) {
	_, c := setup(t)
	a, _ := c.Submit(emergency.Request{Type: "crime"})
	b, _ := c.Submit(emergency.Request{Type: "breakdown"})
	views := c.List()
	require.Len(t, views, 2)
	assert.Equal(t, a.ID, views[0].ID)
	assert.Equal(t, b.ID, views[1].ID)
	assert.Equal(t, 7, views[0].Priority)
	assert.Equal(t, 3, views[1].Priority)

	p, err := emergency.PriorityOf("ACCIDENT")
	assert.NoError(t, err)
	assert.Equal(t, 8, p)
	_, err = emergency.PriorityOf("meteor")
	assert.ErrorIs(t, err, emergency.ErrUnknownEmergencyType)
}
