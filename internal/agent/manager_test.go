package agent

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegsinavski/SMARTS/internal/controller"
	"github.com/olegsinavski/SMARTS/internal/provider"
	"github.com/olegsinavski/SMARTS/internal/registry"
	"github.com/olegsinavski/SMARTS/internal/sensor"
	"github.com/olegsinavski/SMARTS/internal/sim"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

type fixture struct {
	ctx     *sim.Context
	reg     *registry.VehicleRegistry
	pool    *controller.Pool
	manager *LifecycleManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	ctx := sim.New(sensor.NewManager(),
		provider.NewAgentsProvider(log),
		provider.NewTrafficProvider(log),
	)
	reg, err := registry.New(log)
	require.NoError(t, err)
	pool := controller.NewPool(log)
	t.Cleanup(pool.Destroy)
	return &fixture{
		ctx:     ctx,
		reg:     reg,
		pool:    pool,
		manager: NewLifecycleManager(log, pool),
	}
}

func laneInterface() core.AgentInterface {
	return core.AgentInterface{ActionSpace: core.ActionSpaceLaneFollowing, MaxEpisodeSteps: 100}
}

func laneSpec() core.AgentSpec {
	return core.AgentSpec{Interface: laneInterface(), PolicyLocator: "keep-lane"}
}

func (f *fixture) spawnEgo(t *testing.T, agentID string) {
	t.Helper()
	f.manager.AddEgoAgent(agentID, laneInterface(), false)
	err := f.manager.SetupAgents(f.ctx, f.reg, map[string]core.Mission{
		agentID: {StartPose: core.Pose{Position: core.Position3D{X: 1}}},
	})
	require.NoError(t, err)
}

func (f *fixture) spawnBoid(t *testing.T, agentID string, keepAlive bool, vehicleIDs ...string) {
	t.Helper()
	model := core.SocialAgentModel{ID: agentID, IsBoid: true, IsBoidKeepAlive: keepAlive}
	require.NoError(t, f.manager.StartSocialAgent(agentID, laneSpec(), model))
	for _, vid := range vehicleIDs {
		_, err := f.reg.RegisterOwnedVehicle(f.ctx, agentID, laneInterface(), core.Mission{}, false,
			registry.SpawnOptions{Boid: true, VehicleID: vid})
		require.NoError(t, err)
	}
}

func TestObserveStandardAgent(t *testing.T) {
	f := newFixture(t)
	f.spawnEgo(t, "ego-1")
	f.reg.Sync(f.ctx)

	result := f.manager.Observe(f.ctx, f.reg, 1, false, nil)

	obs, ok := result.Observations["ego-1"]
	require.True(t, ok)
	require.NotNil(t, obs.Single)
	assert.Nil(t, obs.PerVehicle)
	assert.Equal(t, "ego-1", obs.Single.VehicleID)
	assert.Equal(t, uint64(1), obs.Single.Tick)
	assert.False(t, result.Dones["ego-1"].Done)
	assert.False(t, result.AllDone)
}

func TestObserveBoidAgent(t *testing.T) {
	f := newFixture(t)
	f.spawnBoid(t, "flock", false, "flock-v1", "flock-v2")
	f.reg.Sync(f.ctx)

	result := f.manager.Observe(f.ctx, f.reg, 1, false, nil)

	obs, ok := result.Observations["flock"]
	require.True(t, ok)
	assert.Nil(t, obs.Single)
	assert.Len(t, obs.PerVehicle, 2)
	assert.Contains(t, obs.PerVehicle, "flock-v1")
	assert.Contains(t, obs.PerVehicle, "flock-v2")

	rewards := result.Rewards["flock"]
	assert.Len(t, rewards.PerVehicle, 2)
}

func TestObserveDroppedOutAgentIsDone(t *testing.T) {
	f := newFixture(t)
	f.spawnEgo(t, "ego-1")
	f.reg.TeardownByOwner(f.ctx, []string{"ego-1"}, true)

	result := f.manager.Observe(f.ctx, f.reg, 1, false, nil)

	assert.NotContains(t, result.Observations, "ego-1")
	assert.True(t, result.Dones["ego-1"].Done)
	assert.True(t, result.AllDone)
}

func TestObserveForcedDoneOverride(t *testing.T) {
	f := newFixture(t)
	f.spawnEgo(t, "ego-1")
	f.spawnBoid(t, "flock", false, "flock-v1", "flock-v2")
	f.reg.Sync(f.ctx)

	result := f.manager.Observe(f.ctx, f.reg, 1, false, map[string]bool{"ego-1": true, "flock": true})

	assert.True(t, result.Dones["ego-1"].Done)
	// a forced reset marks every sub-vehicle of a boid agent done
	dones := result.Dones["flock"].PerVehicle
	assert.True(t, dones["flock-v1"])
	assert.True(t, dones["flock-v2"])
	assert.True(t, result.AllDone)
}

func TestObserveForcedResetEndsEpisode(t *testing.T) {
	f := newFixture(t)
	f.spawnEgo(t, "ego-1")
	f.spawnBoid(t, "flock", false, "flock-v1", "flock-v2")
	f.reg.Sync(f.ctx)

	result := f.manager.Observe(f.ctx, f.reg, 1, true, nil)

	// the reset marks every agent done without naming them individually
	assert.True(t, result.Dones["ego-1"].Done)
	dones := result.Dones["flock"].PerVehicle
	assert.True(t, dones["flock-v1"])
	assert.True(t, dones["flock-v2"])
	assert.True(t, result.AllDone)
}

func TestObserveForcedResetWithoutEgoAgents(t *testing.T) {
	f := newFixture(t)
	f.spawnBoid(t, "flock", false, "flock-v1")
	f.reg.Sync(f.ctx)

	result := f.manager.Observe(f.ctx, f.reg, 1, false, nil)
	assert.False(t, result.AllDone)

	// a reset ends the episode even when no ego agent is on the roster
	result = f.manager.Observe(f.ctx, f.reg, 2, true, nil)
	assert.True(t, result.Dones["flock"].PerVehicle["flock-v1"])
	assert.True(t, result.AllDone)
}

func TestObserveRewardIsTripWindow(t *testing.T) {
	f := newFixture(t)
	f.spawnEgo(t, "ego-1")
	f.reg.Sync(f.ctx)

	v, _ := f.reg.VehicleByID("ego-1")
	v.Chassis().SetPose(core.Pose{Position: core.Position3D{X: 4}})
	f.reg.Sync(f.ctx)

	result := f.manager.Observe(f.ctx, f.reg, 1, false, nil)
	assert.InDelta(t, 3.0, result.Rewards["ego-1"].Single, 1e-9)
	assert.InDelta(t, 3.0, result.Scores["ego-1"].Single, 1e-9)

	// the reward window resets on read, the score keeps the episode total
	result = f.manager.Observe(f.ctx, f.reg, 2, false, nil)
	assert.InDelta(t, 0.0, result.Rewards["ego-1"].Single, 1e-9)
	assert.InDelta(t, 3.0, result.Scores["ego-1"].Single, 1e-9)
}

func TestFetchAgentActionsEgoPassThrough(t *testing.T) {
	f := newFixture(t)
	f.spawnEgo(t, "ego-1")

	want := core.AgentAction{Single: &core.Action{Space: core.ActionSpaceLaneFollowing, Speed: 12}}
	actions, err := f.manager.FetchAgentActions(f.reg,
		map[string]core.AgentAction{"ego-1": want}, nil)
	require.NoError(t, err)
	assert.Equal(t, want, actions["ego-1"])
}

func TestFetchAgentActionsSocialController(t *testing.T) {
	f := newFixture(t)
	model := core.SocialAgentModel{ID: "social-1"}
	require.NoError(t, f.manager.StartSocialAgent("social-1", laneSpec(), model))
	_, err := f.reg.RegisterOwnedVehicle(f.ctx, "social-1", laneInterface(), core.Mission{}, false, registry.SpawnOptions{})
	require.NoError(t, err)

	obs := map[string]core.AgentObservation{
		"social-1": {Single: &core.Observation{VehicleID: "social-1"}},
	}
	actions, err := f.manager.FetchAgentActions(f.reg, nil, obs)
	require.NoError(t, err)

	got, ok := actions["social-1"]
	require.True(t, ok)
	require.NotNil(t, got.Single)
	assert.Equal(t, core.ActionSpaceLaneFollowing, got.Single.Space)
}

func TestReservedActionOverridesController(t *testing.T) {
	f := newFixture(t)
	model := core.SocialAgentModel{ID: "social-1"}
	require.NoError(t, f.manager.StartSocialAgent("social-1", laneSpec(), model))
	_, err := f.reg.RegisterOwnedVehicle(f.ctx, "social-1", laneInterface(), core.Mission{}, false, registry.SpawnOptions{})
	require.NoError(t, err)

	reserved := core.AgentAction{Single: &core.Action{Space: core.ActionSpaceLaneFollowing, Speed: 99}}
	f.manager.ReserveSocialAgentAction("social-1", reserved)

	obs := map[string]core.AgentObservation{
		"social-1": {Single: &core.Observation{VehicleID: "social-1"}},
	}
	actions, err := f.manager.FetchAgentActions(f.reg, nil, obs)
	require.NoError(t, err)
	assert.Equal(t, reserved, actions["social-1"])

	// one-shot: the next fetch goes back through the controller
	actions, err = f.manager.FetchAgentActions(f.reg, nil, obs)
	require.NoError(t, err)
	require.NotNil(t, actions["social-1"].Single)
	assert.NotEqual(t, 99.0, actions["social-1"].Single.Speed)
}

func TestFetchAgentActionsFiltersToOwned(t *testing.T) {
	f := newFixture(t)
	f.spawnBoid(t, "flock", false, "flock-v1")

	// action names a vehicle the boid does not own
	action := core.AgentAction{PerVehicle: map[string]core.Action{
		"flock-v1": {Space: core.ActionSpaceLaneFollowing, Speed: 5},
		"stranger": {Space: core.ActionSpaceLaneFollowing, Speed: 5},
	}}
	f.manager.ReserveSocialAgentAction("flock", action)

	actions, err := f.manager.FetchAgentActions(f.reg, nil, nil)
	require.NoError(t, err)
	got := actions["flock"]
	assert.Len(t, got.PerVehicle, 1)
	assert.Contains(t, got.PerVehicle, "flock-v1")
}

func TestFetchAgentActionsDropsVehiclelessAgent(t *testing.T) {
	f := newFixture(t)
	f.spawnEgo(t, "ego-1")
	f.reg.TeardownByOwner(f.ctx, []string{"ego-1"}, true)

	want := core.AgentAction{Single: &core.Action{Space: core.ActionSpaceLaneFollowing}}
	actions, err := f.manager.FetchAgentActions(f.reg,
		map[string]core.AgentAction{"ego-1": want}, nil)
	require.NoError(t, err)
	assert.NotContains(t, actions, "ego-1")
}

func TestIsBoidDone(t *testing.T) {
	f := newFixture(t)

	f.spawnBoid(t, "flock", false, "flock-v1")
	f.spawnBoid(t, "immortal", true, "immortal-v1")
	model := core.SocialAgentModel{ID: "plain"}
	require.NoError(t, f.manager.StartSocialAgent("plain", laneSpec(), model))

	assert.False(t, f.manager.IsBoidDone(f.reg, "flock"), "boid with vehicles is not done")
	assert.False(t, f.manager.IsBoidDone(f.reg, "plain"), "non-boid agents never report boid-done")

	f.reg.TeardownByOwner(f.ctx, []string{"flock", "immortal"}, true)

	assert.True(t, f.manager.IsBoidDone(f.reg, "flock"), "vehicleless boid is done")
	assert.False(t, f.manager.IsBoidDone(f.reg, "immortal"), "keep-alive boid outlives its vehicles")
}

func TestPendingAgentActivation(t *testing.T) {
	f := newFixture(t)
	f.manager.AddEgoAgent("trap-agent", laneInterface(), true)

	assert.Contains(t, f.manager.PendingAgentIDs(), "trap-agent")
	assert.NotContains(t, f.manager.EgoAgentIDs(), "trap-agent")

	f.manager.ActivatePendingAgent("trap-agent")
	assert.Contains(t, f.manager.EgoAgentIDs(), "trap-agent")
	assert.Empty(t, f.manager.PendingAgentIDs())
}

func TestTeardownSocialAgents(t *testing.T) {
	f := newFixture(t)
	f.spawnBoid(t, "flock", false, "flock-v1")
	model := core.SocialAgentModel{ID: "loner"}
	require.NoError(t, f.manager.StartSocialAgent("loner", laneSpec(), model))
	_, err := f.reg.RegisterOwnedVehicle(f.ctx, "loner", laneInterface(), core.Mission{}, false, registry.SpawnOptions{})
	require.NoError(t, err)

	torn := f.manager.TeardownSocialAgents(f.ctx, f.reg, []string{"flock"})
	assert.Equal(t, []string{"flock"}, torn)
	assert.NotContains(t, f.manager.SocialAgentIDs(), "flock")
	assert.Contains(t, f.manager.SocialAgentIDs(), "loner")
	assert.Equal(t, 1, f.reg.VehicleCount())

	// nil filter tears down the rest
	f.manager.TeardownSocialAgents(f.ctx, f.reg, nil)
	assert.Empty(t, f.manager.SocialAgentIDs())
	assert.Equal(t, 0, f.reg.VehicleCount())
}

func TestFetchAgentActionsWarnsOnDroppedAction(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	ctx := sim.New(sensor.NewManager(),
		provider.NewAgentsProvider(zerolog.Nop()),
		provider.NewTrafficProvider(zerolog.Nop()),
	)
	reg, err := registry.New(zerolog.Nop())
	require.NoError(t, err)
	pool := controller.NewPool(zerolog.Nop())
	t.Cleanup(pool.Destroy)
	manager := NewLifecycleManager(log, pool)

	model := core.SocialAgentModel{ID: "flock", IsBoid: true}
	require.NoError(t, manager.StartSocialAgent("flock", laneSpec(), model))
	_, err = reg.RegisterOwnedVehicle(ctx, "flock", laneInterface(), core.Mission{}, false,
		registry.SpawnOptions{Boid: true, VehicleID: "flock-v1"})
	require.NoError(t, err)

	// every vehicle in the action is unowned, so the whole action is dropped
	manager.ReserveSocialAgentAction("flock", core.AgentAction{PerVehicle: map[string]core.Action{
		"stranger": {Space: core.ActionSpaceLaneFollowing},
	}})

	actions, err := manager.FetchAgentActions(reg, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, actions, "flock")
	assert.Contains(t, buf.String(), "Action targets no owned vehicles")
}
