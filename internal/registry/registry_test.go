package registry

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegsinavski/SMARTS/internal/provider"
	"github.com/olegsinavski/SMARTS/internal/sensor"
	"github.com/olegsinavski/SMARTS/internal/sim"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

func newTestContext() *sim.Context {
	log := zerolog.Nop()
	return sim.New(sensor.NewManager(),
		provider.NewAgentsProvider(log),
		provider.NewTrafficProvider(log),
	)
}

func newTestRegistry(t *testing.T, opts ...Option) (*VehicleRegistry, *[]core.HandoffEvent) {
	t.Helper()
	var events []core.HandoffEvent
	opts = append(opts, WithHandoffListener(func(ev core.HandoffEvent) {
		events = append(events, ev)
	}))
	r, err := New(zerolog.Nop(), opts...)
	require.NoError(t, err)
	return r, &events
}

func trafficState(id string, x, y float64) core.VehicleState {
	return core.VehicleState{
		ActorID: id,
		Role:    core.RoleTraffic,
		Source:  "traffic",
		Pose:    core.Pose{Position: core.Position3D{X: x, Y: y}},
		Speed:   8,
	}
}

func laneInterface() core.AgentInterface {
	return core.AgentInterface{ActionSpace: core.ActionSpaceLaneFollowing, MaxEpisodeSteps: 100}
}

func TestRegisterOwnedVehicle(t *testing.T) {
	ctx := newTestContext()
	r, events := newTestRegistry(t)

	mission := core.Mission{
		StartPose: core.Pose{Position: core.Position3D{X: 5, Y: 5}},
		Goal:      core.Position3D{X: 100},
	}
	v, err := r.RegisterOwnedVehicle(ctx, "agent-1", laneInterface(), mission, true, SpawnOptions{})
	require.NoError(t, err)

	assert.Equal(t, "agent-1", v.ID())
	owner, ok := r.OwnerOf("agent-1")
	require.True(t, ok)
	assert.Equal(t, "agent-1", owner)

	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, core.RoleEgoAgent, recs[0].Role)
	assert.False(t, recs[0].IsHijacked)

	assert.True(t, ctx.Sensors.SensorStateExists("agent-1"))
	assert.True(t, ctx.Providers[0].ManagesActor("agent-1"))
	assert.False(t, ctx.Providers[1].ManagesActor("agent-1"))

	require.Len(t, *events, 1)
	assert.Equal(t, core.HandoffSpawn, (*events)[0].Kind)
}

func TestRegisterOwnedVehicleDuplicate(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	_, err := r.RegisterOwnedVehicle(ctx, "agent-1", laneInterface(), core.Mission{}, true, SpawnOptions{})
	require.NoError(t, err)

	_, err = r.RegisterOwnedVehicle(ctx, "agent-1", laneInterface(), core.Mission{}, true, SpawnOptions{})
	assert.ErrorIs(t, err, core.ErrInvariantViolation)
}

func TestRegisterOwnedVehicleNoProvider(t *testing.T) {
	ctx := sim.New(sensor.NewManager()) // no providers at all
	r, _ := newTestRegistry(t)

	_, err := r.RegisterOwnedVehicle(ctx, "agent-1", laneInterface(), core.Mission{}, true, SpawnOptions{})
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)

	// rollback leaves no half-registered state behind
	assert.Equal(t, 0, r.VehicleCount())
	assert.False(t, ctx.Sensors.SensorStateExists("agent-1"))
}

func TestRegisterSocialVehicle(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	t.Run("agent role rejected", func(t *testing.T) {
		state := trafficState("v1", 0, 0)
		state.Role = core.RoleEgoAgent
		_, err := r.RegisterSocialVehicle(ctx, state, "")
		assert.Error(t, err)
	})

	t.Run("traffic never keeps an owner", func(t *testing.T) {
		_, err := r.RegisterSocialVehicle(ctx, trafficState("v2", 0, 0), "someone")
		require.NoError(t, err)
		_, owned := r.OwnerOf("v2")
		assert.False(t, owned)
	})

	t.Run("external owner keeps role none", func(t *testing.T) {
		state := trafficState("v3", 0, 0)
		state.Role = core.RoleNone
		_, err := r.RegisterSocialVehicle(ctx, state, "history-replay")
		require.NoError(t, err)
		owner, ok := r.OwnerOf("v3")
		require.True(t, ok)
		assert.Equal(t, "history-replay", owner)
		assert.NotContains(t, r.TrafficVehicleIDs(), "v3")
	})

	t.Run("generated id when state has none", func(t *testing.T) {
		state := trafficState("", 0, 0)
		v, err := r.RegisterSocialVehicle(ctx, state, "")
		require.NoError(t, err)
		assert.NotEmpty(t, v.ID())
	})
}

func TestShadowing(t *testing.T) {
	ctx := newTestContext()
	r, events := newTestRegistry(t)

	_, err := r.RegisterSocialVehicle(ctx, trafficState("v1", 0, 0), "")
	require.NoError(t, err)

	_, err = r.BeginShadow(ctx, "v1", "watcher", laneInterface(), core.Mission{}, false)
	require.NoError(t, err)

	shadower, ok := r.ShadowerOf("v1")
	require.True(t, ok)
	assert.Equal(t, "watcher", shadower)
	assert.True(t, r.IsShadowed("v1"))
	assert.Contains(t, r.Shadowers(), "watcher")
	assert.True(t, ctx.Sensors.SensorStateExists("v1"))

	// ownership untouched: shadowing never takes the vehicle
	_, owned := r.OwnerOf("v1")
	assert.False(t, owned)
	assert.Contains(t, r.VehicleIDsOfOwner("watcher", true), "v1")
	assert.Empty(t, r.VehicleIDsOfOwner("watcher", false))

	r.StopShadow("watcher", "v1")
	assert.False(t, r.IsShadowed("v1"))

	require.Len(t, *events, 1)
	assert.Equal(t, core.HandoffShadow, (*events)[0].Kind)
}

func TestBeginShadowUnknownVehicle(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	_, err := r.BeginShadow(ctx, "ghost", "watcher", laneInterface(), core.Mission{}, false)
	assert.ErrorIs(t, err, core.ErrInvariantViolation)
}

func TestTransferOwnershipHijack(t *testing.T) {
	ctx := newTestContext()
	r, events := newTestRegistry(t)

	_, err := r.RegisterSocialVehicle(ctx, trafficState("v1", 10, 20), "")
	require.NoError(t, err)
	orig, _ := r.VehicleByID("v1")
	origPose := orig.Pose()
	origSpeed := orig.Speed()

	v, err := r.TransferOwnership(ctx, "v1", "agent-1", true, false, core.ActionSpaceContinuous)
	require.NoError(t, err)

	// exact physical continuity through the chassis swap
	assert.Equal(t, origPose, v.Pose())
	assert.Equal(t, origSpeed, v.Speed())

	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, core.RoleSocialAgent, recs[0].Role)
	assert.True(t, recs[0].IsHijacked)
	assert.Equal(t, "agent-1", recs[0].OwnerID)

	space, ok := r.ActionSpaceFor("v1")
	require.True(t, ok)
	assert.Equal(t, core.ActionSpaceContinuous, space)

	// motion authority moved from traffic to agents
	assert.True(t, ctx.Providers[0].ManagesActor("v1"))
	assert.False(t, ctx.Providers[1].ManagesActor("v1"))

	last := (*events)[len(*events)-1]
	assert.Equal(t, core.HandoffHijack, last.Kind)
}

func TestTransferOwnershipDuplicateOwner(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	_, err := r.RegisterOwnedVehicle(ctx, "agent-1", laneInterface(), core.Mission{}, true, SpawnOptions{})
	require.NoError(t, err)

	_, err = r.TransferOwnership(ctx, "agent-1", "agent-2", false, false, core.ActionSpaceLaneFollowing)
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	// hijacking flag makes the same transfer legal
	_, err = r.TransferOwnership(ctx, "agent-1", "agent-2", true, false, core.ActionSpaceLaneFollowing)
	assert.NoError(t, err)
}

func TestHijackRelinquishRoundTrip(t *testing.T) {
	ctx := newTestContext()
	r, events := newTestRegistry(t)

	_, err := r.RegisterSocialVehicle(ctx, trafficState("v1", 3, 4), "")
	require.NoError(t, err)

	_, err = r.BeginShadow(ctx, "v1", "agent-1", laneInterface(),
		core.Mission{Route: []string{"e1", "e2"}}, false)
	require.NoError(t, err)

	v, err := r.TransferOwnership(ctx, "v1", "agent-1", true, false, core.ActionSpaceLaneFollowing)
	require.NoError(t, err)
	poseAtHandback := v.Pose()
	speedAtHandback := v.Speed()

	state, route, err := r.Relinquish(ctx, "v1")
	require.NoError(t, err)

	assert.Equal(t, []string{"e1", "e2"}, route)
	assert.Equal(t, "v1", state.ActorID)
	assert.Equal(t, core.RoleTraffic, state.Role)
	assert.Equal(t, poseAtHandback, state.Pose)
	assert.Equal(t, speedAtHandback, state.Speed)

	// record cleared back to a plain traffic vehicle, sensors gone
	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, core.RoleTraffic, recs[0].Role)
	assert.Empty(t, recs[0].OwnerID)
	assert.False(t, recs[0].IsHijacked)
	assert.False(t, ctx.Sensors.SensorStateExists("v1"))

	// identity survives the whole round trip
	v2, ok := r.VehicleByID("v1")
	require.True(t, ok)
	assert.Equal(t, "v1", v2.ID())

	kinds := make([]core.HandoffKind, 0, len(*events))
	for _, ev := range *events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []core.HandoffKind{core.HandoffShadow, core.HandoffHijack, core.HandoffRelinquish}, kinds)
}

func TestTransferOwnershipRecreate(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	_, err := r.RegisterSocialVehicle(ctx, trafficState("v1", 7, 9), "")
	require.NoError(t, err)

	_, err = r.BeginShadow(ctx, "v1", "agent-1", laneInterface(),
		core.Mission{Goal: core.Position3D{X: 50}, Route: []string{"e9"}}, false)
	require.NoError(t, err)

	orig, _ := r.VehicleByID("v1")
	origPose := orig.Pose()
	origSpeed := orig.Speed()

	iface := core.AgentInterface{ActionSpace: core.ActionSpaceContinuous, MaxEpisodeSteps: 100}
	v, err := r.TransferOwnershipRecreate(ctx, "v1", "agent-1", true, false, iface)
	require.NoError(t, err)

	// rebuilt under the same id with physical state copied over
	assert.Equal(t, "v1", v.ID())
	assert.NotSame(t, orig, v)
	assert.Equal(t, origPose, v.Pose())
	assert.Equal(t, origSpeed, v.Speed())

	// sensor state survives so episode progress is not reset
	ss, ok := ctx.Sensors.SensorStateFor("v1")
	require.True(t, ok)
	assert.Equal(t, []string{"e9"}, ss.Plan.Route)

	owner, ok := r.OwnerOf("v1")
	require.True(t, ok)
	assert.Equal(t, "agent-1", owner)
	assert.True(t, r.IsHijacked("v1"))
}

func TestTeardownByOwnerBoid(t *testing.T) {
	ctx := newTestContext()
	r, events := newTestRegistry(t)

	iface := laneInterface()
	_, err := r.RegisterOwnedVehicle(ctx, "flock", iface, core.Mission{}, false,
		SpawnOptions{Boid: true, VehicleID: "flock-v1"})
	require.NoError(t, err)
	_, err = r.RegisterOwnedVehicle(ctx, "flock", iface, core.Mission{}, false,
		SpawnOptions{Boid: true, VehicleID: "flock-v2"})
	require.NoError(t, err)
	_, err = r.RegisterSocialVehicle(ctx, trafficState("bystander", 0, 0), "")
	require.NoError(t, err)

	assert.True(t, r.IsBoidVehicle("flock-v1"))
	assert.ElementsMatch(t, []string{"flock-v1", "flock-v2"}, r.VehicleIDsOfOwner("flock", true))

	torn := r.TeardownByOwner(ctx, []string{"flock"}, true)
	assert.ElementsMatch(t, []string{"flock-v1", "flock-v2"}, torn)

	assert.Equal(t, 1, r.VehicleCount())
	assert.False(t, ctx.Sensors.SensorStateExists("flock-v1"))
	assert.False(t, ctx.Providers[0].ManagesActor("flock-v1"))

	teardowns := 0
	for _, ev := range *events {
		if ev.Kind == core.HandoffTeardown {
			teardowns++
		}
	}
	assert.Equal(t, 2, teardowns)
}

func TestTeardownUnknownIDsSkipped(t *testing.T) {
	ctx := newTestContext()
	r, events := newTestRegistry(t)

	r.Teardown(ctx, []string{"ghost-1", "ghost-2"})
	assert.Empty(t, *events)
}

func TestSyncUpdatesPositionsAndTripMeters(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	_, err := r.RegisterOwnedVehicle(ctx, "agent-1", laneInterface(),
		core.Mission{StartPose: core.Pose{Position: core.Position3D{X: 0, Y: 0}}}, true, SpawnOptions{})
	require.NoError(t, err)

	r.Sync(ctx) // seed the trip meter at the start position

	v, _ := r.VehicleByID("agent-1")
	v.Chassis().SetPose(core.Pose{Position: core.Position3D{X: 3, Y: 4}})
	r.Sync(ctx)

	pos, ok := r.VehiclePosition("agent-1")
	require.True(t, ok)
	assert.Equal(t, core.Position3D{X: 3, Y: 4}, pos)
	assert.InDelta(t, 5.0, ctx.Sensors.TripMeter("agent-1", false), 1e-9)
}

func TestQueries(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	_, err := r.RegisterOwnedVehicle(ctx, "ego", laneInterface(), core.Mission{}, true, SpawnOptions{})
	require.NoError(t, err)
	state := trafficState("bus-1", 0, 0)
	state.ActorType = "bus"
	_, err = r.RegisterSocialVehicle(ctx, state, "")
	require.NoError(t, err)
	_, err = r.RegisterSocialVehicle(ctx, trafficState("car-1", 0, 0), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"ego"}, r.AgentVehicleIDs())
	assert.ElementsMatch(t, []string{"bus-1", "car-1"}, r.TrafficVehicleIDs())
	assert.Equal(t, []string{"bus-1"}, r.TrafficVehicleIDs("bus"))

	frame := r.Frame()
	require.Len(t, frame, 3)
	assert.Equal(t, core.RoleEgoAgent, frame["ego"].Role)
	assert.Equal(t, core.RoleTraffic, frame["car-1"].Role)
}

func TestTransferOwnershipProviderFailureLeavesStateIntact(t *testing.T) {
	ctx := newTestContext()
	r, events := newTestRegistry(t)

	_, err := r.RegisterSocialVehicle(ctx, trafficState("car-1", 0, 0), "")
	require.NoError(t, err)
	require.NoError(t, ctx.Providers[1].AddActor(trafficState("car-1", 0, 0)))

	// no provider handles this space, so the handoff must fail cleanly
	_, err = r.TransferOwnership(ctx, "car-1", "pirate", true, false, core.ActionSpace("teleport"))
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)

	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, core.RoleTraffic, recs[0].Role)
	assert.Empty(t, recs[0].OwnerID)
	assert.False(t, recs[0].IsHijacked)

	_, ok := r.ActionSpaceFor("car-1")
	assert.False(t, ok)
	assert.True(t, ctx.Providers[1].ManagesActor("car-1"), "vehicle returns to its previous authority")

	for _, ev := range *events {
		assert.NotEqual(t, core.HandoffHijack, ev.Kind, "no handoff event for a failed transfer")
	}
}

// Exercises a random mix of transitions and checks after each one that the
// control table stays consistent: every vehicle keeps exactly one record,
// traffic never has an owner, agent roles always do, and the ownership
// queries agree with the records.
func TestControlRecordsConsistentUnderRandomSequence(t *testing.T) {
	ctx := newTestContext()
	r, _ := newTestRegistry(t)

	rng := rand.New(rand.NewSource(7))
	nextID := 0

	checkInvariants := func() {
		t.Helper()
		seen := make(map[string]struct{})
		for _, rec := range r.Records() {
			_, dup := seen[rec.VehicleID]
			require.False(t, dup, "vehicle %s has more than one record", rec.VehicleID)
			seen[rec.VehicleID] = struct{}{}

			switch {
			case rec.Role == core.RoleTraffic:
				assert.Empty(t, rec.OwnerID, "traffic vehicle %s has an owner", rec.VehicleID)
				assert.False(t, rec.IsHijacked)
			case rec.Role.IsAgent():
				assert.NotEmpty(t, rec.OwnerID, "agent vehicle %s has no owner", rec.VehicleID)
			}
			if rec.IsHijacked {
				assert.Equal(t, core.RoleSocialAgent, rec.Role)
			}

			owner, ok := r.OwnerOf(rec.VehicleID)
			assert.Equal(t, rec.OwnerID != "", ok)
			assert.Equal(t, rec.OwnerID, owner)
			shadower, ok := r.ShadowerOf(rec.VehicleID)
			assert.Equal(t, rec.ShadowerID != "", ok)
			assert.Equal(t, rec.ShadowerID, shadower)
		}
	}

	randomVehicle := func() (string, bool) {
		recs := r.Records()
		if len(recs) == 0 {
			return "", false
		}
		return recs[rng.Intn(len(recs))].VehicleID, true
	}

	for i := 0; i < 300; i++ {
		switch rng.Intn(6) {
		case 0: // spawn an agent vehicle
			nextID++
			id := fmt.Sprintf("agent-%d", nextID)
			_, err := r.RegisterOwnedVehicle(ctx, id, laneInterface(), core.Mission{}, rng.Intn(2) == 0, SpawnOptions{})
			require.NoError(t, err)
		case 1: // spawn a traffic vehicle
			nextID++
			id := fmt.Sprintf("car-%d", nextID)
			_, err := r.RegisterSocialVehicle(ctx, trafficState(id, 0, 0), "")
			require.NoError(t, err)
		case 2: // shadow
			if id, ok := randomVehicle(); ok {
				nextID++
				_, err := r.BeginShadow(ctx, id, fmt.Sprintf("watcher-%d", nextID), laneInterface(), core.Mission{}, false)
				require.NoError(t, err)
			}
		case 3: // hijack
			if id, ok := randomVehicle(); ok {
				nextID++
				_, err := r.TransferOwnership(ctx, id, fmt.Sprintf("pirate-%d", nextID), true, false, core.ActionSpaceLaneFollowing)
				require.NoError(t, err)
			}
		case 4: // relinquish
			if id, ok := randomVehicle(); ok {
				_, _, err := r.Relinquish(ctx, id)
				require.NoError(t, err)
			}
		case 5: // teardown
			if id, ok := randomVehicle(); ok {
				r.Teardown(ctx, []string{id})
			}
		}
		checkInvariants()
	}
}
