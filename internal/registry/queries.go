package registry

import (
	"sort"

	"github.com/olegsinavski/SMARTS/internal/vehicle"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

// OwnerOf returns the owning agent of a vehicle, if any.
func (r *VehicleRegistry) OwnerOf(vehicleID string) (string, bool) {
	rec, ok := r.records[vehicleID]
	if !ok || rec.OwnerID == "" {
		return "", false
	}
	return rec.OwnerID, true
}

// ShadowerOf returns the agent shadowing a vehicle, if any.
func (r *VehicleRegistry) ShadowerOf(vehicleID string) (string, bool) {
	rec, ok := r.records[vehicleID]
	if !ok || rec.ShadowerID == "" {
		return "", false
	}
	return rec.ShadowerID, true
}

// Shadowers returns the ids of all agents currently shadowing a vehicle.
func (r *VehicleRegistry) Shadowers() []string {
	set := make(map[string]struct{})
	for _, rec := range r.records {
		if rec.ShadowerID != "" {
			set[rec.ShadowerID] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// VehicleIDsOfOwner returns the ids of all vehicles an agent owns, plus the
// ones it shadows when includeShadowers is set. Sorted for deterministic
// iteration.
func (r *VehicleRegistry) VehicleIDsOfOwner(ownerID string, includeShadowers bool) []string {
	var out []string
	for id, rec := range r.records {
		if rec.OwnerID == ownerID || (includeShadowers && rec.ShadowerID == ownerID) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// VehiclesOfOwner returns the live vehicles an agent owns.
func (r *VehicleRegistry) VehiclesOfOwner(ownerID string) []*vehicle.Vehicle {
	ids := r.VehicleIDsOfOwner(ownerID, false)
	out := make([]*vehicle.Vehicle, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.vehicles[id])
	}
	return out
}

// IsHijacked reports whether a vehicle was taken from another authority.
func (r *VehicleRegistry) IsHijacked(vehicleID string) bool {
	rec, ok := r.records[vehicleID]
	return ok && rec.IsHijacked
}

// IsShadowed reports whether a vehicle has a shadowing observer.
func (r *VehicleRegistry) IsShadowed(vehicleID string) bool {
	rec, ok := r.records[vehicleID]
	return ok && rec.ShadowerID != ""
}

// IsBoidVehicle reports whether a vehicle belongs to a boid agent.
func (r *VehicleRegistry) IsBoidVehicle(vehicleID string) bool {
	rec, ok := r.records[vehicleID]
	return ok && rec.IsBoid
}

// AgentVehicleIDs returns the ids of all agent-owned vehicles.
func (r *VehicleRegistry) AgentVehicleIDs() []string {
	var out []string
	for id, rec := range r.records {
		if rec.Role.IsAgent() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// TrafficVehicleIDs returns the ids of traffic vehicles, optionally
// filtered by vehicle type.
func (r *VehicleRegistry) TrafficVehicleIDs(vehicleTypes ...string) []string {
	var out []string
	for id, rec := range r.records {
		if rec.Role != core.RoleTraffic {
			continue
		}
		if len(vehicleTypes) > 0 && !contains(vehicleTypes, r.vehicles[id].VehicleType()) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// VehicleByID returns the live vehicle with the given id.
func (r *VehicleRegistry) VehicleByID(vehicleID string) (*vehicle.Vehicle, bool) {
	v, ok := r.vehicles[vehicleID]
	return v, ok
}

// VehiclePosition returns the last synced position of a vehicle.
func (r *VehicleRegistry) VehiclePosition(vehicleID string) (core.Position3D, bool) {
	rec, ok := r.records[vehicleID]
	if !ok {
		return core.Position3D{}, false
	}
	return rec.Position, true
}

// ActionSpaceFor returns the action space a vehicle is controlled or
// observed under.
func (r *VehicleRegistry) ActionSpaceFor(vehicleID string) (core.ActionSpace, bool) {
	space, ok := r.actionSpaces[vehicleID]
	return space, ok
}

// VehicleCount returns the number of live vehicles.
func (r *VehicleRegistry) VehicleCount() int { return len(r.records) }

// Records returns a copy of every control record, for recording and tests.
func (r *VehicleRegistry) Records() []core.ControlRecord {
	out := make([]core.ControlRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
