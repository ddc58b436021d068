package registry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

const instrumentationName = "github.com/olegsinavski/SMARTS/internal/registry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	handoffs metric.Int64Counter
	vehicles metric.Int64ObservableGauge
}

// newMetrics registers the registry instruments on the global meter
// (no-op until a meter provider is installed).
func newMetrics(r *VehicleRegistry) (*metrics, error) {
	m := meter()
	out := &metrics{}

	var err error
	out.handoffs, err = m.Int64Counter(
		"registry.handoffs",
		metric.WithDescription("Total ownership transitions by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating handoffs counter: %w", err)
	}

	out.vehicles, err = m.Int64ObservableGauge(
		"registry.vehicles",
		metric.WithDescription("Current number of vehicles by role"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating vehicles gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			byRole := make(map[core.ActorRole]int64)
			for _, rec := range r.records {
				byRole[rec.Role]++
			}
			for role, n := range byRole {
				o.ObserveInt64(out.vehicles, n,
					metric.WithAttributes(attribute.String("role", role.String())))
			}
			return nil
		},
		out.vehicles,
	)
	if err != nil {
		return nil, fmt.Errorf("registering vehicles callback: %w", err)
	}

	return out, nil
}

func (m *metrics) recordHandoff(kind core.HandoffKind) {
	m.handoffs.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", string(kind))))
}
