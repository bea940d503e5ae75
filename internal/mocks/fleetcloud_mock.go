package mocks

import (
	"context"

	"github.com/routewise/telemetry-engine/pkg/fleetcloud"
	"github.com/stretchr/testify/mock"
)

// FleetCloudAPI is a mock implementation of the fleetcloud.API interface
type FleetCloudAPI struct {
	mock.Mock
}

func (m *FleetCloudAPI) Probe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *FleetCloudAPI) VehicleLocations(ctx context.Context) ([]fleetcloud.VehicleFix, error) {
	args := m.Called(ctx)
	if fixes, ok := args.Get(0).([]fleetcloud.VehicleFix); ok {
		return fixes, args.Error(1)
	}
	return nil, args.Error(1)
}
