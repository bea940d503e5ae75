package service_registry

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService records lifecycle calls for ordering assertions.
type fakeService struct {
	name     string
	startErr error
	stopErr  error
	calls    *[]string
}

func (f *fakeService) Start() error {
	*f.calls = append(*f.calls, "start:"+f.name)
	return f.startErr
}

func (f *fakeService) Stop() error {
	*f.calls = append(*f.calls, "stop:"+f.name)
	return f.stopErr
}

func TestStartServices_InRegistrationOrder(t *testing.T) {
	var calls []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &fakeService{name: "a", calls: &calls})
	sr.RegisterService("b", &fakeService{name: "b", calls: &calls})
	sr.RegisterService("c", &fakeService{name: "c", calls: &calls})

	require.NoError(t, sr.StartServices())
	assert.Equal(t, []string{"start:a", "start:b", "start:c"}, calls)

	calls = nil
	require.NoError(t, sr.StopServices())
	assert.Equal(t, []string{"stop:c", "stop:b", "stop:a"}, calls)
}

func TestStartServices_RollsBackOnFailure(t *testing.T) {
	var calls []string
	boom := errors.New("bind failed")

	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &fakeService{name: "a", calls: &calls})
	sr.RegisterService("b", &fakeService{name: "b", startErr: boom, calls: &calls})
	sr.RegisterService("c", &fakeService{name: "c", calls: &calls})

	err := sr.StartServices()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, calls)
}

func TestRegisterService_DuplicateIgnored(t *testing.T) {
	var calls []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &fakeService{name: "a", calls: &calls})
	sr.RegisterService("a", &fakeService{name: "dup", calls: &calls})

	require.NoError(t, sr.StartServices())
	assert.Equal(t, []string{"start:a"}, calls)
}

func TestStopServices_CollectsErrors(t *testing.T) {
	var calls []string
	boom := errors.New("not running")

	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &fakeService{name: "a", calls: &calls})
	sr.RegisterService("b", &fakeService{name: "b", stopErr: boom, calls: &calls})

	require.NoError(t, sr.StartServices())
	err := sr.StopServices()
	assert.ErrorIs(t, err, boom)
	// The failing service does not short-circuit the others.
	assert.Contains(t, calls, "stop:a")
}
