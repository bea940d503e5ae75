package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// SMSGateway is a mock implementation of the sms.Gateway interface
type SMSGateway struct {
	mock.Mock
}

func (m *SMSGateway) Send(ctx context.Context, to string, body string) error {
	args := m.Called(ctx, to, body)
	return args.Error(0)
}

func (m *SMSGateway) AwaitReply(ctx context.Context, from string) (string, error) {
	args := m.Called(ctx, from)
	return args.String(0), args.Error(1)
}

func (m *SMSGateway) Close() error {
	args := m.Called()
	return args.Error(0)
}
