package client

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) GetToken(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) SaveToken(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockTokenStore) DeleteToken(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, authURL, redirectURI string) (AuthResponse, error) {
	args := m.Called(ctx, authURL, redirectURI)
	return args.Get(0).(AuthResponse), args.Error(1)
}

// launcherFunc answers with whatever the test computes from the auth URL
type launcherFunc func(ctx context.Context, authURL, redirectURI string) (AuthResponse, error)

func (f launcherFunc) Launch(ctx context.Context, authURL, redirectURI string) (AuthResponse, error) {
	return f(ctx, authURL, redirectURI)
}
