package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dgellow/auth-relay/internal/idp"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Type() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) AuthURL(req idp.AuthRequest) string {
	args := m.Called(req)
	return args.String(0)
}

func (m *MockProvider) Exchange(ctx context.Context, code, codeVerifier string) (*idp.Identity, error) {
	args := m.Called(ctx, code, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.Identity), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, rawIDToken string) (*idp.Identity, error) {
	args := m.Called(ctx, rawIDToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.Identity), args.Error(1)
}
