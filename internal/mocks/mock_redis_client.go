package mocks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

type MockRedisClient struct {
	mock.Mock
	redis.UniversalClient
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *MockRedisClient) SetNX(
	ctx context.Context,
	key string,
	value interface{},
	expiration time.Duration) *redis.BoolCmd {

	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.BoolCmd)
}
