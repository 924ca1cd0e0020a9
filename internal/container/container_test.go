package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-voting/internal/config"
	"live-voting/internal/domain"
	"live-voting/pkg/logger"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		Environment:        "test",
		StorageBackend:     backend,
		IdentityDimensions: []domain.Dimension{domain.DimensionDevice},
		HeartbeatWindow:    domain.DefaultHeartbeatWindow,
	}
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		config      func(t *testing.T) *config.Config
		expectAuth  bool
		expectError bool
	}{
		{
			name:   "Memory backend",
			config: func(*testing.T) *config.Config { return testConfig(config.BackendMemory) },
		},
		{
			name: "Memory backend with auth",
			config: func(*testing.T) *config.Config {
				cfg := testConfig(config.BackendMemory)
				cfg.AuthJWTSecret = "container-test-secret"
				return cfg
			},
			expectAuth: true,
		},
		{
			name: "Redis backend",
			config: func(*testing.T) *config.Config {
				cfg := testConfig(config.BackendRedis)
				cfg.RedisURL = "redis://" + mr.Addr()
				return cfg
			},
		},
		{
			name: "SQLite backend",
			config: func(t *testing.T) *config.Config {
				cfg := testConfig(config.BackendSQLite)
				cfg.SQLitePath = filepath.Join(t.TempDir(), "votes.db")
				return cfg
			},
		},
		{
			name: "Redis backend unreachable",
			config: func(*testing.T) *config.Config {
				cfg := testConfig(config.BackendRedis)
				cfg.RedisURL = "redis://127.0.0.1:1"
				return cfg
			},
			expectError: true,
		},
		{
			name: "Postgres backend with invalid URL",
			config: func(*testing.T) *config.Config {
				cfg := testConfig(config.BackendPostgres)
				cfg.DatabaseURL = "not a url"
				return cfg
			},
			expectError: true,
		},
		{
			name:        "Unknown backend",
			config:      func(*testing.T) *config.Config { return testConfig("etcd") },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(context.Background(), tt.config(t), logger.NewNop())

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
			t.Cleanup(func() { assert.NoError(t, c.Close()) })

			assert.NotNil(t, c.VotingService)
			assert.NotNil(t, c.GetLogger())
			assert.NotNil(t, c.GetConfig())
			assert.Equal(t, tt.expectAuth, c.AuthService != nil)
			assert.NoError(t, c.VotingService.Health(context.Background()))
		})
	}
}

func TestNew_VotesFlowThroughBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(config.BackendRedis)
	cfg.RedisURL = "redis://" + mr.Addr()

	c, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.VotingService.CastVote(ctx, domain.RequestContext{
		DeviceToken:   "dev-1",
		Category:      "King",
		CandidateName: "Arthur",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), c.VotingService.GetCounts(ctx).Total)
	assert.True(t, mr.Exists("test:vote:totals"))
}
