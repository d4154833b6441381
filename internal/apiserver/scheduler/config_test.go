package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_BuildStrategyChain(t *testing.T) {
	tests := []struct {
		name      string
		chain     []string
		wantNames []string
	}{
		{
			name:      "默认策略链",
			chain:     defaultChain(),
			wantNames: []string{"priority", "affinity", "load_balance", "fifo"},
		},
		{
			name:      "自定义策略链补全 fifo",
			chain:     []string{"load_balance", "priority"},
			wantNames: []string{"load_balance", "priority", "fifo"},
		},
		{
			name:      "空策略链只保留 fifo",
			chain:     []string{},
			wantNames: []string{"fifo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Strategy.Chain = tt.chain

			names := []string{}
			for _, s := range cfg.BuildStrategyChain().Strategies() {
				names = append(names, s.Name())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 250, cfg.GamesPerCore)
	assert.Equal(t, 2, cfg.MinChunk)
	assert.Equal(t, 2000, cfg.MaxChunk)
	assert.Equal(t, 1, cfg.MaxTasksPerWorker)
	assert.Equal(t, 30*time.Minute, cfg.StaleTimeout)
	assert.Equal(t, time.Minute, cfg.ScavengeInterval)
	assert.Equal(t, defaultChain(), cfg.Strategy.Chain)
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"chunk 上下限颠倒", Config{MinChunk: 100, MaxChunk: 10}},
		{"未知策略", Config{Strategy: StrategyConfig{Chain: []string{"round_robin"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			assert.Error(t, cfg.Validate())
		})
	}
}
