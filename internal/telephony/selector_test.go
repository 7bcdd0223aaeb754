package telephony

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-verifier/internal/config"
	"account-verifier/internal/settings"
)

func selectorFixture(t *testing.T) (*Selector, *settings.MemoryStore, *int) {
	t.Helper()
	store := settings.NewMemoryStore()
	cfg := config.Config{Calls: config.CallConfig{Provider: "twilio", Simulated: true, MaxAttempts: 2, BackoffMinutes: "15,120", MaxConcurrentCalls: 1}}
	runtime := settings.NewRuntime(store, cfg, nil)

	builds := 0
	factory := func(name string, simulated bool) (Provider, error) {
		builds++
		return NewFactory(cfg, nil)(name, simulated)
	}
	return NewSelector(runtime, factory, nil), store, &builds
}

func TestSelectorCachesAdapterUntilSettingChanges(t *testing.T) {
	ctx := context.Background()
	sel, store, builds := selectorFixture(t)

	p1, err := sel.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "twilio", p1.Name())

	p2, err := sel.Active(ctx)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, *builds)

	require.NoError(t, store.Set(ctx, settings.KeyProvider, "telnyx"))
	p3, err := sel.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "telnyx", p3.Name())
	assert.Equal(t, 2, *builds)
}

func TestSelectorRebuildsWhenSimulationModeFlips(t *testing.T) {
	ctx := context.Background()
	sel, store, builds := selectorFixture(t)

	_, err := sel.Active(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, settings.KeySimulatedMode, "false"))
	_, err = sel.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, *builds)
}

func TestSelectorByName(t *testing.T) {
	ctx := context.Background()
	sel, _, _ := selectorFixture(t)

	p, err := sel.ByName(ctx, "plivo")
	require.NoError(t, err)
	assert.Equal(t, "plivo", p.Name())

	_, err = sel.ByName(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	factory := NewFactory(config.Config{}, nil)
	_, err := factory("carrierpigeon", true)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
