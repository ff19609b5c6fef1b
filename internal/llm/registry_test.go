package llm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/llm"
	"github.com/patchpilot/patchpilot/internal/llm/configbuilder"
	llmmock "github.com/patchpilot/patchpilot/internal/llm/mock"
)

func TestRegistryResolve(t *testing.T) {
	reg := llm.NewRegistry()
	mockProvider := &llmmock.Provider{NameValue: "mock"}
	reg.RegisterProvider("mock", mockProvider)
	reg.RegisterModel("default", llm.ModelRoute{
		Provider:    "mock",
		Model:       "dummy",
		Temperature: 0.2,
	}, true)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, mockProvider, p)
	require.Equal(t, "dummy", route.Model)
}

func TestBuildRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {Type: "openai", BaseURL: "http://example.com"},
		},
		Models: map[string]config.ModelConfig{
			"main": {Provider: "openai", Model: "gpt-4o", Default: true},
		},
	}

	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.NoError(t, err)

	p, _, err := reg.Resolve("main")
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())
}

func TestBuildRegistryAnthropicProvider(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"anthropic": {Type: "anthropic", APIKey: "sk-test"},
		},
		Models: map[string]config.ModelConfig{
			"main": {Provider: "anthropic", Model: "claude-sonnet-4-20250514", Default: true},
		},
	}

	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.NoError(t, err)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, "anthropic", p.Name())
	require.Equal(t, "claude-sonnet-4-20250514", route.Model)
}

func TestBuildRegistryUnknownProviderType(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"weird": {Type: "carrier-pigeon"},
		},
		Models: map[string]config.ModelConfig{
			"main": {Provider: "weird", Model: "x", Default: true},
		},
	}

	_, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.Error(t, err)
}
