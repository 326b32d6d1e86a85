// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relock/api/schemas"
	"github.com/xkilldash9x/relock/internal/config"
)

// NewClient builds the tiered LLM router from configuration: one client per
// configured model, wired to the fast and powerful tiers.
func NewClient(cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	routerCfg := cfg.LLM
	if len(routerCfg.Models) == 0 {
		return nil, fmt.Errorf("no LLM models configured under agent.llm.models")
	}

	instantiated := make(map[string]schemas.LLMClient)
	for name, modelCfg := range routerCfg.Models {
		var client schemas.LLMClient
		var err error
		switch modelCfg.Provider {
		case config.ProviderGemini:
			client, err = NewGoogleClient(modelCfg, logger)
		default:
			return nil, fmt.Errorf("unknown LLM provider '%s' for model '%s'", modelCfg.Provider, name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client for model '%s': %w", name, err)
		}
		instantiated[name] = client
		logger.Info("Instantiated LLM client",
			zap.String("name", name),
			zap.String("provider", string(modelCfg.Provider)),
			zap.String("model", modelCfg.Model),
		)
	}

	fastClient, ok := instantiated[routerCfg.DefaultFastModel]
	if !ok {
		return nil, fmt.Errorf("default fast model '%s' not found in defined models", routerCfg.DefaultFastModel)
	}

	powerfulClient, ok := instantiated[routerCfg.DefaultPowerfulModel]
	if !ok {
		return nil, fmt.Errorf("default powerful model '%s' not found in defined models", routerCfg.DefaultPowerfulModel)
	}

	return NewLLMRouter(logger, fastClient, powerfulClient)
}
