// File path: internal/llm/llm.go
package llm

import (
	"os"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/llm/providers"
)

type Message = providers.Message

type Attachment = providers.Attachment

type Provider = providers.Provider

// NewProvider selects the OpenAI provider when OPENAI_API_KEY is present and
// falls back to the deterministic local provider otherwise, so the service and
// its tests run without network access.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
			logger.Info("llm: configuring OpenAI client with custom endpoint", "endpoint", endpoint)
			opts = append(opts, option.WithBaseURL(endpoint))
		} else {
			logger.Debug("llm: using default OpenAI endpoint")
		}
		client := openai.NewClient(opts...)
		logger.Info("llm: OpenAI provider selected")
		return providers.NewOpenAIProvider(client)
	}
	logger.Warn("llm: OPENAI_API_KEY not set; falling back to local provider")
	return providers.NewLocalProvider()
}
