// File path: internal/llm/providers/openai_client.go
package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go/v2"

	"github.com/auditlens/auditlens/internal/common"
)

type OpenAIProvider struct {
	client      openai.Client
	chatModel   string
	visionModel string
}

func NewOpenAIProvider(client openai.Client) *OpenAIProvider {
	chatModel := os.Getenv("OPENAI_CHAT_MODEL")
	if chatModel == "" {
		chatModel = "gpt-4o"
	}
	visionModel := os.Getenv("OPENAI_VISION_MODEL")
	if visionModel == "" {
		visionModel = chatModel
	}
	logger := common.Logger()
	logger.Info("llm: OpenAI provider configured", "chat_model", chatModel, "vision_model", visionModel)
	return &OpenAIProvider{client: client, chatModel: chatModel, visionModel: visionModel}
}

func (o *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	logger := common.Logger()
	model := o.chatModel
	params := openai.ChatCompletionNewParams{}
	for _, msg := range messages {
		switch strings.ToLower(msg.Role) {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			if len(msg.Images) == 0 {
				params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
				continue
			}
			model = o.visionModel
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Images)+1)
			if strings.TrimSpace(msg.Content) != "" {
				parts = append(parts, openai.TextContentPart(msg.Content))
			}
			for _, img := range msg.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURI(img),
				}))
			}
			params.Messages = append(params.Messages, openai.UserMessage(parts))
		}
	}
	params.Model = openai.ChatModel(model)
	logger.Debug("llm: sending chat completion request", "model", model, "messages", len(messages))
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("llm: chat completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	logger.Debug("llm: chat completion succeeded")
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

func dataURI(img Attachment) string {
	mime := strings.TrimSpace(img.MimeType)
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
