package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the model produced no content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Analyzer asks a chat model for the marketing analysis of a website. It is
// used when no remote analysis endpoint is configured.
type Analyzer struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	log   *zap.Logger
}

// NewAnalyzer compiles the analysis prompt chain on top of chatModel.
func NewAnalyzer(ctx context.Context, chatModel model.ChatModel, log *zap.Logger) (*Analyzer, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(analysisSystemPrompt),
		schema.UserMessage(analysisUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile analysis chain: %w", err)
	}

	return &Analyzer{chain: runnable, log: log.Named("ai")}, nil
}

// Analyze returns the model's JSON object when one can be found in the reply,
// otherwise the trimmed reply text.
func (a *Analyzer) Analyze(ctx context.Context, website string) (string, error) {
	msg, err := a.chain.Invoke(ctx, map[string]any{"website": website})
	if err != nil {
		return "", fmt.Errorf("failed to run analysis chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyResponse
	}

	a.log.Debug("generated website analysis", zap.String("website", website), zap.Int("length", len(msg.Content)))
	return extractObject(msg.Content), nil
}

// extractObject strips prose or markdown fences around a JSON object.
func extractObject(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return trimmed
	}

	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return trimmed
	}
	return candidate
}

const analysisSystemPrompt = "You are a performance marketing strategist. Given a business website, infer what the business does and propose its first advertising campaign.\n" +
	"Reply with a single JSON object and nothing else. Keys: description (one or two sentences about the business), products (list of strings), objectives (list of campaign objectives), audiences (list of target audiences), channel_priority (list of advertising channels, highest priority first)."

const analysisUserPrompt = "Website: {website}"
