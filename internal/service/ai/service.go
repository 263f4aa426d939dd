package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"courtsim/internal/config"
)

// ServiceError wraps any failure reported by the generation service:
// construction, transport, auth, rate limiting or a broken stream.
type ServiceError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Options select the model and sampling for one completion. An empty Model
// uses the service's default model.
type Options struct {
	Model       string
	Temperature float32
	Streaming   bool
}

// Service submits composed turns to a chat model.
type Service struct {
	provider     string
	defaultModel string
	chatModel    model.BaseChatModel
}

// NewService builds the chat model for provider using the caller's API key.
func NewService(ctx context.Context, provider string, provCfg config.ProviderConfig, modelName, apiKey string) (*Service, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &ServiceError{Provider: provider, Op: "init", Err: errors.New("api key is required")}
	}
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: apiKey,
		})
		if err == nil {
			chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
				Client: client,
				Model:  modelName,
			})
		}
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, &ServiceError{Provider: provider, Op: "init", Err: err}
	}
	return NewWithModel(provider, modelName, chatModel), nil
}

// NewWithModel wraps an existing chat model.
func NewWithModel(provider, defaultModel string, chatModel model.BaseChatModel) *Service {
	return &Service{
		provider:     provider,
		defaultModel: defaultModel,
		chatModel:    chatModel,
	}
}

// Complete sends turns and returns the full response text. Each chunk is
// passed to onToken as it arrives; an onToken error aborts the call and is
// returned as is. Service failures come back as *ServiceError.
func (s *Service) Complete(ctx context.Context, turns []*schema.Message, opts Options, onToken func(string) error) (string, error) {
	callOpts := []model.Option{model.WithTemperature(opts.Temperature)}
	modelName := opts.Model
	if modelName == "" {
		modelName = s.defaultModel
	}
	if modelName != "" {
		callOpts = append(callOpts, model.WithModel(modelName))
	}
	log := logrus.WithFields(logrus.Fields{
		"provider":    s.provider,
		"model":       modelName,
		"temperature": opts.Temperature,
		"turns":       len(turns),
	})

	if !opts.Streaming {
		resp, err := s.chatModel.Generate(ctx, turns, callOpts...)
		if err != nil {
			log.WithError(err).Warn("generate failed")
			return "", &ServiceError{Provider: s.provider, Op: "generate", Err: err}
		}
		if onToken != nil && resp.Content != "" {
			if err := onToken(resp.Content); err != nil {
				return "", err
			}
		}
		return resp.Content, nil
	}

	streamReader, err := s.chatModel.Stream(ctx, turns, callOpts...)
	if err != nil {
		log.WithError(err).Warn("open stream failed")
		return "", &ServiceError{Provider: s.provider, Op: "stream", Err: err}
	}
	defer streamReader.Close()

	var full strings.Builder
	for {
		chunk, err := streamReader.Recv()
		if errors.Is(err, io.EOF) {
			// flow finished
			break
		}
		if err != nil {
			log.WithError(err).Warn("stream interrupted")
			return "", &ServiceError{Provider: s.provider, Op: "stream", Err: err}
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if onToken != nil {
			if err := onToken(chunk.Content); err != nil {
				return "", err
			}
		}
	}
	log.WithField("chars", full.Len()).Debug("completion finished")
	return full.String(), nil
}
