package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtsim/internal/config"
)

type fakeChatModel struct {
	chunks    []string
	streamErr error
	midErr    error
	gotOpts   *model.Options
	gotTurns  []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.gotTurns = input
	f.gotOpts = model.GetCommonOptions(nil, opts...)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	var content string
	for _, c := range f.chunks {
		content += c
	}
	return schema.AssistantMessage(content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.gotTurns = input
	f.gotOpts = model.GetCommonOptions(nil, opts...)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			sw.Send(schema.AssistantMessage(c, nil), nil)
		}
		if f.midErr != nil {
			sw.Send(nil, f.midErr)
		}
	}()
	return sr, nil
}

func TestCompleteStreamsTokensBeforeReturning(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"May it ", "please ", "the court."}}
	svc := NewWithModel("openai", "gpt-3.5-turbo", fake)

	var seen []string
	text, err := svc.Complete(context.Background(),
		[]*schema.Message{schema.UserMessage("hi")},
		Options{Temperature: 0.6, Streaming: true},
		func(chunk string) error {
			seen = append(seen, chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "May it please the court.", text)
	assert.Equal(t, fake.chunks, seen)

	require.NotNil(t, fake.gotOpts.Temperature)
	assert.InDelta(t, 0.6, *fake.gotOpts.Temperature, 1e-6)
	require.NotNil(t, fake.gotOpts.Model)
	assert.Equal(t, "gpt-3.5-turbo", *fake.gotOpts.Model)
}

func TestCompleteModelOverride(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"ok"}}
	svc := NewWithModel("openai", "gpt-3.5-turbo", fake)

	_, err := svc.Complete(context.Background(), nil, Options{Model: "gpt-4", Temperature: 0.2, Streaming: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", *fake.gotOpts.Model)
}

func TestCompleteNonStreaming(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"Costs to the ", "plaintiff."}}
	svc := NewWithModel("openai", "", fake)

	calls := 0
	text, err := svc.Complete(context.Background(), nil, Options{}, func(chunk string) error {
		calls++
		assert.Equal(t, "Costs to the plaintiff.", chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Costs to the plaintiff.", text)
	assert.Equal(t, 1, calls)
	assert.Nil(t, fake.gotOpts.Model)
}

func TestCompleteServiceErrors(t *testing.T) {
	cause := errors.New("401 unauthorized")

	svc := NewWithModel("openai", "m", &fakeChatModel{streamErr: cause})
	_, err := svc.Complete(context.Background(), nil, Options{Streaming: true}, nil)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "stream", svcErr.Op)
	assert.ErrorIs(t, err, cause)

	svc = NewWithModel("openai", "m", &fakeChatModel{chunks: []string{"part"}, midErr: cause})
	_, err = svc.Complete(context.Background(), nil, Options{Streaming: true}, nil)
	require.ErrorAs(t, err, &svcErr)
	assert.ErrorIs(t, err, cause)

	_, err = NewWithModel("openai", "m", &fakeChatModel{streamErr: cause}).
		Complete(context.Background(), nil, Options{}, nil)
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "generate", svcErr.Op)
}

func TestCompleteSinkErrorIsReturnedUnwrapped(t *testing.T) {
	sinkErr := errors.New("client went away")
	svc := NewWithModel("openai", "m", &fakeChatModel{chunks: []string{"a", "b"}})

	_, err := svc.Complete(context.Background(), nil, Options{Streaming: true}, func(string) error { return sinkErr })
	assert.Equal(t, sinkErr, err)
	var svcErr *ServiceError
	assert.False(t, errors.As(err, &svcErr))
}

func TestNewServiceRequiresKeyAndKnownProvider(t *testing.T) {
	_, err := NewService(context.Background(), "openai", config.ProviderConfig{Model: "m"}, "", "")
	var svcErr *ServiceError
	assert.ErrorAs(t, err, &svcErr)

	_, err = NewService(context.Background(), "mistral", config.ProviderConfig{}, "", "key")
	assert.ErrorContains(t, err, "invalid provider")
}

func TestNewServiceOpenAI(t *testing.T) {
	svc, err := NewService(context.Background(), "openai", config.ProviderConfig{Model: "gpt-3.5-turbo"}, "", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", svc.defaultModel)
}
