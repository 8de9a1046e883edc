package modelclient

import (
	"context"
	"encoding/json"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ragcore/ragcore/internal/domain"
)

const defaultMaxTokens int64 = 1024

// AnthropicLLM implements LLMClient backed by the Anthropic Messages API.
type AnthropicLLM struct {
	sdk        anthropic.Client
	model      string
	defaultMax int64
	usage      UsageRecorder
}

// NewAnthropicLLM creates an Anthropic-backed LLM client.
func NewAnthropicLLM(apiKey, model string, usage UsageRecorder, opts ...option.RequestOption) *AnthropicLLM {
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	if usage == nil {
		usage = NoopUsageRecorder{}
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicLLM{
		sdk:        anthropic.NewClient(reqOpts...),
		model:      model,
		defaultMax: defaultMaxTokens,
		usage:      usage,
	}
}

func (c *AnthropicLLM) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *AnthropicLLM) buildParams(msgs []Message, opts CompletionOpts) (anthropic.MessageNewParams, error) {
	sys, converted, err := adaptMessages(msgs)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	toolDefs := adaptTools(opts.Tools)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaultMax
	}
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(opts.Model)),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: maxTokens,
	}, nil
}

// Complete implements LLMClient.
func (c *AnthropicLLM) Complete(ctx context.Context, msgs []Message, opts CompletionOpts) (CompletionResult, error) {
	params, err := c.buildParams(msgs, opts)
	if err != nil {
		return CompletionResult{}, domain.Wrap(domain.KindInvalidInput, "anthropic.complete", err)
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return CompletionResult{}, domain.Wrap(domain.KindTransient, "anthropic.complete", err)
	}

	result := resultFromMessage(resp)
	c.usage.Record(UsageRecord{
		Backend:      "anthropic",
		Model:        string(params.Model),
		PromptTokens: result.PromptTokens,
		OutputTokens: result.OutputTokens,
	})
	return result, nil
}

// CompleteStream implements LLMClient. The returned channel is closed
// when the stream ends or ctx is cancelled; cancelling ctx closes the
// underlying SDK stream immediately.
func (c *AnthropicLLM) CompleteStream(ctx context.Context, msgs []Message, opts CompletionOpts) (<-chan TokenChunk, error) {
	params, err := c.buildParams(msgs, opts)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidInput, "anthropic.complete_stream", err)
	}

	out := make(chan TokenChunk, 16)
	stream := c.sdk.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		var acc anthropic.Message
		toolBuffers := map[int64]*toolBuffer{}
		var usage anthropic.MessageDeltaUsage

		for stream.Next() {
			event := stream.Current()
			_ = acc.Accumulate(event)

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					tb := &toolBuffer{name: block.Name, id: block.ID}
					tb.appendInitial(block.Input)
					toolBuffers[ev.Index] = tb
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						select {
						case out <- TokenChunk{Delta: delta.Text}:
						case <-ctx.Done():
							return
						}
					}
				case anthropic.InputJSONDelta:
					if tb := toolBuffers[ev.Index]; tb != nil {
						tb.appendPartial(delta.PartialJSON)
					}
				}
			case anthropic.ContentBlockStopEvent:
				if tb := toolBuffers[ev.Index]; tb != nil {
					tc := tb.toToolCall()
					select {
					case out <- TokenChunk{ToolCall: &tc}:
					case <-ctx.Done():
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				usage = ev.Usage
				if string(ev.Delta.StopReason) != "" {
					select {
					case out <- TokenChunk{Finish: finishFromStopReason(string(ev.Delta.StopReason))}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case out <- TokenChunk{Finish: FinishError, Err: domain.Wrap(domain.KindTransient, "anthropic.complete_stream", err)}:
			case <-ctx.Done():
			}
			return
		}

		c.usage.Record(UsageRecord{
			Backend:      "anthropic",
			Model:        string(params.Model),
			PromptTokens: int(usage.CacheCreationInputTokens + usage.CacheReadInputTokens + usage.InputTokens),
			OutputTokens: int(usage.OutputTokens),
		})
	}()

	return out, nil
}

func finishFromStopReason(reason string) FinishReason {
	switch reason {
	case "tool_use":
		return FinishToolCall
	case "max_tokens":
		return FinishMaxTokens
	case "end_turn", "stop_sequence":
		return FinishStop
	default:
		return FinishStop
	}
}

func adaptTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"].([]string); ok {
			schema.Required = req
			delete(extras, "required")
		}
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}
		param := anthropic.ToolParam{Name: t.Name, InputSchema: schema}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func adaptMessages(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case RoleUser:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, decodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			id := m.ToolID
			if id == "" {
				toolResultCount++
				id = strings.TrimSpace("tool-result")
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		}
	}
	return system, out, nil
}

func decodeArgs(raw []byte) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}

func resultFromMessage(resp *anthropic.Message) CompletionResult {
	var sb strings.Builder
	var calls []ToolCall
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			args := []byte(v.Input)
			calls = append(calls, ToolCall{ID: v.ID, Name: v.Name, Args: args})
		}
	}
	return CompletionResult{
		Content:      sb.String(),
		ToolCalls:    calls,
		StopReason:   string(resp.StopReason),
		PromptTokens: int(resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
}

type toolBuffer struct {
	name      string
	id        string
	buf       strings.Builder
	hasDeltas bool
}

func (tb *toolBuffer) appendInitial(raw json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	tb.buf.WriteString(string(raw))
}

func (tb *toolBuffer) appendPartial(partial string) {
	if partial == "" {
		return
	}
	if !tb.hasDeltas {
		tb.buf.Reset()
		tb.hasDeltas = true
	}
	tb.buf.WriteString(partial)
}

func (tb *toolBuffer) toToolCall() ToolCall {
	args := strings.TrimSpace(tb.buf.String())
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		args = "{}"
	}
	return ToolCall{ID: tb.id, Name: tb.name, Args: []byte(args)}
}
