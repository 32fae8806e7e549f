package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/chat"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/datastream"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/mistral"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxCompletionSteps bounds tool/reasoning round trips per turn.
const maxCompletionSteps = 4

// No tools are offered to the model, so a step can never be continued.
var completionTools []mistral.Tool

type completionInput struct {
	turn         chat.Turn
	systemPrompt string
	mode         chat.Mode
	handle       *store.Store
	logger       *zap.Logger
}

// streamCompletion owns the response once headers are committed: every
// failure from here on is reported in-band.
func (h Handler) streamCompletion(ctx context.Context, w http.ResponseWriter, in completionInput) {
	datastream.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	out := datastream.NewWriter(w)
	reply := &replyCollector{}
	var outcome chat.StreamOutcome
	outcome.Start()

	// The request context only ends when the client leaves; an upstream that
	// stalls without sending bytes is cut off here.
	streamCtx, cancel := context.WithTimeout(ctx, h.completionTimeout)
	defer cancel()

	req := mistral.StreamRequest{
		Model:    h.cfg.MistralModel,
		Messages: completionMessages(in.systemPrompt, in.turn.Messages),
		Tools:    completionTools,
	}

	var (
		total        datastream.Usage
		finishReason string
		streamErr    error
	)

	for step := 0; step < maxCompletionSteps; step++ {
		if err := out.StartStep("msg-" + uuid.NewString()); err != nil {
			streamErr = err
			break
		}

		var stepUsage datastream.Usage
		result, err := h.streamer.StreamChatCompletion(streamCtx, req, mistral.StreamCallbacks{
			OnText: func(delta string) error {
				reply.addText(delta)
				return out.Text(delta)
			},
			OnReasoning: func(delta string) error {
				reply.addReasoning(delta)
				return out.Reasoning(delta)
			},
			OnSource: func(source mistral.Source) error {
				src := chat.Source{SourceType: "url", ID: uuid.NewString(), URL: source.URL, Title: source.Title}
				reply.addSource(src)
				return out.Source(datastream.Source(src))
			},
			OnUsage: func(usage mistral.Usage) error {
				stepUsage = datastream.Usage{PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens}
				return nil
			},
		})
		if err != nil {
			streamErr = err
			break
		}

		total.PromptTokens += stepUsage.PromptTokens
		total.CompletionTokens += stepUsage.CompletionTokens
		finishReason = result.FinishReason

		continued := finishReason == "tool_calls" && len(completionTools) > 0
		if err := out.FinishStep(finishReason, stepUsage, continued); err != nil {
			streamErr = err
			break
		}
		if !continued {
			break
		}
	}

	if streamErr == nil {
		streamErr = out.FinishMessage(finishReason, total)
	}
	if streamErr == nil && streamCtx.Err() != nil {
		streamErr = streamCtx.Err()
	}

	if streamErr != nil {
		outcome.Fail(streamErr)
		h.reportStreamError(ctx, out, in.logger, streamErr)
		return
	}

	if !outcome.Finish() {
		return
	}
	in.logger.Info("completion finished", zap.String("finish_reason", finishReason), zap.Int("completion_tokens", total.CompletionTokens))

	if in.handle == nil {
		return
	}

	// The reply is complete on the wire; a client hanging up now must not
	// cancel the write.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.persistTimeout)
	defer cancel()
	chat.BestEffort(in.logger, chat.KindLogging, "store assistant message", func() error {
		return in.handle.StoreAssistantMessage(persistCtx, store.AssistantMessage{
			UserID:         in.turn.UserID,
			ChatID:         in.turn.ChatID,
			Parts:          reply.parts,
			Mode:           in.mode,
			MessageGroupID: in.turn.MessageGroupID,
		})
	})
}

func (h Handler) reportStreamError(ctx context.Context, out *datastream.Writer, logger *zap.Logger, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		logger.Info("completion stream aborted by client", zap.Error(err))
		return
	}

	logger.Error("streaming error occurred", zap.String("kind", string(chat.KindStreaming)), zap.Error(err))
	if out.Err() != nil {
		return
	}
	message := chat.ClientMessage(chat.Wrap(chat.KindStreaming, "completion stream", err))
	logger.Warn("error forwarded to client", zap.String("client_message", message))
	_ = out.Error(message)
}

func completionMessages(systemPrompt string, history []chat.Message) []mistral.Message {
	out := make([]mistral.Message, 0, len(history)+1)
	out = append(out, mistral.Message{Role: chat.RoleSystem, Content: systemPrompt})
	for _, msg := range history {
		out = append(out, mistral.Message{Role: msg.Role, Content: completionContent(msg)})
	}
	return out
}

// Attachments travel as references appended to the message text.
func completionContent(msg chat.Message) string {
	if len(msg.Attachments) == 0 {
		return msg.Content
	}

	var b strings.Builder
	b.WriteString(msg.Content)
	for _, attachment := range msg.Attachments {
		if strings.TrimSpace(attachment.URL) == "" {
			continue
		}
		name := strings.TrimSpace(attachment.Name)
		if name == "" {
			name = "attachment"
		}
		b.WriteString("\n\n[Attachment: ")
		b.WriteString(name)
		b.WriteString("](")
		b.WriteString(attachment.URL)
		b.WriteString(")")
	}
	return b.String()
}

// replyCollector assembles the finish-time parts of the assistant reply,
// merging adjacent deltas of the same kind.
type replyCollector struct {
	parts []chat.Part
}

func (c *replyCollector) addText(delta string) {
	if n := len(c.parts); n > 0 && c.parts[n-1].Type == "text" {
		c.parts[n-1].Text += delta
		return
	}
	c.parts = append(c.parts, chat.Part{Type: "text", Text: delta})
}

func (c *replyCollector) addReasoning(delta string) {
	if n := len(c.parts); n > 0 && c.parts[n-1].Type == "reasoning" {
		c.parts[n-1].Reasoning += delta
		return
	}
	c.parts = append(c.parts, chat.Part{Type: "reasoning", Reasoning: delta})
}

func (c *replyCollector) addSource(source chat.Source) {
	c.parts = append(c.parts, chat.Part{Type: "source", Source: &source})
}
