package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/chat"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/config"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/mistral"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	defaultPersistTimeout    = 15 * time.Second
	defaultCompletionTimeout = 60 * time.Second
)

type completionStreamer interface {
	StreamChatCompletion(ctx context.Context, req mistral.StreamRequest, callbacks mistral.StreamCallbacks) (mistral.StepResult, error)
}

type usageTracker interface {
	ValidateAndTrackUsage(ctx context.Context, userID, model string, isAuthenticated bool) (*store.Store, error)
	IncrementMessageCount(ctx context.Context, handle *store.Store, userID string) error
}

type Handler struct {
	cfg               config.Config
	store             *store.Store
	usage             usageTracker
	streamer          completionStreamer
	logger            *zap.Logger
	persistTimeout    time.Duration
	completionTimeout time.Duration
}

// NewHandler wires the chat pipeline. durable may be nil when no database is
// configured.
func NewHandler(cfg config.Config, durable *store.Store, usage usageTracker, streamer completionStreamer, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	completionTimeout := time.Duration(cfg.CompletionTimeoutSeconds) * time.Second
	if completionTimeout <= 0 {
		completionTimeout = defaultCompletionTimeout
	}
	return Handler{
		cfg:               cfg,
		store:             durable,
		usage:             usage,
		streamer:          streamer,
		logger:            logger,
		persistTimeout:    defaultPersistTimeout,
		completionTimeout: completionTimeout,
	}
}

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "persistence": h.store != nil})
}

// Chat runs one conversation turn: validate, count usage, apply an edit
// cutoff, log the user message, then stream the completion.
func (h Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var turn chat.Turn
	if err := decodeJSON(r, &turn); err != nil {
		h.logger.Warn("decode chat request", zap.Error(err))
		writeErrorEnvelope(w, chat.MalformedRequest("Invalid request body"))
		return
	}

	if turn.Messages == nil || turn.ChatID == "" || turn.UserID == "" {
		writeJSON(w, http.StatusBadRequest, missingInformationResponse{Error: chat.MissingInformationMessage})
		return
	}

	logger := h.logger.With(
		zap.String("request_id", chimw.GetReqID(ctx)),
		zap.String("chat_id", turn.ChatID),
		zap.String("user_id", turn.UserID),
		zap.String("model", turn.Model),
	)

	handle, err := h.usage.ValidateAndTrackUsage(ctx, turn.UserID, turn.Model, turn.IsAuthenticated)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	chat.BestEffort(logger, chat.KindUsageIncrement, "increment message count", func() error {
		return h.usage.IncrementMessageCount(ctx, handle, turn.UserID)
	})

	// The cutoff delete must land before the new user message is written.
	if handle != nil && turn.EditCutoffTimestamp != "" {
		chat.BestEffort(logger, chat.KindHistoryMutation, "delete messages from cutoff", func() error {
			cutoff, err := store.ParseCutoff(turn.EditCutoffTimestamp)
			if err != nil {
				return err
			}
			deleted, err := handle.DeleteMessagesFrom(ctx, turn.ChatID, cutoff)
			if err != nil {
				return err
			}
			logger.Info("deleted messages from cutoff", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
			return nil
		}, zap.String("cutoff", turn.EditCutoffTimestamp))
	}

	if last, ok := turn.LastMessage(); handle != nil && ok && last.Role == chat.RoleUser {
		chat.BestEffort(logger, chat.KindLogging, "log user message", func() error {
			return handle.InsertUserMessage(ctx, store.UserMessage{
				UserID:         turn.UserID,
				ChatID:         turn.ChatID,
				Content:        last.Content,
				Attachments:    last.Attachments,
				Model:          turn.Model,
				MessageGroupID: turn.MessageGroupID,
			})
		})
	}

	selection := chat.SelectMode(turn.Model)
	systemPrompt := chat.ComposeSystemPrompt(turn.SystemPrompt, h.cfg.SystemPromptDefault, selection)

	if strings.TrimSpace(h.cfg.MistralAPIKey) == "" {
		h.fail(w, logger, chat.ConfigurationError("Missing NELSON_API_KEY/MISTRAL_API_KEY"))
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		h.fail(w, logger, chat.ConfigurationError("server does not support streaming"))
		return
	}

	h.streamCompletion(ctx, w, completionInput{
		turn:         turn,
		systemPrompt: systemPrompt,
		mode:         selection.Mode,
		handle:       handle,
		logger:       logger.With(zap.String("mode", string(selection.Mode))),
	})
}

func (h Handler) ListChatMessages(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeErrorEnvelope(w, &chat.Error{Kind: chat.KindConfiguration, Message: "persistence is not configured", Status: http.StatusServiceUnavailable})
		return
	}

	chatID := strings.TrimSpace(chi.URLParam(r, "chatID"))
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if chatID == "" || userID == "" {
		writeJSON(w, http.StatusBadRequest, missingInformationResponse{Error: chat.MissingInformationMessage})
		return
	}

	messages, err := h.store.ListMessages(r.Context(), userID, chatID)
	if err != nil {
		h.fail(w, h.logger.With(zap.String("chat_id", chatID), zap.String("user_id", userID)), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// fail logs err with its context before the envelope strips it.
func (h Handler) fail(w http.ResponseWriter, logger *zap.Logger, err error) {
	normalized := chat.Normalize(err)
	fields := []zap.Field{zap.String("kind", string(normalized.Kind)), zap.Int("status", normalized.Status), zap.Error(err)}

	if normalized.Status < http.StatusInternalServerError {
		logger.Warn("chat request rejected", fields...)
	} else {
		logger.Error("error in chat request", fields...)
	}
	writeErrorEnvelope(w, err)
}
