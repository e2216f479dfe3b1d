package alfred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pulsehq/pulse/internal/permissions"
)

const (
	maxToolRounds   = 4
	historyWindow   = 20
	conversationTTL = 24 * time.Hour

	notConfiguredReply = "Alfred is not configured yet. Ask an administrator to add the OpenAI API key."
)

// StoredMessage is one persisted conversation turn.
type StoredMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type conversation struct {
	UserID   int64           `json:"user_id"`
	Messages []StoredMessage `json:"messages"`
}

// ToolInvocation reports one executed tool call back to the UI.
type ToolInvocation struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    any             `json:"result"`
}

// Reply is the outcome of one chat exchange.
type Reply struct {
	Message        string           `json:"message"`
	ConversationID string           `json:"conversation_id"`
	ToolCalls      []ToolInvocation `json:"tool_calls,omitempty"`
}

// Service runs permission-aware assistant conversations.
type Service struct {
	logger *slog.Logger
	client ChatClient
	redis  *redis.Client
	tools  *toolset
	now    func() time.Time
}

// NewService constructs the assistant. A nil client degrades to a static
// not-configured reply so the endpoint stays usable without an API key.
func NewService(logger *slog.Logger, client ChatClient, redisClient *redis.Client, metricsReader MetricReader, rows RowStore, access Access) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger: logger,
		client: client,
		redis:  redisClient,
		tools:  &toolset{metrics: metricsReader, rows: rows, access: access},
		now:    time.Now,
	}
}

// Chat processes one user message, running tool calls as the model requests
// them, and returns the final assistant reply.
func (s *Service) Chat(ctx context.Context, id permissions.Identity, userName, conversationID, message string) (Reply, error) {
	if s.client == nil {
		if conversationID == "" {
			conversationID = "temp"
		}
		return Reply{Message: notConfiguredReply, ConversationID: conversationID}, nil
	}

	conv, conversationID, err := s.loadConversation(ctx, id.ID, conversationID)
	if err != nil {
		return Reply{}, err
	}
	conv.Messages = append(conv.Messages, StoredMessage{Role: "user", Content: message, Timestamp: s.now().UTC()})

	available, err := s.tools.available(ctx, id)
	if err != nil {
		return Reply{}, err
	}

	wire := []Message{{Role: "system", Content: s.systemPrompt(userName, id)}}
	history := conv.Messages
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, msg := range history {
		wire = append(wire, Message{Role: msg.Role, Content: msg.Content})
	}

	var invocations []ToolInvocation
	var final Message
	for round := 0; ; round++ {
		reply, err := s.client.Complete(ctx, wire, defs(available))
		if err != nil {
			return Reply{}, err
		}
		if len(reply.ToolCalls) == 0 || round >= maxToolRounds {
			final = reply
			break
		}

		wire = append(wire, reply)
		for _, call := range reply.ToolCalls {
			result := s.execute(ctx, id, available, call)
			invocations = append(invocations, ToolInvocation{
				Name:      call.Function.Name,
				Arguments: json.RawMessage(call.Function.Arguments),
				Result:    result,
			})
			encoded, err := json.Marshal(result)
			if err != nil {
				encoded = []byte(`{"error":"unencodable tool result"}`)
			}
			wire = append(wire, Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    string(encoded),
			})
		}
	}

	// Tool exchanges are not persisted; the stored transcript stays in the
	// plain user/assistant format the next prompt is rebuilt from.
	conv.Messages = append(conv.Messages, StoredMessage{Role: "assistant", Content: final.Content, Timestamp: s.now().UTC()})
	if err := s.saveConversation(ctx, conversationID, conv); err != nil {
		s.logger.Warn("persist conversation", slog.Any("error", err))
	}

	return Reply{Message: final.Content, ConversationID: conversationID, ToolCalls: invocations}, nil
}

func (s *Service) execute(ctx context.Context, id permissions.Identity, available []tool, call ToolCall) any {
	t, ok := findTool(available, call.Function.Name)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("unknown or unavailable tool %q", call.Function.Name)}
	}
	result, err := t.run(ctx, id, json.RawMessage(call.Function.Arguments))
	if err != nil {
		s.logger.Error("tool execution",
			slog.String("tool", call.Function.Name),
			slog.Any("error", err),
		)
		return map[string]any{"error": "tool execution failed"}
	}
	return result
}

func (s *Service) systemPrompt(userName string, id permissions.Identity) string {
	return fmt.Sprintf(`You are Alfred, the assistant built into the company business dashboard.
You are talking to %s (role: %s).
You can answer questions about business metrics and operational data using the available tools.
Tool availability reflects the user's permissions; never claim access to data a tool call refused.
Be concise and concrete. Use real numbers from tool results, never invented ones.`, userName, id.Role)
}

func (s *Service) loadConversation(ctx context.Context, userID int64, conversationID string) (conversation, string, error) {
	if conversationID != "" && s.redis != nil {
		payload, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
		switch {
		case err == nil:
			var conv conversation
			if jsonErr := json.Unmarshal(payload, &conv); jsonErr == nil && conv.UserID == userID {
				return conv, conversationID, nil
			}
			// Someone else's conversation or a corrupt record: start over.
		case !errors.Is(err, redis.Nil):
			return conversation{}, "", err
		}
	}
	return conversation{UserID: userID}, uuid.NewString(), nil
}

func (s *Service) saveConversation(ctx context.Context, conversationID string, conv conversation) error {
	if s.redis == nil {
		return nil
	}
	if len(conv.Messages) > 2*historyWindow {
		conv.Messages = conv.Messages[len(conv.Messages)-2*historyWindow:]
	}
	payload, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, conversationKey(conversationID), payload, conversationTTL).Err()
}

func conversationKey(id string) string {
	return "alfred:conversation:" + id
}
