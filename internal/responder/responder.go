package responder

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"

	openai "github.com/openai/openai-go/v3"
)

var (
	ErrResponder = errors.New("responder failed")
	// ErrNoReply means the model produced nothing worth sending this cycle.
	ErrNoReply = errors.New("no reply")
)

const (
	DefaultModel    = "gpt-4o-mini"
	DefaultMaxTurns = 20
)

const DefaultSystemPrompt = `
You are a helpful assistant replying to direct chat messages.
Every reply is sent as text and read aloud as a voice note.

RULES:
1. Answer in the language of the user's message.
2. Keep it short: two or three sentences unless asked for more.
3. Plain text only. No markdown, lists, links or emoji.
`

type Request struct {
	ChatID  string
	Sender  string
	Content string
}

type Reply struct {
	Text string
}

type Config struct {
	Model        string
	SystemPrompt string
	// MaxTurns bounds the remembered user/assistant pairs per chat.
	// Zero keeps no history.
	MaxTurns int
}

// OpenAI answers chat messages with chat completions and keeps a bounded
// history per chat for the lifetime of the process.
type OpenAI struct {
	client       openai.Client
	model        string
	systemPrompt string
	maxTurns     int

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessageParamUnion
}

func NewOpenAI(client openai.Client, cfg Config) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTurns < 0 {
		cfg.MaxTurns = 0
	}

	return &OpenAI{
		client:       client,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTurns:     cfg.MaxTurns,
		history:      make(map[string][]openai.ChatCompletionMessageParamUnion),
	}
}

func (o *OpenAI) Reply(ctx context.Context, req Request) (Reply, error) {
	user := userMessage(req.Sender, req.Content)

	o.mu.Lock()
	past := o.history[req.ChatID]
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(past)+2)
	messages = append(messages, openai.SystemMessage(o.systemPrompt))
	messages = append(messages, past...)
	messages = append(messages, user)
	o.mu.Unlock()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(o.model),
	})
	if err != nil {
		return Reply{}, fmt.Errorf("%w: chat completion: %w", ErrResponder, err)
	}

	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: no choices in response", ErrNoReply)
	}

	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		log.Warn("Model refused to answer", "chat", req.ChatID, "refusal", msg.Refusal)
		return Reply{}, fmt.Errorf("%w: refusal", ErrNoReply)
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return Reply{}, fmt.Errorf("%w: empty message content", ErrNoReply)
	}

	log.Debug("Responder answered", "chat", req.ChatID, "model", resp.Model, "tokens", resp.Usage.TotalTokens)

	o.remember(req.ChatID, user, openai.AssistantMessage(text))

	return Reply{Text: text}, nil
}

// The API only accepts [a-zA-Z0-9_-]{1,64} as a participant name.
var nameInvalid = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// userMessage tags content with the sender so the model can tell
// participants apart. Senders that leave nothing usable go untagged.
func userMessage(sender, content string) openai.ChatCompletionMessageParamUnion {
	msg := openai.UserMessage(content)

	name := nameInvalid.ReplaceAllString(sender, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	if strings.Trim(name, "_") != "" {
		msg.OfUser.Name = openai.String(name)
	}
	return msg
}

func (o *OpenAI) remember(chatID string, turn ...openai.ChatCompletionMessageParamUnion) {
	if o.maxTurns == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	h := append(o.history[chatID], turn...)
	if limit := o.maxTurns * 2; len(h) > limit {
		h = append([]openai.ChatCompletionMessageParamUnion(nil), h[len(h)-limit:]...)
	}
	o.history[chatID] = h
}

// Turns returns how many messages are remembered for chatID.
func (o *OpenAI) Turns(chatID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.history[chatID])
}

// Close drops all remembered conversations.
func (o *OpenAI) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = make(map[string][]openai.ChatCompletionMessageParamUnion)
	return nil
}
