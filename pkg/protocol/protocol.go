package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnection     = errors.New("connection failed")
	ErrChannelClosed  = errors.New("channel closed")
	ErrMalformedEvent = errors.New("malformed event")
)

type Kind string

const (
	KindMessage Kind = "message"
	KindCommand Kind = "command"
)

const (
	CmdSendMessage      = "send_message"
	CmdSendVoiceMessage = "send_voice_message"
)

const closeGrace = time.Second

// ChatEvent is one inbound notification from the event source.
type ChatEvent struct {
	Kind     Kind   `json:"type"`
	IsFromMe bool   `json:"is_from_me"`
	ChatJID  string `json:"chat_jid"`
	Sender   string `json:"sender"`
	Content  string `json:"content,omitempty"`
}

func (e ChatEvent) IsMessage() bool { return e.Kind == KindMessage }

// Command is an outbound frame. Exactly one of Content or FilePath is set,
// depending on Command.
type Command struct {
	Type     string `json:"type"`
	Command  string `json:"command"`
	ChatJID  string `json:"chat_jid,omitempty"`
	Content  string `json:"content,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

func SendMessage(chatJID, content string) Command {
	return Command{
		Type:    string(KindCommand),
		Command: CmdSendMessage,
		ChatJID: chatJID,
		Content: content,
	}
}

func SendVoiceMessage(chatJID, filePath string) Command {
	return Command{
		Type:     string(KindCommand),
		Command:  CmdSendVoiceMessage,
		ChatJID:  chatJID,
		FilePath: filePath,
	}
}

// ParseEvent decodes one inbound frame. Frames that are not a JSON object
// or carry no type are malformed.
func ParseEvent(frame []byte) (ChatEvent, error) {
	s := bytes.TrimSpace(frame)
	if len(s) == 0 {
		return ChatEvent{}, fmt.Errorf("%w: empty frame", ErrMalformedEvent)
	}
	if s[0] != '{' {
		return ChatEvent{}, fmt.Errorf("%w: not a json object", ErrMalformedEvent)
	}

	var ev ChatEvent
	if err := json.Unmarshal(s, &ev); err != nil {
		return ChatEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev.Kind == "" {
		return ChatEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	return ev, nil
}

func deadline() time.Time {
	return time.Now().Add(closeGrace)
}
