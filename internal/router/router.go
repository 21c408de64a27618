package router

import (
	"strings"

	"voxrelay/pkg/protocol"
)

// DefaultGroupSuffix marks group conversations on WhatsApp.
const DefaultGroupSuffix = "@g.us"

// Routed holds the fields of an event that warrants a reply.
type Routed struct {
	ChatID  string
	Sender  string
	Content string
}

type Router struct {
	groupSuffix string
}

func New(groupSuffix string) *Router {
	if groupSuffix == "" {
		groupSuffix = DefaultGroupSuffix
	}
	return &Router{groupSuffix: groupSuffix}
}

// Accept reports whether ev should be answered: an inbound message, not sent
// by us, outside any group chat, with some text in it.
func (r *Router) Accept(ev protocol.ChatEvent) (Routed, bool) {
	switch {
	case !ev.IsMessage():
		return Routed{}, false
	case ev.IsFromMe:
		return Routed{}, false
	case r.IsGroup(ev.ChatJID):
		return Routed{}, false
	case strings.TrimSpace(ev.Content) == "":
		return Routed{}, false
	}

	return Routed{
		ChatID:  ev.ChatJID,
		Sender:  ev.Sender,
		Content: ev.Content,
	}, true
}

func (r *Router) IsGroup(chatID string) bool {
	return strings.HasSuffix(chatID, r.groupSuffix)
}
