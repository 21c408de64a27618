package relay

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voxrelay/internal/audio"
	"voxrelay/internal/responder"
	"voxrelay/internal/router"
	"voxrelay/pkg/protocol"
)

type Channel interface {
	Receive() (protocol.ChatEvent, error)
	Send(cmd protocol.Command) error
	Close() error
}

type Responder interface {
	Reply(ctx context.Context, req responder.Request) (responder.Reply, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Artifact, error)
}

type Options struct {
	// Zero disables the deadline.
	ResponderTimeout time.Duration
	SynthTimeout     time.Duration
}

type Stats struct {
	Received  int
	Malformed int
	Rejected  int
	Accepted  int
	Replied   int
	Voiced    int
	Degraded  int
	Failed    int
}

// Dispatcher runs the receive, route, respond, reply loop. It handles one
// event at a time; the next event is not read until the current cycle,
// voice reply included, is finished.
type Dispatcher struct {
	ch     Channel
	router *router.Router
	resp   Responder
	voice  Synthesizer
	opts   Options

	stats Stats
}

// New wires a dispatcher. voice may be nil for text-only replies.
func New(ch Channel, rt *router.Router, resp Responder, voice Synthesizer, opts Options) *Dispatcher {
	return &Dispatcher{
		ch:     ch,
		router: rt,
		resp:   resp,
		voice:  voice,
		opts:   opts,
	}
}

func (d *Dispatcher) Stats() Stats { return d.stats }

// Run processes events until the channel is lost or ctx is cancelled.
// Per-cycle failures are logged and never end the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		d.ch.Close()
	})
	defer stop()

	log.Info("Relay ready")

	for {
		ev, err := d.ch.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, protocol.ErrMalformedEvent) {
				d.stats.Malformed++
				log.Warn("Skipping malformed event", "err", err)
				continue
			}
			return err
		}

		d.stats.Received++

		if err := d.Handle(ctx, ev); err != nil {
			if errors.Is(err, protocol.ErrChannelClosed) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			d.stats.Failed++
			log.Error("Cycle failed", "chat", ev.ChatJID, "err", err)
		}
	}
}

// Handle runs one full cycle for ev. A rejected event or a missing voice
// reply is not an error.
func (d *Dispatcher) Handle(ctx context.Context, ev protocol.ChatEvent) error {
	routed, ok := d.router.Accept(ev)
	if !ok {
		d.stats.Rejected++
		log.Debug("Event ignored", "type", ev.Kind, "chat", ev.ChatJID, "from_me", ev.IsFromMe)
		return nil
	}

	d.stats.Accepted++
	lg := log.With("cycle", uuid.NewString(), "chat", routed.ChatID)
	lg.Info("Message received", "sender", routed.Sender, "len", len(routed.Content))

	rctx, cancel := withTimeout(ctx, d.opts.ResponderTimeout)
	reply, err := d.resp.Reply(rctx, responder.Request{
		ChatID:  routed.ChatID,
		Sender:  routed.Sender,
		Content: routed.Content,
	})
	cancel()

	if errors.Is(err, responder.ErrNoReply) {
		lg.Info("Nothing to reply", "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}

	text := strings.TrimSpace(reply.Text)
	if text == "" {
		lg.Info("Nothing to reply", "reason", "empty text")
		return nil
	}

	if err := d.ch.Send(protocol.SendMessage(routed.ChatID, text)); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	d.stats.Replied++
	lg.Info("Text reply sent", "len", len(text))

	if d.voice == nil {
		return nil
	}

	sctx, cancel := withTimeout(ctx, d.opts.SynthTimeout)
	art, err := d.voice.Synthesize(sctx, text)
	cancel()

	if err != nil {
		d.stats.Degraded++
		lg.Warn("Voice reply skipped", "err", err)
		return nil
	}

	if err := d.ch.Send(protocol.SendVoiceMessage(routed.ChatID, art.Path)); err != nil {
		return fmt.Errorf("send voice: %w", err)
	}
	d.stats.Voiced++
	lg.Info("Voice reply sent", "path", art.Path, "bytes", art.Size, "duration", art.Duration)

	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
