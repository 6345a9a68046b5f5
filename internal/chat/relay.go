// Package chat relays direct and group messages from a chat transport to
// the primary agent and sends its replies back.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/types"
)

// ErrUpdatesClosed is returned by Relay.Run when the transport stops
// delivering messages while the relay is still supposed to be running.
var ErrUpdatesClosed = errors.New("update stream closed")

// Transport delivers inbound messages and sends replies
type Transport interface {
	// Updates connects and streams inbound messages until ctx is done.
	Updates(ctx context.Context) (<-chan types.ChatMessage, error)
	// Send posts text to chatID as a reply to message replyTo.
	Send(ctx context.Context, chatID int64, replyTo int, text string) error
	// BotName is the bot's own handle, without the leading @. Valid after Updates.
	BotName() string
}

// Responder produces a conversational reply
type Responder interface {
	GenerateChatReply(ctx context.Context, message string) (string, error)
}

// ShouldRespond reports whether the bot answers msg: always in private
// chats, and in groups only when @botName is mentioned.
func ShouldRespond(msg types.ChatMessage, botName string) bool {
	if msg.Private {
		return true
	}
	if botName == "" {
		return false
	}
	return strings.Contains(msg.Text, "@"+botName)
}

// Relay answers chat messages with the primary agent
type Relay struct {
	transport Transport
	agent     Responder
	botName   string
	log       *zap.SugaredLogger

	handled atomic.Int64
	failed  atomic.Int64
}

// NewRelay creates a relay. botName overrides the transport's own handle when set.
func NewRelay(transport Transport, agent Responder, botName string, log *zap.Logger) *Relay {
	return &Relay{
		transport: transport,
		agent:     agent,
		botName:   botName,
		log:       log.Named("relay").Sugar(),
	}
}

// Run listens until ctx is done. A failure on one message is logged and
// the relay moves on to the next.
func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.transport.Updates(ctx)
	if err != nil {
		return fmt.Errorf("failed to start updates: %w", err)
	}

	name := r.botName
	if name == "" {
		name = r.transport.BotName()
	}
	r.log.Infow("listening", "bot", name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrUpdatesClosed
			}
			r.handle(ctx, msg, name)
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg types.ChatMessage, botName string) {
	if msg.Text == "" || !ShouldRespond(msg, botName) {
		return
	}

	reply, err := r.agent.GenerateChatReply(ctx, msg.Text)
	if err != nil {
		r.failed.Add(1)
		r.log.Errorw("failed to generate chat reply", "chat", msg.ChatID, "error", err)
		return
	}

	if err := r.transport.Send(ctx, msg.ChatID, msg.MessageID, reply); err != nil {
		r.failed.Add(1)
		r.log.Errorw("failed to send chat reply", "chat", msg.ChatID, "error", err)
		return
	}

	r.handled.Add(1)
	r.log.Debugw("replied", "chat", msg.ChatID, "from", msg.From)
}

// Counts returns how many messages were answered and how many failed
func (r *Relay) Counts() (handled, failed int64) {
	return r.handled.Load(), r.failed.Load()
}
