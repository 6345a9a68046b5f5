package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/types"
)

type sent struct {
	chatID  int64
	replyTo int
	text    string
}

// fakeTransport feeds queued messages then closes or blocks.
type fakeTransport struct {
	mu       sync.Mutex
	msgs     []types.ChatMessage
	sent     []sent
	sendErr  error
	startErr error
	closeOut bool
	name     string
	starts   int
}

func (f *fakeTransport) Updates(ctx context.Context) (<-chan types.ChatMessage, error) {
	f.mu.Lock()
	f.starts++
	msgs := append([]types.ChatMessage(nil), f.msgs...)
	closeOut := f.closeOut
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan types.ChatMessage)
	go func() {
		if closeOut {
			defer close(out)
		}
		for _, m := range msgs {
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
		if !closeOut {
			<-ctx.Done()
		}
	}()
	return out, nil
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, replyTo int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{chatID, replyTo, text})
	return nil
}

func (f *fakeTransport) BotName() string { return f.name }

func (f *fakeTransport) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeResponder struct {
	fail map[string]bool
}

func (r *fakeResponder) GenerateChatReply(_ context.Context, message string) (string, error) {
	if r.fail[message] {
		return "", errors.New("model unavailable")
	}
	return "re: " + message, nil
}

func TestShouldRespond(t *testing.T) {
	tests := []struct {
		name string
		msg  types.ChatMessage
		bot  string
		want bool
	}{
		{"private", types.ChatMessage{Text: "hi", Private: true}, "rina_bot", true},
		{"group mention", types.ChatMessage{Text: "hey @rina_bot what's up"}, "rina_bot", true},
		{"group no mention", types.ChatMessage{Text: "hey everyone"}, "rina_bot", false},
		{"other bot", types.ChatMessage{Text: "@other_bot hi"}, "rina_bot", false},
		{"unknown name", types.ChatMessage{Text: "@ hi"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRespond(tt.msg, tt.bot))
		})
	}
}

func TestRelay_RepliesAndIsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &fakeTransport{
		name:     "rina_bot",
		closeOut: true,
		msgs: []types.ChatMessage{
			{ChatID: 1, MessageID: 10, Text: "hello", Private: true},
			{ChatID: 2, MessageID: 11, Text: "ignored group chatter"},
			{ChatID: 3, MessageID: 12, Text: "broken", Private: true},
			{ChatID: 4, MessageID: 13, Text: "@rina_bot ping"},
			{ChatID: 5, MessageID: 14, Text: "", Private: true},
		},
	}
	r := NewRelay(tr, &fakeResponder{fail: map[string]bool{"broken": true}}, "", zap.NewNop())

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrUpdatesClosed)

	assert.Equal(t, []sent{
		{1, 10, "re: hello"},
		{4, 13, "re: @rina_bot ping"},
	}, tr.Sent())

	handled, failed := r.Counts()
	assert.Equal(t, int64(2), handled)
	assert.Equal(t, int64(1), failed)
}

func TestRelay_SendFailureDoesNotStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &fakeTransport{
		closeOut: true,
		sendErr:  errors.New("chat gone"),
		msgs: []types.ChatMessage{
			{ChatID: 1, Text: "a", Private: true},
			{ChatID: 2, Text: "b", Private: true},
		},
	}
	r := NewRelay(tr, &fakeResponder{}, "rina_bot", zap.NewNop())

	assert.ErrorIs(t, r.Run(context.Background()), ErrUpdatesClosed)
	_, failed := r.Counts()
	assert.Equal(t, int64(2), failed)
}

func TestRelay_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &fakeTransport{name: "rina_bot"}
	r := NewRelay(tr, &fakeResponder{}, "", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelay_StartError(t *testing.T) {
	tr := &fakeTransport{startErr: errors.New("bad token")}
	r := NewRelay(tr, &fakeResponder{}, "", zap.NewNop())

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start updates")
}
