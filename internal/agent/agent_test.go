package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ibeckermayer/rina/internal/agent/providers"
	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/types"
)

// stubCompleter answers every prompt with a fixed response and records
// what it was asked.
type stubCompleter struct {
	response string
	err      error
	system   string
	prompts  []string
}

func (s *stubCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	s.system = system
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

type stubImages struct {
	url    string
	data   []byte
	prompt string
}

func (s *stubImages) Submit(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.url, nil
}

func (s *stubImages) Fetch(_ context.Context, url string) ([]byte, error) {
	return s.data, nil
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		raw  string
		want DecisionKind
	}{
		{"great weather today [RESPOND]", Respond},
		{"[respond] sure", Respond},
		{"[IGNORE]", Ignore},
		{"[Ignore] spam", Ignore},
		{"[IGNORE] then [RESPOND]", Respond},
		{"not sure what you mean", Unparseable},
		{"", Unparseable},
		{"RESPOND", Unparseable},
	}
	for _, tc := range cases {
		got := ParseDecision(tc.raw)
		assert.Equal(t, tc.want, got.Kind, "ParseDecision(%q)", tc.raw)
		assert.Equal(t, tc.raw, got.Raw)
	}
}

func TestDecision_RespondsOnlyOnMarker(t *testing.T) {
	assert.True(t, ParseDecision("great weather today [RESPOND]").Responds())
	assert.False(t, ParseDecision("not sure what you mean").Responds())
	assert.False(t, ParseDecision("").Responds())
	assert.False(t, ParseDecision("[IGNORE]").Responds())
}

func TestClassify(t *testing.T) {
	c := &stubCompleter{response: "great weather today [RESPOND]"}
	a := New("rina", "you are rina", c, nil, "")

	d, err := a.Classify(context.Background(), "hey @rina what's up?")
	require.NoError(t, err)

	assert.Equal(t, Respond, d.Kind)
	assert.Equal(t, "you are rina", c.system)
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "Tweet: hey @rina what's up?")
	assert.Contains(t, c.prompts[0], MarkerRespond)
}

func TestClassify_NonRespondingAnswer(t *testing.T) {
	a := New("rina", "you are rina", &stubCompleter{response: "not sure what you mean"}, nil, "")

	d, err := a.Classify(context.Background(), "buy followers now")
	require.NoError(t, err)
	assert.False(t, d.Responds())
	assert.Equal(t, Unparseable, d.Kind)
}

func TestClassify_ProviderError(t *testing.T) {
	a := New("rina", "p", &stubCompleter{err: errors.New("connection reset")}, nil, "")

	_, err := a.Classify(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to classify post")
}

func TestGenerateReply_Trims(t *testing.T) {
	c := &stubCompleter{response: "  lol no  \n"}
	a := New("rina", "p", c, nil, "")

	reply, err := a.GenerateReply(context.Background(), "is go better than rust")
	require.NoError(t, err)

	assert.Equal(t, "lol no", reply)
	assert.Contains(t, c.prompts[0], "Current Post: 'is go better than rust'")
	assert.Contains(t, c.prompts[0], "Uses all lowercase")
}

func TestGeneratePost_NotTruncated(t *testing.T) {
	long := strings.Repeat("a", MaxPostChars+50)
	a := New("rina", "p", &stubCompleter{response: long}, nil, "")

	post, err := a.GeneratePost(context.Background())
	require.NoError(t, err)
	assert.Len(t, post, MaxPostChars+50)
}

func TestGeneratePost_Empty(t *testing.T) {
	a := New("rina", "p", &stubCompleter{response: "   "}, nil, "")

	_, err := a.GeneratePost(context.Background())
	assert.True(t, errors.Is(err, types.ErrEmptyResponse))
}

func TestGenerateChatReply(t *testing.T) {
	c := &stubCompleter{response: "Hey there! 👋"}
	a := New("rina", "p", c, nil, "")

	reply, err := a.GenerateChatReply(context.Background(), "hi rina")
	require.NoError(t, err)

	assert.Equal(t, "Hey there! 👋", reply)
	assert.Contains(t, c.prompts[0], "Message: 'hi rina'")
	assert.Contains(t, c.prompts[0], "May include emojis")
}

func TestImages(t *testing.T) {
	img := &stubImages{url: "http://img/x.png", data: []byte("png")}
	a := New("rina", "p", &stubCompleter{}, img, "a neon city")

	url, err := a.GenerateImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://img/x.png", url)
	assert.Equal(t, "a neon city", img.prompt)

	data, err := a.FetchImage(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestImages_NoSource(t *testing.T) {
	a := New("rina", "p", &stubCompleter{}, nil, "")

	_, err := a.GenerateImage(context.Background())
	assert.Error(t, err)
}

func TestNewCompleter(t *testing.T) {
	cfg := config.Default().LLM
	cfg.APIKey = "sk"

	c, err := NewCompleter(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &providers.AnthropicProvider{}, c)

	cfg.Provider = config.ProviderAnthropicHTTP
	c, err = NewCompleter(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &providers.HTTPProvider{}, c)

	cfg.Provider = "bogus"
	_, err = NewCompleter(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk"
	cfg.LLM.CacheExchanges = false
	cfg.Agents = []config.AgentConfig{{Name: "rina", Prompt: "a"}, {Prompt: "b"}}

	agents, err := FromConfig(cfg, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, agents, 2)
	assert.Equal(t, "rina", agents[0].Name())
	assert.Equal(t, "agent-1", agents[1].Name())
}

func TestFromConfig_CacheExchanges(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	cfg := config.Default()
	cfg.LLM.APIKey = "sk"
	cfg.LLM.CacheExchanges = true
	cfg.Agents = []config.AgentConfig{{Name: "rina", Prompt: "a"}}

	core, logs := observer.New(zap.DebugLevel)
	_, err := FromConfig(cfg, zap.New(core))
	require.NoError(t, err)

	entries := logs.FilterMessage("caching LLM exchanges").All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ContextMap()["dir"])
}
