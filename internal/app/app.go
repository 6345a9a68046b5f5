package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/rina/internal/agent"
	"github.com/ibeckermayer/rina/internal/chat"
	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/scheduler"
	"github.com/ibeckermayer/rina/internal/state"
	"github.com/ibeckermayer/rina/internal/types"
)

// ErrNoAgents is returned by both cycles when no persona is configured.
var ErrNoAgents = errors.New("no agents configured")

// Agent is the part of *agent.Agent the orchestrator drives
type Agent interface {
	Name() string
	Classify(ctx context.Context, post string) (agent.Decision, error)
	GenerateReply(ctx context.Context, post string) (string, error)
	GeneratePost(ctx context.Context) (string, error)
	GenerateImage(ctx context.Context) (string, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// SocialClient is the part of *social.Twitter the orchestrator drives
type SocialClient interface {
	Tweet(ctx context.Context, text string) (string, error)
	TweetWithMedia(ctx context.Context, text, mediaID, taggedUserID string) (string, error)
	Reply(ctx context.Context, inReplyToID, text string) (string, error)
	UserID(ctx context.Context) (string, error)
	Mentions(ctx context.Context, userID string) ([]types.Notification, error)
	UploadMedia(ctx context.Context, data []byte) (string, error)
}

// Relay is the supervised chat relay
type Relay interface {
	Run(ctx context.Context) error
	Status() chat.RelayStatus
}

// MarkPolicy decides whether a notification is marked processed when
// handling it fails.
type MarkPolicy string

const (
	// MarkAlways marks the notification even when handling fails, so it is never retried.
	MarkAlways MarkPolicy = "always"
	// MarkAfterSuccess leaves a failed notification unmarked for the next cycle.
	MarkAfterSuccess MarkPolicy = "after_success"
)

// ParseMarkPolicy validates a config value
func ParseMarkPolicy(s string) (MarkPolicy, error) {
	switch MarkPolicy(s) {
	case MarkAlways, MarkAfterSuccess:
		return MarkPolicy(s), nil
	case "":
		return MarkAlways, nil
	default:
		return "", fmt.Errorf("unknown mark policy: %s", s)
	}
}

// Options tunes the cycles
type Options struct {
	WithImage         bool
	NotificationLimit int
	MarkPolicy        MarkPolicy
	NotifyMinDelay    time.Duration
	NotifyMaxDelay    time.Duration
	LoopMinDelay      time.Duration
	LoopMaxDelay      time.Duration
}

// OptionsFromConfig maps the config file onto Options
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := ParseMarkPolicy(cfg.Notifications.MarkPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		WithImage:         cfg.Publish.WithImage,
		NotificationLimit: cfg.Notifications.Limit,
		MarkPolicy:        policy,
		NotifyMinDelay:    cfg.Notifications.MinDelay.Duration,
		NotifyMaxDelay:    cfg.Notifications.MaxDelay.Duration,
		LoopMinDelay:      cfg.Publish.MinInterval.Duration,
		LoopMaxDelay:      cfg.Publish.MaxInterval.Duration,
	}, nil
}

// Deps are the collaborators the App drives
type Deps struct {
	Agents []Agent
	Social SocialClient
	State  *state.Manager
	// Relay is optional; nil runs without a chat relay.
	Relay     Relay
	Scheduler *scheduler.Scheduler
}

// App holds the application state.
type App struct {
	agents []Agent
	social SocialClient
	state  *state.Manager
	relay  Relay
	sched  *scheduler.Scheduler
	opts   Options
	log    *zap.SugaredLogger

	rngMu sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status Status
}

// New creates a new App instance.
func New(deps Deps, opts Options, log *zap.Logger) *App {
	if opts.NotificationLimit <= 0 {
		opts.NotificationLimit = 5
	}
	if opts.MarkPolicy == "" {
		opts.MarkPolicy = MarkAlways
	}

	sched := deps.Scheduler
	if sched == nil {
		sched = scheduler.NewInLocation(time.Local, log)
	}

	return &App{
		agents: deps.Agents,
		social: deps.Social,
		state:  deps.State,
		relay:  deps.Relay,
		sched:  sched,
		opts:   opts,
		log:    log.Named("app").Sugar(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Run starts the chat relay, then alternates publish and notification
// cycles with a random pause between rounds until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	var g errgroup.Group

	if a.relay != nil {
		g.Go(func() error {
			if err := a.relay.Run(ctx); err != nil {
				a.log.Errorw("chat relay stopped", "error", err)
			}
			return nil
		})
	}

	a.log.Infow("starting", "agents", a.agentNames(), "with_image", a.opts.WithImage)
	err := a.sched.Loop(ctx, "cycle", a.loopDelay, a.round)
	_ = g.Wait()

	if errors.Is(err, context.Canceled) {
		a.log.Info("stopped")
		return nil
	}
	return err
}

// round runs one publish and one notification cycle. Failures are logged
// so one broken stage never stops the bot.
func (a *App) round(ctx context.Context) error {
	if err := a.PublishCycle(ctx); err != nil {
		a.log.Errorw("publish cycle failed", "error", err)
	}
	if err := a.NotificationCycle(ctx); err != nil {
		a.log.Errorw("notification cycle failed", "error", err)
	}
	return nil
}

func (a *App) loopDelay() time.Duration {
	return a.between(a.opts.LoopMinDelay, a.opts.LoopMaxDelay)
}

// PublishCycle has a random agent write a post, optionally illustrates it,
// publishes it and records the text in memory. A failing stage ends the
// cycle; earlier stages are not rolled back.
func (a *App) PublishCycle(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { a.finish(cyclePublish, start, err) }()

	if len(a.agents) == 0 {
		return ErrNoAgents
	}
	ag := a.agents[a.intn(len(a.agents))]
	a.log.Infow("publishing", "agent", ag.Name())

	text, err := ag.GeneratePost(ctx)
	if err != nil {
		return err
	}
	draft := types.Draft{Text: text}

	var ownID string
	if a.opts.WithImage {
		url, err := ag.GenerateImage(ctx)
		if err != nil {
			return fmt.Errorf("failed to generate image: %w", err)
		}
		data, err := ag.FetchImage(ctx, url)
		if err != nil {
			return fmt.Errorf("failed to fetch image: %w", err)
		}
		draft.MediaID, err = a.social.UploadMedia(ctx, data)
		if err != nil {
			return fmt.Errorf("failed to upload image: %w", err)
		}
		ownID, err = a.social.UserID(ctx)
		if err != nil {
			return fmt.Errorf("failed to get user id: %w", err)
		}
	}

	var postID string
	if draft.HasMedia() {
		postID, err = a.social.TweetWithMedia(ctx, draft.Text, draft.MediaID, ownID)
	} else {
		postID, err = a.social.Tweet(ctx, draft.Text)
	}
	if err != nil {
		return fmt.Errorf("failed to publish post: %w", err)
	}
	a.log.Infow("published", "agent", ag.Name(), "id", postID, "media", draft.HasMedia())

	// The post is already public, so a local write failure does not fail the cycle.
	if err := a.state.Append(ctx, state.MemoryEntry(draft.Text)); err != nil {
		a.log.Warnw("failed to record post", "id", postID, "error", err)
	}
	return nil
}

// NotificationCycle answers up to NotificationLimit unprocessed mentions
// with the primary agent, pausing between each.
func (a *App) NotificationCycle(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { a.finish(cycleNotifications, start, err) }()

	if len(a.agents) == 0 {
		return ErrNoAgents
	}
	primary := a.agents[0]

	userID, err := a.social.UserID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get user id: %w", err)
	}
	mentions, err := a.social.Mentions(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch mentions: %w", err)
	}
	if len(mentions) > a.opts.NotificationLimit {
		mentions = mentions[:a.opts.NotificationLimit]
	}

	for _, n := range mentions {
		if a.state.IsProcessed(n.ID) {
			continue
		}

		handleErr := a.handleNotification(ctx, primary, n)

		if handleErr == nil || a.opts.MarkPolicy == MarkAlways {
			if err := a.state.Append(ctx, state.ProcessedEntry(n.ID)); err != nil {
				if handleErr != nil {
					a.log.Errorw("failed to mark notification", "id", n.ID, "error", err)
					return handleErr
				}
				return fmt.Errorf("failed to mark notification %s: %w", n.ID, err)
			}
		}
		if handleErr != nil {
			return handleErr
		}

		if err := a.sleep(ctx, a.between(a.opts.NotifyMinDelay, a.opts.NotifyMaxDelay)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) handleNotification(ctx context.Context, ag Agent, n types.Notification) error {
	decision, err := ag.Classify(ctx, n.Text)
	if err != nil {
		notificationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to classify notification %s: %w", n.ID, err)
	}
	notificationsTotal.WithLabelValues(decision.Kind.String()).Inc()

	if !decision.Responds() {
		a.log.Debugw("ignoring notification", "id", n.ID, "decision", decision.Kind)
		return nil
	}

	reply, err := ag.GenerateReply(ctx, n.Text)
	if err != nil {
		return fmt.Errorf("failed to answer notification %s: %w", n.ID, err)
	}
	// Under after_success a failed reply is retried, so it is only
	// remembered once it is public.
	remembered := false
	if a.opts.MarkPolicy == MarkAlways {
		a.remember(ctx, n.ID, reply)
		remembered = true
	}
	replyID, err := a.social.Reply(ctx, n.ID, reply)
	if err != nil {
		return fmt.Errorf("failed to publish reply to %s: %w", n.ID, err)
	}
	if !remembered {
		a.remember(ctx, n.ID, reply)
	}

	a.log.Infow("replied", "notification", n.ID, "reply", replyID)
	return nil
}

// remember appends a reply to the memory log. A write failure is logged
// and never blocks publishing.
func (a *App) remember(ctx context.Context, notificationID, reply string) {
	if err := a.state.Append(ctx, state.MemoryEntry(reply)); err != nil {
		a.log.Warnw("failed to record reply", "notification", notificationID, "error", err)
	}
}

func (a *App) agentNames() []string {
	names := make([]string, 0, len(a.agents))
	for _, ag := range a.agents {
		names = append(names, ag.Name())
	}
	return names
}

func (a *App) intn(n int) int {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return a.rng.Intn(n)
}

func (a *App) between(min, max time.Duration) time.Duration {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return scheduler.Between(min, max, a.rng)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
