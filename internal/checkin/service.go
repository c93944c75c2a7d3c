package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/clock"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/observability"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/parse"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

// Limits bound what a check-in session may look like.
type Limits struct {
	MinCycle              time.Duration
	MaxMembers            int
	MaxAbsences           int
	MaxSessionsPerChannel int
}

func DefaultLimits() Limits {
	return Limits{
		MinCycle:              20 * time.Second,
		MaxMembers:            10,
		MaxAbsences:           3,
		MaxSessionsPerChannel: 5,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MinCycle <= 0 {
		l.MinCycle = d.MinCycle
	}
	if l.MaxMembers <= 0 {
		l.MaxMembers = d.MaxMembers
	}
	if l.MaxAbsences <= 0 {
		l.MaxAbsences = d.MaxAbsences
	}
	if l.MaxSessionsPerChannel <= 0 {
		l.MaxSessionsPerChannel = d.MaxSessionsPerChannel
	}
	return l
}

type Reason string

const (
	ReasonBadFormat    Reason = "bad_format"
	ReasonTooShort     Reason = "too_short"
	ReasonNoMembers    Reason = "no_members"
	ReasonTooMany      Reason = "too_many"
	ReasonSessionLimit Reason = "session_limit"
)

// ValidationError rejects a start request. Message is safe to show to
// the invoker.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid check-in request (%s): %s", e.Reason, e.Message)
}

// StartRequest is a /checkin invocation.
type StartRequest struct {
	Invoker   gateway.User
	GuildID   string
	ChannelID string
	Duration  string
	Mentions  string
}

type Dependencies struct {
	Messenger gateway.Messenger
	Directory gateway.Directory
	Clock     clock.Clock
	Metrics   *observability.Metrics
	Logger    logrus.FieldLogger
	// CallTimeout bounds each gateway call. Zero means ten seconds.
	CallTimeout time.Duration
}

// Service owns the check-in engine: the registry, one reminder loop per
// session, and the interaction router.
type Service struct {
	limits    Limits
	directory gateway.Directory
	registry  *Registry
	scheduler *Scheduler
	router    *Router
	pub       *publisher
	feed      *Feed
	clock     clock.Clock
	metrics   *observability.Metrics
	log       logrus.FieldLogger

	loopCtx context.Context
	stop    context.CancelFunc
	loops   sync.WaitGroup
}

func NewService(limits Limits, deps Dependencies) *Service {
	limits = limits.withDefaults()
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "checkin")
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	pub := &publisher{messenger: deps.Messenger, metrics: deps.Metrics, timeout: timeout}
	registry := NewRegistry(clk, limits.MaxAbsences, limits.MaxSessionsPerChannel, log)
	feed := NewFeed(log)
	loopCtx, stop := context.WithCancel(context.Background())

	s := &Service{
		limits:    limits,
		directory: deps.Directory,
		registry:  registry,
		pub:       pub,
		feed:      feed,
		clock:     clk,
		metrics:   deps.Metrics,
		log:       log,
		loopCtx:   loopCtx,
		stop:      stop,
	}
	s.scheduler = &Scheduler{registry: registry, pub: pub, clock: clk, feed: feed, metrics: deps.Metrics, log: log}
	s.router = newRouter(registry, pub, clk, feed, deps.Metrics, log)

	registry.SetStartHook(s.startLoop)
	registry.SetRemoveHook(s.onRemoved)
	return s
}

// Start validates a /checkin request, registers the session and publishes
// its first prompt. Validation failures are *ValidationError.
func (s *Service) Start(ctx context.Context, req StartRequest) (render.CheckinState, error) {
	log := s.log.WithFields(logrus.Fields{"user_id": req.Invoker.ID, "channel_id": req.ChannelID})

	seconds, err := parse.Duration(req.Duration)
	if err != nil {
		log.WithField("duration", req.Duration).Warn("wrong duration format")
		return render.CheckinState{}, &ValidationError{Reason: ReasonBadFormat, Message: noticeBadFormat}
	}
	cycle := time.Duration(seconds) * time.Second
	if cycle < s.limits.MinCycle {
		log.WithField("seconds", seconds).Warn("duration too short")
		return render.CheckinState{}, &ValidationError{Reason: ReasonTooShort, Message: tooShortNotice(int64(s.limits.MinCycle / time.Second))}
	}

	mentions, skipped := parse.Mentions(req.Mentions)
	if skipped > 0 {
		log.WithField("skipped", skipped).Debug("ignored malformed mention tokens")
	}
	var members []gateway.User
	if len(mentions) > 0 {
		members, err = s.directory.ResolveMentions(ctx, req.GuildID, mentions)
		if err != nil {
			return render.CheckinState{}, fmt.Errorf("resolve mentions: %w", err)
		}
	}
	if len(members) == 0 {
		log.Warn("no valid members in mentions")
		return render.CheckinState{}, &ValidationError{Reason: ReasonNoMembers, Message: noticeNoMembers}
	}
	if indexOf(members, req.Invoker.ID) < 0 {
		members = append(members, req.Invoker)
	}
	if len(members) > s.limits.MaxMembers {
		log.WithField("members", len(members)).Warn("too many members")
		return render.CheckinState{}, &ValidationError{Reason: ReasonTooMany, Message: tooManyNotice(s.limits.MaxMembers)}
	}

	sess, err := s.registry.Create(Params{
		Creator:       req.Invoker,
		ChannelID:     req.ChannelID,
		GuildID:       req.GuildID,
		Members:       members,
		CycleDuration: cycle,
	})
	if errors.Is(err, ErrSessionLimit) {
		log.Warn("session limit reached")
		return render.CheckinState{}, &ValidationError{Reason: ReasonSessionLimit, Message: sessionLimitNotice(req.Invoker.Name)}
	}
	if err != nil {
		return render.CheckinState{}, err
	}

	snap := sess.Snapshot()
	ref, err := s.pub.send(ctx, req.ChannelID, render.CheckinPrompt(snap, true))
	if err != nil {
		s.registry.Remove(sess.ID, render.EndAborted)
		return render.CheckinState{}, fmt.Errorf("publish initial prompt: %w", err)
	}
	if !sess.SetPromptRef(ref) {
		s.pub.retire(ctx, ref, log)
	}
	return snap, nil
}

// Handle applies a control interaction.
func (s *Service) Handle(ctx context.Context, in Interaction) Reply {
	return s.router.Handle(ctx, in)
}

func (s *Service) Sessions() []render.CheckinState { return s.registry.List() }

func (s *Service) Session(id string) (render.CheckinState, error) {
	sess, err := s.registry.Lookup(id)
	if err != nil {
		return render.CheckinState{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) Feed() *Feed { return s.feed }

func (s *Service) ActiveCount() int { return s.registry.ActiveCount() }

// Close stops every reminder loop and waits for them to return. Sessions
// are not persisted.
func (s *Service) Close() {
	s.stop()
	s.loops.Wait()
}

func (s *Service) startLoop(sess *Session) {
	s.metrics.SessionEvent(string(EventStarted))
	s.metrics.SetActiveSessions(s.registry.ActiveCount())
	s.feed.Publish(Event{Type: EventStarted, SessionID: sess.ID, State: sess.Snapshot(), At: s.clock.Now().UTC()})

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.scheduler.Run(s.loopCtx, sess)
	}()
}

func (s *Service) onRemoved(final render.CheckinState, reason render.EndReason) {
	s.metrics.SessionEvent(string(EventEnded))
	s.metrics.SetActiveSessions(s.registry.ActiveCount())
	s.feed.Publish(Event{Type: EventEnded, SessionID: final.SessionID, State: final, Reason: reason, At: s.clock.Now().UTC()})
}
