package checkin

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/clock"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/observability"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

// Interaction is a pressed control on a check-in prompt.
type Interaction struct {
	CustomID string
	Actor    gateway.User
	Source   gateway.MessageRef
}

// Reply is what the actor is told about their interaction.
type Reply struct {
	Notice    string
	Ephemeral bool
}

type outcome struct {
	notice     string
	public     bool
	terminated bool
}

type handler func(ctx context.Context, sess *Session, actor gateway.User) (outcome, error)

// Router dispatches control interactions to session operations and keeps
// the source prompt in sync with the result.
type Router struct {
	registry *Registry
	pub      *publisher
	clock    clock.Clock
	feed     *Feed
	metrics  *observability.Metrics
	log      logrus.FieldLogger
	handlers map[render.Action]handler
}

func newRouter(registry *Registry, pub *publisher, clk clock.Clock, feed *Feed, metrics *observability.Metrics, log logrus.FieldLogger) *Router {
	r := &Router{
		registry: registry,
		pub:      pub,
		clock:    clk,
		feed:     feed,
		metrics:  metrics,
		log:      log,
	}
	r.handlers = map[render.Action]handler{
		render.ActionPresent: r.present,
		render.ActionJoin:    r.join,
		render.ActionLeave:   r.leave,
		render.ActionEnd:     r.end,
	}
	return r
}

func (r *Router) Handle(ctx context.Context, in Interaction) Reply {
	action, sessionID, err := render.SplitCustomID(in.CustomID)
	if err != nil {
		r.log.WithField("custom_id", in.CustomID).Warn("ignoring unknown control")
		r.metrics.Interaction("unknown", "invalid")
		return Reply{Notice: NoticeUnknownControl, Ephemeral: true}
	}
	log := r.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"action":     string(action),
		"user_id":    in.Actor.ID,
	})

	sess, err := r.registry.Lookup(sessionID)
	if err != nil {
		log.Warn("interaction for unknown session")
		r.metrics.Interaction(string(action), "not_found")
		return Reply{Notice: NoticeSessionGone, Ephemeral: true}
	}

	out, err := r.handlers[action](ctx, sess, in.Actor)
	if err != nil {
		log.WithError(err).Info("interaction rejected")
		r.metrics.Interaction(string(action), outcomeLabel(err))
		return Reply{Notice: noticeFor(err), Ephemeral: true}
	}
	r.metrics.Interaction(string(action), "ok")
	log.Debug("interaction applied")

	if !out.terminated {
		r.refresh(ctx, sess, in, log)
	}
	return Reply{Notice: out.notice, Ephemeral: !out.public}
}

func (r *Router) present(_ context.Context, sess *Session, actor gateway.User) (outcome, error) {
	if err := sess.MarkPresent(actor); err != nil {
		return outcome{}, err
	}
	return outcome{notice: NoticePresent}, nil
}

func (r *Router) join(_ context.Context, sess *Session, actor gateway.User) (outcome, error) {
	if err := sess.Join(actor); err != nil {
		return outcome{}, err
	}
	return outcome{notice: NoticeJoined}, nil
}

func (r *Router) leave(ctx context.Context, sess *Session, actor gateway.User) (outcome, error) {
	emptied, err := sess.Leave(actor)
	if err != nil {
		return outcome{}, err
	}
	if emptied {
		r.terminate(ctx, sess, render.EndEmpty)
	}
	return outcome{notice: NoticeLeft, terminated: emptied}, nil
}

func (r *Router) end(ctx context.Context, sess *Session, actor gateway.User) (outcome, error) {
	if err := sess.End(actor.ID); err != nil {
		return outcome{}, err
	}
	r.terminate(ctx, sess, render.EndManual)
	return outcome{notice: endedNotice(sess.Creator), public: true, terminated: true}, nil
}

// terminate tears down an ended session: the live prompt loses its
// controls, the channel is told, and the session is deregistered.
func (r *Router) terminate(ctx context.Context, sess *Session, reason render.EndReason) {
	log := r.log.WithFields(logrus.Fields{"session_id": sess.ID, "reason": string(reason)})
	r.pub.retire(ctx, sess.TakePromptRef(), log)
	if _, err := r.pub.send(ctx, sess.ChannelID, render.CheckinEnded(reason, sess.Creator)); err != nil {
		log.WithError(err).Error("failed to send session ended notice")
	}
	r.registry.Remove(sess.ID, reason)
}

// refresh re-renders the source prompt when it is still the live one.
func (r *Router) refresh(ctx context.Context, sess *Session, in Interaction, log logrus.FieldLogger) {
	snap := sess.Snapshot()
	r.metrics.SessionEvent(string(EventUpdated))
	r.feed.Publish(Event{Type: EventUpdated, SessionID: sess.ID, State: snap, Actor: &in.Actor, At: r.clock.Now().UTC()})

	if in.Source.IsZero() || sess.PromptRef() != in.Source {
		return
	}
	if err := r.pub.edit(ctx, in.Source, render.CheckinPrompt(snap, snap.Cycle == 0)); err != nil {
		log.WithError(err).Error("failed to refresh check-in prompt")
		return
	}
	// The prompt may have been superseded while the edit was in flight.
	if sess.PromptRef() != in.Source {
		r.pub.retire(ctx, in.Source, log)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrSessionEnded), errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrNotCreator):
		return "forbidden"
	default:
		return "rejected"
	}
}
