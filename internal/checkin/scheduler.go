package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/clock"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/observability"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

// Scheduler drives the attendance cycles of sessions. Each session gets
// its own Run loop, which stops once the session is deregistered.
type Scheduler struct {
	registry *Registry
	pub      *publisher
	clock    clock.Clock
	feed     *Feed
	metrics  *observability.Metrics
	log      logrus.FieldLogger
}

// Run blocks until the session leaves the registry or ctx is done.
func (s *Scheduler) Run(ctx context.Context, sess *Session) {
	log := s.log.WithField("session_id", sess.ID)
	log.Debug("reminder loop started")
	for {
		select {
		case <-ctx.Done():
			log.Debug("reminder loop stopped by shutdown")
			return
		case <-sess.Done():
			log.Debug("session deregistered, reminder loop stopped")
			return
		case <-s.clock.After(sess.CycleDuration):
		}
		if !s.registry.Contains(sess.ID) {
			log.Debug("session deregistered, reminder loop stopped")
			return
		}
		if !s.tick(ctx, sess, log) {
			return
		}
	}
}

// tick runs one cycle to completion and reports whether the loop should
// keep going.
func (s *Scheduler) tick(ctx context.Context, sess *Session, log logrus.FieldLogger) bool {
	start := time.Now()

	s.pub.retire(ctx, sess.TakePromptRef(), log)
	if !s.registry.Contains(sess.ID) {
		return false
	}

	res, err := sess.AdvanceCycle()
	if errors.Is(err, ErrSessionEnded) {
		log.Debug("session ended during cycle, reminder loop stopped")
		return false
	}
	log = log.WithField("cycle", res.Cycle)

	if len(res.Evicted) > 0 {
		s.metrics.Evicted(len(res.Evicted))
		ids := make([]string, len(res.Evicted))
		for i, u := range res.Evicted {
			ids[i] = u.ID
		}
		log.WithField("evicted", ids).Info("members removed after repeated absence")
		s.feed.Publish(Event{
			Type:      EventEvicted,
			SessionID: sess.ID,
			State:     sess.Snapshot(),
			Evicted:   res.Evicted,
			At:        s.clock.Now().UTC(),
		})
	}

	if res.Empty {
		if _, err := s.pub.send(ctx, sess.ChannelID, render.CheckinEnded(render.EndEmpty, sess.Creator)); err != nil {
			log.WithError(err).Error("failed to send session ended notice")
		}
		s.registry.Remove(sess.ID, render.EndEmpty)
		log.Info("no members left, session ended")
		return false
	}

	snap := sess.Snapshot()
	ref, err := s.pub.send(ctx, sess.ChannelID, render.CheckinReminder(snap))
	if err != nil {
		log.WithError(err).Error("failed to publish check-in reminder")
		return s.registry.Contains(sess.ID)
	}
	if !sess.SetPromptRef(ref) {
		s.pub.retire(ctx, ref, log)
		return false
	}

	s.metrics.ObservePublishLatency(time.Since(start))
	s.metrics.SessionEvent(string(EventCycle))
	s.feed.Publish(Event{Type: EventCycle, SessionID: sess.ID, State: snap, At: s.clock.Now().UTC()})
	log.WithField("members", len(snap.Members)).Info("check-in reminder sent")
	return true
}
