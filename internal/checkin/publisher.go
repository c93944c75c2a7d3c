package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/observability"
)

const defaultCallTimeout = 10 * time.Second

// publisher wraps Messenger calls with a per-call timeout, metrics and
// logging. Failures are returned for the caller to log; nothing retries.
type publisher struct {
	messenger gateway.Messenger
	metrics   *observability.Metrics
	timeout   time.Duration
}

func (p *publisher) send(ctx context.Context, channelID string, msg gateway.Message) (gateway.MessageRef, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	ref, err := p.messenger.SendMessage(ctx, channelID, msg)
	p.metrics.ObserveGatewayCall("send_message", time.Since(start), err)
	return ref, err
}

func (p *publisher) edit(ctx context.Context, ref gateway.MessageRef, msg gateway.Message) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	err := p.messenger.EditMessage(ctx, ref, msg)
	p.metrics.ObserveGatewayCall("edit_message", time.Since(start), err)
	return err
}

func (p *publisher) fetch(ctx context.Context, ref gateway.MessageRef) (gateway.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	msg, err := p.messenger.FetchMessage(ctx, ref)
	p.metrics.ObserveGatewayCall("fetch_message", time.Since(start), err)
	return msg, err
}

// retire disables the controls of a superseded prompt. It is best-effort:
// a missing message only warrants a warning.
func (p *publisher) retire(ctx context.Context, ref gateway.MessageRef, log logrus.FieldLogger) {
	if ref.IsZero() {
		return
	}
	log = log.WithField("message_id", ref.MessageID)
	msg, err := p.fetch(ctx, ref)
	if err != nil {
		logRetireError(log, err)
		return
	}
	if err := p.edit(ctx, ref, msg.WithControlsDisabled()); err != nil {
		logRetireError(log, err)
		return
	}
	log.Debug("retired previous prompt controls")
}

func logRetireError(log logrus.FieldLogger, err error) {
	if errors.Is(err, gateway.ErrMessageNotFound) {
		log.Warn("previous prompt not found")
		return
	}
	log.WithError(err).Error("failed to retire previous prompt controls")
}
