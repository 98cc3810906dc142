package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"motivechat/internal/apperr"
)

// Responder is the gateway contract: one prompt plus a persona directive in,
// plain text out. Providers are swappable and mockable behind it.
type Responder interface {
	Generate(ctx context.Context, prompt, persona string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, prompt, persona string) (string, error)

func (f ResponderFunc) Generate(ctx context.Context, prompt, persona string) (string, error) {
	return f(ctx, prompt, persona)
}

var errEmptyReply = errors.New("empty reply")

// Gateway bounds every call with a timeout and classifies failures as
// apperr.ErrGatewayTimeout or apperr.ErrGatewayUnavailable. No retries.
type Gateway struct {
	inner   Responder
	timeout time.Duration
}

// NewGateway wraps inner with the given per-call timeout.
func NewGateway(inner Responder, timeout time.Duration) *Gateway {
	return &Gateway{inner: inner, timeout: timeout}
}

// Generate implements Responder. A blank reply counts as a gateway failure.
func (g *Gateway) Generate(ctx context.Context, prompt, persona string) (string, error) {
	if g == nil || g.inner == nil {
		return "", apperr.Gateway(errors.New("responder not configured"))
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	reply, err := g.inner.Generate(ctx, prompt, persona)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", apperr.Gateway(err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", apperr.Gateway(errEmptyReply)
	}
	return reply, nil
}
