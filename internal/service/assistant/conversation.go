package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"motivechat/internal/apperr"
	"motivechat/internal/models"
	"motivechat/internal/service/ai"
)

// MotivationalPersona is the fixed directive sent with every chat message.
const MotivationalPersona = `You are a supportive and encouraging AI companion designed to provide motivation and positivity.
Your goal is to uplift users with positive encouragement, practical advice, and daily motivation.
Be empathetic, understanding, and always maintain an optimistic yet realistic tone.
Keep responses concise but meaningful.`

const persistTimeout = 5 * time.Second

// Conversation runs one chat exchange: validate, ask the responder, persist, respond.
// The caller is expected to have authenticated the user already.
type Conversation struct {
	history   *Service
	responder ai.Responder
	maxChars  int
}

// NewConversation wires the history store to a responder.
func NewConversation(history *Service, responder ai.Responder, maxChars int) *Conversation {
	return &Conversation{history: history, responder: responder, maxChars: maxChars}
}

// Converse returns the persisted exchange. Nothing is stored when the responder fails.
// Once the message is accepted the exchange completes even if ctx is canceled.
func (c *Conversation) Converse(ctx context.Context, userID int64, message string) (*models.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.Validation("message cannot be empty")
	}
	if c.maxChars > 0 && utf8.RuneCountInString(message) > c.maxChars {
		return nil, apperr.Validation(fmt.Sprintf("message must be at most %d characters", c.maxChars))
	}

	// a signed token for an unknown user id is rejected before the responder is called
	if _, err := c.history.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	reply, err := c.responder.Generate(detached, message, MotivationalPersona)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("responder failed")
		return nil, apperr.Gateway(err)
	}

	persistCtx, cancel := context.WithTimeout(detached, persistTimeout)
	defer cancel()
	saved, err := c.history.AppendExchange(persistCtx, userID, message, reply)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("persist exchange failed")
		return nil, err
	}
	if ctx.Err() != nil {
		log.Info().Int64("user_id", userID).Int64("message_id", saved.ID).Msg("client left before reply, exchange kept")
	}
	return saved, nil
}
