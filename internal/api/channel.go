package api

import (
	"context"
	"sync"

	"github.com/medbook/clinic-booking-bot/internal/session"
)

// CollectorChannel realizes the conversation channel for the webhook
// transport: prompts the session machine emits while handling an event
// are buffered per user and drained into the HTTP response.
type CollectorChannel struct {
	mu      sync.Mutex
	pending map[int64][]PromptMessage
}

func NewCollectorChannel() *CollectorChannel {
	return &CollectorChannel{pending: make(map[int64][]PromptMessage)}
}

func (c *CollectorChannel) Prompt(_ context.Context, userID int64, text string, choices []session.Choice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[userID] = append(c.pending[userID], PromptMessage{Text: text, Choices: choices})
	return nil
}

// Drain returns and clears the buffered prompts for one user.
func (c *CollectorChannel) Drain(userID int64) []PromptMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending[userID]
	delete(c.pending, userID)
	return out
}
