// Package conversation is the client-side core: it owns the turn-by-turn
// history, enforces single-flight request discipline, assembles outgoing
// payloads, and reconciles optimistic local state with the gateway's
// authoritative history.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"gemchat/internal/domain"
)

// errorTurnPrefix marks the synthetic model turn appended after a failed
// exchange so the conversation stays legible next to the user's text.
const errorTurnPrefix = "[error] "

// Sender delivers one request envelope to the gateway and returns its
// response. Implementations classify their own transport failures as
// *domain.Error where possible.
type Sender interface {
	Send(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error)
}

// Attachments supplies the pending image for the next send, if any.
// *attachment.Manager satisfies this interface.
type Attachments interface {
	TakeForSend() *domain.PendingAttachment
}

// Controller owns a single conversation. All mutable state (history, the
// in-flight latch, the conversation ID) lives on the instance; it is created
// at session start and carries no package-level state.
//
// Concurrency: at most one Submit may be in flight at a time. A second
// attempt while one is pending is rejected, not queued, because the request
// body embeds a snapshot of history taken at submission time.
type Controller struct {
	sender      Sender
	attachments Attachments // nil for text-only sessions

	mu             sync.Mutex
	turns          []domain.Turn
	inFlight       bool
	conversationID string
}

// NewController creates a Controller with an empty conversation. attachments
// may be nil.
func NewController(sender Sender, attachments Attachments) (*Controller, error) {
	if sender == nil {
		return nil, errors.New("conversation: sender must not be nil")
	}
	return &Controller{sender: sender, attachments: attachments}, nil
}

// Submit sends one user message through the gateway and merges the result
// into history.
//
// Empty input (after trimming) is a silent no-op. A concurrent submission is
// rejected with KindAlreadyInFlight. The user turn is appended optimistically
// before the network call; on success the gateway's returned history replaces
// it wholesale (the server copy is authoritative and already contains both
// turns), on failure it stays in place with an error-marked model turn
// appended so the user never loses their just-typed text.
func (c *Controller) Submit(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	req, err := c.begin(ctx, text)
	if err != nil {
		return "", err
	}
	// The latch must clear on every path out of the exchange, including
	// panics from the sender.
	defer c.release()

	resp, sendErr := c.sender.Send(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if sendErr != nil {
		var de *domain.Error
		if !errors.As(sendErr, &de) {
			de = domain.NewError(domain.KindUnknown, "send_error", sendErr)
		}
		c.turns = append(c.turns, domain.Turn{
			Role:  domain.RoleModel,
			Parts: errorTurnPrefix + de.Error(),
		})
		return "", de
	}

	if len(resp.History) > 0 {
		c.turns = append(c.turns[:0:0], resp.History...)
	} else {
		c.turns = append(c.turns, domain.Turn{Role: domain.RoleModel, Parts: resp.Response})
	}
	if resp.ConversationID != "" {
		c.conversationID = resp.ConversationID
	}
	return resp.Response, nil
}

// begin acquires the in-flight latch, appends the optimistic user turn, and
// builds the request envelope from a snapshot of the prior history plus any
// pending attachment. The attachment is consumed here, regardless of the
// request outcome.
func (c *Controller) begin(_ context.Context, text string) (domain.ChatRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return domain.ChatRequest{}, domain.NewError(domain.KindAlreadyInFlight, "submission_in_flight", nil)
	}
	c.inFlight = true

	// History snapshot of prior turns only; the new message travels in the
	// Message field.
	history := append([]domain.Turn(nil), c.turns...)
	c.turns = append(c.turns, domain.Turn{Role: domain.RoleUser, Parts: text})

	req := domain.ChatRequest{
		Message:        text,
		ConversationID: c.conversationID,
		History:        history,
	}
	if c.attachments != nil {
		if pa := c.attachments.TakeForSend(); pa != nil {
			req.Image = &domain.ImagePayload{Data: pa.DataURL, Name: pa.Name, Type: pa.MimeType}
		}
	}
	return req, nil
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// RegenerateLast resubmits the text of the most recent user turn through
// Submit, under the identical single-flight contract. Error-marked model
// turns from the failed attempt remain in history, as with any other
// exchange.
func (c *Controller) RegenerateLast(ctx context.Context) (string, error) {
	c.mu.Lock()
	var text string
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == domain.RoleUser {
			text = strings.TrimPrefix(c.turns[i].Parts, domain.ImageAnalysisPrefix)
			break
		}
	}
	c.mu.Unlock()

	if text == "" {
		return "", domain.NewError(domain.KindNoPriorUserTurn, "empty_history", nil)
	}
	return c.Submit(ctx, text)
}

// Reset clears the conversation unconditionally. Confirmation prompts are the
// presentation layer's concern.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.conversationID = ""
}

// History returns a copy of the current turns. During an in-flight exchange
// the copy includes the optimistic user turn.
func (c *Controller) History() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Turn(nil), c.turns...)
}

// InFlight reports whether an exchange is currently outstanding.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// ConversationID returns the server-assigned conversation ID, if any exchange
// has completed.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// ExportSnapshot returns the conversation as its durable document form. Pure
// read; an empty history exports as an empty document.
func (c *Controller) ExportSnapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Snapshot{
		Timestamp:     time.Now().UTC(),
		Messages:      append([]domain.Turn(nil), c.turns...),
		TotalMessages: len(c.turns),
	}
}

// RestoreSnapshot replaces the conversation with the turns of a previously
// exported document. Rejected while an exchange is in flight.
func (c *Controller) RestoreSnapshot(s domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return domain.NewError(domain.KindAlreadyInFlight, "submission_in_flight", nil)
	}
	c.turns = append([]domain.Turn(nil), s.Messages...)
	return nil
}
