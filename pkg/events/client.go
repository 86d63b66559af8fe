package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"agentd/pkg/logx"
	"agentd/pkg/proto"
)

// Reconnect policy for the websocket client.
const (
	MaxReconnectAttempts = 5
	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 30 * time.Second
)

var errDial = errors.New("failed to dial")

// Handler receives each decoded server event in arrival order.
type Handler func(env proto.Envelope)

// Client is a websocket consumer of the agentd event stream. The server does
// not replay missed events, and every initiating message starts a new task,
// so after a connection drop the client never resubmits: it re-queries
// GET /api/task/{id} with capped backoff until the task is terminal,
// synthesizing phase and terminal events from the authoritative state.
type Client struct {
	url          string
	logger       *logx.Logger
	handler      Handler
	pollInterval time.Duration
	taskID       string
}

// NewClient creates a client for the given websocket URL
// (e.g. "ws://localhost:8080/ws/task").
func NewClient(url string, handler Handler) *Client {
	return &Client{
		url:          url,
		logger:       logx.NewLogger("events-client"),
		handler:      handler,
		pollInterval: reconnectBaseDelay,
	}
}

// Run connects, sends the initiating task request, and delivers events to the
// handler until the task is terminal. Dial failures retry with capped
// backoff; once the request has been sent, a dropped connection switches to
// state re-query so the task is never submitted twice.
func (c *Client) Run(ctx context.Context, req proto.TaskRequest) error {
	attempt := 0
	for {
		err := c.runOnce(ctx, req)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if c.taskID != "" {
			c.logger.Warn("connection lost (%v), re-querying state of task %s", err, c.taskID)
			return c.resume(ctx)
		}
		if !errors.Is(err, errDial) {
			// The request may have reached the server but no task ID arrived
			// yet; resubmitting could start a duplicate task.
			return err
		}

		attempt++
		if attempt >= MaxReconnectAttempts {
			return fmt.Errorf("connection failed after %d attempts: %w", attempt, err)
		}

		delay := backoff(attempt)
		c.logger.Warn("dial failed (%v), retrying in %s (attempt %d/%d)",
			err, delay, attempt, MaxReconnectAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context, req proto.TaskRequest) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w %s: %v", errDial, c.url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send task request: %w", err)
	}

	// Unblock ReadJSON when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var env proto.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if env.Type == proto.EventPhase {
			var data proto.PhaseData
			if env.DecodeData(&data) == nil && data.TaskID != "" {
				c.taskID = data.TaskID
			}
		}
		c.handler(env)
		if env.Type == proto.EventComplete || env.Type == proto.EventError {
			return nil
		}
	}
}

// taskState is the slice of GET /api/task/{id} the client needs to resume.
type taskState struct {
	Phase   proto.Phase              `json:"phase"`
	Changes []proto.StagedChangeData `json:"changes"`
	Error   *proto.ErrorData         `json:"error"`
}

// resume polls the REST state endpoint until the task reaches a terminal
// phase, delivering synthesized phase and terminal events to the handler.
// Consecutive query failures count against the reconnect budget.
func (c *Client) resume(ctx context.Context) error {
	stateURL, err := c.stateURL()
	if err != nil {
		return err
	}

	failures := 0
	var lastPhase proto.Phase
	for {
		state, err := fetchState(ctx, stateURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= MaxReconnectAttempts {
				return fmt.Errorf("failed to re-query task %s after %d attempts: %w", c.taskID, failures, err)
			}
			delay := backoff(failures)
			c.logger.Warn("state query failed (%v), retrying in %s (attempt %d/%d)",
				err, delay, failures, MaxReconnectAttempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		failures = 0

		if state.Phase != lastPhase {
			lastPhase = state.Phase
			c.handler(proto.MustEvent(proto.EventPhase, proto.PhaseData{Phase: state.Phase, TaskID: c.taskID}))
		}
		if state.Phase.IsTerminal() {
			c.emitTerminal(state)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) emitTerminal(state taskState) {
	if state.Error != nil {
		c.handler(proto.MustEvent(proto.EventError, *state.Error))
		return
	}
	changes := state.Changes
	if changes == nil {
		changes = []proto.StagedChangeData{}
	}
	c.handler(proto.MustEvent(proto.EventComplete, proto.CompleteData{Phase: state.Phase, Changes: changes}))
}

// stateURL derives the REST endpoint from the websocket URL.
func (c *Client) stateURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid stream url %s: %w", c.url, err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/api/task/" + c.taskID
	return u.String(), nil
}

func fetchState(ctx context.Context, stateURL string) (taskState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stateURL, nil)
	if err != nil {
		return taskState{}, fmt.Errorf("failed to build state request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return taskState{}, fmt.Errorf("state query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return taskState{}, fmt.Errorf("state query returned %s", resp.Status)
	}
	var state taskState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return taskState{}, fmt.Errorf("failed to decode task state: %w", err)
	}
	return state, nil
}

func backoff(attempt int) time.Duration {
	delay := reconnectBaseDelay << (attempt - 1)
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	return delay
}
