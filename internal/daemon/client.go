package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/batalabs/convo/internal/autochat"
	"github.com/batalabs/convo/internal/dispatch"
	"github.com/batalabs/convo/internal/domain"
)

// Client talks to the agent-execution service over HTTP. Replies to
// synchronous calls come back as JSON; dialogue turns produced in the
// background arrive on the SSE stream read by Subscribe.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// NewClient creates a client for the service at baseURL.
// Backend calls carry no timeout; cancel the context to abandon one.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// SetAuthToken sets the bearer token sent on every request.
func (c *Client) SetAuthToken(token string) {
	c.authToken = strings.TrimSpace(token)
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return c.httpClient.Do(req)
}

// postJSON sends body as JSON and decodes the reply into out when out is
// non-nil. A non-2xx status or an "error" field in the reply is an error.
func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return &domain.BackendError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &domain.BackendError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.roundTrip(op, req, out)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &domain.BackendError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	return c.roundTrip(op, req, out)
}

func (c *Client) roundTrip(op string, req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return &domain.BackendError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.BackendError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.BackendError{Op: op, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorText(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.BackendError{Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

// errorText extracts {"error": "..."} from a failed reply, or returns the
// trimmed body.
func errorText(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

// Health checks if the service is responding.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.getJSON(ctx, "health", "/api/health", nil)
}

// dialogueReply is the reply of the dialogue endpoint. Older services
// answer a failure with a bare {"error": "..."} instead of turns.
type dialogueReply struct {
	Turns []domain.DialogueTurn `json:"turns"`
	Error string                `json:"error"`
}

// DispatchDialogue submits user text with attached files and returns the
// turns the agents replied with. Turns carrying an empty author are returned
// as they are; the caller renders them as errors.
func (c *Client) DispatchDialogue(ctx context.Context, sessionID, text string, files []string) ([]domain.DialogueTurn, error) {
	body := map[string]any{"text": text}
	if len(files) > 0 {
		body["files"] = files
	}
	var reply dialogueReply
	if err := c.postJSON(ctx, "dialogue", sessionPath(sessionID, "dialogue"), body, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &domain.StreamedError{SessionID: sessionID, Content: reply.Error}
	}
	for i := range reply.Turns {
		if reply.Turns[i].SessionID == "" {
			reply.Turns[i].SessionID = sessionID
		}
	}
	return reply.Turns, nil
}

// StartAutoChat asks the service to run its auto-iteration loop. The call
// returns once the loop ends.
func (c *Client) StartAutoChat(ctx context.Context, req autochat.Request) error {
	return c.postJSON(ctx, "autochat", sessionPath(req.SessionID, "autochat"), req, nil)
}

// RunAction performs one AI invocation with per-command overrides.
func (c *Client) RunAction(ctx context.Context, req dispatch.ActionRequest) (dispatch.ActionReply, error) {
	var reply struct {
		dispatch.ActionReply
		Error string `json:"error"`
	}
	if err := c.postJSON(ctx, "action", sessionPath(req.SessionID, "actions"), req, &reply); err != nil {
		return dispatch.ActionReply{}, err
	}
	if reply.Error != "" {
		return dispatch.ActionReply{}, &domain.BackendError{Op: "action", Err: errors.New(reply.Error)}
	}
	return reply.ActionReply, nil
}

// StartTask hands a task description to the task-orchestration service.
func (c *Client) StartTask(ctx context.Context, sessionID, description string) error {
	return c.postJSON(ctx, "task", sessionPath(sessionID, "tasks"), map[string]string{"description": description}, nil)
}

// GetActiveSession returns the service's current session.
func (c *Client) GetActiveSession(ctx context.Context) (domain.Session, error) {
	var sess domain.Session
	if err := c.getJSON(ctx, "active session", "/api/session", &sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// SwitchSession makes sessionID the service's active session and returns
// it with its transcript.
func (c *Client) SwitchSession(ctx context.Context, sessionID string) (domain.SessionWithHistory, error) {
	var out domain.SessionWithHistory
	err := c.postJSON(ctx, "switch session", "/api/session/switch", map[string]string{"session_id": sessionID}, &out)
	return out, err
}

// CreateSession creates a new session for the project and returns its id.
func (c *Client) CreateSession(ctx context.Context, projectPath string) (string, error) {
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, "create session", "/api/sessions", map[string]string{"project_path": projectPath}, &result); err != nil {
		return "", err
	}
	if result.SessionID == "" {
		return "", &domain.BackendError{Op: "create session", Err: errors.New("empty session id")}
	}
	return result.SessionID, nil
}

// Subscribe reads the service's event stream and forwards parsed events to
// out until ctx is cancelled or the stream ends. A clean end of stream
// returns nil; the caller decides whether to reconnect.
func (c *Client) Subscribe(ctx context.Context, out chan<- domain.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return &domain.BackendError{Op: "subscribe", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &domain.BackendError{Op: "subscribe", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &domain.BackendError{Op: "subscribe", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorText(raw))}
	}

	err = parseSSEStream(resp.Body, func(ev domain.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return &domain.BackendError{Op: "subscribe", Err: err}
	}
	return nil
}

func sessionPath(sessionID, action string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + "/" + action
}

// ---------------------------------------------------------------------------
// SSE parsing
// ---------------------------------------------------------------------------

// parseSSEStream reads events until the body ends or emit returns false.
func parseSSEStream(body io.Reader, emit func(domain.Event) bool) error {
	scanner := bufio.NewScanner(body)
	// Agent turns can be long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if ev, ok := ParseEvent(eventType, data); ok {
				if !emit(ev) {
					return nil
				}
			}
			eventType = ""
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		if isRecoverableSSEStreamErr(err) {
			return nil
		}
		return err
	}
	return nil
}

func isRecoverableSSEStreamErr(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "chunked line ends with bare LF") ||
		strings.Contains(msg, "invalid byte in chunk length")
}

// ParseEvent parses a single SSE event from its type and JSON data.
// Unknown event types and malformed data report false.
func ParseEvent(eventType, data string) (domain.Event, bool) {
	switch eventType {
	case "dialogue_turn":
		var turn domain.DialogueTurn
		if json.Unmarshal([]byte(data), &turn) != nil {
			return nil, false
		}
		return turn, true

	case "workspace_switched":
		return domain.WorkspaceSwitched{}, true

	default:
		return nil, false
	}
}
