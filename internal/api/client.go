// Package api is the HTTP client for the quiz platform's play and host
// endpoints. It converts the authority's wire shapes into domain types and
// classifies rejections so callers can tell "retry next cycle" from
// "the authority has forgotten me".
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quizroom-client/internal/domain"
)

const defaultTimeout = 15 * time.Second

// Client talks to one quiz platform instance.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithAuthToken sets the Bearer token used by host endpoints.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the given base URL (scheme://host[:port], no path).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-2xx response from the authority.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// IsIdentityRejected reports whether err means the authority no longer
// recognizes the device token or room binding. Per the recovery contract the
// caller must purge its durable record and fall back to the join phase.
func IsIdentityRejected(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// State is the full client-visible snapshot returned by join, reconnect and
// state fetches.
type State struct {
	Room     *domain.Room
	Member   *domain.Member
	Members  []domain.Member
	IsRejoin bool
	Session  *domain.Session
	MyResult *domain.MyResult
}

// RoomState is the host-side snapshot of a room.
type RoomState struct {
	Room    *domain.Room
	Session *domain.Session
}

// QuizSummary identifies a quiz a host may run into a room.
type QuizSummary struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count"`
}

// Join enters a room by code, creating or reclaiming the member bound to the
// device token.
func (c *Client) Join(ctx context.Context, code, nickname, token string) (*State, error) {
	body := map[string]string{"code": code, "nickname": nickname, "token": token}
	var env stateEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/play/join", nil, body, &env); err != nil {
		return nil, err
	}
	return env.toState()
}

// Reconnect silently reclaims an existing member by device token.
func (c *Client) Reconnect(ctx context.Context, token, code string) (*State, error) {
	q := url.Values{"token": {token}, "code": {code}}
	var env stateEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/play/reconnect", q, nil, &env); err != nil {
		return nil, err
	}
	return env.toState()
}

// GetState fetches the authoritative room/session snapshot for a member.
func (c *Client) GetState(ctx context.Context, token, code string) (*State, error) {
	q := url.Values{"token": {token}, "code": {code}}
	var env stateEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/play/state", q, nil, &env); err != nil {
		return nil, err
	}
	return env.toState()
}

// SubmitAnswer submits a single-choice answer.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, memberID int64, token string, optionID int64) error {
	body := map[string]any{
		"session_id": sessionID,
		"member_id":  memberID,
		"token":      token,
		"option_id":  optionID,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/play/answer", nil, body, nil)
}

// SubmitComplexAnswer submits a multiple-choice, ordering, matching or
// numeric answer.
func (c *Client) SubmitComplexAnswer(ctx context.Context, sessionID, memberID int64, token string, answer domain.Answer) error {
	body := map[string]any{
		"session_id": sessionID,
		"member_id":  memberID,
		"token":      token,
		"answer":     answer,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/play/answer/complex", nil, body, nil)
}

// UpdateNickname renames the member bound to the token.
func (c *Client) UpdateNickname(ctx context.Context, token, code, nickname string) (*domain.Member, error) {
	body := map[string]string{"token": token, "room_code": code, "nickname": nickname}
	var member domain.Member
	if err := c.do(ctx, http.MethodPut, "/api/v1/play/nickname", nil, body, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// Leave drops the member's room binding on the authority side.
func (c *Client) Leave(ctx context.Context, token, code string) error {
	body := map[string]string{"token": token, "code": code}
	return c.do(ctx, http.MethodPost, "/api/v1/play/leave", nil, body, nil)
}

// CreateRoom opens a new room. Host endpoint.
func (c *Client) CreateRoom(ctx context.Context, mode string) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms", nil, map[string]string{"mode": mode}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom fetches the host-side room snapshot.
func (c *Client) GetRoom(ctx context.Context, roomID int64) (*RoomState, error) {
	var env roomEnvelope
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/rooms/%d", roomID), nil, nil, &env); err != nil {
		return nil, err
	}
	return env.toRoomState()
}

// CloseRoom closes the room, disconnecting all members. Host endpoint.
func (c *Client) CloseRoom(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/rooms/%d/close", roomID), nil, nil, nil)
}

// StartQuiz launches a quiz as a new session in the room. Host endpoint.
func (c *Client) StartQuiz(ctx context.Context, roomID, quizID int64) (*domain.Session, error) {
	body := map[string]int64{"quiz_id": quizID}
	return c.sessionAction(ctx, fmt.Sprintf("/api/v1/rooms/%d/start", roomID), body)
}

// Reveal discloses the current question's answer. Host endpoint.
func (c *Client) Reveal(ctx context.Context, roomID int64) (*domain.Session, error) {
	return c.sessionAction(ctx, fmt.Sprintf("/api/v1/rooms/%d/reveal", roomID), nil)
}

// Next advances to the next question, or finishes after the last. Host endpoint.
func (c *Client) Next(ctx context.Context, roomID int64) (*domain.Session, error) {
	return c.sessionAction(ctx, fmt.Sprintf("/api/v1/rooms/%d/next", roomID), nil)
}

// Finish terminates the session early. Host endpoint.
func (c *Client) Finish(ctx context.Context, roomID int64) (*domain.Session, error) {
	return c.sessionAction(ctx, fmt.Sprintf("/api/v1/rooms/%d/finish", roomID), nil)
}

// RoomLeaderboard fetches the final standings of the room's last session.
func (c *Client) RoomLeaderboard(ctx context.Context, roomID int64) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/rooms/%d/leaderboard", roomID), nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListQuizzes lists the host's quizzes. Host endpoint.
func (c *Client) ListQuizzes(ctx context.Context) ([]QuizSummary, error) {
	var quizzes []QuizSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/quizzes", nil, nil, &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

// RoomSocketURL is the push-channel endpoint for a room code.
func (c *Client) RoomSocketURL(code string) string {
	return toWebSocketURL(c.baseURL) + "/ws/room/" + code
}

// SessionSocketURL is the push-channel endpoint for a session id.
func (c *Client) SessionSocketURL(sessionID int64) string {
	return fmt.Sprintf("%s/ws/session/%d", toWebSocketURL(c.baseURL), sessionID)
}

func toWebSocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

func (c *Client) sessionAction(ctx context.Context, path string, body any) (*domain.Session, error) {
	var ws wireSession
	if err := c.do(ctx, http.MethodPost, path, nil, body, &ws); err != nil {
		return nil, err
	}
	return ws.toSession()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
