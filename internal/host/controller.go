// Package host drives a room from the host's side: creating it, starting a
// quiz, revealing answers and stepping through questions. The authority
// enforces every rule; the controller adds only the local gating a host UI
// needs before a call is worth making.
package host

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"quizroom-client/internal/api"
	"quizroom-client/internal/domain"
	"quizroom-client/internal/transport"
)

// ErrEmptyRoom is returned when a quiz start is attempted before anyone has
// joined.
var ErrEmptyRoom = errors.New("no members have joined the room")

// ErrNoActiveSession is returned for session actions outside a running quiz.
var ErrNoActiveSession = errors.New("no active session")

// Authority is the server-side surface the controller drives. *api.Client
// satisfies it.
type Authority interface {
	CreateRoom(ctx context.Context, mode string) (*domain.Room, error)
	GetRoom(ctx context.Context, roomID int64) (*api.RoomState, error)
	CloseRoom(ctx context.Context, roomID int64) error
	StartQuiz(ctx context.Context, roomID, quizID int64) (*domain.Session, error)
	Reveal(ctx context.Context, roomID int64) (*domain.Session, error)
	Next(ctx context.Context, roomID int64) (*domain.Session, error)
	Finish(ctx context.Context, roomID int64) (*domain.Session, error)
	RoomLeaderboard(ctx context.Context, roomID int64) ([]domain.LeaderboardEntry, error)
	ListQuizzes(ctx context.Context) ([]api.QuizSummary, error)
}

// Controller holds the host's mirrored view of one room.
type Controller struct {
	authority Authority
	log       *logrus.Logger

	group singleflight.Group

	mu      sync.Mutex
	room    *domain.Room
	session *domain.Session
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger replaces the default logger.
func WithLogger(log *logrus.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// NewController builds a controller with no room attached.
func NewController(authority Authority, opts ...Option) *Controller {
	c := &Controller{authority: authority, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRoom provisions a fresh room and attaches the controller to it.
func (c *Controller) CreateRoom(ctx context.Context, mode string) (*domain.Room, error) {
	room, err := c.authority.CreateRoom(ctx, mode)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.room = room
	c.session = nil
	c.mu.Unlock()
	return room, nil
}

// Attach points the controller at an existing room and fetches its state.
func (c *Controller) Attach(ctx context.Context, roomID int64) error {
	state, err := c.authority.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.room = state.Room
	c.session = state.Session
	c.mu.Unlock()
	return nil
}

// Refresh refetches room state. Concurrent calls share one round trip.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == nil {
		return ErrNoActiveSession
	}
	_, err, _ := c.group.Do("room", func() (any, error) {
		state, err := c.authority.GetRoom(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.room = state.Room
		c.session = state.Session
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// HandleMessage reacts to a session channel signal with a background refresh.
func (c *Controller) HandleMessage(msg transport.Message) {
	if msg.Type == transport.MessageRoomClosed {
		c.mu.Lock()
		if c.room != nil {
			c.room.Status = domain.RoomStatusClosed
		}
		c.mu.Unlock()
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			c.log.WithError(err).Debug("refresh after signal")
		}
	}()
}

// ListQuizzes returns the quizzes available to start.
func (c *Controller) ListQuizzes(ctx context.Context) ([]api.QuizSummary, error) {
	return c.authority.ListQuizzes(ctx)
}

// StartQuiz launches a quiz. Starting an empty room is refused locally; the
// member list is refetched first so the decision uses current state.
func (c *Controller) StartQuiz(ctx context.Context, quizID int64) (*domain.Session, error) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == nil {
		return nil, ErrNoActiveSession
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	members := 0
	if c.room != nil {
		members = len(c.room.Members)
	}
	c.mu.Unlock()
	if members == 0 {
		return nil, ErrEmptyRoom
	}
	session, err := c.authority.StartQuiz(ctx, room.ID, quizID)
	if err != nil {
		return nil, err
	}
	c.setSession(session)
	return session, nil
}

// Reveal discloses the current question's answer. When the session is
// already revealed the call is skipped and the mirrored state returned.
func (c *Controller) Reveal(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	room, session := c.room, c.session
	c.mu.Unlock()
	if room == nil || session == nil {
		return nil, ErrNoActiveSession
	}
	if session.Status == domain.StatusRevealed {
		return session, nil
	}
	updated, err := c.authority.Reveal(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	c.setSession(updated)
	return updated, nil
}

// Advance moves past a revealed question: to the next one, or to the final
// standings when the last question was showing.
func (c *Controller) Advance(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	room, session := c.room, c.session
	c.mu.Unlock()
	if room == nil || session == nil {
		return nil, ErrNoActiveSession
	}
	var (
		updated *domain.Session
		err     error
	)
	if session.CurrentQuestion >= session.TotalQuestions {
		updated, err = c.authority.Finish(ctx, room.ID)
	} else {
		updated, err = c.authority.Next(ctx, room.ID)
	}
	if err != nil {
		return nil, err
	}
	c.setSession(updated)
	return updated, nil
}

// Leaderboard fetches the cumulative standings across the room's sessions.
func (c *Controller) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == nil {
		return nil, ErrNoActiveSession
	}
	return c.authority.RoomLeaderboard(ctx, room.ID)
}

// CloseRoom shuts the room down for every participant.
func (c *Controller) CloseRoom(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == nil {
		return ErrNoActiveSession
	}
	if err := c.authority.CloseRoom(ctx, room.ID); err != nil {
		return err
	}
	c.mu.Lock()
	c.room.Status = domain.RoomStatusClosed
	c.session = nil
	c.mu.Unlock()
	return nil
}

// Room returns the mirrored room, or nil.
func (c *Controller) Room() *domain.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Session returns the mirrored session, or nil.
func (c *Controller) Session() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// AnswerCount reports how many participants have answered the current
// question, with the session's participant total for context.
func (c *Controller) AnswerCount() (answered, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0, 0
	}
	return c.session.AnswerCount, len(c.session.Participants)
}

// Standings ranks the mirrored session's participants by total score.
func (c *Controller) Standings() []domain.LeaderboardEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	ranked := make([]domain.Participant, len(c.session.Participants))
	copy(ranked, c.session.Participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	out := make([]domain.LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		out[i] = domain.LeaderboardEntry{
			Position:   i + 1,
			Nickname:   p.Nickname,
			TotalScore: p.TotalScore,
			MemberID:   p.MemberID,
		}
	}
	return out
}

func (c *Controller) setSession(session *domain.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}
