// Package practice is a local, in-process stand-in for the quiz platform:
// one member, one room, questions graded on the spot. It lets the play loop
// run offline with the exact same reconciler and adapters used against a
// real server.
package practice

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"quizroom-client/internal/api"
	"quizroom-client/internal/domain"
)

const pointsPerQuestion = 100

// Quiz is a fully-graded question set: every question carries its correct
// answer, and the authority redacts grading data until reveal.
type Quiz struct {
	Title     string
	Questions []domain.Question
}

// Authority implements the play-side server surface in memory.
type Authority struct {
	quiz Quiz

	mu       sync.Mutex
	member   *domain.Member
	session  *domain.Session
	score    int
	answered bool
	correct  bool
}

// NewAuthority builds a practice room running the given quiz.
func NewAuthority(quiz Quiz) *Authority {
	return &Authority{quiz: quiz}
}

// Join creates the single practice member and starts the quiz immediately.
func (a *Authority) Join(ctx context.Context, code, nickname, token string) (*api.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.member = &domain.Member{ID: 1, RoomID: 1, Nickname: nickname}
	a.session = &domain.Session{
		ID:              1,
		RoomID:          1,
		Status:          domain.StatusQuestion,
		CurrentQuestion: 1,
		TotalQuestions:  len(a.quiz.Questions),
	}
	a.score = 0
	a.answered = false
	return a.stateLocked(), nil
}

// Reconnect is not meaningful offline; a practice run has no durable seat.
func (a *Authority) Reconnect(ctx context.Context, token, code string) (*api.State, error) {
	return nil, &api.Error{Status: 404, Message: "practice rooms are not resumable"}
}

func (a *Authority) GetState(ctx context.Context, token, code string) (*api.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.member == nil {
		return nil, &api.Error{Status: 404, Message: "not joined"}
	}
	return a.stateLocked(), nil
}

// SubmitAnswer grades a single-choice pick and reveals at once.
func (a *Authority) SubmitAnswer(ctx context.Context, sessionID, memberID int64, token string, optionID int64) error {
	return a.grade(func(q domain.Question) (bool, error) {
		d, ok := q.Detail.(domain.SingleChoice)
		if !ok {
			return false, fmt.Errorf("question is not single choice")
		}
		for _, o := range d.Options {
			if o.ID == optionID {
				return o.IsCorrect != nil && *o.IsCorrect, nil
			}
		}
		return false, fmt.Errorf("unknown option %d", optionID)
	})
}

// SubmitComplexAnswer grades the other question types and reveals at once.
func (a *Authority) SubmitComplexAnswer(ctx context.Context, sessionID, memberID int64, token string, answer domain.Answer) error {
	return a.grade(func(q domain.Question) (bool, error) {
		return evaluate(q, answer)
	})
}

func (a *Authority) UpdateNickname(ctx context.Context, token, code, nickname string) (*domain.Member, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.member == nil {
		return nil, &api.Error{Status: 404, Message: "not joined"}
	}
	a.member.Nickname = nickname
	m := *a.member
	return &m, nil
}

func (a *Authority) Leave(ctx context.Context, token, code string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.member = nil
	a.session = nil
	return nil
}

// Advance steps past a revealed question, finishing after the last one.
func (a *Authority) Advance() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || a.session.Status != domain.StatusRevealed {
		return fmt.Errorf("nothing to advance")
	}
	if a.session.CurrentQuestion >= a.session.TotalQuestions {
		a.session.Status = domain.StatusFinished
		return nil
	}
	a.session.CurrentQuestion++
	a.session.Status = domain.StatusQuestion
	a.session.AnswerCount = 0
	a.answered = false
	a.correct = false
	return nil
}

func (a *Authority) grade(verdict func(domain.Question) (bool, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || a.session.Status != domain.StatusQuestion {
		return &api.Error{Status: 400, Message: "no open question"}
	}
	if a.answered {
		return &api.Error{Status: 400, Message: "already answered"}
	}
	q := a.quiz.Questions[a.session.CurrentQuestion-1]
	correct, err := verdict(q)
	if err != nil {
		return &api.Error{Status: 400, Message: err.Error()}
	}
	a.answered = true
	a.correct = correct
	if correct {
		a.score += pointsPerQuestion
	}
	a.session.AnswerCount = 1
	// Single participant: reveal as soon as the answer lands.
	a.session.Status = domain.StatusRevealed
	return nil
}

func (a *Authority) stateLocked() *api.State {
	session := *a.session
	revealed := session.Status == domain.StatusRevealed || session.Status == domain.StatusFinished
	if session.CurrentQuestion >= 1 && session.CurrentQuestion <= len(a.quiz.Questions) {
		q := a.quiz.Questions[session.CurrentQuestion-1]
		q.Ordinal = session.CurrentQuestion
		if !revealed {
			q.Detail = redact(q.Detail)
		}
		session.Question = &q
	}
	session.Participants = []domain.Participant{{ID: 1, MemberID: a.member.ID, Nickname: a.member.Nickname, TotalScore: a.score}}

	state := &api.State{
		Room:    &domain.Room{ID: 1, Code: "PRACTICE", Mode: domain.RoomModeWeb, Status: domain.RoomStatusActive},
		Member:  a.member,
		Members: []domain.Member{*a.member},
		Session: &session,
	}
	if revealed && a.answered {
		score := 0
		if a.correct {
			score = pointsPerQuestion
		}
		state.MyResult = &domain.MyResult{
			QuestionID: session.Question.ID,
			IsCorrect:  a.correct,
			Score:      score,
			TotalScore: a.score,
			Answered:   true,
		}
	}
	return state
}

// redact strips grading data from a question detail, mirroring what the real
// authority withholds before reveal.
func redact(d domain.Detail) domain.Detail {
	switch v := d.(type) {
	case domain.SingleChoice:
		return domain.SingleChoice{Options: redactOptions(v.Options)}
	case domain.MultipleChoice:
		return domain.MultipleChoice{Options: redactOptions(v.Options)}
	case domain.Ordering:
		items := make([]domain.OrderItem, len(v.Items))
		for i, it := range v.Items {
			items[i] = domain.OrderItem{ID: it.ID, Text: it.Text}
		}
		return domain.Ordering{Items: items}
	case domain.Matching:
		terms := make([]domain.MatchTerm, len(v.Terms))
		defs := make([]string, 0, len(v.Terms))
		for i, term := range v.Terms {
			terms[i] = domain.MatchTerm{ID: term.ID, Text: term.Text}
			defs = append(defs, term.MatchText)
		}
		if len(v.Definitions) > 0 {
			defs = v.Definitions
		}
		return domain.Matching{Terms: terms, Definitions: defs}
	case domain.Numeric:
		return domain.Numeric{}
	}
	return d
}

func redactOptions(options []domain.ChoiceOption) []domain.ChoiceOption {
	out := make([]domain.ChoiceOption, len(options))
	for i, o := range options {
		out[i] = domain.ChoiceOption{ID: o.ID, Text: o.Text, Color: o.Color}
	}
	return out
}

// evaluate applies each type's grading rule to a fully-graded question.
func evaluate(q domain.Question, answer domain.Answer) (bool, error) {
	switch d := q.Detail.(type) {
	case domain.MultipleChoice:
		picked := make(map[int64]bool, len(answer.OptionIDs))
		for _, id := range answer.OptionIDs {
			picked[id] = true
		}
		for _, o := range d.Options {
			want := o.IsCorrect != nil && *o.IsCorrect
			if picked[o.ID] != want {
				return false, nil
			}
		}
		return true, nil
	case domain.Ordering:
		if len(answer.Order) != len(d.Items) {
			return false, fmt.Errorf("expected %d items", len(d.Items))
		}
		positions := make(map[int64]int, len(d.Items))
		for _, it := range d.Items {
			if it.CorrectPosition == nil {
				return false, fmt.Errorf("question has no grading data")
			}
			positions[it.ID] = *it.CorrectPosition
		}
		for i, id := range answer.Order {
			if positions[id] != i+1 {
				return false, nil
			}
		}
		return true, nil
	case domain.Matching:
		for _, term := range d.Terms {
			if answer.Pairs[strconv.FormatInt(term.ID, 10)] != term.MatchText {
				return false, nil
			}
		}
		return true, nil
	case domain.Numeric:
		if answer.Value == nil {
			return false, fmt.Errorf("missing value")
		}
		if d.CorrectNumber == nil {
			return false, fmt.Errorf("question has no grading data")
		}
		tolerance := 0.0
		if d.Tolerance != nil {
			tolerance = *d.Tolerance
		}
		return math.Abs(*answer.Value-*d.CorrectNumber) <= tolerance, nil
	default:
		return false, fmt.Errorf("unsupported answer for question type %T", q.Detail)
	}
}
