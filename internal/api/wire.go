package api

import (
	"fmt"

	"quizroom-client/internal/domain"
)

// The authority delivers questions in a flat shape: a type tag plus the union
// of every type's fields. Decoding narrows that into the domain tagged union
// and drops grading data unless the session status says it has been revealed.

type stateEnvelope struct {
	Room           *domain.Room     `json:"room"`
	Member         *domain.Member   `json:"member"`
	Members        []domain.Member  `json:"members"`
	IsRejoin       bool             `json:"is_rejoin"`
	CurrentSession *wireSession     `json:"current_session"`
	MyResult       *domain.MyResult `json:"my_result"`
}

type wireSession struct {
	ID                  int64                `json:"id"`
	RoomID              int64                `json:"room_id"`
	Status              string               `json:"status"`
	CurrentQuestion     int                  `json:"current_question"`
	TotalQuestions      int                  `json:"total_questions"`
	CurrentQuestionData *wireQuestion        `json:"current_question_data"`
	Participants        []domain.Participant `json:"participants"`
	AnswerCount         int                  `json:"answer_count"`
}

type wireQuestion struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	Text          string         `json:"text"`
	CategoryName  string         `json:"category_name"`
	CorrectNumber *float64       `json:"correct_number"`
	Tolerance     *float64       `json:"tolerance"`
	Options       []wireOption   `json:"options"`
	Definitions   []string       `json:"definitions"`
	Images        []domain.Image `json:"images"`
}

type wireOption struct {
	ID              int64  `json:"id"`
	Text            string `json:"text"`
	Color           string `json:"color"`
	IsCorrect       *bool  `json:"is_correct"`
	CorrectPosition *int   `json:"correct_position"`
	MatchText       string `json:"match_text"`
}

type roomEnvelope struct {
	Room           *domain.Room `json:"room"`
	CurrentSession *wireSession `json:"current_session"`
}

func (e *stateEnvelope) toState() (*State, error) {
	state := &State{
		Room:     e.Room,
		Member:   e.Member,
		Members:  e.Members,
		IsRejoin: e.IsRejoin,
		MyResult: e.MyResult,
	}
	if len(state.Members) == 0 && e.Room != nil {
		state.Members = e.Room.Members
	}
	if e.CurrentSession != nil {
		session, err := e.CurrentSession.toSession()
		if err != nil {
			return nil, err
		}
		state.Session = session
	}
	return state, nil
}

func (e *roomEnvelope) toRoomState() (*RoomState, error) {
	rs := &RoomState{Room: e.Room}
	if e.CurrentSession != nil {
		session, err := e.CurrentSession.toSession()
		if err != nil {
			return nil, err
		}
		rs.Session = session
	}
	return rs, nil
}

func (ws *wireSession) toSession() (*domain.Session, error) {
	session := &domain.Session{
		ID:              ws.ID,
		RoomID:          ws.RoomID,
		Status:          ws.Status,
		CurrentQuestion: ws.CurrentQuestion,
		TotalQuestions:  ws.TotalQuestions,
		Participants:    ws.Participants,
		AnswerCount:     ws.AnswerCount,
	}
	if ws.CurrentQuestionData != nil {
		revealed := ws.Status == domain.StatusRevealed || ws.Status == domain.StatusFinished
		q, err := ws.CurrentQuestionData.toQuestion(ws.CurrentQuestion, revealed)
		if err != nil {
			return nil, err
		}
		session.Question = q
	}
	return session, nil
}

func (wq *wireQuestion) toQuestion(ordinal int, revealed bool) (*domain.Question, error) {
	q := &domain.Question{
		ID:           wq.ID,
		Ordinal:      ordinal,
		Text:         wq.Text,
		CategoryName: wq.CategoryName,
		Images:       wq.Images,
	}

	qType := wq.Type
	if qType == "" {
		qType = domain.TypeSingleChoice
	}

	switch qType {
	case domain.TypeSingleChoice:
		q.Detail = domain.SingleChoice{Options: wq.choiceOptions(revealed)}
	case domain.TypeMultipleChoice:
		q.Detail = domain.MultipleChoice{Options: wq.choiceOptions(revealed)}
	case domain.TypeOrdering:
		items := make([]domain.OrderItem, len(wq.Options))
		for i, o := range wq.Options {
			items[i] = domain.OrderItem{ID: o.ID, Text: o.Text}
			if revealed {
				items[i].CorrectPosition = o.CorrectPosition
			}
		}
		q.Detail = domain.Ordering{Items: items}
	case domain.TypeMatching:
		terms := make([]domain.MatchTerm, len(wq.Options))
		for i, o := range wq.Options {
			terms[i] = domain.MatchTerm{ID: o.ID, Text: o.Text}
			if revealed {
				terms[i].MatchText = o.MatchText
			}
		}
		defs := wq.Definitions
		if len(defs) == 0 && revealed {
			for _, o := range wq.Options {
				defs = append(defs, o.MatchText)
			}
		}
		q.Detail = domain.Matching{Terms: terms, Definitions: defs}
	case domain.TypeNumeric:
		n := domain.Numeric{}
		if revealed {
			n.CorrectNumber = wq.CorrectNumber
			n.Tolerance = wq.Tolerance
		}
		q.Detail = n
	default:
		return nil, fmt.Errorf("unknown question type %q", wq.Type)
	}
	return q, nil
}

func (wq *wireQuestion) choiceOptions(revealed bool) []domain.ChoiceOption {
	options := make([]domain.ChoiceOption, len(wq.Options))
	for i, o := range wq.Options {
		options[i] = domain.ChoiceOption{ID: o.ID, Text: o.Text, Color: o.Color}
		if revealed {
			options[i].IsCorrect = o.IsCorrect
		}
	}
	return options
}
