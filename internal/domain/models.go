package domain

import "time"

// Session status values as reported by the authority.
const (
	StatusWaiting  = "waiting"
	StatusQuestion = "question"
	StatusRevealed = "revealed"
	StatusFinished = "finished"
)

// Room modes.
const (
	RoomModeWeb = "web"
	RoomModeBot = "bot"
)

// Room status values.
const (
	RoomStatusActive = "active"
	RoomStatusClosed = "closed"
)

// Phase is the coarse state of a session as observed by a client.
type Phase string

const (
	PhaseJoin     Phase = "join"
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseRevealed Phase = "revealed"
	PhaseFinished Phase = "finished"
)

// Room is a host-created container participants join by code.
type Room struct {
	ID      int64    `json:"id"`
	Code    string   `json:"code"`
	Mode    string   `json:"mode"`
	Status  string   `json:"status"`
	Members []Member `json:"members,omitempty"`
}

// Member is a device-identified participant bound to a room.
type Member struct {
	ID       int64     `json:"id"`
	RoomID   int64     `json:"room_id"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joined_at"`
}

// Session is one run-through of a quiz within a room.
type Session struct {
	ID              int64         `json:"id"`
	RoomID          int64         `json:"room_id"`
	Status          string        `json:"status"`
	CurrentQuestion int           `json:"current_question"` // 1-based ordinal, 0 before start
	TotalQuestions  int           `json:"total_questions"`
	Question        *Question     `json:"current_question_data,omitempty"`
	Participants    []Participant `json:"participants,omitempty"`
	AnswerCount     int           `json:"answer_count"`
}

// Participant is a session-scoped player with an accumulated score.
type Participant struct {
	ID         int64  `json:"id"`
	MemberID   int64  `json:"member_id"`
	Nickname   string `json:"nickname"`
	TotalScore int    `json:"total_score"`
}

// Image is media attached to a question.
type Image struct {
	ID   int64  `json:"id"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// Question is the currently displayed question. Detail carries the
// type-specific payload; grading data inside it stays empty until the
// authority reveals the answer.
type Question struct {
	ID           int64
	Ordinal      int
	Text         string
	CategoryName string
	Images       []Image
	Detail       Detail
}

// Detail is the type-specific part of a question.
type Detail interface {
	Type() string
}

// Question type tags.
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeOrdering       = "ordering"
	TypeMatching       = "matching"
	TypeNumeric        = "numeric"
)

// ChoiceOption is an answer option for single/multiple choice questions.
// IsCorrect is nil until reveal.
type ChoiceOption struct {
	ID        int64
	Text      string
	Color     string
	IsCorrect *bool
}

// SingleChoice has exactly one correct option.
type SingleChoice struct {
	Options []ChoiceOption
}

func (SingleChoice) Type() string { return TypeSingleChoice }

// MultipleChoice has at least one correct and one incorrect option.
type MultipleChoice struct {
	Options []ChoiceOption
}

func (MultipleChoice) Type() string { return TypeMultipleChoice }

// OrderItem is an element of an ordering question. CorrectPosition
// (1-based) is nil until reveal.
type OrderItem struct {
	ID              int64
	Text            string
	CorrectPosition *int
}

// Ordering asks the participant to arrange items into the correct sequence.
// Items arrive in the authority's delivery order; clients shuffle before
// first display.
type Ordering struct {
	Items []OrderItem
}

func (Ordering) Type() string { return TypeOrdering }

// MatchTerm is a left-hand term of a matching question. MatchText, the
// correct right-hand definition, is empty until reveal.
type MatchTerm struct {
	ID        int64
	Text      string
	MatchText string
}

// Matching asks the participant to pair every term with one definition.
// Definitions holds the full selection list shown for every term.
type Matching struct {
	Terms       []MatchTerm
	Definitions []string
}

func (Matching) Type() string { return TypeMatching }

// Numeric asks for a number within a tolerance of the correct value.
// CorrectNumber and Tolerance are nil until reveal.
type Numeric struct {
	CorrectNumber *float64
	Tolerance     *float64
}

func (Numeric) Type() string { return TypeNumeric }

// LeaderboardEntry is one row of the final standings.
type LeaderboardEntry struct {
	Position   int    `json:"position"`
	Nickname   string `json:"nickname"`
	TotalScore int    `json:"total_score"`
	MemberID   int64  `json:"member_id"`
}

// MyResult is the per-member outcome the authority discloses after reveal.
type MyResult struct {
	QuestionID int64 `json:"question_id,omitempty"`
	OptionID   int64 `json:"option_id,omitempty"`
	IsCorrect  bool  `json:"is_correct"`
	Score      int   `json:"score"`
	TotalScore int   `json:"total_score"`
	Answered   bool  `json:"answered"`
}

// Answer is a submission for the current question. Exactly one of the
// fields matching the question type is populated.
type Answer struct {
	OptionID  int64             `json:"option_id,omitempty"`
	OptionIDs []int64           `json:"option_ids,omitempty"`
	Order     []int64           `json:"order,omitempty"`
	Pairs     map[string]string `json:"pairs,omitempty"`
	Value     *float64          `json:"value,omitempty"`
}
