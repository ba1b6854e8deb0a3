package play

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"quizroom-client/internal/domain"
)

// Adapter holds the client-only draft state for one question occurrence.
// A fresh adapter is built on every question boundary; the old one and its
// draft are discarded. Once a submission is sent the adapter refuses further
// edits and submissions for the rest of its life.
type Adapter interface {
	// Question returns the question this adapter was built for.
	Question() *domain.Question
	// Answered reports whether a submission has been sent.
	Answered() bool
	// CanSubmit reports whether the draft satisfies the type's local
	// validation rules.
	CanSubmit() bool
	// Correct classifies the retained draft against revealed grading data.
	// ok is false when the revealed data is insufficient to decide.
	Correct(revealed domain.Detail) (correct, ok bool)

	payload() (domain.Answer, error)
	markSubmitted()
}

// newAdapter builds the adapter matching the question's type. rnd drives the
// ordering shuffle.
func newAdapter(q *domain.Question, rnd *rand.Rand) (Adapter, error) {
	switch d := q.Detail.(type) {
	case domain.SingleChoice:
		return &SingleChoiceAdapter{question: q, options: d.Options}, nil
	case domain.MultipleChoice:
		return &MultipleChoiceAdapter{question: q, options: d.Options, selected: map[int64]bool{}}, nil
	case domain.Ordering:
		return newOrderingAdapter(q, d, rnd), nil
	case domain.Matching:
		return &MatchingAdapter{question: q, terms: d.Terms, definitions: d.Definitions, pairs: map[int64]string{}}, nil
	case domain.Numeric:
		return &NumericAdapter{question: q}, nil
	default:
		return nil, fmt.Errorf("no adapter for question type %T", q.Detail)
	}
}

// SingleChoiceAdapter submits on selection: picking an option is terminal.
type SingleChoiceAdapter struct {
	question *domain.Question
	options  []domain.ChoiceOption
	selected *int64
	answered bool
}

// Select picks an option. A second pick is rejected; single choice has no
// change-your-mind step.
func (a *SingleChoiceAdapter) Select(optionID int64) error {
	if a.answered || a.selected != nil {
		return domain.ErrAlreadyAnswered
	}
	for _, o := range a.options {
		if o.ID == optionID {
			a.selected = &optionID
			return nil
		}
	}
	return fmt.Errorf("option %d not in question %d", optionID, a.question.ID)
}

// Selected returns the picked option id, or nil.
func (a *SingleChoiceAdapter) Selected() *int64 { return a.selected }

func (a *SingleChoiceAdapter) Question() *domain.Question { return a.question }
func (a *SingleChoiceAdapter) Answered() bool             { return a.answered }
func (a *SingleChoiceAdapter) CanSubmit() bool            { return !a.answered && a.selected != nil }

func (a *SingleChoiceAdapter) payload() (domain.Answer, error) {
	if a.selected == nil {
		return domain.Answer{}, domain.ErrIncompleteAnswer
	}
	return domain.Answer{OptionID: *a.selected}, nil
}

func (a *SingleChoiceAdapter) markSubmitted() { a.answered = true }

func (a *SingleChoiceAdapter) Correct(revealed domain.Detail) (bool, bool) {
	d, isChoice := revealed.(domain.SingleChoice)
	if !isChoice || a.selected == nil {
		return false, false
	}
	for _, o := range d.Options {
		if o.ID == *a.selected && o.IsCorrect != nil {
			return *o.IsCorrect, true
		}
	}
	return false, false
}

// MultipleChoiceAdapter is a toggle set with an explicit confirm step.
type MultipleChoiceAdapter struct {
	question *domain.Question
	options  []domain.ChoiceOption
	selected map[int64]bool
	answered bool
}

// Toggle flips an option in or out of the draft selection.
func (a *MultipleChoiceAdapter) Toggle(optionID int64) error {
	if a.answered {
		return domain.ErrAlreadyAnswered
	}
	for _, o := range a.options {
		if o.ID == optionID {
			if a.selected[optionID] {
				delete(a.selected, optionID)
			} else {
				a.selected[optionID] = true
			}
			return nil
		}
	}
	return fmt.Errorf("option %d not in question %d", optionID, a.question.ID)
}

// Selected returns the toggled option ids in ascending order.
func (a *MultipleChoiceAdapter) Selected() []int64 {
	ids := make([]int64, 0, len(a.selected))
	for id := range a.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *MultipleChoiceAdapter) Question() *domain.Question { return a.question }
func (a *MultipleChoiceAdapter) Answered() bool             { return a.answered }
func (a *MultipleChoiceAdapter) CanSubmit() bool            { return !a.answered && len(a.selected) > 0 }

func (a *MultipleChoiceAdapter) payload() (domain.Answer, error) {
	if len(a.selected) == 0 {
		return domain.Answer{}, domain.ErrIncompleteAnswer
	}
	return domain.Answer{OptionIDs: a.Selected()}, nil
}

func (a *MultipleChoiceAdapter) markSubmitted() { a.answered = true }

func (a *MultipleChoiceAdapter) Correct(revealed domain.Detail) (bool, bool) {
	d, isChoice := revealed.(domain.MultipleChoice)
	if !isChoice {
		return false, false
	}
	graded := false
	for _, o := range d.Options {
		if o.IsCorrect == nil {
			continue
		}
		graded = true
		if *o.IsCorrect != a.selected[o.ID] {
			return false, true
		}
	}
	return graded, graded
}

// OrderingAdapter presents a shuffled sequence the participant rearranges.
type OrderingAdapter struct {
	question *domain.Question
	order    []domain.OrderItem
	answered bool
}

func newOrderingAdapter(q *domain.Question, d domain.Ordering, rnd *rand.Rand) *OrderingAdapter {
	order := make([]domain.OrderItem, len(d.Items))
	copy(order, d.Items)
	shuffleAway(order, rnd)
	return &OrderingAdapter{question: q, order: order}
}

// shuffleAway permutes items, re-rolling until the result differs from the
// delivered order. The delivered order is the correct one, which must never
// be the first thing a participant sees.
func shuffleAway(items []domain.OrderItem, rnd *rand.Rand) {
	if len(items) < 2 {
		return
	}
	original := make([]int64, len(items))
	for i, it := range items {
		original[i] = it.ID
	}
	for {
		rnd.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
		for i, it := range items {
			if it.ID != original[i] {
				return
			}
		}
	}
}

// Order returns the current draft sequence.
func (a *OrderingAdapter) Order() []domain.OrderItem {
	out := make([]domain.OrderItem, len(a.order))
	copy(out, a.order)
	return out
}

// Move relocates the item at position from to position to (0-based).
func (a *OrderingAdapter) Move(from, to int) error {
	if a.answered {
		return domain.ErrAlreadyAnswered
	}
	if from < 0 || from >= len(a.order) || to < 0 || to >= len(a.order) {
		return fmt.Errorf("move %d->%d out of range for %d items", from, to, len(a.order))
	}
	item := a.order[from]
	a.order = append(a.order[:from], a.order[from+1:]...)
	rest := append([]domain.OrderItem{}, a.order[to:]...)
	a.order = append(append(a.order[:to], item), rest...)
	return nil
}

func (a *OrderingAdapter) Question() *domain.Question { return a.question }
func (a *OrderingAdapter) Answered() bool             { return a.answered }
func (a *OrderingAdapter) CanSubmit() bool            { return !a.answered && len(a.order) > 0 }

func (a *OrderingAdapter) payload() (domain.Answer, error) {
	if len(a.order) == 0 {
		return domain.Answer{}, domain.ErrIncompleteAnswer
	}
	ids := make([]int64, len(a.order))
	for i, it := range a.order {
		ids[i] = it.ID
	}
	return domain.Answer{Order: ids}, nil
}

func (a *OrderingAdapter) markSubmitted() { a.answered = true }

func (a *OrderingAdapter) Correct(revealed domain.Detail) (bool, bool) {
	d, isOrdering := revealed.(domain.Ordering)
	if !isOrdering {
		return false, false
	}
	positions := make(map[int64]int, len(d.Items))
	for _, it := range d.Items {
		if it.CorrectPosition == nil {
			return false, false
		}
		positions[it.ID] = *it.CorrectPosition
	}
	for i, it := range a.order {
		if positions[it.ID] != i+1 {
			return false, true
		}
	}
	return true, true
}

// MatchingAdapter pairs every left-hand term with one definition picked from
// the full definition list. Definitions may repeat across terms; completeness,
// not uniqueness, gates submission.
type MatchingAdapter struct {
	question    *domain.Question
	terms       []domain.MatchTerm
	definitions []string
	pairs       map[int64]string
	answered    bool
}

// Definitions returns the full selection list shown for every term.
func (a *MatchingAdapter) Definitions() []string { return a.definitions }

// Terms returns the left-hand terms.
func (a *MatchingAdapter) Terms() []domain.MatchTerm { return a.terms }

// Pair assigns a definition to a term, replacing any earlier assignment.
func (a *MatchingAdapter) Pair(termID int64, definition string) error {
	if a.answered {
		return domain.ErrAlreadyAnswered
	}
	known := false
	for _, t := range a.terms {
		if t.ID == termID {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("term %d not in question %d", termID, a.question.ID)
	}
	if len(a.definitions) > 0 {
		found := false
		for _, d := range a.definitions {
			if d == definition {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("definition %q not offered", definition)
		}
	}
	a.pairs[termID] = definition
	return nil
}

// Pairs returns the current term->definition assignments.
func (a *MatchingAdapter) Pairs() map[int64]string {
	out := make(map[int64]string, len(a.pairs))
	for k, v := range a.pairs {
		out[k] = v
	}
	return out
}

func (a *MatchingAdapter) Question() *domain.Question { return a.question }
func (a *MatchingAdapter) Answered() bool             { return a.answered }

// CanSubmit requires every term to have a selection.
func (a *MatchingAdapter) CanSubmit() bool {
	return !a.answered && len(a.pairs) == len(a.terms) && len(a.terms) > 0
}

func (a *MatchingAdapter) payload() (domain.Answer, error) {
	if len(a.pairs) != len(a.terms) || len(a.terms) == 0 {
		return domain.Answer{}, domain.ErrIncompleteAnswer
	}
	pairs := make(map[string]string, len(a.pairs))
	for id, def := range a.pairs {
		pairs[strconv.FormatInt(id, 10)] = def
	}
	return domain.Answer{Pairs: pairs}, nil
}

func (a *MatchingAdapter) markSubmitted() { a.answered = true }

func (a *MatchingAdapter) Correct(revealed domain.Detail) (bool, bool) {
	d, isMatching := revealed.(domain.Matching)
	if !isMatching {
		return false, false
	}
	graded := false
	for _, t := range d.Terms {
		if t.MatchText == "" {
			continue
		}
		graded = true
		if a.pairs[t.ID] != t.MatchText {
			return false, true
		}
	}
	return graded, graded
}

// NumericAdapter is a free-form numeric input with explicit submit.
type NumericAdapter struct {
	question *domain.Question
	value    *float64
	answered bool
}

// SetInput parses raw as the draft value. Empty input clears the draft.
func (a *NumericAdapter) SetInput(raw string) error {
	if a.answered {
		return domain.ErrAlreadyAnswered
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		a.value = nil
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", raw)
	}
	a.value = &v
	return nil
}

// Value returns the parsed draft value, or nil.
func (a *NumericAdapter) Value() *float64 { return a.value }

func (a *NumericAdapter) Question() *domain.Question { return a.question }
func (a *NumericAdapter) Answered() bool             { return a.answered }
func (a *NumericAdapter) CanSubmit() bool            { return !a.answered && a.value != nil }

func (a *NumericAdapter) payload() (domain.Answer, error) {
	if a.value == nil {
		return domain.Answer{}, domain.ErrIncompleteAnswer
	}
	return domain.Answer{Value: a.value}, nil
}

func (a *NumericAdapter) markSubmitted() { a.answered = true }

func (a *NumericAdapter) Correct(revealed domain.Detail) (bool, bool) {
	d, isNumeric := revealed.(domain.Numeric)
	if !isNumeric || a.value == nil || d.CorrectNumber == nil {
		return false, false
	}
	tolerance := 0.0
	if d.Tolerance != nil {
		tolerance = *d.Tolerance
	}
	return math.Abs(*a.value-*d.CorrectNumber) <= tolerance, true
}
