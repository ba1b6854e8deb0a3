package play

import (
	"fmt"
	"math/rand"
)

// FillFirst populates the adapter's draft deterministically: first option,
// delivered order, first definition for every term, zero. Used by the "first"
// auto-answer strategy.
func FillFirst(a Adapter) error {
	switch ad := a.(type) {
	case *SingleChoiceAdapter:
		if len(ad.options) == 0 {
			return fmt.Errorf("question %d has no options", ad.question.ID)
		}
		return ad.Select(ad.options[0].ID)
	case *MultipleChoiceAdapter:
		if len(ad.options) == 0 {
			return fmt.Errorf("question %d has no options", ad.question.ID)
		}
		return ad.Toggle(ad.options[0].ID)
	case *OrderingAdapter:
		return nil
	case *MatchingAdapter:
		for _, term := range ad.terms {
			def := ""
			if len(ad.definitions) > 0 {
				def = ad.definitions[0]
			}
			if err := ad.Pair(term.ID, def); err != nil {
				return err
			}
		}
		return nil
	case *NumericAdapter:
		return ad.SetInput("0")
	default:
		return fmt.Errorf("no autofill for adapter %T", a)
	}
}

// AutoFill populates the adapter's draft with a random valid answer. Used by
// the load simulator; a filled adapter still goes through the normal submit
// path.
func AutoFill(a Adapter, rnd *rand.Rand) error {
	switch ad := a.(type) {
	case *SingleChoiceAdapter:
		if len(ad.options) == 0 {
			return fmt.Errorf("question %d has no options", ad.question.ID)
		}
		return ad.Select(ad.options[rnd.Intn(len(ad.options))].ID)
	case *MultipleChoiceAdapter:
		if len(ad.options) == 0 {
			return fmt.Errorf("question %d has no options", ad.question.ID)
		}
		for _, o := range ad.options {
			if rnd.Intn(2) == 0 {
				if err := ad.Toggle(o.ID); err != nil {
					return err
				}
			}
		}
		if len(ad.selected) == 0 {
			return ad.Toggle(ad.options[rnd.Intn(len(ad.options))].ID)
		}
		return nil
	case *OrderingAdapter:
		n := len(ad.order)
		for i := 0; i < n; i++ {
			if err := ad.Move(rnd.Intn(n), rnd.Intn(n)); err != nil {
				return err
			}
		}
		return nil
	case *MatchingAdapter:
		for _, term := range ad.terms {
			def := ""
			if len(ad.definitions) > 0 {
				def = ad.definitions[rnd.Intn(len(ad.definitions))]
			}
			if err := ad.Pair(term.ID, def); err != nil {
				return err
			}
		}
		return nil
	case *NumericAdapter:
		return ad.SetInput(fmt.Sprintf("%d", rnd.Intn(1000)))
	default:
		return fmt.Errorf("no autofill for adapter %T", a)
	}
}
