package practice

import "quizroom-client/internal/domain"

func boolPtr(b bool) *bool        { return &b }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

// SampleQuiz exercises every question type once.
func SampleQuiz() Quiz {
	return Quiz{
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:   1,
				Text: "What is 2 + 2?",
				Detail: domain.SingleChoice{Options: []domain.ChoiceOption{
					{ID: 1, Text: "3", IsCorrect: boolPtr(false)},
					{ID: 2, Text: "4", IsCorrect: boolPtr(true)},
					{ID: 3, Text: "5", IsCorrect: boolPtr(false)},
				}},
			},
			{
				ID:   2,
				Text: "Which of these are prime numbers?",
				Detail: domain.MultipleChoice{Options: []domain.ChoiceOption{
					{ID: 4, Text: "2", IsCorrect: boolPtr(true)},
					{ID: 5, Text: "4", IsCorrect: boolPtr(false)},
					{ID: 6, Text: "7", IsCorrect: boolPtr(true)},
					{ID: 7, Text: "9", IsCorrect: boolPtr(false)},
				}},
			},
			{
				ID:   3,
				Text: "Put these ages in order, oldest first",
				Detail: domain.Ordering{Items: []domain.OrderItem{
					{ID: 8, Text: "Stone Age", CorrectPosition: intPtr(1)},
					{ID: 9, Text: "Bronze Age", CorrectPosition: intPtr(2)},
					{ID: 10, Text: "Iron Age", CorrectPosition: intPtr(3)},
				}},
			},
			{
				ID:   4,
				Text: "Match the formula to the substance",
				Detail: domain.Matching{
					Terms: []domain.MatchTerm{
						{ID: 11, Text: "H2O", MatchText: "water"},
						{ID: 12, Text: "NaCl", MatchText: "salt"},
						{ID: 13, Text: "CO2", MatchText: "carbon dioxide"},
					},
				},
			},
			{
				ID:     5,
				Text:   "How many meters in a mile, roughly?",
				Detail: domain.Numeric{CorrectNumber: floatPtr(1609), Tolerance: floatPtr(10)},
			},
		},
	}
}
