package model

import (
	"github.com/google/uuid"
)

// Choice is one selectable option of a question.
type Choice struct {
	ID   string `json:"choice_id"`
	Text string `json:"text"`
}

// Question represents a stored multiple-choice question, including its key.
type Question struct {
	ID              uuid.UUID `json:"id"`
	TestID          uuid.UUID `json:"test_id"`
	Text            string    `json:"text"`
	ImageURL        *string   `json:"image_url,omitempty"`
	Choices         []Choice  `json:"choices"`
	CorrectChoiceID string    `json:"correct_choice_id"`
	OrderNum        int       `json:"order_num"`
}

// PaperQuestion is a question without the correct answer, sent to students.
// Text may embed inline math markup; it is passed through untouched.
type PaperQuestion struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	ImageURL *string   `json:"image_url,omitempty"`
	Choices  []Choice  `json:"choices"`
	OrderNum int       `json:"order_num"`
}

// ForStudent strips the correct answer from a stored question.
func (q Question) ForStudent() PaperQuestion {
	return PaperQuestion{
		ID:       q.ID,
		Text:     q.Text,
		ImageURL: q.ImageURL,
		Choices:  q.Choices,
		OrderNum: q.OrderNum,
	}
}
