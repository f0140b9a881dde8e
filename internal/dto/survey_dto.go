package dto

// ErrorResponse is the plain error envelope for malformed requests. Survey
// domain failures use the richer apperror envelope instead.
type ErrorResponse struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// ValidateResponseRequest checks an answer without persisting it.
// Response is deliberately untyped; the question's type decides how it is
// interpreted. false and 0 are legitimate answers.
type ValidateResponseRequest struct {
	Response any `json:"response"`
}

// SaveResponseRequest persists one answer for the session.
type SaveResponseRequest struct {
	QuestionID      uint `json:"question_id" binding:"required"`
	Response        any  `json:"response"`
	ConfidenceLevel int  `json:"confidence_level"`
}

// ConditionalQuestionsRequest asks which follow-up questions an answer to the
// parent question unlocks.
type ConditionalQuestionsRequest struct {
	Response any `json:"response"`
}

type ConditionalQuestionsResponse struct {
	QuestionsToShow []uint `json:"questions_to_show"`
}
