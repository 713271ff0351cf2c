package model

import "time"

type FlashcardSource string

const (
	SourceManual   FlashcardSource = "manual"
	SourceAI       FlashcardSource = "ai"
	SourceAIEdited FlashcardSource = "ai-edited"
)

type Flashcard struct {
	ID           string          `json:"id"`
	DeckID       string          `json:"deckId"`
	Front        string          `json:"front"`
	Back         string          `json:"back"`
	Source       FlashcardSource `json:"source"`
	GenerationID *string         `json:"generationId"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type PagedFlashcards struct {
	Content []Flashcard `json:"content"`
	Page    PageInfo    `json:"page"`
}

type CreateFlashcardRequest struct {
	Front string `json:"front" validate:"trimmed_min=1,trimmed_max=500"`
	Back  string `json:"back" validate:"trimmed_min=1,trimmed_max=500"`
}

type UpdateFlashcardRequest struct {
	Front string `json:"front" validate:"trimmed_min=1,trimmed_max=500"`
	Back  string `json:"back" validate:"trimmed_min=1,trimmed_max=500"`
}

type FlashcardListParams struct {
	PageParams
	Source FlashcardSource `json:"source" validate:"omitempty,oneof=manual ai ai-edited"`
}
