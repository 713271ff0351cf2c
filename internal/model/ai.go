package model

import "time"

type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateAccepted CandidateStatus = "accepted"
	CandidateRejected CandidateStatus = "rejected"
	CandidateEdited   CandidateStatus = "edited"
)

const DefaultRequestedCandidates = 10

type GenerateFlashcardsRequest struct {
	DeckID                   string `json:"deckId" validate:"required,uuid"`
	SourceText               string `json:"sourceText" validate:"trimmed_min=500,trimmed_max=10000"`
	RequestedCandidatesCount int    `json:"requestedCandidatesCount" validate:"min=1,max=100"`
}

type Candidate struct {
	ID          string          `json:"id"`
	Front       string          `json:"front"`
	Back        string          `json:"back"`
	Status      CandidateStatus `json:"status"`
	EditedFront *string         `json:"editedFront"`
	EditedBack  *string         `json:"editedBack"`
}

type AIGeneration struct {
	ID                       string      `json:"id"`
	DeckID                   string      `json:"deckId"`
	AIModel                  string      `json:"aiModel"`
	SourceTextHash           string      `json:"sourceTextHash"`
	SourceTextLength         int         `json:"sourceTextLength"`
	GeneratedCandidatesCount int         `json:"generatedCandidatesCount"`
	Candidates               []Candidate `json:"candidates"`
	CreatedAt                time.Time   `json:"createdAt"`
	UpdatedAt                time.Time   `json:"updatedAt"`
}

type PagedAIGenerations struct {
	Content []AIGeneration `json:"content"`
	Page    PageInfo       `json:"page"`
}

// CandidateUpdate carries edited text only when Status is edited.
type CandidateUpdate struct {
	ID          string          `json:"id" validate:"required,uuid"`
	Status      CandidateStatus `json:"status" validate:"required,oneof=pending accepted rejected edited"`
	EditedFront *string         `json:"editedFront,omitempty" validate:"omitempty,max=500"`
	EditedBack  *string         `json:"editedBack,omitempty" validate:"omitempty,max=500"`
}

type UpdateCandidatesRequest struct {
	Candidates []CandidateUpdate `json:"candidates" validate:"required,min=1,dive"`
}

type UpdateCandidatesResponse struct {
	ID                     string    `json:"id"`
	UpdatedCandidatesCount int       `json:"updatedCandidatesCount"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

type SaveCandidatesResponse struct {
	SavedCount   int      `json:"savedCount"`
	FlashcardIDs []string `json:"flashcardIds"`
}
