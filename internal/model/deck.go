package model

import "time"

type Deck struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	FlashcardCount int       `json:"flashcardCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type PagedDecks struct {
	Content []Deck   `json:"content"`
	Page    PageInfo `json:"page"`
}

type CreateDeckRequest struct {
	Name string `json:"name" validate:"trimmed_min=1,trimmed_max=100"`
}

type UpdateDeckRequest struct {
	Name string `json:"name" validate:"trimmed_min=1,trimmed_max=100"`
}

type StudyFlashcard struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

// StudySession is served by GET /decks/{deckId}/study.
type StudySession struct {
	DeckID     string           `json:"deckId"`
	DeckName   string           `json:"deckName"`
	TotalCards int              `json:"totalCards"`
	Flashcards []StudyFlashcard `json:"flashcards"`
}
