package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/validation"
)

type FlashcardsAPI struct {
	c Doer
}

func NewFlashcardsAPI(c Doer) *FlashcardsAPI {
	return &FlashcardsAPI{c: c}
}

func (a *FlashcardsAPI) ListInDeck(ctx context.Context, deckID string, params model.FlashcardListParams) (*model.PagedFlashcards, error) {
	if err := checkID(deckID); err != nil {
		return nil, err
	}
	if err := validation.Struct(params); err != nil {
		return nil, err
	}
	q := pageQuery(params.PageParams)
	if params.Source != "" {
		q.Set("source", string(params.Source))
	}

	var out model.PagedFlashcards
	if err := a.c.Do(ctx, Request{Method: http.MethodGet, Path: "/decks/" + deckID + "/flashcards", Query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *FlashcardsAPI) Get(ctx context.Context, flashcardID string) (*model.Flashcard, error) {
	if err := checkID(flashcardID); err != nil {
		return nil, err
	}
	var out model.Flashcard
	if err := a.c.Do(ctx, Request{Method: http.MethodGet, Path: "/flashcards/" + flashcardID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *FlashcardsAPI) Create(ctx context.Context, deckID string, req model.CreateFlashcardRequest) (*model.Flashcard, error) {
	if err := checkID(deckID); err != nil {
		return nil, err
	}
	req.Front, req.Back = strings.TrimSpace(req.Front), strings.TrimSpace(req.Back)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var out model.Flashcard
	if err := a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/decks/" + deckID + "/flashcards", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *FlashcardsAPI) Update(ctx context.Context, flashcardID string, req model.UpdateFlashcardRequest) (*model.Flashcard, error) {
	if err := checkID(flashcardID); err != nil {
		return nil, err
	}
	req.Front, req.Back = strings.TrimSpace(req.Front), strings.TrimSpace(req.Back)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var out model.Flashcard
	if err := a.c.Do(ctx, Request{Method: http.MethodPut, Path: "/flashcards/" + flashcardID, Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *FlashcardsAPI) Delete(ctx context.Context, flashcardID string) error {
	if err := checkID(flashcardID); err != nil {
		return err
	}
	return a.c.Do(ctx, Request{Method: http.MethodDelete, Path: "/flashcards/" + flashcardID}, nil)
}
