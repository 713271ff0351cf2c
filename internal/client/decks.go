package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/validation"
)

type DecksAPI struct {
	c Doer
}

func NewDecksAPI(c Doer) *DecksAPI {
	return &DecksAPI{c: c}
}

func (a *DecksAPI) List(ctx context.Context, params model.PageParams) (*model.PagedDecks, error) {
	var out model.PagedDecks
	if err := a.c.Do(ctx, Request{Method: http.MethodGet, Path: "/decks", Query: pageQuery(params)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DecksAPI) Get(ctx context.Context, deckID string) (*model.Deck, error) {
	if err := checkID(deckID); err != nil {
		return nil, err
	}
	var out model.Deck
	if err := a.c.Do(ctx, Request{Method: http.MethodGet, Path: "/decks/" + deckID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DecksAPI) Create(ctx context.Context, req model.CreateDeckRequest) (*model.Deck, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var out model.Deck
	if err := a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/decks", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DecksAPI) Update(ctx context.Context, deckID string, req model.UpdateDeckRequest) (*model.Deck, error) {
	if err := checkID(deckID); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var out model.Deck
	if err := a.c.Do(ctx, Request{Method: http.MethodPut, Path: "/decks/" + deckID, Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DecksAPI) Delete(ctx context.Context, deckID string) error {
	if err := checkID(deckID); err != nil {
		return err
	}
	return a.c.Do(ctx, Request{Method: http.MethodDelete, Path: "/decks/" + deckID}, nil)
}

// StudySession fetches every card of the deck, shuffled by the server when
// shuffle is set.
func (a *DecksAPI) StudySession(ctx context.Context, deckID string, shuffle bool) (*model.StudySession, error) {
	if err := checkID(deckID); err != nil {
		return nil, err
	}
	var out model.StudySession
	req := Request{
		Method: http.MethodGet,
		Path:   "/decks/" + deckID + "/study",
		Query:  url.Values{"shuffle": {strconv.FormatBool(shuffle)}},
	}
	if err := a.c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(p model.PageParams) url.Values {
	q := url.Values{}
	if p.Page != nil {
		q.Set("page", strconv.Itoa(*p.Page))
	}
	if p.Size != nil {
		q.Set("size", strconv.Itoa(*p.Size))
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	return q
}
