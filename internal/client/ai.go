package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/validation"
)

type AIAPI struct {
	c Doer
}

func NewAIAPI(c Doer) *AIAPI {
	return &AIAPI{c: c}
}

// Generate asks the server for flashcard candidates. A zero
// RequestedCandidatesCount means the server default.
func (a *AIAPI) Generate(ctx context.Context, req model.GenerateFlashcardsRequest) (*model.AIGeneration, error) {
	if req.RequestedCandidatesCount == 0 {
		req.RequestedCandidatesCount = model.DefaultRequestedCandidates
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var out model.AIGeneration
	if err := a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/ai/generate", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AIAPI) GetGeneration(ctx context.Context, generationID string) (*model.AIGeneration, error) {
	if err := checkID(generationID); err != nil {
		return nil, err
	}
	var out model.AIGeneration
	if err := a.c.Do(ctx, Request{Method: http.MethodGet, Path: "/ai/generations/" + generationID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AIAPI) ListGenerations(ctx context.Context, params model.PageParams) (*model.PagedAIGenerations, error) {
	var out model.PagedAIGenerations
	if err := a.c.Do(ctx, Request{Method: http.MethodGet, Path: "/ai/generations", Query: pageQuery(params)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCandidates records review decisions. Edited candidates must carry
// both sides.
func (a *AIAPI) UpdateCandidates(ctx context.Context, generationID string, req model.UpdateCandidatesRequest) (*model.UpdateCandidatesResponse, error) {
	if err := checkID(generationID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := checkEdited(req.Candidates); err != nil {
		return nil, err
	}
	var out model.UpdateCandidatesResponse
	if err := a.c.Do(ctx, Request{Method: http.MethodPatch, Path: "/ai/generations/" + generationID + "/candidates", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveCandidates turns accepted and edited candidates into flashcards.
func (a *AIAPI) SaveCandidates(ctx context.Context, generationID string) (*model.SaveCandidatesResponse, error) {
	if err := checkID(generationID); err != nil {
		return nil, err
	}
	var out model.SaveCandidatesResponse
	if err := a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/ai/generations/" + generationID + "/save"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func checkEdited(candidates []model.CandidateUpdate) error {
	verr := &validation.Error{}
	for i, c := range candidates {
		if c.Status != model.CandidateEdited {
			continue
		}
		if c.EditedFront == nil || strings.TrimSpace(*c.EditedFront) == "" {
			verr.Add(fmt.Sprintf("candidates[%d].editedFront", i), "is required when status is edited")
		}
		if c.EditedBack == nil || strings.TrimSpace(*c.EditedBack) == "" {
			verr.Add(fmt.Sprintf("candidates[%d].editedBack", i), "is required when status is edited")
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
