package fakeapi

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tenxcards/tenxcards-go/internal/model"
)

var ErrNotFound = errors.New("not found")

// deckStore holds decks and their flashcards per owner.
type deckStore struct {
	mu         sync.Mutex
	decks      map[string]*ownedDeck
	flashcards map[string]*ownedFlashcard
}

type ownedDeck struct {
	owner string
	deck  model.Deck
}

type ownedFlashcard struct {
	owner string
	card  model.Flashcard
}

func newDeckStore() *deckStore {
	return &deckStore{
		decks:      make(map[string]*ownedDeck),
		flashcards: make(map[string]*ownedFlashcard),
	}
}

func (s *deckStore) list(owner string, page, size int) model.PagedDecks {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]model.Deck, 0)
	for _, d := range s.decks {
		if d.owner == owner {
			all = append(all, s.withCountLocked(d.deck))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	content, info := paginate(all, page, size)
	return model.PagedDecks{Content: content, Page: info}
}

func (s *deckStore) create(owner, name string) (model.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	for _, d := range s.decks {
		if d.owner == owner && strings.EqualFold(d.deck.Name, name) {
			return model.Deck{}, fmt.Errorf("%w: Deck with name '%s' already exists", ErrConflict, name)
		}
	}

	now := time.Now().UTC()
	deck := model.Deck{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.decks[deck.ID] = &ownedDeck{owner: owner, deck: deck}
	return deck, nil
}

func (s *deckStore) get(owner, id string) (model.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deckLocked(owner, id)
	if err != nil {
		return model.Deck{}, err
	}
	return s.withCountLocked(d.deck), nil
}

func (s *deckStore) rename(owner, id, name string) (model.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deckLocked(owner, id)
	if err != nil {
		return model.Deck{}, err
	}
	d.deck.Name = strings.TrimSpace(name)
	d.deck.UpdatedAt = time.Now().UTC()
	return s.withCountLocked(d.deck), nil
}

func (s *deckStore) remove(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deckLocked(owner, id); err != nil {
		return err
	}
	delete(s.decks, id)
	for cid, c := range s.flashcards {
		if c.card.DeckID == id {
			delete(s.flashcards, cid)
		}
	}
	return nil
}

func (s *deckStore) addFlashcard(owner, deckID, front, back string) (model.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deckLocked(owner, deckID); err != nil {
		return model.Flashcard{}, err
	}
	now := time.Now().UTC()
	card := model.Flashcard{
		ID:        uuid.NewString(),
		DeckID:    deckID,
		Front:     strings.TrimSpace(front),
		Back:      strings.TrimSpace(back),
		Source:    model.SourceManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.flashcards[card.ID] = &ownedFlashcard{owner: owner, card: card}
	return card, nil
}

func (s *deckStore) listFlashcards(owner, deckID string, source model.FlashcardSource, page, size int) (model.PagedFlashcards, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deckLocked(owner, deckID); err != nil {
		return model.PagedFlashcards{}, err
	}
	cards := s.cardsLocked(deckID, source)
	sort.Slice(cards, func(i, j int) bool { return cards[i].CreatedAt.After(cards[j].CreatedAt) })

	content, info := paginate(cards, page, size)
	return model.PagedFlashcards{Content: content, Page: info}, nil
}

func (s *deckStore) study(owner, deckID string, shuffle bool) (model.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deckLocked(owner, deckID)
	if err != nil {
		return model.StudySession{}, err
	}
	cards := s.cardsLocked(deckID, "")
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].CreatedAt.Before(cards[j].CreatedAt) })
	if shuffle {
		rand.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	}

	session := model.StudySession{
		DeckID:     d.deck.ID,
		DeckName:   d.deck.Name,
		TotalCards: len(cards),
		Flashcards: make([]model.StudyFlashcard, 0, len(cards)),
	}
	for _, c := range cards {
		session.Flashcards = append(session.Flashcards, model.StudyFlashcard{ID: c.ID, Front: c.Front, Back: c.Back})
	}
	return session, nil
}

func (s *deckStore) deckLocked(owner, id string) (*ownedDeck, error) {
	d, ok := s.decks[id]
	if !ok || d.owner != owner {
		return nil, fmt.Errorf("%w: Deck not found with id: %s", ErrNotFound, id)
	}
	return d, nil
}

func (s *deckStore) cardsLocked(deckID string, source model.FlashcardSource) []model.Flashcard {
	out := make([]model.Flashcard, 0)
	for _, c := range s.flashcards {
		if c.card.DeckID != deckID {
			continue
		}
		if source != "" && c.card.Source != source {
			continue
		}
		out = append(out, c.card)
	}
	return out
}

func (s *deckStore) withCountLocked(d model.Deck) model.Deck {
	d.FlashcardCount = len(s.cardsLocked(d.ID, ""))
	return d
}

func paginate[T any](all []T, page, size int) ([]T, model.PageInfo) {
	info := model.PageInfo{Number: page, Size: size, TotalElements: int64(len(all))}
	info.TotalPages = (len(all) + size - 1) / size

	start := page * size
	if start >= len(all) {
		return []T{}, info
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], info
}
