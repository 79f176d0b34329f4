package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/augmenthq/compete/internal/auth"
	"github.com/augmenthq/compete/internal/database"
	"github.com/augmenthq/compete/internal/models"
)

type fakeCardStore struct {
	cards        map[string]*models.AnalysisCard
	edits        map[string][]models.CardEdit
	lastFilter   database.CardFilter
	fieldChanges map[string]string
	fieldsUserID string
	statusUserID string
}

func newFakeCardStore(cards ...*models.AnalysisCard) *fakeCardStore {
	s := &fakeCardStore{
		cards: make(map[string]*models.AnalysisCard),
		edits: make(map[string][]models.CardEdit),
	}
	for _, c := range cards {
		s.cards[c.ID] = c
	}
	return s
}

func (s *fakeCardStore) GetByID(ctx context.Context, id string) (*models.AnalysisCard, error) {
	card, ok := s.cards[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *card
	return &copied, nil
}

func (s *fakeCardStore) List(ctx context.Context, filter database.CardFilter) ([]models.AnalysisCard, error) {
	s.lastFilter = filter
	out := make([]models.AnalysisCard, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeCardStore) UpdateFields(ctx context.Context, id string, changes map[string]string, userID string) error {
	s.fieldChanges = changes
	s.fieldsUserID = userID
	card := s.cards[id]
	for field, value := range changes {
		switch field {
		case "title":
			card.Title = value
		case "summary":
			card.Summary = value
		case "priority":
			card.Priority = models.Priority(value)
		}
		s.edits[id] = append(s.edits[id], models.CardEdit{
			CardID: id, FieldChanged: field, NewValue: value, UserID: userID,
		})
	}
	return nil
}

func (s *fakeCardStore) UpdateStatus(ctx context.Context, id string, status models.ReviewStatus, userID string) error {
	card, ok := s.cards[id]
	if !ok {
		return database.ErrNotFound
	}
	card.Status = status
	s.statusUserID = userID
	return nil
}

func (s *fakeCardStore) ListEdits(ctx context.Context, cardID string) ([]models.CardEdit, error) {
	return s.edits[cardID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requestAs(method, path, body string, identity auth.Identity) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return r.WithContext(auth.ContextWithIdentity(r.Context(), identity))
}

func draftCard(id string) *models.AnalysisCard {
	return &models.AnalysisCard{
		ID:        id,
		EventType: models.EventTypeFunding,
		Priority:  models.PriorityYellow,
		Title:     "Rival raises series B",
		Summary:   "Announced a $40M round.",
		Status:    models.ReviewStatusDraft,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCardList_FilterValidation(t *testing.T) {
	store := newFakeCardStore(draftCard("card-1"))
	h := NewCardHandler(store, testLogger())
	member := auth.Identity{UserID: "u-1", Role: models.RoleMember}

	w := httptest.NewRecorder()
	h.List(w, requestAs(http.MethodGet, "/api/cards?status=draft&priority=red&limit=10", "", member))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if store.lastFilter.Status != models.ReviewStatusDraft || store.lastFilter.Priority != models.PriorityRed {
		t.Errorf("filter not passed through: %+v", store.lastFilter)
	}
	if store.lastFilter.Limit != 10 {
		t.Errorf("expected limit 10, got %d", store.lastFilter.Limit)
	}

	w = httptest.NewRecorder()
	h.List(w, requestAs(http.MethodGet, "/api/cards?status=bogus", "", member))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.List(w, requestAs(http.MethodGet, "/api/cards?date_from=not-a-date", "", member))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad date, got %d", w.Code)
	}
}

func TestCardPatch_RecordsEdits(t *testing.T) {
	store := newFakeCardStore(draftCard("card-1"))
	h := NewCardHandler(store, testLogger())
	member := auth.Identity{UserID: "u-1", Role: models.RoleMember}

	w := httptest.NewRecorder()
	h.Item(w, requestAs(http.MethodPatch, "/api/cards/card-1",
		`{"title":"Rival closes series B","priority":"red"}`, member))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if store.fieldsUserID != "u-1" {
		t.Errorf("expected edit attributed to u-1, got %q", store.fieldsUserID)
	}
	if len(store.fieldChanges) != 2 {
		t.Errorf("expected 2 changed fields, got %v", store.fieldChanges)
	}

	var got models.AnalysisCard
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Title != "Rival closes series B" || got.Priority != models.PriorityRed {
		t.Errorf("unexpected card in response: %+v", got)
	}
}

func TestCardPatch_RejectsUnknownFieldAndEnum(t *testing.T) {
	store := newFakeCardStore(draftCard("card-1"))
	h := NewCardHandler(store, testLogger())
	member := auth.Identity{UserID: "u-1", Role: models.RoleMember}

	w := httptest.NewRecorder()
	h.Item(w, requestAs(http.MethodPatch, "/api/cards/card-1", `{"status":"approved"}`, member))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-editable field, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Item(w, requestAs(http.MethodPatch, "/api/cards/card-1", `{"priority":"purple"}`, member))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown priority, got %d", w.Code)
	}
}

func TestCardPatch_ArchivedNotEditable(t *testing.T) {
	card := draftCard("card-1")
	card.Status = models.ReviewStatusArchived
	store := newFakeCardStore(card)
	h := NewCardHandler(store, testLogger())
	member := auth.Identity{UserID: "u-1", Role: models.RoleMember}

	w := httptest.NewRecorder()
	h.Item(w, requestAs(http.MethodPatch, "/api/cards/card-1", `{"title":"x"}`, member))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for archived card, got %d", w.Code)
	}
}

func TestCardStatus_Transitions(t *testing.T) {
	member := auth.Identity{UserID: "u-1", Role: models.RoleMember}
	admin := auth.Identity{UserID: "u-2", Role: models.RoleAdmin}

	tests := []struct {
		name     string
		from     models.ReviewStatus
		to       string
		identity auth.Identity
		want     int
	}{
		{"member sends to review", models.ReviewStatusDraft, "in_review", member, http.StatusOK},
		{"member cannot approve", models.ReviewStatusInReview, "approved", member, http.StatusForbidden},
		{"admin approves", models.ReviewStatusInReview, "approved", admin, http.StatusOK},
		{"skipping review rejected", models.ReviewStatusDraft, "approved", admin, http.StatusConflict},
		{"archive from draft", models.ReviewStatusDraft, "archived", member, http.StatusOK},
		{"archived is terminal", models.ReviewStatusArchived, "draft", admin, http.StatusConflict},
		{"unknown status", models.ReviewStatusDraft, "bogus", admin, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := draftCard("card-1")
			card.Status = tt.from
			store := newFakeCardStore(card)
			h := NewCardHandler(store, testLogger())

			w := httptest.NewRecorder()
			h.Item(w, requestAs(http.MethodPost, "/api/cards/card-1/status",
				`{"status":"`+tt.to+`"}`, tt.identity))
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusOK {
				if got := store.cards["card-1"].Status; got != models.ReviewStatus(tt.to) {
					t.Errorf("expected status %s, got %s", tt.to, got)
				}
				if store.statusUserID != tt.identity.UserID {
					t.Errorf("expected status stamped by %s, got %s", tt.identity.UserID, store.statusUserID)
				}
			}
		})
	}
}

func TestCardEdits_Listing(t *testing.T) {
	store := newFakeCardStore(draftCard("card-1"))
	h := NewCardHandler(store, testLogger())
	member := auth.Identity{UserID: "u-1", Role: models.RoleMember}

	w := httptest.NewRecorder()
	h.Item(w, requestAs(http.MethodPatch, "/api/cards/card-1", `{"summary":"Updated."}`, member))
	if w.Code != http.StatusOK {
		t.Fatalf("patch failed: %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Item(w, requestAs(http.MethodGet, "/api/cards/card-1/edits", "", member))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Edits []models.CardEdit `json:"edits"`
		Count int               `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", resp.Count)
	}
	if resp.Edits[0].FieldChanged != "summary" || resp.Edits[0].UserID != "u-1" {
		t.Errorf("unexpected edit entry: %+v", resp.Edits[0])
	}
}

func TestCardGet_NotFound(t *testing.T) {
	h := NewCardHandler(newFakeCardStore(), testLogger())
	member := auth.Identity{UserID: "u-1", Role: models.RoleMember}

	w := httptest.NewRecorder()
	h.Item(w, requestAs(http.MethodGet, "/api/cards/nope", "", member))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
