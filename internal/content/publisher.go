package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// DocStore is the external document service. The production implementation
// is an HTTP client; tests substitute fakes.
type DocStore interface {
	CreateDocument(ctx context.Context, title, content, folder string) (id, url string, err error)
	UpdateDocument(ctx context.Context, docID, title, content string) (url string, err error)
}

// PublishRepository is the persistence surface publishing needs.
type PublishRepository interface {
	GetOutput(ctx context.Context, id string) (*models.ContentOutput, error)
	SetPublished(ctx context.Context, id, docID, docURL string, at time.Time) error
}

// Publisher pushes approved outputs to the external document store.
type Publisher struct {
	store   DocStore
	outputs PublishRepository
	folder  string
	logger  *slog.Logger
}

func NewPublisher(store DocStore, outputs PublishRepository, folder string, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:   store,
		outputs: outputs,
		folder:  folder,
		logger:  logger,
	}
}

// Publish pushes an approved output to the document store and stamps the
// resulting handle on the row. When the output already carries a document id
// from an earlier publish, the existing document is updated in place.
func (p *Publisher) Publish(ctx context.Context, outputID string) (*models.ContentOutput, error) {
	output, err := p.outputs.GetOutput(ctx, outputID)
	if err != nil {
		return nil, err
	}

	if output.Status != models.ContentStatusApproved {
		return nil, &models.StateViolationError{
			Reason: fmt.Sprintf("only approved content can be published, output is %s", output.Status),
		}
	}

	var docID, docURL string
	if output.GoogleDocID != "" {
		docID = output.GoogleDocID
		docURL, err = p.store.UpdateDocument(ctx, output.GoogleDocID, output.Title, output.Content)
	} else {
		docID, docURL, err = p.store.CreateDocument(ctx, output.Title, output.Content, p.folder)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to publish document: %w", err)
	}

	publishedAt := time.Now().UTC()
	if err := p.outputs.SetPublished(ctx, output.ID, docID, docURL, publishedAt); err != nil {
		return nil, err
	}

	p.logger.Info("content published",
		"output_id", output.ID,
		"doc_id", docID,
		"content_type", output.ContentType)

	output.Status = models.ContentStatusPublished
	output.GoogleDocID = docID
	output.GoogleDocURL = docURL
	output.PublishedAt = &publishedAt
	return output, nil
}

// HTTPDocStore talks to a document service over HTTP. The service exposes
// POST /documents and PUT /documents/{id}, both returning {"id": ..., "url": ...}.
type HTTPDocStore struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPDocStore(baseURL, apiKey string, timeout time.Duration) *HTTPDocStore {
	return &HTTPDocStore{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

type docRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Folder  string `json:"folder,omitempty"`
}

type docResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (s *HTTPDocStore) CreateDocument(ctx context.Context, title, content, folder string) (string, string, error) {
	resp, err := s.do(ctx, http.MethodPost, s.BaseURL+"/documents", docRequest{
		Title:   title,
		Content: content,
		Folder:  folder,
	})
	if err != nil {
		return "", "", err
	}
	return resp.ID, resp.URL, nil
}

func (s *HTTPDocStore) UpdateDocument(ctx context.Context, docID, title, content string) (string, error) {
	resp, err := s.do(ctx, http.MethodPut, s.BaseURL+"/documents/"+docID, docRequest{
		Title:   title,
		Content: content,
	})
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (s *HTTPDocStore) do(ctx context.Context, method, url string, payload docRequest) (*docResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build document request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("document service returned %d: %s", resp.StatusCode, string(msg))
	}

	var out docResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode document response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("document service returned no document id")
	}
	return &out, nil
}
