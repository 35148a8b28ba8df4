package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jimmy-lgtm/pd-sms/config"
	"github.com/jimmy-lgtm/pd-sms/model"
)

// PipedriveService talks to the Pipedrive v1 REST API.
type PipedriveService struct {
	config     *config.PipedriveConfig
	httpClient *http.Client
}

func NewPipedriveService(cfg *config.PipedriveConfig) *PipedriveService {
	return &PipedriveService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type pipedriveSearchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Items []struct {
			Item struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			} `json:"item"`
		} `json:"items"`
	} `json:"data"`
}

type pipedrivePersonResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		ID    int64         `json:"id"`
		Name  string        `json:"name"`
		Phone []model.Phone `json:"phone"`
	} `json:"data"`
}

type pipedriveDealsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    []struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		Status   string `json:"status"`
		PersonID struct {
			Value int64 `json:"value"`
		} `json:"person_id"`
	} `json:"data"`
}

type pipedriveDealResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		Status   string `json:"status"`
		PersonID struct {
			Value int64 `json:"value"`
		} `json:"person_id"`
	} `json:"data"`
}

type pipedriveNoteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		ID       int64  `json:"id"`
		Content  string `json:"content"`
		PersonID int64  `json:"person_id"`
		DealID   int64  `json:"deal_id"`
	} `json:"data"`
}

// SearchPersonsByPhone searches persons whose phone field matches the given
// string exactly. Returns at most one match per the relay's needs.
func (s *PipedriveService) SearchPersonsByPhone(ctx context.Context, phone string) ([]model.Contact, error) {
	q := url.Values{}
	q.Set("term", phone)
	q.Set("fields", "phone")
	q.Set("exact_match", "true")
	q.Set("limit", "1")

	var result pipedriveSearchResponse
	if err := s.do(ctx, http.MethodGet, "/persons/search", q, nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("pipedrive API error: %s", result.Error)
	}

	contacts := make([]model.Contact, 0, len(result.Data.Items))
	for _, item := range result.Data.Items {
		contacts = append(contacts, model.Contact{
			ID:   item.Item.ID,
			Name: item.Item.Name,
		})
	}
	return contacts, nil
}

// CreatePerson creates a new person with the given name and phone list.
func (s *PipedriveService) CreatePerson(ctx context.Context, name string, phones []model.Phone) (*model.Contact, error) {
	payload := map[string]any{
		"name":  name,
		"phone": phones,
	}

	var result pipedrivePersonResponse
	if err := s.do(ctx, http.MethodPost, "/persons", nil, payload, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("pipedrive API error: %s", result.Error)
	}

	return &model.Contact{
		ID:     result.Data.ID,
		Name:   result.Data.Name,
		Phones: result.Data.Phone,
	}, nil
}

// GetPerson fetches one person with its phone list.
func (s *PipedriveService) GetPerson(ctx context.Context, id int64) (*model.Contact, error) {
	var result pipedrivePersonResponse
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/persons/%d", id), nil, nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("pipedrive API error: %s", result.Error)
	}

	return &model.Contact{
		ID:     result.Data.ID,
		Name:   result.Data.Name,
		Phones: result.Data.Phone,
	}, nil
}

// GetOpenDealsForPerson lists a person's open deals in the CRM's default order.
func (s *PipedriveService) GetOpenDealsForPerson(ctx context.Context, personID int64, limit int) ([]model.Deal, error) {
	q := url.Values{}
	q.Set("status", "open")
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	var result pipedriveDealsResponse
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/persons/%d/deals", personID), q, nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("pipedrive API error: %s", result.Error)
	}

	deals := make([]model.Deal, 0, len(result.Data))
	for _, d := range result.Data {
		deals = append(deals, model.Deal{
			ID:       d.ID,
			Title:    d.Title,
			Status:   d.Status,
			PersonID: d.PersonID.Value,
		})
	}
	return deals, nil
}

// GetDeal fetches one deal.
func (s *PipedriveService) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	var result pipedriveDealResponse
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/deals/%d", id), nil, nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("pipedrive API error: %s", result.Error)
	}

	return &model.Deal{
		ID:       result.Data.ID,
		Title:    result.Data.Title,
		Status:   result.Data.Status,
		PersonID: result.Data.PersonID.Value,
	}, nil
}

// CreateNote creates a note attached to a person and optionally a deal.
func (s *PipedriveService) CreateNote(ctx context.Context, content string, personID, dealID int64) (*model.Note, error) {
	payload := map[string]any{
		"content": content,
	}
	if personID != 0 {
		payload["person_id"] = personID
	}
	if dealID != 0 {
		payload["deal_id"] = dealID
	}

	var result pipedriveNoteResponse
	if err := s.do(ctx, http.MethodPost, "/notes", nil, payload, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("pipedrive API error: %s", result.Error)
	}

	return &model.Note{
		ID:       result.Data.ID,
		Content:  result.Data.Content,
		PersonID: result.Data.PersonID,
		DealID:   result.Data.DealID,
	}, nil
}

// UpdateNote replaces a note's content.
func (s *PipedriveService) UpdateNote(ctx context.Context, noteID int64, content string) error {
	payload := map[string]any{
		"content": content,
	}

	var result pipedriveNoteResponse
	if err := s.do(ctx, http.MethodPut, fmt.Sprintf("/notes/%d", noteID), nil, payload, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("pipedrive API error: %s", result.Error)
	}
	return nil
}

// do issues one API call with the token attached and decodes the JSON body
// into out regardless of status, so error envelopes are surfaced with their
// message.
func (s *PipedriveService) do(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_token", s.config.APIToken)

	endpoint := s.config.APIURL + path + "?" + query.Encode()

	var bodyReader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w, body: %s", err, string(respBody))
	}

	return nil
}
