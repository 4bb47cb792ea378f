package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codygellie/contact-management-app/internal/contacts"
)

const defaultRequestTimeout = 15 * time.Second

// TransportError wraps a network-level failure (dial, timeout, broken
// connection). It drives the session's reconnect policy and is never
// surfaced as a data error.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError reports a non-2xx response that does not map onto the
// contacts error taxonomy.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("client: server returned %d: %s", e.StatusCode, e.Message)
}

// APIClient issues contact mutations and list queries against the REST
// surface. Responses are decoded into the same types the service returns
// so both ends share one schema.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient returns a client for the given base URL. A zero timeout
// falls back to the default request timeout.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type listPayload struct {
	Contacts   []contacts.Contact `json:"contacts"`
	Pagination struct {
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"totalPages"`
	} `json:"pagination"`
}

// List fetches one page of contacts.
func (c *APIClient) List(ctx context.Context, query contacts.PageQuery) (contacts.Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("limit", strconv.Itoa(query.PageSize))
	if query.Search != "" {
		params.Set("search", query.Search)
	}

	var payload listPayload
	if err := c.do(ctx, http.MethodGet, "/contacts?"+params.Encode(), nil, http.StatusOK, &payload); err != nil {
		return contacts.Page{}, err
	}
	return contacts.Page{
		Query: contacts.PageQuery{
			Page:     payload.Pagination.Page,
			PageSize: payload.Pagination.Limit,
			Search:   query.Search,
		},
		Contacts:   payload.Contacts,
		Total:      payload.Pagination.Total,
		TotalPages: payload.Pagination.TotalPages,
	}, nil
}

// Create submits a new contact and returns the canonical record.
func (c *APIClient) Create(ctx context.Context, input contacts.ContactInput) (contacts.Contact, error) {
	var record contacts.Contact
	if err := c.do(ctx, http.MethodPost, "/contacts", input, http.StatusCreated, &record); err != nil {
		return contacts.Contact{}, err
	}
	return record, nil
}

// Update rewrites an existing contact and returns the post-update record.
func (c *APIClient) Update(ctx context.Context, id int64, input contacts.ContactInput) (contacts.Contact, error) {
	var record contacts.Contact
	path := fmt.Sprintf("/contacts/%d", id)
	if err := c.do(ctx, http.MethodPut, path, input, http.StatusOK, &record); err != nil {
		return contacts.Contact{}, err
	}
	return record, nil
}

// Delete removes a contact.
func (c *APIClient) Delete(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/contacts/%d", id)
	return c.do(ctx, http.MethodDelete, path, nil, http.StatusOK, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != wantStatus {
		return decodeError(response)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

type errorPayload struct {
	Error  string                    `json:"error"`
	Fields []contacts.FieldViolation `json:"fields"`
}

// decodeError maps failure responses onto the contacts error taxonomy so
// callers handle local and remote mutations uniformly.
func decodeError(response *http.Response) error {
	var payload errorPayload
	_ = json.NewDecoder(response.Body).Decode(&payload)

	switch response.StatusCode {
	case http.StatusBadRequest:
		if len(payload.Fields) > 0 {
			return &contacts.ValidationError{Violations: payload.Fields}
		}
		return &contacts.ValidationError{Violations: []contacts.FieldViolation{{Field: "request", Reason: payload.Error}}}
	case http.StatusConflict:
		return &contacts.ConflictError{}
	case http.StatusNotFound:
		return contacts.ErrNotFound
	default:
		return &ServerError{StatusCode: response.StatusCode, Message: payload.Error}
	}
}
