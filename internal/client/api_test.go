package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codygellie/contact-management-app/internal/contacts"
)

func TestAPIClientListDecodesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contacts" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("limit") != "5" || r.URL.Query().Get("search") != "ada" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"contacts":[{"id":1,"name":"Ada Lovelace","email":"ada@x.com","phone":"+15550000"}],
			"pagination":{"page":2,"limit":5,"total":6,"totalPages":2,"hasNext":false,"hasPrev":true}
		}`))
	}))
	defer server.Close()

	api := NewAPIClient(server.URL, time.Second)
	page, err := api.List(context.Background(), contacts.PageQuery{Page: 2, PageSize: 5, Search: "ada"})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if page.Total != 6 || page.TotalPages != 2 || len(page.Contacts) != 1 {
		t.Fatalf("unexpected page: %#v", page)
	}
	if page.Query.Page != 2 || page.Query.Search != "ada" {
		t.Fatalf("unexpected echoed query: %#v", page.Query)
	}
}

func TestAPIClientCreateDecodesRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		var input contacts.ContactInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(contacts.Contact{ID: 1, Name: input.Name, Email: input.Email, Phone: input.Phone})
	}))
	defer server.Close()

	api := NewAPIClient(server.URL, time.Second)
	record, err := api.Create(context.Background(), contacts.ContactInput{Name: "Ada Lovelace", Email: "ada@x.com", Phone: "+15550000"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if record.ID != 1 || record.Name != "Ada Lovelace" {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestAPIClientMapsErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "validation",
			status: http.StatusBadRequest,
			body:   `{"error":"validation_failed","fields":[{"field":"email","reason":"must be a valid email address"}]}`,
			check: func(t *testing.T, err error) {
				var validationErr *contacts.ValidationError
				if !errors.As(err, &validationErr) || validationErr.Violations[0].Field != "email" {
					t.Fatalf("expected validation error, got %v", err)
				}
			},
		},
		{
			name:   "conflict",
			status: http.StatusConflict,
			body:   `{"error":"Email already exists"}`,
			check: func(t *testing.T, err error) {
				var conflictErr *contacts.ConflictError
				if !errors.As(err, &conflictErr) {
					t.Fatalf("expected conflict error, got %v", err)
				}
			},
		},
		{
			name:   "not-found",
			status: http.StatusNotFound,
			body:   `{"error":"Contact not found"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, contacts.ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
			},
		},
		{
			name:   "server-failure",
			status: http.StatusInternalServerError,
			body:   `{"error":"internal_error"}`,
			check: func(t *testing.T, err error) {
				var serverErr *ServerError
				if !errors.As(err, &serverErr) || serverErr.StatusCode != http.StatusInternalServerError {
					t.Fatalf("expected server error, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			api := NewAPIClient(server.URL, time.Second)
			_, err := api.Create(context.Background(), contacts.ContactInput{Name: "Ada Lovelace", Email: "ada@x.com", Phone: "1"})
			if err == nil {
				t.Fatal("expected an error")
			}
			tt.check(t, err)
		})
	}
}

func TestAPIClientNetworkFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	api := NewAPIClient(url, 200*time.Millisecond)
	_, err := api.List(context.Background(), contacts.PageQuery{Page: 1, PageSize: 10})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
