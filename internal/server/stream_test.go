package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codygellie/contact-management-app/internal/contacts"
	"github.com/codygellie/contact-management-app/internal/realtime"
)

func dialStream(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(server.URL, "http", "ws", 1) + "/contacts/stream"
	conn, response, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial stream: %v", err)
	}
	if response != nil && response.Body != nil {
		response.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var envelope realtime.Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("failed to read stream frame: %v", err)
	}
	return envelope
}

func TestStreamSendsWelcomeBeforeChangeEvents(t *testing.T) {
	server, broadcaster := newTestServer(t)
	conn := dialStream(t, server)

	envelope := readEnvelope(t, conn)
	if envelope.Event != realtime.EventWelcome {
		t.Fatalf("expected welcome frame first, got %q", envelope.Event)
	}
	var welcome realtime.WelcomePayload
	if err := json.Unmarshal(envelope.Data, &welcome); err != nil {
		t.Fatalf("failed to decode welcome payload: %v", err)
	}
	if welcome.SessionID == "" {
		t.Fatal("welcome frame must carry the session id")
	}

	deadline := time.After(2 * time.Second)
	for broadcaster.Count() != 1 {
		select {
		case <-deadline:
			t.Fatalf("expected one registered session, got %d", broadcaster.Count())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStreamDeliversMutationEvents(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dialStream(t, server)
	readEnvelope(t, conn) // welcome

	response, err := http.Post(server.URL+"/contacts", "application/json",
		bytes.NewBufferString(`{"name":"Ada Lovelace","email":"ada@x.com","phone":"+15550000"}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	var record contacts.Contact
	decodeBody(t, response, &record)

	envelope := readEnvelope(t, conn)
	if envelope.Event != string(contacts.ChangeCreated) {
		t.Fatalf("expected contactCreated, got %q", envelope.Event)
	}
	notification, err := realtime.DecodeNotification(envelope)
	if err != nil {
		t.Fatalf("delivered frame must decode: %v", err)
	}
	if notification.Contact.ID != record.ID || notification.Contact.Name != "Ada Lovelace" {
		t.Fatalf("unexpected notification payload: %#v", notification.Contact)
	}

	request, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/contacts/%d", server.URL, record.ID), http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct delete request: %v", err)
	}
	deleteResponse, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	deleteResponse.Body.Close()

	envelope = readEnvelope(t, conn)
	if envelope.Event != string(contacts.ChangeDeleted) {
		t.Fatalf("expected contactDeleted, got %q", envelope.Event)
	}
	deleted, err := realtime.DecodeNotification(envelope)
	if err != nil {
		t.Fatalf("deleted frame must decode: %v", err)
	}
	if deleted.DeletedID != record.ID || deleted.Contact.Email != "ada@x.com" {
		t.Fatalf("deleted event must carry id and snapshot: %#v", deleted)
	}
}

func TestStreamFailedMutationEmitsNothing(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dialStream(t, server)
	readEnvelope(t, conn) // welcome

	response, err := http.Post(server.URL+"/contacts", "application/json",
		bytes.NewBufferString(`{"name":"A","email":"bad","phone":""}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected validation failure, got %d", response.StatusCode)
	}

	if err := conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var envelope realtime.Envelope
	if err := conn.ReadJSON(&envelope); err == nil {
		t.Fatalf("failed mutation must not broadcast, got %q", envelope.Event)
	}
}
