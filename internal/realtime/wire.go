package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codygellie/contact-management-app/internal/contacts"
)

// EventWelcome is sent once per connection, before any change events,
// carrying the session id the server assigned.
const EventWelcome = "welcome"

var (
	// ErrUnknownEvent indicates an envelope whose event name is not part
	// of the protocol.
	ErrUnknownEvent = errors.New("realtime: unknown event")
	// ErrMalformedPayload indicates an envelope whose data does not match
	// the schema for its event name.
	ErrMalformedPayload = errors.New("realtime: malformed payload")
)

// Envelope is the wire frame for every stream message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WelcomePayload confirms a completed handshake.
type WelcomePayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// DeletedPayload carries the removed id plus the last-known snapshot.
type DeletedPayload struct {
	ID      int64            `json:"id"`
	Contact contacts.Contact `json:"contact"`
}

// EncodeNotification converts a change notification into its wire frame.
func EncodeNotification(notification contacts.ChangeNotification) (Envelope, error) {
	switch notification.Type {
	case contacts.ChangeCreated, contacts.ChangeUpdated:
		if notification.Contact == nil {
			return Envelope{}, fmt.Errorf("%w: missing contact", ErrMalformedPayload)
		}
		data, err := json.Marshal(notification.Contact)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Event: string(notification.Type), Data: data}, nil
	case contacts.ChangeDeleted:
		if notification.Contact == nil {
			return Envelope{}, fmt.Errorf("%w: missing snapshot", ErrMalformedPayload)
		}
		data, err := json.Marshal(DeletedPayload{ID: notification.DeletedID, Contact: *notification.Contact})
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Event: string(notification.Type), Data: data}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnknownEvent, notification.Type)
	}
}

// DecodeNotification validates an incoming frame and rebuilds the change
// notification. Frames that do not match the schema are rejected rather
// than propagated with undefined fields.
func DecodeNotification(envelope Envelope) (contacts.ChangeNotification, error) {
	switch contacts.ChangeType(envelope.Event) {
	case contacts.ChangeCreated, contacts.ChangeUpdated:
		var record contacts.Contact
		if err := json.Unmarshal(envelope.Data, &record); err != nil {
			return contacts.ChangeNotification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if record.ID == 0 {
			return contacts.ChangeNotification{}, fmt.Errorf("%w: missing contact id", ErrMalformedPayload)
		}
		return contacts.ChangeNotification{
			Type:    contacts.ChangeType(envelope.Event),
			Contact: &record,
		}, nil
	case contacts.ChangeDeleted:
		var payload DeletedPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return contacts.ChangeNotification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if payload.ID == 0 {
			return contacts.ChangeNotification{}, fmt.Errorf("%w: missing deleted id", ErrMalformedPayload)
		}
		return contacts.ChangeNotification{
			Type:      contacts.ChangeDeleted,
			Contact:   &payload.Contact,
			DeletedID: payload.ID,
		}, nil
	default:
		return contacts.ChangeNotification{}, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Event)
	}
}
