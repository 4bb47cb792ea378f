package contacts

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	minNameLength  = 2
	maxNameLength  = 50
	maxPhoneLength = 16

	// DefaultPageSize is applied when a query does not specify a limit.
	DefaultPageSize = 10
	// MaxPageSize bounds the number of rows a single page may request.
	MaxPageSize = 100
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]+$`)
)

// Contact models a persisted directory entry. Identifiers are assigned by
// the store and never reused; timestamps are store-managed.
type Contact struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;size:50;not null" json:"name"`
	Email     string    `gorm:"column:email;size:190;not null;uniqueIndex:idx_contacts_email" json:"email"`
	Phone     string    `gorm:"column:phone;size:16;not null" json:"phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Contact) TableName() string {
	return "contacts"
}

// ContactInput carries the client-settable fields of a contact.
type ContactInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Normalize trims surrounding whitespace from every field and lowercases
// the email. Emails are stored lowercase so the unique index enforces the
// same case-insensitive rule the duplicate pre-check applies.
func (in ContactInput) Normalize() ContactInput {
	return ContactInput{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.ToLower(strings.TrimSpace(in.Email)),
		Phone: strings.TrimSpace(in.Phone),
	}
}

// Validate checks every field and reports all violations at once so a
// caller can surface the complete list in a single round trip.
func (in ContactInput) Validate() *ValidationError {
	var violations []FieldViolation
	if in.Name == "" {
		violations = append(violations, FieldViolation{Field: "name", Reason: "required"})
	} else if nameLength := utf8.RuneCountInString(in.Name); nameLength < minNameLength || nameLength > maxNameLength {
		violations = append(violations, FieldViolation{Field: "name", Reason: "must be between 2 and 50 characters"})
	}
	if in.Email == "" {
		violations = append(violations, FieldViolation{Field: "email", Reason: "required"})
	} else if !emailPattern.MatchString(in.Email) {
		violations = append(violations, FieldViolation{Field: "email", Reason: "must be a valid email address"})
	}
	if in.Phone == "" {
		violations = append(violations, FieldViolation{Field: "phone", Reason: "required"})
	} else if len(in.Phone) > maxPhoneLength || !phonePattern.MatchString(in.Phone) {
		violations = append(violations, FieldViolation{Field: "phone", Reason: "must be digits with an optional leading + and at most 16 characters"})
	}
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

// PageQuery identifies one paginated, searchable view of the directory.
// Two queries with equal fields address the same cached page.
type PageQuery struct {
	Page     int
	PageSize int
	Search   string
}

// Normalize clamps out-of-range paging values instead of rejecting them,
// so repeated identical calls stay idempotent regardless of raw input.
func (q PageQuery) Normalize() PageQuery {
	normalized := q
	if normalized.Page < 1 {
		normalized.Page = 1
	}
	if normalized.PageSize < 1 {
		normalized.PageSize = DefaultPageSize
	}
	if normalized.PageSize > MaxPageSize {
		normalized.PageSize = MaxPageSize
	}
	normalized.Search = strings.TrimSpace(normalized.Search)
	return normalized
}

// Page is the result of a list query: one page of rows plus the
// pre-pagination total for the matching search term.
type Page struct {
	Query      PageQuery
	Contacts   []Contact
	Total      int64
	TotalPages int
}

// HasNext reports whether pages beyond this one exist.
func (p Page) HasNext() bool {
	return p.Query.Page < p.TotalPages
}

// HasPrev reports whether this page is preceded by another.
func (p Page) HasPrev() bool {
	return p.Query.Page > 1
}
