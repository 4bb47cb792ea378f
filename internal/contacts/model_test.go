package contacts

import (
	"strings"
	"testing"
)

func TestContactInputValidateReportsEveryViolation(t *testing.T) {
	input := ContactInput{Name: "A", Email: "not-an-email", Phone: "abc"}.Normalize()
	validationErr := input.Validate()
	if validationErr == nil {
		t.Fatal("expected validation error")
	}
	if len(validationErr.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %#v", len(validationErr.Violations), validationErr.Violations)
	}
	fields := map[string]bool{}
	for _, violation := range validationErr.Violations {
		fields[violation.Field] = true
	}
	for _, field := range []string{"name", "email", "phone"} {
		if !fields[field] {
			t.Fatalf("expected violation for %s, got %#v", field, validationErr.Violations)
		}
	}
}

func TestContactInputValidateMissingFields(t *testing.T) {
	validationErr := ContactInput{}.Validate()
	if validationErr == nil {
		t.Fatal("expected validation error for empty input")
	}
	if len(validationErr.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %d", len(validationErr.Violations))
	}
	for _, violation := range validationErr.Violations {
		if violation.Reason != "required" {
			t.Fatalf("expected required reason, got %q", violation.Reason)
		}
	}
}

func TestContactInputValidateAcceptsWellFormed(t *testing.T) {
	tests := []struct {
		name  string
		input ContactInput
	}{
		{name: "plain", input: ContactInput{Name: "Ada Lovelace", Email: "ada@x.com", Phone: "15550000"}},
		{name: "plus-prefixed-phone", input: ContactInput{Name: "Grace Hopper", Email: "grace@navy.mil", Phone: "+15550001"}},
		{name: "max-length-phone", input: ContactInput{Name: "Max", Email: "max@x.com", Phone: "+123456789012345"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if validationErr := tt.input.Normalize().Validate(); validationErr != nil {
				t.Fatalf("unexpected validation error: %v", validationErr)
			}
		})
	}
}

func TestContactInputNormalizeLowercasesEmail(t *testing.T) {
	normalized := ContactInput{Name: " Ada Lovelace ", Email: " Ada@X.COM ", Phone: " +15550000 "}.Normalize()
	if normalized.Email != "ada@x.com" {
		t.Fatalf("expected lowercased email, got %q", normalized.Email)
	}
	if normalized.Name != "Ada Lovelace" || normalized.Phone != "+15550000" {
		t.Fatalf("expected trimmed fields, got %#v", normalized)
	}
}

func TestContactInputValidateNameBoundsCountRunes(t *testing.T) {
	accented := ContactInput{Name: strings.Repeat("é", 30), Email: "e@x.com", Phone: "1"}
	if validationErr := accented.Validate(); validationErr != nil {
		t.Fatalf("expected 30-rune multibyte name to be accepted, got %v", validationErr)
	}
	cjk := ContactInput{Name: strings.Repeat("字", 50), Email: "z@x.com", Phone: "1"}
	if validationErr := cjk.Validate(); validationErr != nil {
		t.Fatalf("expected 50-rune CJK name to be accepted, got %v", validationErr)
	}
	tooLong := ContactInput{Name: strings.Repeat("字", 51), Email: "z@x.com", Phone: "1"}
	validationErr := tooLong.Validate()
	if validationErr == nil {
		t.Fatal("expected 51-rune name to be rejected")
	}
	if validationErr.Violations[0].Field != "name" {
		t.Fatalf("expected a name violation, got %#v", validationErr.Violations)
	}
}

func TestContactInputValidatePhoneBounds(t *testing.T) {
	tooLong := ContactInput{Name: "Ada Lovelace", Email: "ada@x.com", Phone: "+1234567890123456"}
	if validationErr := tooLong.Validate(); validationErr == nil {
		t.Fatal("expected 17-character phone to be rejected")
	}
	plusOnly := ContactInput{Name: "Ada Lovelace", Email: "ada@x.com", Phone: "+"}
	if validationErr := plusOnly.Validate(); validationErr == nil {
		t.Fatal("expected bare + to be rejected")
	}
}

func TestPageQueryNormalizeClampsInsteadOfRejecting(t *testing.T) {
	tests := []struct {
		name     string
		query    PageQuery
		wantPage int
		wantSize int
	}{
		{name: "zero-values", query: PageQuery{}, wantPage: 1, wantSize: DefaultPageSize},
		{name: "negative-page", query: PageQuery{Page: -3, PageSize: 25}, wantPage: 1, wantSize: 25},
		{name: "oversized-limit", query: PageQuery{Page: 2, PageSize: 500}, wantPage: 2, wantSize: MaxPageSize},
		{name: "in-range", query: PageQuery{Page: 4, PageSize: 100}, wantPage: 4, wantSize: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized := tt.query.Normalize()
			if normalized.Page != tt.wantPage || normalized.PageSize != tt.wantSize {
				t.Fatalf("got page=%d size=%d, want page=%d size=%d",
					normalized.Page, normalized.PageSize, tt.wantPage, tt.wantSize)
			}
			// Normalizing twice must be a fixed point.
			if normalized.Normalize() != normalized {
				t.Fatalf("normalize is not idempotent: %#v", normalized)
			}
		})
	}
}

func TestPageQueryNormalizeTrimsSearch(t *testing.T) {
	normalized := PageQuery{Page: 1, PageSize: 10, Search: "  ada  "}.Normalize()
	if normalized.Search != "ada" {
		t.Fatalf("expected trimmed search term, got %q", normalized.Search)
	}
}
