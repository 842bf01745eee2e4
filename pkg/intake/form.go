// Package intake validates survey form data and keeps it as a per-session
// draft until the photo step hands it off.
package intake

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Genders accepted by the form.
var Genders = []string{"Male", "Female", "Other"}

var phonePattern = regexp.MustCompile(`^\+?[\d\s-]{7,15}$`)

// FormData is one household's survey answers.
type FormData struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Gender  string `json:"gender"`
	Age     int    `json:"age"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "intake: invalid form: " + strings.Join(parts, "; ")
}

// Normalize trims surrounding whitespace from every text field.
func (f FormData) Normalize() FormData {
	f.Name = strings.TrimSpace(f.Name)
	f.Address = strings.TrimSpace(f.Address)
	f.Gender = strings.TrimSpace(f.Gender)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Email = strings.TrimSpace(f.Email)
	return f
}

// Validate checks a normalized form. It returns a *ValidationError listing
// every failing field, or nil.
func (f FormData) Validate() error {
	errs := map[string]string{}

	switch n := utf8.RuneCountInString(f.Name); {
	case n < 2:
		errs["name"] = "Name must be at least 2 characters"
	case n > 100:
		errs["name"] = "Name must be at most 100 characters"
	}

	switch n := utf8.RuneCountInString(f.Address); {
	case n < 5:
		errs["address"] = "Address must be at least 5 characters"
	case n > 300:
		errs["address"] = "Address must be at most 300 characters"
	}

	if !validGender(f.Gender) {
		errs["gender"] = "Please select a gender"
	}

	switch {
	case f.Age < 1:
		errs["age"] = "Age must be at least 1"
	case f.Age > 150:
		errs["age"] = "Invalid age"
	}

	if !phonePattern.MatchString(f.Phone) {
		errs["phone"] = "Enter a valid phone number"
	}

	if !validEmail(f.Email) {
		errs["email"] = "Enter a valid email address"
	} else if len(f.Email) > 255 {
		errs["email"] = "Email must be at most 255 characters"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Parse normalizes and validates f.
func Parse(f FormData) (FormData, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return FormData{}, err
	}
	return f, nil
}

func validGender(g string) bool {
	for _, v := range Genders {
		if g == v {
			return true
		}
	}
	return false
}

// validEmail accepts a bare addr-spec with a dotted domain.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
