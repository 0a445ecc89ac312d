package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/benvon/onetask/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

// MinFormPriority and MaxFormPriority bound the priority accepted from
// interactive input. The store itself does not range-check priority.
const (
	MinFormPriority = 1
	MaxFormPriority = 5
)

// ErrEmptyTitle is returned when a title is blank after trimming.
var ErrEmptyTitle = errors.New("title is required")

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
}

// validateTaskStatus validates that a string is a valid TaskStatus enum value
func validateTaskStatus(fl validator.FieldLevel) bool {
	return ValidateTaskStatus(fl.Field().String()) == nil
}

// ValidateTaskStatus validates a TaskStatus string value
func ValidateTaskStatus(value string) error {
	switch models.TaskStatus(value) {
	case models.TaskStatusPending, models.TaskStatusCompleted:
		return nil
	default:
		return fmt.Errorf("invalid status: %s (must be 'pending' or 'completed')", value)
	}
}

// ValidateFormPriority checks a priority entered by a user.
func ValidateFormPriority(p int) error {
	if p < MinFormPriority || p > MaxFormPriority {
		return fmt.Errorf("priority must be between %d and %d, got %d", MinFormPriority, MaxFormPriority, p)
	}
	return nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ParseTags splits a comma separated tag list, trimming each entry and
// dropping blanks. Order is preserved and duplicates are removed.
func ParseTags(raw string) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		tag := SanitizeText(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// NormalizeDueDate accepts YYYY-MM-DD or RFC 3339 and returns an RFC 3339
// timestamp in UTC. A bare date is taken as midnight UTC.
func NormalizeDueDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("due date is empty")
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	return "", fmt.Errorf("invalid due date %q (expected YYYY-MM-DD)", raw)
}

// PrepareCreateInput sanitizes and validates a create request in place.
func PrepareCreateInput(in *models.CreateTaskInput) error {
	in.Title = SanitizeText(in.Title)
	if in.Title == "" {
		return ErrEmptyTitle
	}
	if in.Description != nil {
		desc := SanitizeText(*in.Description)
		if desc == "" {
			in.Description = nil
		} else {
			in.Description = &desc
		}
	}
	if err := Validate.Struct(in); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return nil
}

// PreparePatch sanitizes and validates an update request in place.
func PreparePatch(p *models.TaskPatch) error {
	if p.Title != nil {
		title := SanitizeText(*p.Title)
		if title == "" {
			return ErrEmptyTitle
		}
		p.Title = &title
	}
	if p.Description != nil {
		desc := SanitizeText(*p.Description)
		p.Description = &desc
	}
	if err := Validate.Struct(p); err != nil {
		return fmt.Errorf("invalid task update: %w", err)
	}
	return nil
}
