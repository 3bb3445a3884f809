package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ProcessValidationErrors maps a validator error to field -> tag.
func ProcessValidationErrors(err error) map[string]string {
	errorsMap := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorsMap["_"] = err.Error()
		return errorsMap
	}
	for _, e := range validationErrors {
		errorsMap[LowercaseFirst(e.Field())] = e.Tag()
	}
	return errorsMap
}

func LowercaseFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// DateOnly truncates t to midnight in loc.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// FormatDate renders yyyy-MM-dd.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
