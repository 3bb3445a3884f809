package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestDateOnly_UsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	// 23:30 UTC on the 13th is already the 14th in Copenhagen.
	got := DateOnly(time.Date(2024, 3, 13, 23, 30, 0, 0, time.UTC), loc)
	if FormatDate(got) != "2024-03-14" || got.Hour() != 0 || got.Location() != loc {
		t.Fatalf("unexpected date %s", got)
	}
}

func TestProcessValidationErrors(t *testing.T) {
	type req struct {
		PageSize int `validate:"max=10"`
	}
	err := validator.New().Struct(req{PageSize: 11})
	got := ProcessValidationErrors(err)
	if got["pageSize"] != "max" {
		t.Fatalf("expected pageSize -> max, got %v", got)
	}

	got = ProcessValidationErrors(errors.New("unexpected EOF"))
	if got["_"] != "unexpected EOF" {
		t.Fatalf("expected raw message, got %v", got)
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{errors.New("UNIQUE constraint failed: case_records.active_key"), true},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("IsDuplicateKeyErr(%v) expected %t, got %t", tc.err, tc.want, got)
		}
	}
}
