package metadata

import (
	"errors"
	"testing"
)

type fakeSQLState struct{ code string }

func (e *fakeSQLState) Error() string   { return "pg error " + e.code }
func (e *fakeSQLState) SQLState() string { return e.code }

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Error("nil error should not be a unique violation")
	}
	if isUniqueViolation(errors.New("generic failure")) {
		t.Error("generic error should not be a unique violation")
	}
	if !isUniqueViolation(&fakeSQLState{code: "23505"}) {
		t.Error("23505 should be recognized as a unique violation")
	}
	if isUniqueViolation(&fakeSQLState{code: "23503"}) {
		t.Error("foreign key violation should not be treated as unique violation")
	}
}

func TestPgErrCode(t *testing.T) {
	if code := pgErrCode(errors.New("plain")); code != "" {
		t.Errorf("expected empty code for plain error, got %q", code)
	}
	if code := pgErrCode(&fakeSQLState{code: "23505"}); code != "23505" {
		t.Errorf("expected 23505, got %q", code)
	}
}
