package validation

import (
	"testing"

	"github.com/rx3lixir/ewm-service/internal/apperr"
)

type sample struct {
	Title string `validate:"notblank,min=3,max=120"`
	Email string `validate:"omitempty,email"`
	Limit int    `validate:"gte=0"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{"valid", sample{Title: "Concert", Email: "a@b.io"}, ""},
		{"blank title", sample{Title: "   "}, "Field: title. Error: must not be blank"},
		{"short title", sample{Title: "ab"}, "Field: title. Error: must be at least 3"},
		{"bad email", sample{Title: "Concert", Email: "nope"}, "Field: email. Error: must be a well-formed email address"},
		{"negative limit", sample{Title: "Concert", Limit: -1}, "Field: limit. Error: must be greater than or equal to 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !apperr.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("message = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}
