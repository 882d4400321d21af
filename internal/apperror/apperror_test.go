package apperror

import (
	"errors"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("Block", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("title", "Missing required fields"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("map", "abc123"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("Invalid token"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "AlreadyVoted wraps ErrAlreadyVoted",
			err:       AlreadyVoted("block", "abc123"),
			target:    ErrAlreadyVoted,
			wantMatch: true,
		},
		{
			name:      "AlreadyVoted does NOT match ErrValidation",
			err:       AlreadyVoted("block", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("Block", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Forbidden does NOT match ErrUnauthorized",
			err:       Forbidden("Not authorized"),
			target:    ErrUnauthorized,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message names the resource",
			err:         NotFound("Map", "abc123"),
			wantMessage: "Map not found",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("title", "Missing required fields"),
			wantMessage: "Missing required fields",
		},
		{
			name:        "AlreadyVoted message names the resource",
			err:         AlreadyVoted("block", "abc123"),
			wantMessage: "Already voted for this block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("Block", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestWrappedAppErrorStillMatches(t *testing.T) {
	// Services add context with %w; the sentinel must survive that.
	wrapped := errors.Join(errors.New("context"), Forbidden("Not authorized"))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As() should find the AppError in a joined error")
	}
	if !errors.Is(wrapped, ErrForbidden) {
		t.Error("errors.Is(wrapped, ErrForbidden) = false, want true")
	}
}
