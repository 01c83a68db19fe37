package hints_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulschiretz/pgl-mirror/pkg/hints"
)

func TestHints(t *testing.T) {
	errBase := errors.New("stage disabled")
	errOther := errors.New("other")
	hinted := hints.Wrap(errBase)

	testCases := []struct {
		name     string
		err      error
		isHint   bool
		matchesB bool
	}{
		{"nil", nil, false, false},
		{"plain error", errBase, false, true},
		{"wrapped hint", hinted, true, true},
		{"hint wrapped again with fmt", fmt.Errorf("cycle: %w", hinted), true, true},
		{"new hint", hints.New("nothing to do"), true, false},
		{"unrelated", errOther, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hints.IsHint(tc.err); got != tc.isHint {
				t.Errorf("IsHint = %v, want %v", got, tc.isHint)
			}
			if got := hints.Is(tc.err, errBase); got != (tc.isHint && tc.matchesB) {
				t.Errorf("Is = %v, want %v", got, tc.isHint && tc.matchesB)
			}
		})
	}

	if hints.Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if hinted.Error() != "stage disabled" {
		t.Errorf("unexpected message %q", hinted.Error())
	}
}
