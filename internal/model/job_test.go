package model

import (
	"errors"
	"testing"
)

func TestValidatePriority(t *testing.T) {
	for p := PriorityUrgent; p <= PriorityNone; p++ {
		if err := ValidatePriority(p); err != nil {
			t.Errorf("ValidatePriority(%d) = %v, want nil", p, err)
		}
	}

	var verr *ValidationError
	for _, p := range []int{0, -1, 6, 99} {
		if err := ValidatePriority(p); !errors.As(err, &verr) {
			t.Errorf("ValidatePriority(%d) = %v, want ValidationError", p, err)
		}
	}
}

func TestParseLocation(t *testing.T) {
	if got, err := ParseLocation("on_site"); err != nil || got != LocationOnSite {
		t.Errorf("ParseLocation(on_site) = %v, %v", got, err)
	}
	if got, err := ParseLocation("remote"); err != nil || got != LocationRemote {
		t.Errorf("ParseLocation(remote) = %v, %v", got, err)
	}

	var verr *ValidationError
	for _, s := range []string{"", "onsite", "office"} {
		if _, err := ParseLocation(s); !errors.As(err, &verr) {
			t.Errorf("ParseLocation(%q) = %v, want ValidationError", s, err)
		}
	}
}
