package guard

import (
	"errors"
	"testing"
)

func TestGuard_Exclusion(t *testing.T) {
	g := New()

	release, err := g.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !g.Held() {
		t.Fatalf("guard should be held after Enter")
	}

	if _, err := g.Enter(); !errors.Is(err, ErrReentrancyDetected) {
		t.Fatalf("nested enter should fail, got %v", err)
	}

	release()
	if g.Held() {
		t.Fatalf("guard should be released")
	}

	// double release must be harmless
	release()

	if _, err := g.Enter(); err != nil {
		t.Fatalf("re-enter after release: %v", err)
	}
}
