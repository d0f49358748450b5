package errs

import (
	"errors"
	"testing"
)

func TestWrapKeepsChain(t *testing.T) {
	root := errors.New("connection refused")
	err := Wrapf(Wrap(root, "open database"), "ingest batch %s", "objects")

	if !errors.Is(err, root) {
		t.Fatalf("errors.Is() = false, want true")
	}
	if err.Error() != "ingest batch objects: open database: connection refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if Wrap(nil, "noop") != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
}

func TestErrorChainStringsFlattensJoined(t *testing.T) {
	a := errors.New("a")
	b := Wrap(errors.New("b"), "ctx")
	chain := ErrorChainStrings(errors.Join(a, b))

	if len(chain) != 4 {
		t.Fatalf("chain len = %d, want 4: %v", len(chain), chain)
	}
	if chain[1] != "a" || chain[2] != "ctx: b" || chain[3] != "b" {
		t.Fatalf("chain = %v", chain)
	}
}
