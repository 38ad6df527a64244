package memory

import (
	"testing"

	"github.com/code-payments/code-escrow/pkg/code/data/escrow/tests"
)

func TestEscrowMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
