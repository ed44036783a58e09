package supervisor

import (
	"fmt"
	"testing"
)

func TestRingBuffer_BelowCapacity(t *testing.T) {
	rb := newRingBuffer(5)
	rb.push("a")
	rb.push("b")
	got := rb.snapshot()
	want := []string{"a", "b"}
	assertLines(t, got, want)
}

func TestRingBuffer_WrapsAtCapacity(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.push(fmt.Sprintf("line-%d", i))
	}
	got := rb.snapshot()
	want := []string{"line-2", "line-3", "line-4"}
	assertLines(t, got, want)
}

func assertLines(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("snapshot() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
