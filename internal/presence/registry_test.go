package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestJoinLeaveMembership(t *testing.T) {
	r := NewRegistry()

	if r.IsMember("c1", "alice") {
		t.Error("IsMember() = true for chat never joined")
	}

	r.Join("c1", "alice")
	if !r.IsMember("c1", "alice") {
		t.Error("IsMember() = false immediately after Join")
	}

	// Idempotent join
	r.Join("c1", "alice")
	if got := len(r.Members("c1")); got != 1 {
		t.Errorf("len(Members) = %d after double join, want 1", got)
	}

	r.Leave("c1", "alice")
	if r.IsMember("c1", "alice") {
		t.Error("IsMember() = true immediately after Leave")
	}
}

func TestEmptyChatsAreDeleted(t *testing.T) {
	r := NewRegistry()

	r.Join("c1", "alice")
	r.Join("c1", "bob")
	r.Leave("c1", "alice")
	if r.Len() != 1 {
		t.Fatalf("Len() = %d with one member remaining, want 1", r.Len())
	}

	r.Leave("c1", "bob")
	if r.Len() != 0 {
		t.Errorf("Len() = %d after last member left, want 0 (no dangling empty sets)", r.Len())
	}
	if got := r.Members("c1"); got != nil {
		t.Errorf("Members() = %v for removed chat, want nil", got)
	}
}

func TestLeaveUnknownChat(t *testing.T) {
	r := NewRegistry()
	// Must not panic or create entries.
	r.Leave("ghost", "alice")
	if r.Len() != 0 {
		t.Errorf("Len() = %d after Leave on unknown chat, want 0", r.Len())
	}
}

func TestMembersMatchesJoinHistory(t *testing.T) {
	r := NewRegistry()

	joined := []string{"a", "b", "c", "d"}
	for _, u := range joined {
		r.Join("c1", u)
	}
	r.Leave("c1", "b")
	r.Leave("c1", "d")

	got := r.Members("c1")
	want := map[string]bool{"a": true, "c": true}
	if len(got) != len(want) {
		t.Fatalf("len(Members) = %d, want %d", len(got), len(want))
	}
	for _, u := range got {
		if !want[u] {
			t.Errorf("Members() contains %q, which left or never joined", u)
		}
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()

	const workers = 32
	const chats = 8

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			for j := 0; j < 100; j++ {
				chat := fmt.Sprintf("chat-%d", j%chats)
				r.Join(chat, user)
				if !r.IsMember(chat, user) {
					t.Errorf("IsMember() = false between own Join and Leave")
				}
				r.Leave(chat, user)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len() = %d after all workers left everything, want 0", r.Len())
	}
}
