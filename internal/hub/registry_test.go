package hub

import (
	"fmt"
	"testing"
	"time"
)

func TestRegisterTakeoverRejection(t *testing.T) {
	r := NewRegistry()

	if taken := r.Register("1", "10.0.0.1", 50100, ""); taken {
		t.Fatal("first registration should not be taken")
	}
	if taken := r.Register("1", "10.0.0.2", 50200, ""); !taken {
		t.Fatal("second registration of same id should be rejected as TAKEN")
	}

	ep, ok := r.Lookup("1")
	if !ok {
		t.Fatal("expected client 1 to remain registered")
	}
	if ep.IP != "10.0.0.1" || ep.AudioPort != 50100 {
		t.Errorf("registry should still map to first registration, got %+v", ep)
	}
}

func TestHubFanOutByTargets(t *testing.T) {
	r := NewRegistry()
	r.Register("A", "10.0.0.1", 1001, "")
	r.Register("B", "10.0.0.2", 1002, "")
	r.Register("C", "10.0.0.3", 1003, "")

	if _, err := r.Join("A", "main"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Join("B", "main"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Join("C", "main"); err != nil {
		t.Fatal(err)
	}

	if err := r.SetTargets("A", []string{"B", "C"}); err != nil {
		t.Fatal(err)
	}

	targets := r.AllTargets("A")
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	ids := map[string]bool{}
	for _, e := range targets {
		ids[e.ID] = true
	}
	if !ids["B"] || !ids["C"] || ids["A"] {
		t.Errorf("unexpected target set: %+v", ids)
	}
}

func TestRoomMembersExcludesVacatedRoom(t *testing.T) {
	r := NewRegistry()
	r.Register("A", "10.0.0.1", 1001, "")
	r.Register("B", "10.0.0.2", 1002, "")
	r.Join("A", "main")
	r.Join("B", "main")

	if members := r.RoomMembers("main"); len(members) != 2 {
		t.Fatalf("expected 2 members in main, got %d", len(members))
	}

	r.Join("A", "other")
	if members := r.RoomMembers("main"); len(members) != 1 {
		t.Fatalf("expected 1 member left in main after A left, got %d", len(members))
	}
	if members := r.RoomMembers("other"); len(members) != 1 || members[0].ID != "A" {
		t.Fatalf("expected A in room other, got %+v", members)
	}
}

func TestReapRemovesStaleClients(t *testing.T) {
	r := NewRegistry()
	r.Register("A", "10.0.0.1", 1001, "")
	r.Register("B", "10.0.0.2", 1002, "")

	// Force A's heartbeat into the past directly via Unregister+Register
	// is not representative; instead exercise Reap with a zero timeout so
	// both look stale, confirming removal and idempotence of re-reap.
	expired := r.Reap(0)
	if len(expired) != 2 {
		t.Fatalf("expected both clients reaped with zero timeout, got %v", expired)
	}
	if _, ok := r.Lookup("A"); ok {
		t.Error("expected A removed after reap")
	}
	if got := r.Reap(time.Hour); len(got) != 0 {
		t.Errorf("expected no-op reap after clients already removed, got %v", got)
	}
}

func TestMulticastGroupForRoomIsStableAndInRange(t *testing.T) {
	addr1 := MulticastGroupForRoom("main")
	addr2 := MulticastGroupForRoom("main")
	if addr1 != addr2 {
		t.Errorf("multicast group derivation must be deterministic: %q vs %q", addr1, addr2)
	}
	var h int
	if n, err := fmt.Sscanf(addr1, "239.0.0.%d", &h); n != 1 || err != nil || h < 1 || h > 255 {
		t.Errorf("multicast group %q not of the form 239.0.0.<1..255>", addr1)
	}
	if MulticastGroupForRoom("main") == MulticastGroupForRoom("other-room-entirely") {
		t.Log("benign hash collision between distinct room names")
	}
}
