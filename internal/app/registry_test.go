package app

import (
	"testing"
	"time"

	"github.com/dkeye/rendezvous/internal/core/coretest"
	"github.com/dkeye/rendezvous/internal/domain"
)

var t0 = time.Unix(1_700_000_000, 0)

func newTestStore() *Store {
	return NewStore(StoreConfig{TTL: 48 * time.Hour}, nil)
}

func TestStore_BindLastWins(t *testing.T) {
	st := newTestStore()
	a := coretest.NewChannel("a", 0)
	b := coretest.NewChannel("b", 0)

	if prev := st.Bind("s1", "r1", a, t0); prev != nil {
		t.Fatalf("first bind returned %v", prev)
	}
	prev := st.Bind("s1", "r1", b, t0.Add(time.Second))
	if prev != a {
		t.Fatalf("prev=%v, want a", prev)
	}
	if a.IsClosed() {
		t.Fatalf("replaced channel must not be force-closed")
	}
	got, ok := st.Lookup("s1", "r1")
	if !ok || got != b {
		t.Fatalf("Lookup=%v,%v, want b", got, ok)
	}

	// The superseded connection closing must not remove the newer binding.
	if st.Unbind(a) {
		t.Fatalf("Unbind(a) removed a binding it no longer owns")
	}
	if got, ok := st.Lookup("s1", "r1"); !ok || got != b {
		t.Fatalf("binding lost after stale unbind: %v,%v", got, ok)
	}

	if !st.Unbind(b) {
		t.Fatalf("Unbind(b)=false")
	}
	if _, ok := st.Lookup("s1", "r1"); ok {
		t.Fatalf("binding survived Unbind")
	}
	if st.Bound() != 0 {
		t.Fatalf("Bound=%d, want 0", st.Bound())
	}
}

func TestStore_RebindSameChannelIsNotReplacement(t *testing.T) {
	st := newTestStore()
	a := coretest.NewChannel("a", 0)
	st.Bind("s1", "r1", a, t0)
	if prev := st.Bind("s1", "r1", a, t0.Add(time.Second)); prev != nil {
		t.Fatalf("rebind of same channel returned %v", prev)
	}
}

func TestStore_BindMovesChannel(t *testing.T) {
	st := newTestStore()
	a := coretest.NewChannel("a", 0)
	st.Bind("s1", "r1", a, t0)
	st.Bind("s2", "r1", a, t0)

	if _, ok := st.Lookup("s1", "r1"); ok {
		t.Fatalf("old binding kept after move")
	}
	if got, ok := st.Lookup("s2", "r1"); !ok || got != a {
		t.Fatalf("new binding missing")
	}
	if st.Bound() != 1 {
		t.Fatalf("Bound=%d, want 1", st.Bound())
	}
}

func TestStore_UnbindKeepsCache(t *testing.T) {
	st := newTestStore()
	a := coretest.NewChannel("a", 0)
	st.Bind("s1", "m1", a, t0)
	st.StoreOffer("s1", "m1", "r1", []byte(`"X"`), t0)
	st.StoreCandidate("s1", "m1", []byte(`"c1"`), t0)
	st.Unbind(a)

	snap, ok := st.Snapshot("s1")
	if !ok || len(snap.Clients) != 1 {
		t.Fatalf("snapshot=%+v,%v", snap, ok)
	}
	c := snap.Clients[0]
	if c.Bound || !c.HasOffer || c.Candidates != 1 {
		t.Fatalf("client=%+v", c)
	}
}

func TestStore_TouchAndLookupDoNotCreate(t *testing.T) {
	st := newTestStore()
	if _, ok := st.Lookup("nope", "x"); ok {
		t.Fatalf("lookup found something")
	}
	if st.Len() != 0 {
		t.Fatalf("Lookup created a session")
	}
	st.Touch("s1", "r1", t0)
	snap, ok := st.Snapshot("s1")
	if !ok || len(snap.Clients) != 1 || !snap.Clients[0].LastActivity.Equal(t0) {
		t.Fatalf("snapshot=%+v", snap)
	}
	st.Touch("s1", "r1", t0.Add(-time.Hour))
	snap, _ = st.Snapshot("s1")
	if !snap.Clients[0].LastActivity.Equal(t0) {
		t.Fatalf("touch moved activity backwards: %v", snap.Clients[0].LastActivity)
	}
}

func TestStore_ReplayUnknownSession(t *testing.T) {
	st := newTestStore()
	if got := st.ReplayFor(domain.SessionID("missing"), "r1", t0); len(got) != 0 {
		t.Fatalf("replay=%v", got)
	}
	if st.Len() != 0 {
		t.Fatalf("replay created a session")
	}
}
