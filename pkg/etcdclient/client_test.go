package etcdclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMembers_DecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/members" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"members":[{"id":"8e9e05c52164694d","name":"node1","peerURLs":["http://10.0.0.1:2380"],"clientURLs":["http://10.0.0.1:2379"]}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rows, err := c.Members(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Name != "node1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].NumericID() != 0x8e9e05c52164694d {
		t.Fatalf("NumericID() = %x", rows[0].NumericID())
	}
}

func TestMembers_UnreachablePeerIsNotAnError(t *testing.T) {
	c := New("http://127.0.0.1:1") // nothing listens here
	rows, err := c.Members(context.Background())
	if err != nil {
		t.Fatalf("expected a nil error for an unreachable peer, got %v", err)
	}
	if rows != nil {
		t.Fatalf("expected nil rows for an unreachable peer, got %+v", rows)
	}
}

func TestAddMember_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"a","name":"","peerURLs":["http://10.0.0.2:2380"],"clientURLs":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	row, err := c.AddMember(context.Background(), "http://10.0.0.2:2380")
	if err != nil {
		t.Fatal(err)
	}
	if len(row.PeerURLs) != 1 || row.PeerURLs[0] != "http://10.0.0.2:2380" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestAddMember_UnexpectedStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.AddMember(context.Background(), "http://10.0.0.2:2380"); err == nil {
		t.Fatal("expected an error on an unexpected status code")
	}
}

func TestRemoveMember_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.RemoveMember(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireLock_AlreadyHeldIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	c := New(srv.URL)
	acquired, err := c.AcquireLock(context.Background(), "_self_maintenance_lock", 30, "i-1")
	if err != nil {
		t.Fatal(err)
	}
	if acquired {
		t.Fatal("expected acquired=false when the lock is already held")
	}
}

func TestAcquireLock_Created(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL)
	acquired, err := c.AcquireLock(context.Background(), "_self_maintenance_lock", 30, "i-1")
	if err != nil {
		t.Fatal(err)
	}
	if !acquired {
		t.Fatal("expected acquired=true on 201 Created")
	}
}

func TestIsLeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/stats/leader" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsLeader(context.Background()) {
		t.Fatal("expected IsLeader to be true on a 200 response")
	}
}

func TestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"etcdcluster":"3.3.13"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if v := c.Version(context.Background()); v != "3.3.13" {
		t.Fatalf("Version() = %q", v)
	}
}
