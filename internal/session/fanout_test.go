package session

import "testing"

func TestBroadcast_DropsFullClient(t *testing.T) {
	s := newSession("s1", "alice@example.com", "repo", "main", "main", "/tmp/x", nil)

	slow := &Client{ID: "slow", Out: make(chan any)} // unbuffered, never drained
	s.clients["slow"] = slow

	s.broadcast(OutputFrame{Data: []byte("hello")})

	if _, ok := s.clients["slow"]; ok {
		t.Fatal("expected slow client to be dropped on full buffer")
	}
}

func TestBroadcast_DeliversToReadyClient(t *testing.T) {
	s := newSession("s1", "alice@example.com", "repo", "main", "main", "/tmp/x", nil)

	c := NewClient("c1")
	s.clients["c1"] = c

	s.broadcast(OutputFrame{Data: []byte("hi")})

	select {
	case frame := <-c.Out:
		out, ok := frame.(OutputFrame)
		if !ok || string(out.Data) != "hi" {
			t.Fatalf("unexpected frame: %#v", frame)
		}
	default:
		t.Fatal("expected a frame to be delivered")
	}
}
