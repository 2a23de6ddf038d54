package directmsg

import "testing"

func TestEnqueueOverflowDrops(t *testing.T) {
	q := NewQueues()
	for i := 0; i < QueueLimit; i++ {
		if _, ok := q.Enqueue("fleet-1", "b", "a", "", []byte("x")); !ok {
			t.Fatalf("unexpected drop before reaching limit at i=%d", i)
		}
	}
	if _, ok := q.Enqueue("fleet-1", "b", "a", "", []byte("overflow")); ok {
		t.Fatal("expected overflow to be dropped")
	}
}

func TestDrainReturnsFIFOOrder(t *testing.T) {
	q := NewQueues()
	q.Enqueue("fleet-1", "b", "a", "c1", []byte("first"))
	q.Enqueue("fleet-1", "b", "a", "c2", []byte("second"))

	msgs := q.Drain("fleet-1", "b")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Payload) != "first" || string(msgs[1].Payload) != "second" {
		t.Fatalf("unexpected order: %+v", msgs)
	}

	if msgs := q.Drain("fleet-1", "b"); len(msgs) != 0 {
		t.Fatalf("expected drained queue to be empty, got %d", len(msgs))
	}
}
