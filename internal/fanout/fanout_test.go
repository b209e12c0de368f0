package fanout

import (
	"testing"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

func testPacket(seq int64) *pipeline.Packet {
	return pipeline.NewPacket(pipeline.MediaVideo, []byte{byte(seq)}, seq, 1, pipeline.VideoTimeBase, false)
}

func TestSubscribeAndPublishDelivers(t *testing.T) {
	f := New(4)
	_, ch := f.Subscribe()

	f.Publish(testPacket(1))

	select {
	case pkt := <-ch:
		if pkt.PTS != 1 {
			t.Errorf("PTS = %d, want 1", pkt.PTS)
		}
	default:
		t.Fatal("expected a packet on the subscriber's queue")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	f := New(4)
	_, a := f.Subscribe()
	_, b := f.Subscribe()

	f.Publish(testPacket(7))

	for name, ch := range map[string]<-chan *pipeline.Packet{"a": a, "b": b} {
		select {
		case pkt := <-ch:
			if pkt.PTS != 7 {
				t.Errorf("%s: PTS = %d, want 7", name, pkt.PTS)
			}
		default:
			t.Fatalf("%s: expected a packet", name)
		}
	}
}

func TestFullQueueDropsForThatSubscriberOnly(t *testing.T) {
	f := New(1)
	slowID, slow := f.Subscribe()
	_, fast := f.Subscribe()

	f.Publish(testPacket(1)) // fills both queues to capacity 1
	f.Publish(testPacket(2)) // both queues are still full, so packet 2 is dropped for each

	<-fast // drain fast's first packet so the next publish can land
	f.Publish(testPacket(3))

	if got := f.DroppedCount(slowID); got == 0 {
		t.Error("expected at least one drop recorded for the subscriber that never drained")
	}

	select {
	case pkt := <-fast:
		if pkt.PTS != 3 {
			t.Errorf("fast queue PTS = %d, want 3 (the packet published after draining)", pkt.PTS)
		}
	default:
		t.Fatal("fast queue should have received the packet published after it drained")
	}

	if _, ok := <-slow; !ok {
		t.Fatal("slow queue should still hold its first packet")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := New(4)
	id, ch := f.Subscribe()
	f.Unsubscribe(id)

	f.Publish(testPacket(1))

	if _, ok := <-ch; ok {
		t.Error("expected the channel to be closed after Unsubscribe")
	}
}

func TestSubscribersCount(t *testing.T) {
	f := New(4)
	if f.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", f.Subscribers())
	}
	id, _ := f.Subscribe()
	if f.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", f.Subscribers())
	}
	f.Unsubscribe(id)
	if f.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0 after Unsubscribe", f.Subscribers())
	}
}

func TestCloseUnsubscribesEveryone(t *testing.T) {
	f := New(4)
	_, a := f.Subscribe()
	_, b := f.Subscribe()
	f.Close()

	if f.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0 after Close", f.Subscribers())
	}
	if _, ok := <-a; ok {
		t.Error("expected a's channel closed")
	}
	if _, ok := <-b; ok {
		t.Error("expected b's channel closed")
	}
}

func TestDroppedCountForUnknownSubscriptionIsZero(t *testing.T) {
	f := New(4)
	if got := f.DroppedCount(SubscriptionID("nonexistent")); got != 0 {
		t.Errorf("DroppedCount for unknown id = %d, want 0", got)
	}
}
