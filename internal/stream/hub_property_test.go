package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"stockwatch/internal/config"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
)

func snapshot(seq uint64) *models.Snapshot {
	return &models.Snapshot{Seq: seq}
}

// Property 7: Every subscriber ends on the latest snapshot
//
// For any number of subscribers and any number of published snapshots, every
// subscriber that keeps reading eventually sees the last published snapshot,
// and the sequence numbers it sees never go backwards.
func TestProperty7_SubscribersConvergeOnLatest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("subscribers converge on the last snapshot", prop.ForAll(
		func(subscriberCount int, publishCount int) bool {
			hub := NewHubWithConfig(HubConfig{BufferSize: 1000, SubscriberBufferSize: 4})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			last := uint64(publishCount)
			var ok int64
			var wg sync.WaitGroup
			for i := 0; i < subscriberCount; i++ {
				sub := hub.Subscribe("", TopicSnapshot)
				wg.Add(1)
				go func(sub *Subscriber) {
					defer wg.Done()
					var prev uint64
					timeout := time.After(2 * time.Second)
					for {
						select {
						case ev, open := <-sub.Events():
							if !open {
								return
							}
							if ev.Snapshot.Seq < prev {
								return
							}
							prev = ev.Snapshot.Seq
							if prev == last {
								atomic.AddInt64(&ok, 1)
								return
							}
						case <-timeout:
							return
						}
					}
				}(sub)
			}

			for i := 1; i <= publishCount; i++ {
				hub.Publish(snapshot(uint64(i)))
			}
			wg.Wait()
			return atomic.LoadInt64(&ok) == int64(subscriberCount)
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

func TestLateSubscriberGetsLatestSnapshot(t *testing.T) {
	hub := NewHub()
	hub.Publish(snapshot(1))
	hub.Publish(snapshot(2))

	sub := hub.Subscribe("late", TopicSnapshot)
	select {
	case ev := <-sub.Events():
		if ev.Snapshot.Seq != 2 {
			t.Errorf("replayed seq = %d, want 2", ev.Snapshot.Seq)
		}
	default:
		t.Fatal("late subscriber got no replay")
	}
	if hub.Latest().Seq != 2 {
		t.Errorf("Latest() = %d", hub.Latest().Seq)
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	slow := hub.Subscribe("slow", TopicSnapshot)
	fast := hub.Subscribe("fast", TopicSnapshot)

	got := make(chan uint64, 100)
	go func() {
		for ev := range fast.Events() {
			got <- ev.Snapshot.Seq
		}
	}()

	for i := 1; i <= 20; i++ {
		hub.Publish(snapshot(uint64(i)))
	}

	deadline := time.After(2 * time.Second)
wait:
	for {
		select {
		case seq := <-got:
			if seq == 20 {
				break wait
			}
		case <-deadline:
			t.Fatal("fast subscriber never saw the last snapshot")
		}
	}

	time.Sleep(20 * time.Millisecond)
	if slow.Dropped() == 0 {
		t.Error("slow subscriber should have dropped snapshots")
	}
	var seqs []uint64
	for len(slow.Events()) > 0 {
		seqs = append(seqs, (<-slow.Events()).Snapshot.Seq)
	}
	if len(seqs) == 0 || seqs[len(seqs)-1] != 20 {
		t.Errorf("slow subscriber queue = %v, want it to end with 20", seqs)
	}
}

func TestTopicsAreSeparate(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	alerts := hub.Subscribe("alerts", TopicAlert)
	snaps := hub.Subscribe("snaps", TopicSnapshot)

	n := notify.Notification{Type: notify.NotificationAlert, Title: "Low Price Alert", Message: "AAPL below 100"}
	if err := hub.Send(context.Background(), n); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-alerts.Events():
		if ev.Topic != TopicAlert || ev.Notification == nil || ev.Notification.Title != "Low Price Alert" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("alert not delivered")
	}
	select {
	case ev := <-snaps.Events():
		t.Errorf("snapshot subscriber got %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnsubscribeAndStopCloseChannels(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")
	if hub.SubscriberCount() != 2 {
		t.Errorf("SubscriberCount() = %d", hub.SubscriberCount())
	}

	hub.Unsubscribe(a)
	if _, open := <-a.Events(); open {
		t.Error("unsubscribed channel still open")
	}
	hub.Stop()
	if _, open := <-b.Events(); open {
		t.Error("channel still open after Stop")
	}
	hub.Stop()

	c := hub.Subscribe("c")
	if _, open := <-c.Events(); open {
		t.Error("subscribe after Stop should return a closed channel")
	}
}

func TestHubIsNotificationChannel(t *testing.T) {
	var _ notify.NotificationChannel = NewHub()

	mn := notify.NewMultiNotifier(config.NotificationConfig{})
	hub := NewHub()
	mn.AddChannel(hub)
	if names := mn.Channels(); len(names) != 1 || names[0] != "stream" {
		t.Errorf("Channels() = %v", names)
	}
}
