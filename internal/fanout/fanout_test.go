package fanout

import (
	"fmt"
	"sync"
	"testing"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()

	var mu sync.Mutex
	received := make(map[string][]string)

	for _, id := range []string{"conn-1", "conn-2"} {
		id := id
		b.AddSubscriber(id, func(e Event) {
			mu.Lock()
			received[id] = append(received[id], e.Topic)
			mu.Unlock()
		})
	}

	b.Publish("device/d1/status", []byte(`{"status":"online"}`))

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"conn-1", "conn-2"} {
		if len(received[id]) != 1 || received[id][0] != "device/d1/status" {
			t.Errorf("subscriber %s received %v, want one status event", id, received[id])
		}
	}
}

func TestPublishRegistrationOrder(t *testing.T) {
	b := New()

	var order []string
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("conn-%d", i)
		b.AddSubscriber(id, func(e Event) {
			order = append(order, id)
		})
	}

	b.Publish("topic", nil)

	for i, id := range order {
		if want := fmt.Sprintf("conn-%d", i); id != want {
			t.Fatalf("delivery order[%d] = %s, want %s", i, id, want)
		}
	}
	if len(order) != 5 {
		t.Fatalf("delivered to %d subscribers, want 5", len(order))
	}
}

func TestRemoveSubscriber(t *testing.T) {
	b := New()

	called := false
	b.AddSubscriber("conn-1", func(Event) { called = true })
	b.RemoveSubscriber("conn-1")

	b.Publish("topic", nil)

	if called {
		t.Error("removed subscriber still received event")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
}

func TestRemoveUnknownSubscriber(t *testing.T) {
	b := New()
	b.RemoveSubscriber("never-registered") // must not panic
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New()

	b.AddSubscriber("conn-bad", func(Event) {
		panic("subscriber bug")
	})

	survived := false
	b.AddSubscriber("conn-good", func(Event) { survived = true })

	b.Publish("topic", nil)

	if !survived {
		t.Error("subscriber after panicking one did not receive event")
	}
}

func TestPanicIsLogged(t *testing.T) {
	b := New()

	var logged []string
	b.SetLogger(logFunc(func(msg string, args ...any) {
		logged = append(logged, msg)
	}))

	b.AddSubscriber("conn-bad", func(Event) { panic("boom") })
	b.Publish("topic", nil)

	if len(logged) != 1 {
		t.Errorf("logged %d errors, want 1", len(logged))
	}
}

func TestReRegisterReplacesCallback(t *testing.T) {
	b := New()

	firstCalled := false
	b.AddSubscriber("conn-1", func(Event) { firstCalled = true })

	secondCalled := false
	b.AddSubscriber("conn-1", func(Event) { secondCalled = true })

	b.Publish("topic", nil)

	if firstCalled {
		t.Error("replaced callback was still invoked")
	}
	if !secondCalled {
		t.Error("replacement callback was not invoked")
	}
	if b.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}
}

func TestAddNilCallback(t *testing.T) {
	b := New()
	b.AddSubscriber("conn-1", nil)

	if b.SubscriberCount() != 0 {
		t.Error("nil callback was registered")
	}
	b.Publish("topic", nil) // must not panic
}

func TestSubscriberCanRemoveItselfDuringDelivery(t *testing.T) {
	b := New()

	b.AddSubscriber("conn-1", func(Event) {
		b.RemoveSubscriber("conn-1")
	})

	b.Publish("topic", nil)
	b.Publish("topic", nil) // second publish after self-removal

	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
}

func TestConcurrentPublish(t *testing.T) {
	b := New()

	var mu sync.Mutex
	count := 0
	b.AddSubscriber("conn-1", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish("topic", nil)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("subscriber invoked %d times, want 10", count)
	}
}

// logFunc adapts a function to the Logger interface.
type logFunc func(msg string, args ...any)

func (f logFunc) Error(msg string, args ...any) { f(msg, args...) }
