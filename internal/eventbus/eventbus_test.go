package eventbus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return New(log)
}

func TestSubscribeReceivesOnlyItsJob(t *testing.T) {
	b := newTestBus()
	var gotA, gotB []UpdateEvent

	unsubA := b.Subscribe("jobA", func(e UpdateEvent) { gotA = append(gotA, e) })
	defer unsubA()
	unsubB := b.Subscribe("jobB", func(e UpdateEvent) { gotB = append(gotB, e) })
	defer unsubB()

	b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "jobA"})
	b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "jobB"})

	require.Len(t, gotA, 1)
	require.Len(t, gotB, 1)
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := newTestBus()
	var all []UpdateEvent
	unsub := b.SubscribeAll(func(e UpdateEvent) { all = append(all, e) })
	defer unsub()

	b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "jobA"})
	b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "jobB"})

	require.Len(t, all, 2)
}

func TestUnsubscribeIsIdempotentAndStopsDelivery(t *testing.T) {
	b := newTestBus()
	count := 0
	unsub := b.Subscribe("job1", func(UpdateEvent) { count++ })

	b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "job1"})
	unsub()
	unsub() // must not panic
	b.Emit(UpdateEvent{Type: EventJobCompleted, JobID: "job1"})

	require.Equal(t, 1, count)
}

func TestInOrderDeliveryPerJob(t *testing.T) {
	b := newTestBus()
	var order []EventType
	unsub := b.Subscribe("job1", func(e UpdateEvent) { order = append(order, e.Type) })
	defer unsub()

	b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "job1"})
	b.Emit(UpdateEvent{Type: EventRouterStarted, JobID: "job1"})
	b.Emit(UpdateEvent{Type: EventJobCompleted, JobID: "job1"})

	require.Equal(t, []EventType{EventJobStarted, EventRouterStarted, EventJobCompleted}, order)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newTestBus()
	called := false

	unsub1 := b.Subscribe("job1", func(UpdateEvent) { panic("boom") })
	defer unsub1()
	unsub2 := b.Subscribe("job1", func(UpdateEvent) { called = true })
	defer unsub2()

	require.NotPanics(t, func() {
		b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "job1"})
	})
	require.True(t, called)
}

func TestCleanupRemovesJobSubscribers(t *testing.T) {
	b := newTestBus()
	count := 0
	_ = b.Subscribe("job1", func(UpdateEvent) { count++ })

	b.Cleanup("job1")
	b.Emit(UpdateEvent{Type: EventJobStarted, JobID: "job1"})

	require.Equal(t, 0, count)
}

func TestSingletonReturnsSameInstance(t *testing.T) {
	log := logrus.New()
	a := Singleton(log)
	c := Singleton(log)
	require.Same(t, a, c)
}
