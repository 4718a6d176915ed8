package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBroker(window time.Duration, bufferCap int) *Broker {
	return New(window, bufferCap, logger.NewNop())
}

// drain collects events until the subscription reports done.
func drain(t *testing.T, sub *Subscription) []model.DeltaEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []model.DeltaEvent
	for {
		evt, err := sub.Next(ctx)
		if err == ErrDone {
			return events
		}
		require.NoError(t, err)
		events = append(events, evt)
	}
}

func TestSubscribeBeforeFirstEvent(t *testing.T) {
	b := newTestBroker(15*time.Second, 64)
	producer, err := b.OpenStream("s1")
	require.NoError(t, err)

	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	defer sub.Close()

	go func() {
		producer.Publish(model.DeltaText, "hello ")
		producer.Publish(model.DeltaText, "world")
		producer.Close("hello world", false)
	}()

	events := drain(t, sub)
	require.Len(t, events, 3)
	assert.Equal(t, "hello ", events[0].Payload)
	assert.Equal(t, "world", events[1].Payload)
	assert.True(t, events[2].Terminal)
	assert.Equal(t, "hello world", events[2].Payload)
	for i, evt := range events {
		assert.Equal(t, uint64(i), evt.Sequence)
	}
}

func TestConcurrentSubscribersSeeIdenticalSequence(t *testing.T) {
	b := newTestBroker(15*time.Second, 256)
	producer, err := b.OpenStream("s1")
	require.NoError(t, err)

	const subscribers = 4
	results := make([][]model.DeltaEvent, subscribers)
	var wg sync.WaitGroup
	for i := 0; i < subscribers; i++ {
		sub, err := b.Subscribe(context.Background(), "s1", 0)
		require.NoError(t, err)
		wg.Add(1)
		go func(i int, sub *Subscription) {
			defer wg.Done()
			defer sub.Close()
			results[i] = drain(t, sub)
		}(i, sub)
	}

	var want string
	for i := 0; i < 50; i++ {
		fragment := fmt.Sprintf("f%d ", i)
		want += fragment
		producer.Publish(model.DeltaText, fragment)
	}
	producer.Close(want, false)
	wg.Wait()

	for i := 0; i < subscribers; i++ {
		require.Len(t, results[i], 51, "subscriber %d", i)
		for seq, evt := range results[i] {
			assert.Equal(t, uint64(seq), evt.Sequence)
		}
		assert.Equal(t, results[0], results[i], "subscriber %d diverged", i)
	}
	assert.Equal(t, want, results[0][50].Payload)
}

func TestResumeMidStream(t *testing.T) {
	b := newTestBroker(15*time.Second, 64)
	producer, err := b.OpenStream("s1")
	require.NoError(t, err)

	producer.Publish(model.DeltaText, "a")
	producer.Publish(model.DeltaText, "b")
	producer.Publish(model.DeltaText, "c")

	// Reconnect having already seen sequences 0 and 1.
	sub, err := b.Subscribe(context.Background(), "s1", 2)
	require.NoError(t, err)
	defer sub.Close()

	go producer.Close("abc", false)

	events := drain(t, sub)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Sequence)
	assert.Equal(t, "c", events[0].Payload)
	assert.True(t, events[1].Terminal)
}

func TestLateSubscribeWithinWindow(t *testing.T) {
	base := time.Now()
	b := newTestBroker(15*time.Second, 64)
	b.SetNow(func() time.Time { return base })

	producer, err := b.OpenStream("s1")
	require.NoError(t, err)
	producer.Publish(model.DeltaText, "hello ")
	producer.Publish(model.DeltaText, "world")
	producer.Close("hello world", false)

	b.SetNow(func() time.Time { return base.Add(10 * time.Second) })

	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	defer sub.Close()

	events := drain(t, sub)
	require.Len(t, events, 1)
	assert.True(t, events[0].Terminal)
	assert.Equal(t, "hello world", events[0].Payload)
}

func TestSubscribePastWindowExpired(t *testing.T) {
	base := time.Now()
	b := newTestBroker(15*time.Second, 64)
	b.SetNow(func() time.Time { return base })

	producer, err := b.OpenStream("s1")
	require.NoError(t, err)
	producer.Publish(model.DeltaText, "x")
	producer.Close("x", false)

	b.SetNow(func() time.Time { return base.Add(20 * time.Second) })

	_, err = b.Subscribe(context.Background(), "s1", 0)
	assert.ErrorIs(t, err, ErrResumeExpired)
}

func TestResumptionWindowBoundary(t *testing.T) {
	window := 15 * time.Second
	base := time.Now()
	b := newTestBroker(window, 64)
	b.SetNow(func() time.Time { return base })

	producer, err := b.OpenStream("s1")
	require.NoError(t, err)
	producer.Close("done", false)

	// Exactly at the boundary the resume still succeeds.
	b.SetNow(func() time.Time { return base.Add(window) })
	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	sub.Close()

	// One instant past it, it does not.
	b.SetNow(func() time.Time { return base.Add(window + time.Millisecond) })
	_, err = b.Subscribe(context.Background(), "s1", 0)
	assert.ErrorIs(t, err, ErrResumeExpired)
}

func TestSubscribeUnknownStream(t *testing.T) {
	b := newTestBroker(15*time.Second, 64)
	_, err := b.Subscribe(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestOpenStreamDuplicate(t *testing.T) {
	b := newTestBroker(15*time.Second, 64)
	_, err := b.OpenStream("s1")
	require.NoError(t, err)
	_, err = b.OpenStream("s1")
	assert.ErrorIs(t, err, ErrStreamExists)
}

func TestEvictedAttachPointRecoversViaSnapshot(t *testing.T) {
	b := newTestBroker(15*time.Second, 2)
	producer, err := b.OpenStream("s1")
	require.NoError(t, err)

	for _, fragment := range []string{"a", "b", "c", "d", "e"} {
		producer.Publish(model.DeltaText, fragment)
	}

	// Sequences 0..2 have been dropped from the replay buffer; a
	// subscriber asking for them gets one snapshot with everything so
	// far, then continues live.
	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	evt, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abcde", evt.Payload)
	assert.False(t, evt.Terminal)

	producer.Publish(model.DeltaText, "f")
	evt, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), evt.Sequence)
	assert.Equal(t, "f", evt.Payload)

	producer.Close("abcdef", false)
	evt, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.True(t, evt.Terminal)
	assert.Equal(t, "abcdef", evt.Payload)
}

func TestSlowSubscriberFallsBehindEviction(t *testing.T) {
	b := newTestBroker(15*time.Second, 2)
	producer, err := b.OpenStream("s1")
	require.NoError(t, err)

	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	producer.Publish(model.DeltaText, "a")
	evt, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", evt.Payload)

	// The subscriber stalls while the producer races ahead far enough
	// to evict its cursor position.
	for _, fragment := range []string{"b", "c", "d", "e"} {
		producer.Publish(model.DeltaText, fragment)
	}

	evt, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abcde", evt.Payload, "recovery snapshot carries all accumulated content")

	producer.Close("abcde", false)
	evt, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.True(t, evt.Terminal)
}

func TestNextContextCanceled(t *testing.T) {
	b := newTestBroker(15*time.Second, 64)
	_, err := b.OpenStream("s1")
	require.NoError(t, err)

	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextAfterClose(t *testing.T) {
	b := newTestBroker(15*time.Second, 64)
	_, err := b.OpenStream("s1")
	require.NoError(t, err)

	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	sub.Close()

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrDone)
}

func TestProducerCloseIdempotent(t *testing.T) {
	b := newTestBroker(15*time.Second, 64)
	producer, err := b.OpenStream("s1")
	require.NoError(t, err)

	producer.Close("final", false)
	producer.Close("ignored", true)

	sub, err := b.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	defer sub.Close()

	events := drain(t, sub)
	require.Len(t, events, 1)
	assert.Equal(t, "final", events[0].Payload)
}

func TestExpiredStreamSweptOnOpen(t *testing.T) {
	base := time.Now()
	b := newTestBroker(15*time.Second, 64)
	b.SetNow(func() time.Time { return base })

	producer, err := b.OpenStream("s1")
	require.NoError(t, err)
	producer.Close("done", false)

	b.SetNow(func() time.Time { return base.Add(time.Minute) })
	_, err = b.OpenStream("s2")
	require.NoError(t, err)

	_, err = b.Subscribe(context.Background(), "s1", 0)
	assert.ErrorIs(t, err, ErrStreamNotFound)
}
