package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mishragini/OpiniXchange/internal/command"
)

// echoEngine answers one envelope with a success response of its type.
func echoEngine(t *testing.T, ctx context.Context, b Bus) {
	raw, err := b.Dequeue(ctx)
	if err != nil {
		return
	}
	var env command.Envelope
	if !assert.NoError(t, json.Unmarshal(raw, &env), "bad envelope") {
		return
	}
	resp := command.Success(env.Type, command.OK)
	assert.NoError(t, PublishJSON(ctx, b, TopicResponses, env.CorrelationID, resp), "publish")
}

func TestClient_CallRoundTrip(t *testing.T) {
	b := NewMemoryBus(16)
	defer b.Close()
	ctx := context.Background()

	client, err := NewClient(ctx, b, b, time.Second)
	require.NoError(t, err)

	go echoEngine(t, ctx, b)

	resp, err := client.Call(ctx, command.KindGetAllCategories, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"get_all_categories_response","data":{"success":true}}`, string(resp))
	assert.Equal(t, 0, client.Pending())
}

func TestClient_EnvelopeCarriesCorrelationID(t *testing.T) {
	b := NewMemoryBus(16)
	defer b.Close()
	ctx := context.Background()

	client, err := NewClient(ctx, b, b, 100*time.Millisecond)
	require.NoError(t, err)
	client.newID = func() string { return "corr-1" }

	_, err = client.Call(ctx, command.KindGetMarket, map[string]string{"marketSymbol": "RAIN"})
	assert.ErrorIs(t, err, ErrTimeout)

	raw, err := b.Dequeue(ctx)
	require.NoError(t, err)
	var env command.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, command.KindGetMarket, env.Type)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.JSONEq(t, `{"marketSymbol":"RAIN"}`, string(env.Payload))
}

func TestClient_LateResponseDropped(t *testing.T) {
	b := NewMemoryBus(16)
	defer b.Close()
	ctx := context.Background()

	client, err := NewClient(ctx, b, b, 50*time.Millisecond)
	require.NoError(t, err)
	client.newID = func() string { return "late" }

	_, err = client.Call(ctx, command.KindGetMe, nil)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, client.Pending(), "waiter removed on timeout")

	// The engine applies the command anyway and answers too late.
	_, err = b.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, TopicResponses, "late", []byte(`{}`)))

	client.newID = func() string { return "fresh" }
	client.timeout = time.Second
	go echoEngine(t, ctx, b)
	resp, err := client.Call(ctx, command.KindGetMe, nil)
	require.NoError(t, err)
	assert.Contains(t, string(resp), "get_me_response")
	assert.Equal(t, 0, client.Pending())
}

func TestClient_ContextCancel(t *testing.T) {
	b := NewMemoryBus(16)
	defer b.Close()

	client, err := NewClient(context.Background(), b, b, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, command.KindGetMe, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, client.Pending())
}

func TestClient_CloseFailsPending(t *testing.T) {
	b := NewMemoryBus(16)
	defer b.Close()

	client, err := NewClient(context.Background(), b, b, time.Minute)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), command.KindGetMe, nil)
		errc <- err
	}()
	require.Eventually(t, func() bool { return client.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call not failed")
	}

	_, err = client.Call(context.Background(), command.KindGetMe, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBus_PublishFanOut(t *testing.T) {
	b := NewMemoryBus(4)
	ctx := context.Background()

	s1, err := b.Subscribe(ctx, TopicMarketUpdates)
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx, TopicMarketUpdates, TopicOrderbookUpdates)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, TopicMarketUpdates, "RAIN", []byte(`1`)))
	require.NoError(t, b.Publish(ctx, TopicOrderbookUpdates, "RAIN", []byte(`2`)))

	assert.Equal(t, "1", string((<-s1.Messages()).Value))
	assert.Equal(t, "1", string((<-s2.Messages()).Value))
	assert.Equal(t, "2", string((<-s2.Messages()).Value))
	assert.Len(t, s1.Messages(), 0)

	require.NoError(t, s1.Close())
	require.NoError(t, b.Publish(ctx, TopicMarketUpdates, "RAIN", []byte(`3`)))
	_, ok := <-s1.Messages()
	assert.False(t, ok)

	require.NoError(t, b.Close())
	_, ok = <-s2.Messages()
	assert.True(t, ok, "buffered message still delivered")
	_, ok = <-s2.Messages()
	assert.False(t, ok)
	assert.ErrorIs(t, b.Enqueue(ctx, []byte("x")), ErrClosed)
}
