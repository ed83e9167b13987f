package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskoracle/internal/circuitbreaker"
	"github.com/mbd888/riskoracle/internal/events"
	"github.com/mbd888/riskoracle/internal/retry"
)

var noRetry = retry.Policy{MaxAttempts: 1}

func testEvent() events.RiskUpdated {
	return events.RiskUpdated{
		ID:          "evt-1",
		Type:        events.TypeRiskUpdated,
		ValidatorID: "validator_1",
		Score:       42,
		Admin:       "0x00000000000000000000000000000000000000aA",
		At:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type delivery struct {
	header http.Header
	body   []byte
}

func recordingServer(t *testing.T, status int) (*httptest.Server, func() []delivery) {
	t.Helper()
	var mu sync.Mutex
	var got []delivery
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, delivery{header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)
	return ts, func() []delivery {
		mu.Lock()
		defer mu.Unlock()
		return append([]delivery(nil), got...)
	}
}

func TestPublish_SignedDelivery(t *testing.T) {
	ts, deliveries := recordingServer(t, http.StatusNoContent)
	p := New([]string{ts.URL}, "s3cret", WithRetry(noRetry))

	require.NoError(t, p.Publish(context.Background(), testEvent()))

	got := deliveries()
	require.Len(t, got, 1)
	d := got[0]
	assert.Equal(t, events.TypeRiskUpdated, d.header.Get(HeaderEvent))
	assert.Equal(t, "evt-1", d.header.Get(HeaderEventID))

	ts64, err := strconv.ParseInt(d.header.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.True(t, Verify("s3cret", ts64, d.body, d.header.Get(HeaderSignature)))
	assert.False(t, Verify("other", ts64, d.body, d.header.Get(HeaderSignature)))

	var ev events.RiskUpdated
	require.NoError(t, json.Unmarshal(d.body, &ev))
	assert.Equal(t, uint8(42), ev.Score)

	st := p.Status()
	require.Len(t, st, 1)
	assert.NotNil(t, st[0].LastSuccess)
	assert.Equal(t, "closed", st[0].Circuit)
}

func TestPublish_NoSecretNoSignature(t *testing.T) {
	ts, deliveries := recordingServer(t, http.StatusOK)
	p := New([]string{ts.URL}, "", WithRetry(noRetry))

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Empty(t, deliveries()[0].header.Get(HeaderSignature))
}

func TestPublish_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := New([]string{ts.URL}, "", WithRetry(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublish_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := New([]string{ts.URL}, "", WithRetry(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "status 404", p.Status()[0].LastError)
}

func TestPublish_OneFailingEndpointDoesNotBlockOthers(t *testing.T) {
	bad, _ := recordingServer(t, http.StatusInternalServerError)
	good, deliveries := recordingServer(t, http.StatusOK)

	p := New([]string{bad.URL, good.URL}, "", WithRetry(noRetry))
	err := p.Publish(context.Background(), testEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.URL)
	assert.Len(t, deliveries(), 1)
}

func TestPublish_OpenCircuitSkipsEndpoint(t *testing.T) {
	ts, deliveries := recordingServer(t, http.StatusInternalServerError)
	p := New([]string{ts.URL}, "",
		WithRetry(noRetry),
		WithBreaker(circuitbreaker.New(2, time.Hour)),
	)

	ctx := context.Background()
	assert.Error(t, p.Publish(ctx, testEvent()))
	assert.Error(t, p.Publish(ctx, testEvent()))
	assert.NoError(t, p.Publish(ctx, testEvent()), "skipped deliveries are not errors")

	assert.Len(t, deliveries(), 2)
	assert.Equal(t, "open", p.Status()[0].Circuit)
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte(`{"score":1}`)
	assert.Equal(t, Sign("k", 100, payload), Sign("k", 100, payload))
	assert.NotEqual(t, Sign("k", 100, payload), Sign("k", 101, payload))
	assert.False(t, Verify("k", 100, payload, "not-hex"))
}
