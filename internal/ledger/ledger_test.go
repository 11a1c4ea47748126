package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	requests []MintRequest
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, req MintRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

func (p *recordingPublisher) published() []MintRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MintRequest(nil), p.requests...)
}

func newRequest() MintRequest {
	contributionID := uuid.New()
	return NewMintRequest(&models.Token{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		ContributionID: &contributionID,
		Amount:         decimal.RequireFromString("12.5"),
		Type:           models.TokenTypeContribution,
	}, time.Now())
}

func TestQueueDispatcher_PublishesInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewQueueDispatcher(pub, 16)
	d.Start()

	var sent []MintRequest
	for i := 0; i < 10; i++ {
		req := newRequest()
		sent = append(sent, req)
		require.NoError(t, d.Dispatch(context.Background(), req))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	got := pub.published()
	require.Len(t, got, len(sent))
	for i := range sent {
		assert.Equal(t, sent[i].TokenID, got[i].TokenID)
	}
}

func TestQueueDispatcher_DropsWhenFull(t *testing.T) {
	d := NewQueueDispatcher(&recordingPublisher{}, 1)

	require.NoError(t, d.Dispatch(context.Background(), newRequest()))
	err := d.Dispatch(context.Background(), newRequest())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, d.Pending())
}

func TestQueueDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewQueueDispatcher(&recordingPublisher{}, 4)
	d.Start()
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Dispatch(context.Background(), newRequest()), ErrClosed)
}

func TestQueueDispatcher_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("boom")}
	d := NewQueueDispatcher(pub, 4)
	d.Start()

	require.NoError(t, d.Dispatch(context.Background(), newRequest()))
	require.NoError(t, d.Close(context.Background()))
	assert.Empty(t, pub.published())
}

func TestNopDispatcher(t *testing.T) {
	var d Dispatcher = NopDispatcher{}
	assert.NoError(t, d.Dispatch(context.Background(), newRequest()))
}

func TestStreamValues(t *testing.T) {
	req := newRequest()
	values := streamValues(req)
	assert.Equal(t, req.TokenID.String(), values["token_id"])
	assert.Equal(t, "12.5", values["amount"])
	assert.Equal(t, "contribution", values["type"])
	assert.Equal(t, req.ContributionID.String(), values["contribution_id"])

	req.ContributionID = nil
	_, ok := streamValues(req)["contribution_id"]
	assert.False(t, ok)
}

func TestRedisPublisher_BreakerOpensOnFailures(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	pub := NewRedisPublisher(client, "test-stream", BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	})
	defer pub.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := pub.Publish(ctx, newRequest())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	assert.Equal(t, gobreaker.StateOpen, pub.State())
	assert.ErrorIs(t, pub.Publish(ctx, newRequest()), ErrUnavailable)
}

func TestRedisPublisher_AppendsToStream(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(url)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	stream := "test:mint-requests:" + uuid.NewString()
	pub := NewRedisPublisher(client, stream, DefaultBreakerConfig())
	defer pub.Close()
	defer client.Del(context.Background(), stream)

	req := newRequest()
	require.NoError(t, pub.Publish(ctx, req))

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, req.TokenID.String(), entries[0].Values["token_id"])
}
