// Package ledger hands mint requests for reward tokens to the external ledger queue.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrQueueFull is returned when the in-process buffer cannot take another request
	ErrQueueFull = errors.New("ledger queue is full")
	// ErrClosed is returned after the dispatcher has been closed
	ErrClosed = errors.New("ledger dispatcher is closed")
)

// MintRequest asks the ledger to mint a pending reward token
type MintRequest struct {
	TokenID        uuid.UUID        `json:"token_id"`
	UserID         uuid.UUID        `json:"user_id"`
	ContributionID *uuid.UUID       `json:"contribution_id,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	Type           models.TokenType `json:"type"`
	RequestedAt    time.Time        `json:"requested_at"`
}

// NewMintRequest builds the request for a stored token
func NewMintRequest(t *models.Token, now time.Time) MintRequest {
	return MintRequest{
		TokenID:        t.ID,
		UserID:         t.UserID,
		ContributionID: t.ContributionID,
		Amount:         t.Amount,
		Type:           t.Type,
		RequestedAt:    now.UTC(),
	}
}

// Dispatcher accepts mint requests without blocking the caller
type Dispatcher interface {
	Dispatch(ctx context.Context, req MintRequest) error
}

// Publisher delivers a single mint request to the queue
type Publisher interface {
	Publish(ctx context.Context, req MintRequest) error
}

// NopDispatcher discards every request. Used when no queue is configured.
type NopDispatcher struct{}

// Dispatch implements Dispatcher
func (NopDispatcher) Dispatch(ctx context.Context, req MintRequest) error {
	return nil
}

// QueueDispatcher buffers requests in memory and publishes them from one goroutine
type QueueDispatcher struct {
	publisher Publisher
	queue     chan MintRequest
	logger    zerolog.Logger

	publishTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewQueueDispatcher creates a dispatcher with room for buffer pending requests
func NewQueueDispatcher(publisher Publisher, buffer int) *QueueDispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &QueueDispatcher{
		publisher:      publisher,
		queue:          make(chan MintRequest, buffer),
		logger:         logging.NewLogger("ledger"),
		publishTimeout: 5 * time.Second,
		done:           make(chan struct{}),
	}
}

// Dispatch enqueues req. It never waits for the publisher.
func (d *QueueDispatcher) Dispatch(ctx context.Context, req MintRequest) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- req:
		monitoring.RecordLedgerDispatch("queued")
		monitoring.SetLedgerQueueDepth(len(d.queue))
		return nil
	default:
		monitoring.RecordLedgerDispatch("dropped")
		d.logger.Warn().
			Str("token_id", req.TokenID.String()).
			Msg("Ledger queue full, mint request dropped")
		return ErrQueueFull
	}
}

// Start runs the publisher loop until Close is called
func (d *QueueDispatcher) Start() {
	d.mu.Lock()
	if d.started || d.closed {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go d.run()
	d.logger.Info().Int("buffer", cap(d.queue)).Msg("Ledger dispatcher started")
}

func (d *QueueDispatcher) run() {
	defer close(d.done)
	for req := range d.queue {
		monitoring.SetLedgerQueueDepth(len(d.queue))
		d.publish(req)
	}
}

func (d *QueueDispatcher) publish(req MintRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, req); err != nil {
		monitoring.RecordLedgerDispatch("failed")
		d.logger.Error().Err(err).
			Str("token_id", req.TokenID.String()).
			Msg("Failed to publish mint request")
		return
	}
	monitoring.RecordLedgerDispatch("published")
	d.logger.Debug().Str("token_id", req.TokenID.String()).Msg("Mint request published")
}

// Close stops accepting requests and waits for buffered ones to be published
// or for ctx to end.
func (d *QueueDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-d.done:
		d.logger.Info().Msg("Ledger dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of buffered requests
func (d *QueueDispatcher) Pending() int {
	return len(d.queue)
}
