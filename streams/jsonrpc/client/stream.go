package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/streams/jsonrpc/api"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StreamConfig holds the configuration for an EventStream.
type StreamConfig struct {
	URL        string
	Logger     Logger
	BufferSize uint
	// PairID restricts the stream to one pair when set.
	PairID *common.Hash
}

// validate checks if the configuration is valid.
func (c *StreamConfig) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// EventProcessor
// -----------------------------------------------------------------------------

// EventProcessor decodes subscription notifications, drops replays and
// forwards new events in sequence order. It does no networking.
type EventProcessor struct {
	lastSeq  uint64
	filtered bool
	resync   bool
	eventCh  chan *api.Event
	logger   Logger
}

// NewEventProcessor creates a processor. A filtered processor expects gaps in
// the sequence and does not report them.
func NewEventProcessor(logger Logger, bufferSize uint, filtered bool) *EventProcessor {
	return &EventProcessor{
		filtered: filtered,
		eventCh:  make(chan *api.Event, bufferSize),
		logger:   logger,
	}
}

// Events returns a read-only channel of decoded events.
func (ep *EventProcessor) Events() <-chan *api.Event {
	return ep.eventCh
}

// LastSeq returns the sequence number of the last forwarded event.
func (ep *EventProcessor) LastSeq() uint64 {
	return ep.lastSeq
}

// Resync marks the start of a new subscription. The next event is accepted
// even when its sequence number is not above the last one seen, since the
// server may have restarted.
func (ep *EventProcessor) Resync() {
	ep.resync = true
}

// ProcessMessage decodes one raw notification and forwards it. It waits for
// room on the event channel until ctx is done.
func (ep *EventProcessor) ProcessMessage(ctx context.Context, rawData json.RawMessage) error {
	var ev api.Event
	if err := json.Unmarshal(rawData, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if _, err := ev.Decode(); err != nil {
		return err
	}

	switch {
	case ep.lastSeq == 0:
	case ev.Seq <= ep.lastSeq && ep.resync:
		ep.logger.Info("Event sequence restarted; server state was reset", "last_seq", ep.lastSeq, "seq", ev.Seq)
	case ev.Seq <= ep.lastSeq:
		ep.logger.Debug("Discarding replayed event", "seq", ev.Seq, "last_seq", ep.lastSeq)
		return nil
	case !ep.filtered && ev.Seq != ep.lastSeq+1:
		ep.logger.Warn("Missed events; local view may be stale", "last_seq", ep.lastSeq, "seq", ev.Seq)
	}
	ep.lastSeq = ev.Seq
	ep.resync = false

	ep.logger.Debug("Event received",
		"seq", ev.Seq,
		"kind", ev.Kind,
		"pair", ev.PairID,
		"latency_transport_ms", time.Since(time.Unix(0, ev.SentAt)).Milliseconds(),
		"latency_total_ms", time.Since(time.Unix(0, ev.Timestamp)).Milliseconds(),
	)

	select {
	case ep.eventCh <- &ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// EventStream (Networking Wrapper)
// -----------------------------------------------------------------------------

// EventStream keeps a subscription to the daemon's event stream alive,
// reconnecting with exponential backoff.
type EventStream struct {
	processor *EventProcessor
	pairID    *common.Hash
	errCh     chan error
	logger    Logger
}

// NewEventStream starts streaming in the background until ctx is canceled.
func NewEventStream(ctx context.Context, cfg StreamConfig) (*EventStream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &EventStream{
		processor: NewEventProcessor(cfg.Logger, cfg.BufferSize, cfg.PairID != nil),
		pairID:    cfg.PairID,
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go s.run(ctx, cfg.URL)
	return s, nil
}

// Events delegates to the processor's event channel.
func (s *EventStream) Events() <-chan *api.Event {
	return s.processor.Events()
}

// Err returns a channel receiving unrecoverable errors. It is closed when the
// stream stops.
func (s *EventStream) Err() <-chan error {
	return s.errCh
}

func (s *EventStream) run(ctx context.Context, url string) {
	defer close(s.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			s.logger.Info("Stream context canceled, shutting down.")
			return
		}

		s.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			s.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		s.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = s.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("Context canceled, shutting down.")
				return
			}
			var apiErr *api.Error
			if errors.As(err, &apiErr) {
				// the server rejected the subscription itself; retrying cannot help
				s.errCh <- err
				return
			}
			s.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (s *EventStream) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	args := []interface{}{api.EventsSubscriptionMethod}
	if s.pairID != nil {
		args = append(args, *s.pairID)
	}

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, api.Namespace, rawCh, args...)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", api.FromRPCError(err))
	}
	defer sub.Unsubscribe()
	s.processor.Resync()

	s.logger.Info("Successfully subscribed. Waiting for events...")
	for {
		select {
		case rawData := <-rawCh:
			if err := s.processor.ProcessMessage(ctx, rawData); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
