package messaging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pubflow/pubflow-go/contracts"
)

// engineState is the confirmation engine's lifecycle position. Transitions
// are monotonic and race via compare-and-swap: exactly one transition into
// stateComplete wins, and that winner delivers the single terminal signal.
type engineState int32

const (
	// stateInit: before the confirm listener is registered.
	stateInit engineState = iota
	// stateActive: consuming input and accepting confirmations.
	stateActive
	// stateOutboundDone: input exhausted, confirmations still pending.
	stateOutboundDone
	// stateComplete: terminal. No further results or signals.
	stateComplete
)

// ConfirmStream is the asynchronous result sequence of a confirmed send.
// Results arrive as broker confirmations trickle in; the channel is closed
// exactly once when the operation reaches its terminal state.
type ConfirmStream struct {
	results chan contracts.OutboundMessageResult
	err     error
}

// Results returns the per-message result channel. It is closed after the
// terminal signal; no result is ever delivered after that.
func (s *ConfirmStream) Results() <-chan contracts.OutboundMessageResult {
	return s.results
}

// Err reports the terminal failure, or nil on success. Valid once Results
// has been closed.
func (s *ConfirmStream) Err() error {
	return s.err
}

// confirmEngine tracks publishes against their broker confirmations for one
// SendWithConfirms invocation. Two goroutines mutate it concurrently: the
// producer (publishing input messages) and the confirmation pump (resolving
// ack/nack notifications). Completion work runs on a third goroutine so the
// pump is never blocked on channel teardown.
type confirmEngine struct {
	ctx     context.Context
	channel Channel
	logger  *slog.Logger
	stream  *ConfirmStream

	state       atomic.Int32
	firstErr    atomic.Pointer[error]
	unconfirmed *unconfirmedRegistry

	emitMu     sync.Mutex
	terminated bool
}

func newConfirmEngine(ctx context.Context, ch Channel, logger *slog.Logger) *confirmEngine {
	return &confirmEngine{
		ctx:     ctx,
		channel: ch,
		logger:  logger,
		stream: &ConfirmStream{
			results: make(chan contracts.OutboundMessageResult),
		},
		unconfirmed: newUnconfirmedRegistry(),
	}
}

// SendWithConfirms publishes every input message on one fresh channel in
// confirmation mode and returns a stream carrying one result per published
// message, followed by exactly one terminal signal. See ConfirmStream.
//
// Cancelling ctx abandons the operation: in-flight confirmations are never
// delivered, the channel is closed and the stream terminates with ctx's
// error.
func (s *Sender) SendWithConfirms(ctx context.Context, messages <-chan contracts.OutboundMessage) (*ConfirmStream, error) {
	ch, err := s.provider.Channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(); err != nil {
		s.closeChannel(ch)
		return nil, err
	}

	engine := newConfirmEngine(ctx, ch, s.logger)
	go engine.run(messages)
	return engine.stream, nil
}

// run is the producer loop. It registers the confirm listener, publishes
// input messages and performs the outbound-done transition when the input is
// exhausted.
func (e *confirmEngine) run(messages <-chan contracts.OutboundMessage) {
	e.channel.ConfirmListener(
		func(tag uint64, multiple bool) { e.handleConfirm(tag, multiple, true) },
		func(tag uint64, multiple bool) { e.handleConfirm(tag, multiple, false) },
	)
	e.channel.CloseListener(func(err error) {
		e.onError(&contracts.ChannelError{
			Op:        "await confirmations",
			Err:       err,
			Timestamp: time.Now(),
		})
	})
	e.state.Store(int32(stateActive))

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				e.outboundDone()
				return
			}
			if e.dropIfComplete(msg) {
				// Keep draining so the producer never blocks on a stream
				// that already failed.
				continue
			}
			e.publish(msg)
		case <-e.ctx.Done():
			e.onError(e.ctx.Err())
			return
		}
	}
}

// publish registers the message under its sequence number before issuing the
// publish call, closing the race where a confirmation could arrive before
// registration. On failure the partial registration is removed, a negative
// result is emitted immediately and the error takes the shared failure path.
func (e *confirmEngine) publish(msg contracts.OutboundMessage) {
	tag := e.channel.NextPublishSeqNo()
	e.unconfirmed.Add(tag, msg)
	if err := e.channel.Publish(e.ctx, msg); err != nil {
		e.unconfirmed.Remove(tag)
		e.handleError(err, &contracts.OutboundMessageResult{Message: msg, Ack: false, Err: err})
	}
}

// outboundDone marks the input exhausted and completes if nothing is
// pending.
func (e *confirmEngine) outboundDone() {
	if e.state.CompareAndSwap(int32(stateActive), int32(stateOutboundDone)) && e.unconfirmed.Len() == 0 {
		e.maybeComplete()
	}
}

// handleConfirm resolves one ack/nack notification against the registry.
// Runs on the confirmation pump goroutine.
func (e *confirmEngine) handleConfirm(tag uint64, multiple, ack bool) {
	if multiple {
		for _, pending := range e.unconfirmed.RemoveUpTo(tag) {
			e.emit(contracts.OutboundMessageResult{Message: pending.message, Ack: ack})
		}
	} else {
		if msg, ok := e.unconfirmed.Remove(tag); ok {
			e.emit(contracts.OutboundMessageResult{Message: msg, Ack: ack})
		} else {
			e.logger.Debug("confirmation for unknown delivery tag", "tag", tag, "ack", ack)
		}
	}

	if e.unconfirmed.Len() == 0 {
		// Completion closes the channel, which must never happen on the
		// notification pump itself.
		go e.maybeComplete()
	}
}

// handleError emits an optional per-message result and routes the error into
// the terminal failure path, unless the engine already completed.
func (e *confirmEngine) handleError(err error, result *contracts.OutboundMessageResult) {
	e.logger.Error("publish confirm send failed", "error", err)
	complete := e.isComplete()
	e.recordFirstError(err)
	if !complete {
		if result != nil {
			e.emit(*result)
		}
		e.onError(err)
	}
}

// onError attempts the failure transition to COMPLETE. The compare-and-swap
// decides the race against a concurrent successful completion: exactly one
// terminal signal reaches the caller. A losing error is captured in the
// first-failure cell if it is empty, then dropped.
func (e *confirmEngine) onError(err error) {
	if e.state.CompareAndSwap(int32(stateActive), int32(stateComplete)) ||
		e.state.CompareAndSwap(int32(stateOutboundDone), int32(stateComplete)) {
		e.closeResources()
		e.terminate(err)
	} else if e.recordFirstError(err) && e.isComplete() {
		e.logger.Debug("dropping error after completion", "error", err)
	}
}

// maybeComplete attempts the successful OUTBOUND_DONE -> COMPLETE
// transition.
func (e *confirmEngine) maybeComplete() {
	if e.state.CompareAndSwap(int32(stateOutboundDone), int32(stateComplete)) {
		e.closeResources()
		e.terminate(nil)
	}
}

// emit delivers one result to the caller, dropping it if the terminal signal
// has already been sent or the caller abandoned the stream.
func (e *confirmEngine) emit(result contracts.OutboundMessageResult) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if e.terminated {
		e.logger.Debug("dropping result after completion",
			"messageId", result.Message.Properties.MessageID,
			"ack", result.Ack)
		return
	}
	select {
	case e.stream.results <- result:
	case <-e.ctx.Done():
		// Caller walked away; the result is abandoned.
	}
}

// terminate delivers the single terminal signal: the stream error is set
// before the results channel closes, so readers observing the close see it.
func (e *confirmEngine) terminate(err error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if e.terminated {
		return
	}
	e.terminated = true
	e.stream.err = err
	close(e.stream.results)
}

// closeResources closes the confirmation channel, best-effort.
func (e *confirmEngine) closeResources() {
	if e.channel.IsClosed() {
		return
	}
	if err := e.channel.Close(); err != nil {
		e.logger.Warn("confirm channel did not close cleanly", "error", err)
	}
}

// dropIfComplete reports whether the engine already completed, logging the
// dropped message when the completion was not a failure.
func (e *confirmEngine) dropIfComplete(msg contracts.OutboundMessage) bool {
	if !e.isComplete() {
		return false
	}
	if e.firstErr.Load() == nil {
		e.logger.Debug("dropping message after completion",
			"messageId", msg.Properties.MessageID)
	}
	return true
}

func (e *confirmEngine) isComplete() bool {
	return engineState(e.state.Load()) == stateComplete
}

// recordFirstError captures the first observed failure; reports whether this
// call was the one that captured it.
func (e *confirmEngine) recordFirstError(err error) bool {
	return e.firstErr.CompareAndSwap(nil, &err)
}
