// Implements the verification state machine. The orchestrator consumes
// normalized events and confirmation-bridge signals, and drives every
// transaction from the initial request to a terminal state.

package protocol

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultConfirmationWindow is how long the orchestrator waits
	// for the operator to confirm a SAS match.
	DefaultConfirmationWindow = 5 * time.Minute
	// DefaultPollInterval is the cadence of the confirmation wait
	// loop's non-blocking reads from the bridge.
	DefaultPollInterval = 100 * time.Millisecond
)

// An Orchestrator drives verification transactions through the
// handshake. Dispatch is safe for concurrent use; transactions are
// fully independent and a stuck handshake never blocks another.
type Orchestrator struct {
	// Window bounds the wait for a human confirmation.
	Window time.Duration
	// PollInterval is the confirmation wait loop's poll cadence.
	PollInterval time.Duration
	// BridgeAddr is the loopback address of the confirmation bridge,
	// included in the operator instructions.
	BridgeAddr string

	verifier Verifier
	registry *Registry
	codes    Confirmer
	reporter *Reporter
	journal  OutcomeRecorder
	logger   Logger
}

// NewOrchestrator constructs an orchestrator over the given capability
// surfaces. journal may be nil to disable outcome recording.
func NewOrchestrator(verifier Verifier, registry *Registry, codes Confirmer,
	reporter *Reporter, journal OutcomeRecorder, logger Logger) *Orchestrator {
	return &Orchestrator{
		Window:       DefaultConfirmationWindow,
		PollInterval: DefaultPollInterval,
		verifier:     verifier,
		registry:     registry,
		codes:        codes,
		reporter:     reporter,
		journal:      journal,
		logger:       logger,
	}
}

// Dispatch handles one normalized verification event. It re-validates
// the transaction's current state before accepting any transition, so
// duplicated or reordered events are dropped rather than corrupting a
// transaction. Returned codes are for logging; every failure is
// contained to the affected transaction.
func (o *Orchestrator) Dispatch(ctx context.Context, ev *Event) ErrorCode {
	switch ev.Kind {
	case EventRequested:
		return o.handleRequested(ctx, ev)
	case EventStarted:
		return o.handleStarted(ctx, ev)
	case EventKeyExchanged:
		return o.handleKeyExchanged(ctx, ev)
	case EventDone:
		return o.handleDone(ctx, ev)
	case EventCancelled:
		return o.handleCancelled(ctx, ev)
	}
	return ErrMalformedEnvelope
}

// handleRequested creates the transaction and auto-accepts the peer's
// request. There is no human veto at request time; acceptance failure
// discards the transaction and the peer is expected to resend.
func (o *Orchestrator) handleRequested(ctx context.Context, ev *Event) ErrorCode {
	tx, created := o.registry.LookupOrCreate(ev.Peer, ev.TransactionID, ev.Transport)
	if !created {
		o.logger.Debug("duplicate verification request ignored",
			"peer", ev.Peer, "transaction", ev.TransactionID)
		return EventIgnored
	}
	if err := o.verifier.AcceptRequest(ctx, ev.Peer, ev.TransactionID); err != nil {
		o.logger.Error("can't accept verification request",
			"peer", ev.Peer, "error", err)
		o.terminate(tx, StateCancelled)
		return ErrTransportFailure
	}
	o.logger.Info("accepted verification request",
		"peer", ev.Peer, "transaction", ev.TransactionID,
		"transport", ev.Transport.String())

	tx.mu.Lock()
	if tx.state == StatePendingAccept {
		tx.state = StateStarted
	}
	tx.mu.Unlock()
	return ReqSuccess
}

// handleStarted accepts the start of the SAS handshake. A start may be
// the first event observed for a transaction (the in-conversation
// family allows it), in which case the transaction is created here.
func (o *Orchestrator) handleStarted(ctx context.Context, ev *Event) ErrorCode {
	tx, _ := o.registry.LookupOrCreate(ev.Peer, ev.TransactionID, ev.Transport)

	tx.mu.Lock()
	if tx.state > StateStarted || tx.startAccepted {
		tx.mu.Unlock()
		o.logger.Debug("out-of-order start event ignored",
			"peer", ev.Peer, "transaction", ev.TransactionID)
		return EventIgnored
	}
	tx.startAccepted = true
	tx.mu.Unlock()

	if err := o.verifier.AcceptStart(ctx, ev.Peer, ev.TransactionID); err != nil {
		o.logger.Error("can't accept verification start",
			"peer", ev.Peer, "error", err)
		o.terminate(tx, StateCancelled)
		return ErrTransportFailure
	}

	tx.mu.Lock()
	if tx.state < StateStarted {
		tx.state = StateStarted
	}
	tx.mu.Unlock()
	o.logger.Info("starting verification",
		"peer", ev.Peer, "transaction", ev.TransactionID)
	o.reporter.Devices(ctx, ev.Peer)
	return ReqSuccess
}

// handleKeyExchanged derives the SAS, generates the transaction's
// confirmation code and opens the bounded wait for the operator.
func (o *Orchestrator) handleKeyExchanged(ctx context.Context, ev *Event) ErrorCode {
	tx := o.registry.Lookup(ev.Peer, ev.TransactionID)
	if tx == nil {
		o.logger.Error("no transaction for key exchange",
			"peer", ev.Peer, "transaction", ev.TransactionID)
		return ErrUnknownTransaction
	}
	if tx.State() != StateStarted {
		return EventIgnored
	}

	sas, err := o.verifier.SASCode(ctx, ev.Peer, ev.TransactionID)
	if err != nil {
		o.logger.Error("can't derive SAS code", "peer", ev.Peer, "error", err)
		o.terminate(tx, StateCancelled)
		return ErrTransportFailure
	}

	u := uuid.New()
	code := hex.EncodeToString(u[:])
	codes, cancel := o.codes.Subscribe()

	tx.mu.Lock()
	if tx.state != StateStarted {
		// a cancel landed while the SAS was being derived
		tx.mu.Unlock()
		cancel()
		return EventIgnored
	}
	tx.confirmationCode = code
	tx.startedAt = time.Now()
	tx.state = StateWaitingConfirmation
	tx.cancelSub = cancel
	tx.mu.Unlock()

	o.logger.Info("do the codes match", "peer", ev.Peer, "sas", sas)
	o.logger.Info("run the command to allow", "command",
		fmt.Sprintf("wget -O - http://%s/verify/%s", o.BridgeAddr, code),
		"valid_until", tx.StartedAt().Add(o.Window))

	go o.waitForConfirmation(ctx, tx, codes)
	return ReqSuccess
}

// handleDone completes a transaction whose trust the peer finalized
// first. A done event for a transaction that has not been confirmed
// locally is dropped.
func (o *Orchestrator) handleDone(ctx context.Context, ev *Event) ErrorCode {
	tx := o.registry.Lookup(ev.Peer, ev.TransactionID)
	if tx == nil {
		o.logger.Debug("done event for unknown transaction",
			"peer", ev.Peer, "transaction", ev.TransactionID)
		return ErrUnknownTransaction
	}
	if tx.State() != StateConfirmed {
		return EventIgnored
	}
	o.finish(ctx, tx)
	return ReqSuccess
}

func (o *Orchestrator) handleCancelled(ctx context.Context, ev *Event) ErrorCode {
	tx := o.registry.Lookup(ev.Peer, ev.TransactionID)
	if tx == nil {
		return ErrUnknownTransaction
	}
	o.logger.Info("verification cancelled by peer",
		"peer", ev.Peer, "transaction", ev.TransactionID)
	o.terminate(tx, StateCancelled)
	return ReqSuccess
}

// waitForConfirmation polls the bridge subscription until a submitted
// code exactly matches the transaction's confirmation code or the
// window elapses. The goroutine is owned by the transaction: eviction
// closes the subscription, which ends the loop.
func (o *Orchestrator) waitForConfirmation(ctx context.Context, tx *Transaction, codes <-chan string) {
	deadline := time.NewTimer(o.Window)
	defer deadline.Stop()
	ticker := time.NewTicker(o.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.expire(tx)
			return
		case <-ticker.C:
		drain:
			for {
				select {
				case code, ok := <-codes:
					if !ok {
						return
					}
					if code == tx.ConfirmationCode() {
						o.confirm(ctx, tx)
						return
					}
					o.logger.Debug("submitted code does not match",
						"peer", tx.Peer, "transaction", tx.TransactionID)
				default:
					break drain
				}
			}
		}
	}
}

// confirm moves the transaction to StateConfirmed and finalizes trust.
// Trust is finalized from StateConfirmed and from no other state.
func (o *Orchestrator) confirm(ctx context.Context, tx *Transaction) {
	tx.mu.Lock()
	if tx.state != StateWaitingConfirmation {
		tx.mu.Unlock()
		return
	}
	tx.state = StateConfirmed
	tx.mu.Unlock()
	o.logger.Info("confirmation code matches",
		"peer", tx.Peer, "transaction", tx.TransactionID)

	if err := o.verifier.Confirm(ctx, tx.Peer, tx.TransactionID); err != nil {
		o.logger.Error("can't finalize trust", "peer", tx.Peer, "error", err)
		o.terminate(tx, StateCancelled)
		return
	}
	o.finish(ctx, tx)
}

// finish is the single path into StateDone. It reports the verified
// device, records the outcome and evicts the transaction.
func (o *Orchestrator) finish(ctx context.Context, tx *Transaction) {
	tx.mu.Lock()
	if tx.state.Terminal() {
		tx.mu.Unlock()
		return
	}
	tx.state = StateDone
	tx.mu.Unlock()

	dev, err := o.verifier.Device(ctx, tx.Peer, tx.TransactionID)
	if err != nil {
		o.logger.Error("can't query verified device",
			"peer", tx.Peer, "error", err)
	}
	o.record(tx, StateDone, dev.ID)
	o.reporter.Result(tx, dev)
	o.reporter.Devices(ctx, tx.Peer)
	o.registry.Evict(tx.Peer, tx.TransactionID)
}

// expire times the transaction out. The peer is not notified; its
// request is left unanswered and only the local log shows the expiry.
func (o *Orchestrator) expire(tx *Transaction) {
	tx.mu.Lock()
	if tx.state != StateWaitingConfirmation {
		tx.mu.Unlock()
		return
	}
	tx.state = StateTimedOut
	tx.mu.Unlock()

	o.logger.Info("confirmation window elapsed",
		"peer", tx.Peer, "transaction", tx.TransactionID,
		"waited", time.Since(tx.StartedAt()))
	o.record(tx, StateTimedOut, "")
	o.registry.Evict(tx.Peer, tx.TransactionID)
}

// terminate moves a transaction to the given terminal state unless it
// already finished, then evicts it.
func (o *Orchestrator) terminate(tx *Transaction, st State) {
	tx.mu.Lock()
	if tx.state.Terminal() {
		tx.mu.Unlock()
		return
	}
	tx.state = st
	tx.mu.Unlock()

	o.record(tx, st, "")
	o.registry.Evict(tx.Peer, tx.TransactionID)
}

func (o *Orchestrator) record(tx *Transaction, st State, deviceID string) {
	if o.journal == nil {
		return
	}
	out := &Outcome{
		Peer:          tx.Peer,
		TransactionID: tx.TransactionID,
		DeviceID:      deviceID,
		State:         st.String(),
		FinishedAt:    time.Now(),
	}
	if err := o.journal.Record(out); err != nil {
		o.logger.Error("can't record verification outcome",
			"peer", tx.Peer, "error", err)
	}
}
