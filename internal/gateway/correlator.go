package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/nerrad567/buttrest/internal/buttplug"
)

const (
	// defaultCommandTimeout bounds the wait for a response.
	defaultCommandTimeout = 5 * time.Second

	// firstCommandID is the lowest id handed out. 0 is the server's system
	// id and 1 is reserved for the session handshake.
	firstCommandID uint32 = buttplug.HandshakeID + 1
)

// Sender writes one message to the control server.
type Sender interface {
	Send(ctx context.Context, msg buttplug.Message) error
}

// Effect updates cached registry state from a successful reply. It runs on
// the consumer goroutine before the waiting caller is released.
type Effect func(reply buttplug.Message) error

// PendingCommand is an outstanding request awaiting its response.
type PendingCommand struct {
	ID          uint32
	Target      *Target
	Message     buttplug.Message
	SubmittedAt time.Time

	effect Effect
	done   chan commandResult
}

type commandResult struct {
	reply buttplug.Message
	err   error
}

// Correlator matches responses to outstanding commands by id.
//
// Whoever removes a PendingCommand from the map owns its resolution, so each
// command is resolved exactly once no matter how a response, timeout,
// cancellation or failure race.
type Correlator struct {
	sender  Sender
	timeout time.Duration
	pending cmap.ConcurrentMap[uint32, *PendingCommand]
	nextID  atomic.Uint32
	late    atomic.Uint64

	logger   Logger
	metrics  *Metrics
	resolved func(*PendingCommand, buttplug.Message, error)
}

// NewCorrelator creates a correlator sending through sender. A zero timeout
// selects the default of 5 seconds.
func NewCorrelator(sender Sender, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	c := &Correlator{
		sender:  sender,
		timeout: timeout,
		pending: cmap.NewWithCustomShardingFunction[uint32, *PendingCommand](func(id uint32) uint32 {
			return id
		}),
		logger: noopLogger{},
	}
	c.nextID.Store(firstCommandID - 1)
	return c
}

// Submit sends msg under a fresh id and waits for the first of: a matching
// reply, a server Error (*ProtocolError), the timeout (ErrTimeout), a
// device or connection failure (ErrDeviceGone, ErrConnection) or ctx ending.
//
// target may be nil for commands not addressed to one device.
func (c *Correlator) Submit(ctx context.Context, target *Target, msg buttplug.Message, effect Effect) (buttplug.Message, error) {
	pc := &PendingCommand{
		Target:      target,
		Message:     msg,
		SubmittedAt: time.Now(),
		effect:      effect,
		done:        make(chan commandResult, 1),
	}
	c.register(pc)

	if err := c.sender.Send(ctx, msg); err != nil {
		sendErr := fmt.Errorf("%w: %w", ErrConnection, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			sendErr = fmt.Errorf("sending %s: %w", msg.MessageType(), err)
		}
		if !c.take(pc.ID) {
			res := <-pc.done
			return res.reply, res.err
		}
		c.finish(pc, nil, sendErr)
		return nil, sendErr
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-pc.done:
		return res.reply, res.err

	case <-timer.C:
		return c.abandon(pc, fmt.Errorf("%w: %s id %d after %s", ErrTimeout, msg.MessageType(), pc.ID, c.timeout))

	case <-ctx.Done():
		return c.abandon(pc, ctx.Err())
	}
}

// abandon resolves pc locally unless something else already owns it.
func (c *Correlator) abandon(pc *PendingCommand, err error) (buttplug.Message, error) {
	if !c.take(pc.ID) {
		res := <-pc.done
		return res.reply, res.err
	}
	c.finish(pc, nil, err)
	res := <-pc.done
	return res.reply, res.err
}

// Resolve completes the command matching reply's id. Replies with no pending
// command are discarded and counted. Reports whether a command was resolved.
func (c *Correlator) Resolve(reply buttplug.Message) bool {
	pc, ok := c.pending.Pop(reply.MessageID())
	if !ok {
		c.late.Add(1)
		c.metrics.lateResponse()
		c.logger.Debug("discarding response with no pending command",
			"id", reply.MessageID(),
			"type", reply.MessageType(),
		)
		return false
	}

	if e, isErr := reply.(*buttplug.Error); isErr {
		c.finish(pc, nil, &ProtocolError{Code: e.ErrorCode, Message: e.ErrorMessage})
		return true
	}

	if pc.effect != nil {
		if err := pc.effect(reply); err != nil {
			c.logger.Warn("cache update failed", "id", pc.ID, "type", pc.Message.MessageType(), "error", err)
		}
	}
	c.finish(pc, reply, nil)
	return true
}

// FailDevice resolves every command targeting deviceIndex with err.
func (c *Correlator) FailDevice(deviceIndex uint32, err error) int {
	failed := 0
	for id, pc := range c.pending.Items() {
		if pc.Target == nil || pc.Target.DeviceIndex != deviceIndex {
			continue
		}
		if c.take(id) {
			c.finish(pc, nil, fmt.Errorf("%w: device %d", err, deviceIndex))
			failed++
		}
	}
	return failed
}

// FailAll resolves every pending command with err.
func (c *Correlator) FailAll(err error) int {
	failed := 0
	for id, pc := range c.pending.Items() {
		if c.take(id) {
			c.finish(pc, nil, err)
			failed++
		}
	}
	return failed
}

// Pending returns the number of outstanding commands.
func (c *Correlator) Pending() int {
	return c.pending.Count()
}

// LateResponses returns how many replies arrived with no pending command.
func (c *Correlator) LateResponses() uint64 {
	return c.late.Load()
}

// register assigns a free id and records pc. Ids skip the reserved values
// after wrap-around and any id still pending.
func (c *Correlator) register(pc *PendingCommand) {
	for {
		id := c.nextID.Add(1)
		if id < firstCommandID {
			continue
		}
		pc.ID = id
		pc.Message.SetMessageID(id)
		if c.pending.SetIfAbsent(id, pc) {
			return
		}
	}
}

// take claims ownership of a pending command.
func (c *Correlator) take(id uint32) bool {
	_, ok := c.pending.Pop(id)
	return ok
}

// finish delivers the single result of pc. Callers must own pc via take or Pop.
func (c *Correlator) finish(pc *PendingCommand, reply buttplug.Message, err error) {
	latency := time.Since(pc.SubmittedAt)
	c.metrics.observeCommand(pc.Message.MessageType(), outcomeOf(err), latency)
	if c.resolved != nil {
		c.resolved(pc, reply, err)
	}
	pc.done <- commandResult{reply: reply, err: err}
}

func outcomeOf(err error) Outcome {
	var protoErr *ProtocolError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &protoErr), errors.Is(err, ErrProtocol):
		return OutcomeProtocolError
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrDeviceGone):
		return OutcomeDeviceGone
	case errors.Is(err, ErrConnection):
		return OutcomeConnectionLost
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeSendFailed
	}
}
