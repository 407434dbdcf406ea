package medium

import (
	"errors"

	"github.com/agsys/lorasim/internal/scheduler"
)

// ErrTransmitterBusy is returned by Transmit when a previous message is
// still on air.
var ErrTransmitterBusy = errors.New("medium: transmitter busy")

// Transmitter drives one LoraMsg at a time across its three scheduled
// phases (preamble, payload, complete), per spec §4.D. Only one message may
// be in flight; a second Transmit call while busy is rejected.
type Transmitter struct {
	sched *scheduler.Scheduler
	med   *Medium
	jobs  *scheduler.JobGroup

	current *LoraMsg
}

// NewTransmitter returns a Transmitter that schedules phase jobs on sched
// and announces them on med.
func NewTransmitter(sched *scheduler.Scheduler, med *Medium) *Transmitter {
	return &Transmitter{sched: sched, med: med, jobs: scheduler.NewJobGroup(sched)}
}

// Busy reports whether a message is currently on air.
func (tx *Transmitter) Busy() bool { return tx.current != nil }

// Current returns the in-flight message, or nil.
func (tx *Transmitter) Current() *LoraMsg { return tx.current }

// Transmit schedules msg's preamble/payload/complete phases. msg.Xbeg must
// be >= the scheduler's current tick; the caller (typically a Radio
// peripheral's svc handler) is responsible for constructing msg via
// NewLoraMsg with "now" as Xbeg.
func (tx *Transmitter) Transmit(msg *LoraMsg) error {
	if tx.Busy() {
		return ErrTransmitterBusy
	}
	tx.current = msg

	tx.jobs.Schedule("preamble", msg.Xbeg, func() {
		tx.med.Preamble(msg)
	})
	tx.jobs.Schedule("payload", msg.Xpld, func() {
		tx.med.Payload(msg)
	})
	tx.jobs.Schedule("complete", msg.Xend, func() {
		tx.current = nil
		tx.med.Complete(msg)
	})
	return nil
}

// Abort cancels any pending phase jobs for the in-flight message and
// announces MsgAbort immediately. A no-op if nothing is in flight.
func (tx *Transmitter) Abort() {
	if tx.current == nil {
		return
	}
	msg := tx.current
	tx.current = nil
	tx.jobs.CancelAll()
	tx.med.Abort(msg)
}
