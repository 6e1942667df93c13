package upload

import (
	"context"

	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/talentbridge/go-apiclient/progress"
)

// Transfer is an upload running in the background.
type Transfer struct {
	machine *machine
	cancel  context.CancelFunc
	done    chan struct{}

	result envelope.Envelope[Result]
	err    error
}

// Start runs Upload in a new goroutine.
func (o *Orchestrator) Start(ctx context.Context, category string, file *File, onProgress progress.Func) *Transfer {
	ctx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		machine: newMachine(o.hook),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = o.run(ctx, t.machine, category, file, onProgress)
	}()

	return t
}

// Cancel aborts the upload. It may be called from any goroutine, any number
// of times. Wait returns once the running phase has unwound.
func (t *Transfer) Cancel() {
	t.cancel()
}

// Done is closed when the upload finished.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the upload finished and returns its result.
func (t *Transfer) Wait() (envelope.Envelope[Result], error) {
	<-t.done
	return t.result, t.err
}

// State returns the current state of the upload.
func (t *Transfer) State() State {
	return t.machine.current()
}
