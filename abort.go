package shx

import "context"

// AbortController cancels the processes built with it. Each process owns
// one unless a shared controller is passed with WithAbortController.
type AbortController struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewAbortController derives a controller from parent; cancelling parent
// aborts it too.
func NewAbortController(parent context.Context) *AbortController {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &AbortController{ctx: ctx, cancel: cancel}
}

// Abort signals every process bound to the controller. A nil reason is
// recorded as ErrAborted.
func (a *AbortController) Abort(reason error) {
	if reason == nil {
		reason = ErrAborted
	}
	a.cancel(reason)
}

// Context is cancelled, with the reason as cause, once aborted.
func (a *AbortController) Context() context.Context { return a.ctx }

// Aborted reports whether Abort was called or the parent was cancelled.
func (a *AbortController) Aborted() bool { return a.ctx.Err() != nil }

// Reason returns the abort cause, or nil while not aborted.
func (a *AbortController) Reason() error {
	if a.ctx.Err() == nil {
		return nil
	}
	return context.Cause(a.ctx)
}
