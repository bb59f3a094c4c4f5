package pipelinectx

import (
	"context"

	"github.com/p1stream/p1stream-go/internal/control"
)

// loopService adapts control.Loop to suture.Service: Serve blocks until ctx
// is cancelled, at which point the control thread described in §4.d has
// stopped consuming notifications. Run returns only on ctx cancellation; if
// it ever returned early, the supervisor would restart it rather than
// silently leaving the pipeline undriven.
type loopService struct {
	loop *control.Loop
}

func (s loopService) Serve(ctx context.Context) error {
	s.loop.Run(ctx)
	return ctx.Err()
}
