package dispatcher

import (
	"context"
	"errors"

	"github.com/challengeforge/backend/internal/render"
)

// ErrUnchanged is returned by Presenter.Edit when the transport reports that
// the rendered content is byte-identical to what is already displayed. The
// dispatcher swallows it as success; re-rendering is idempotent.
var ErrUnchanged = errors.New("dispatcher: rendered content unchanged")

// MessageRef is the transport's opaque handle for the message a button press
// originated from. The dispatcher never inspects it.
type MessageRef string

// Presenter delivers rendered output for one interaction. Implementations
// belong to the transport side; the dispatcher only distinguishes editing the
// originating message, sending a new one, and a transient notice.
type Presenter interface {
	Edit(ctx context.Context, ref MessageRef, text string, keyboard render.Keyboard) error
	Send(ctx context.Context, text string, keyboard render.Keyboard) error
	Notice(ctx context.Context, text string) error
}

// presentEdit wraps every edit-in-place so the transport's unchanged-content
// condition is handled in exactly one spot.
func presentEdit(ctx context.Context, p Presenter, ref MessageRef, text string, keyboard render.Keyboard) error {
	err := p.Edit(ctx, ref, text, keyboard)
	if errors.Is(err, ErrUnchanged) {
		return nil
	}
	return err
}
