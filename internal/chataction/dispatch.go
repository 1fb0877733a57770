package chataction

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// HandlerFunc performs one action's side effects. Handlers that mutate
// document state must go through the same service entry points manual UI
// actions use; there is no chat-only mutation path.
type HandlerFunc func(ctx context.Context, action Action) error

// Dispatcher maps each action type to exactly one handler. Unknown types are
// logged and ignored, never raised: tags come from a semi-trusted text
// source. Handler failures are contained at this boundary and reported as a
// short system-style message for the chat transcript.
type Dispatcher struct {
	handlers map[ActionType]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[ActionType]HandlerFunc{}}
}

func (d *Dispatcher) Register(t ActionType, fn HandlerFunc) {
	if fn == nil {
		return
	}
	d.handlers[t] = fn
}

// Dispatch runs the action's handler. The returned string is empty on
// success and carries the system message on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action) string {
	handler, ok := d.handlers[action.Type]
	if !ok {
		logutil.GetLogger(ctx).Warn("ignore unknown chat action", zap.String("type", string(action.Type)))
		return ""
	}
	if err := handler(ctx, action); err != nil {
		logutil.GetLogger(ctx).Warn("chat action failed",
			zap.String("type", string(action.Type)), zap.Error(err))
		return fmt.Sprintf("Couldn't complete %s: %v", action.Type, err)
	}
	return ""
}

// DispatchAll runs every action in order and collects system messages for
// the ones that failed.
func (d *Dispatcher) DispatchAll(ctx context.Context, actions []Action) []string {
	var messages []string
	for _, action := range actions {
		if msg := d.Dispatch(ctx, action); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}
