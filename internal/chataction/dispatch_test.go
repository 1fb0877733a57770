package chataction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherRoutesToHandler(t *testing.T) {
	d := NewDispatcher()
	var got Action
	d.Register(ActionNavigate, func(ctx context.Context, action Action) error {
		got = action
		return nil
	})

	msg := d.Dispatch(context.Background(), Action{Type: ActionNavigate, Label: "Open grading", Payload: "Grading"})
	require.Empty(t, msg)
	require.Equal(t, "Grading", got.Payload)
}

func TestDispatcherIgnoresUnknownType(t *testing.T) {
	d := NewDispatcher()
	msg := d.Dispatch(context.Background(), Action{Type: ActionType("warp_speed")})
	require.Empty(t, msg)
}

func TestDispatcherContainsHandlerFailure(t *testing.T) {
	d := NewDispatcher()
	d.Register(ActionNextIssue, func(ctx context.Context, action Action) error {
		return errors.New("no issues left")
	})

	msg := d.Dispatch(context.Background(), Action{Type: ActionNextIssue, Label: "Next"})
	require.Equal(t, "Couldn't complete next_issue: no issues left", msg)
}

func TestDispatchAllCollectsFailures(t *testing.T) {
	d := NewDispatcher()
	d.Register(ActionNextIssue, func(ctx context.Context, action Action) error {
		return errors.New("boom")
	})
	d.Register(ActionNavigate, func(ctx context.Context, action Action) error {
		return nil
	})

	messages := d.DispatchAll(context.Background(), []Action{
		{Type: ActionNavigate},
		{Type: ActionNextIssue},
		{Type: ActionNextIssue},
	})
	require.Len(t, messages, 2)
}
