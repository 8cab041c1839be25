package alerting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionwatch/internal/chain"
	"optionwatch/internal/decision"
)

type recordingNotifier struct {
	failOn map[string]bool
	sent   []string
}

func (r *recordingNotifier) Send(ctx context.Context, message string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("send without deadline")
	}
	if r.failOn[message] {
		return fmt.Errorf("%w: webhook 500", ErrTransport)
	}
	r.sent = append(r.sent, message)
	return nil
}

func events(n int) []decision.AlertEvent {
	out := make([]decision.AlertEvent, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, decision.AlertEvent{
			Identifier:      fmt.Sprintf("ID%d", i),
			OptionType:      chain.Put,
			StrikePrice:     int64(22000 + 50*i),
			PercentChange:   100 + float64(i),
			UnderlyingValue: 21800,
			ObservedAt:      time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC),
			Message:         fmt.Sprintf("msg-%d", i),
		})
	}
	return out
}

func TestDispatchContinuesAfterTransportFailure(t *testing.T) {
	notifier := &recordingNotifier{failOn: map[string]bool{"msg-2": true}}
	d := NewDispatcher(notifier, time.Second, testLogger())

	result := d.Dispatch(context.Background(), events(4))

	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], ErrTransport)
	assert.Contains(t, result.Errors[0].Error(), "ID2")
	assert.Equal(t, []string{"msg-1", "msg-3", "msg-4"}, notifier.sent)
}

func TestDispatchRendersMissingMessage(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(notifier, time.Second, testLogger())

	ev := events(1)
	ev[0].Message = ""
	result := d.Dispatch(context.Background(), ev)

	require.Equal(t, 1, result.Sent)
	assert.Contains(t, notifier.sent[0], "ID1")
	assert.Contains(t, notifier.sent[0], "22050")
	assert.Contains(t, notifier.sent[0], "101.00%")
	assert.Contains(t, notifier.sent[0], "21800.00")
}

func TestAnnounce(t *testing.T) {
	notifier := &recordingNotifier{failOn: map[string]bool{"b": true}}
	d := NewDispatcher(notifier, time.Second, testLogger())

	result := d.Announce(context.Background(), []string{"a", "b", "c"})
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
}

func TestDispatcherDefaultsToLogNotifier(t *testing.T) {
	d := NewDispatcher(nil, 0, testLogger())
	result := d.Dispatch(context.Background(), events(2))
	assert.Equal(t, 2, result.Sent)
}
