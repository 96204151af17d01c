package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peakform/coachcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable_Classification(t *testing.T) {
	assert.True(t, Retryable(NewError(KindRateLimited, errors.New("429"))))
	assert.True(t, Retryable(NewError(KindNetwork, errors.New("conn reset"))))
	assert.False(t, Retryable(NewError(KindModel, errors.New("bad request"))))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestMockClient_ScriptConsumedInOrder(t *testing.T) {
	m := NewMockClient(
		MockStep{Response: Response{FunctionCalls: []core.FunctionCall{{ID: "c1", Name: "log_nutrition"}}}},
		TextStep("done"),
	)

	resp, err := m.Send(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, resp.HasFunctionCalls())

	resp, err = m.Send(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)

	// Script exhausted: last step repeats.
	resp, err = m.Send(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, 3, m.Calls())
}

func TestMockClient_LatencyRespectsCancellation(t *testing.T) {
	m := NewMockClient(MockStep{Response: Response{Text: "slow"}, Latency: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Send(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
