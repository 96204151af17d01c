package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInteractionType(t *testing.T) {
	for _, want := range []InteractionType{InteractionChat, InteractionTransaction, InteractionHybrid} {
		got, err := ParseInteractionType(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseInteractionType("bulk")
	assert.Error(t, err)
}

func TestInteractionType_TextRoundTrip(t *testing.T) {
	raw, err := json.Marshal(InteractionHybrid)
	require.NoError(t, err)
	assert.Equal(t, `"hybrid"`, string(raw))

	var got InteractionType
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, InteractionHybrid, got)
}

func TestSnapshot_HasAndEmpty(t *testing.T) {
	var snap HealthContextSnapshot
	assert.True(t, snap.Empty())
	assert.False(t, snap.Has(MetricSleep))

	hours := 7.5
	snap.SleepHours = &hours
	assert.False(t, snap.Empty())
	assert.True(t, snap.Has(MetricSleep))

	snap.Weather = "light rain, 14C"
	assert.True(t, snap.Has(MetricWeather))
}

func TestMessageConstructors(t *testing.T) {
	u := NewUserMessage("s1", "hello")
	assert.Equal(t, RoleUser, u.Role)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.Timestamp.IsZero())

	call := &FunctionCall{ID: "c1", Name: "log_nutrition"}
	a := NewAssistantMessage("s1", "", call)
	assert.Equal(t, RoleAssistant, a.Role)
	require.NotNil(t, a.FunctionCall)

	f := NewFunctionMessage("s1", FunctionResult{CallID: "c1", Name: "log_nutrition"})
	assert.Equal(t, RoleFunction, f.Role)
	require.NotNil(t, f.FunctionRes)
	assert.True(t, f.FunctionRes.OK())
}

func TestStructuredError_Error(t *testing.T) {
	e := &StructuredError{Code: "validation", Message: "bad args", Field: "days"}
	assert.Contains(t, e.Error(), "validation")
	assert.Contains(t, e.Error(), "days")
}
