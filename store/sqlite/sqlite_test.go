package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ store.PersistenceBackend = (*Backend)(nil)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func msg(sessionID string, seq uint64, content string) core.ConversationMessage {
	m := core.NewUserMessage(sessionID, content)
	m.Seq = seq
	return m
}

func TestAppendRead_Roundtrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	fc := &core.FunctionCall{ID: "fc1", Name: "log_nutrition", Arguments: []byte(`{"food":"eggs"}`)}
	m := core.NewAssistantMessage("s1", "logging that now", fc)
	m.Seq = 1
	require.NoError(t, b.Append(ctx, m))
	require.NoError(t, b.Append(ctx, msg("s1", 2, "thanks")))

	msgs, err := b.Read(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(1), msgs[0].Seq)
	assert.Equal(t, core.RoleAssistant, msgs[0].Role)
	require.NotNil(t, msgs[0].FunctionCall)
	assert.Equal(t, "log_nutrition", msgs[0].FunctionCall.Name)
	assert.Equal(t, "thanks", msgs[1].Content)
}

func TestRead_LimitNewestChronological(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Append(ctx, msg("s1", uint64(i), fmt.Sprintf("m%d", i))))
	}

	msgs, err := b.Read(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m4", msgs[0].Content)
	assert.Equal(t, "m5", msgs[1].Content)
}

func TestPrune_KeepsNewest(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		require.NoError(t, b.Append(ctx, msg("s1", uint64(i), fmt.Sprintf("m%d", i))))
	}

	require.NoError(t, b.Prune(ctx, "s1", 3))
	msgs, err := b.Read(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m8", msgs[0].Content)
	assert.Equal(t, "m10", msgs[2].Content)
}

func TestDeleteAndLastSeq(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	last, err := b.LastSeq(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)

	require.NoError(t, b.Append(ctx, msg("s1", 7, "hello")))
	last, err = b.LastSeq(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), last)

	require.NoError(t, b.Delete(ctx, "s1"))
	msgs, err := b.Read(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOpen_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.db")
	ctx := context.Background()

	b, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, b.Append(ctx, msg("s1", 1, "persisted")))
	require.NoError(t, b.Close())

	b2, err := Open(path)
	require.NoError(t, err)
	defer b2.Close()

	msgs, err := b2.Read(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "persisted", msgs[0].Content)
	assert.WithinDuration(t, time.Now(), msgs[0].Timestamp, time.Minute)
}
