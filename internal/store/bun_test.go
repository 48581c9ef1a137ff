package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/config"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
)

func TestBunRepository_CreateConflictIsNoop(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := &chat.Conversation{ID: uuid.NewString(), DeviceID: "d", ConversationKey: "k", LastMessageAt: now, StartedAt: now}
	second := &chat.Conversation{ID: uuid.NewString(), DeviceID: "d", ConversationKey: "k", LastMessageAt: now, StartedAt: now}

	require.NoError(t, repo.CreateConversation(ctx, first))
	require.NoError(t, repo.CreateConversation(ctx, second))

	latest, err := repo.LatestConversation(ctx, "d", "k")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.ID, latest.ID)

	n, err := repo.CountConversations(ctx, "d", "k")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBunRepository_MissingRows(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()

	latest, err := repo.LatestConversation(ctx, "nobody", "nothing")
	require.NoError(t, err)
	assert.Nil(t, latest)

	conv, err := repo.GetConversation(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, conv)

	err = repo.TouchConversation(ctx, uuid.NewString(), time.Now())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestBunRepository_SenderRoundTrip(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	conv := &chat.Conversation{ID: uuid.NewString(), DeviceID: "d", ConversationKey: "k", LastMessageAt: now, StartedAt: now}
	require.NoError(t, repo.CreateConversation(ctx, conv))

	roles := []chat.Role{chat.RoleAssistant, chat.RoleUser, chat.RoleAction, chat.RoleOnboardingForm}
	for i, role := range roles {
		msg := chat.Message{ID: uuid.NewString(), Text: string(role), Role: role, Timestamp: now.Add(time.Duration(i) * time.Millisecond)}
		require.NoError(t, repo.InsertMessage(ctx, conv.ID, msg))
	}

	messages, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, len(roles))
	for i, role := range roles {
		assert.Equal(t, role, messages[i].Role)
	}
}

func TestBunRepository_MigrateTwice(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, zap.NewNop()))
	require.NoError(t, Migrate(ctx, db, zap.NewNop()))

	version, err := MigrationVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	repo, closeFn, err := Open(ctx, config.StoreConfig{Driver: DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)
	assert.NoError(t, closeFn())

	repo, closeFn, err = Open(ctx, config.StoreConfig{Driver: DriverSQLite, SQLitePath: ":memory:", AutoMigrate: true}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &BunRepository{}, repo)
	assert.NoError(t, closeFn())

	_, closeFn, err = Open(ctx, config.StoreConfig{Driver: "mongo"}, zap.NewNop())
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
