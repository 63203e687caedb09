package unitofwork_test

import (
	"context"
	"testing"

	"docchat-be/internal/entity"
	"docchat-be/internal/model"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/database"
	"docchat-be/pkg/rag"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestUserRepository_FindByUsername(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(setupDB(t)).NewUnitOfWork(ctx)

	user := &entity.User{Id: uuid.New(), Username: "alice", PasswordHash: "x"}
	require.NoError(t, uow.UserRepository().Create(ctx, user))

	found, err := uow.UserRepository().FindOne(ctx, specification.ByUsername{Username: "alice"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.Id, found.Id)

	missing, err := uow.UserRepository().FindOne(ctx, specification.ByUsername{Username: "bob"})
	assert.NoError(t, err)
	assert.Nil(t, missing)

	dup := &entity.User{Id: uuid.New(), Username: "alice", PasswordHash: "y"}
	assert.Error(t, uow.UserRepository().Create(ctx, dup))
}

func TestChatRepositories_SessionsAndMessages(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(setupDB(t)).NewUnitOfWork(ctx)

	owner := uuid.New()
	first := &entity.ChatSession{UserId: &owner, DocumentFilename: "a.pdf"}
	require.NoError(t, uow.ChatSessionRepository().Create(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.Id)

	anon := &entity.ChatSession{DocumentFilename: "b.txt"}
	require.NoError(t, uow.ChatSessionRepository().Create(ctx, anon))
	assert.Equal(t, rag.AnonymousOwner, anon.OwnerKey())

	owned, err := uow.ChatSessionRepository().FindAll(ctx, specification.UserOwnedBy{UserID: &owner})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "a.pdf", owned[0].DocumentFilename)

	anonymous, err := uow.ChatSessionRepository().FindAll(ctx, specification.UserOwnedBy{})
	require.NoError(t, err)
	require.Len(t, anonymous, 1)

	sources := []rag.Source{{Filename: "a.pdf", Page: 2}, {Filename: "a.pdf", Page: 3}}
	require.NoError(t, uow.ChatMessageRepository().Create(ctx, &entity.ChatMessage{
		ChatSessionId: first.Id, Role: entity.ChatMessageRoleUser, Content: "q",
	}))
	require.NoError(t, uow.ChatMessageRepository().Create(ctx, &entity.ChatMessage{
		ChatSessionId: first.Id, Role: entity.ChatMessageRoleAssistant, Content: "a", Sources: sources,
	}))

	history, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: first.Id},
		specification.OldestFirst{},
	)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ChatMessageRoleUser, history[0].Role)
	assert.Empty(t, history[0].Sources)
	assert.Equal(t, sources, history[1].Sources)
}

func TestUnitOfWork_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	factory := unitofwork.NewRepositoryFactory(setupDB(t))

	uow := factory.NewUnitOfWork(ctx)
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.ChatSessionRepository().Create(ctx, &entity.ChatSession{DocumentFilename: "x.pdf"}))
	require.NoError(t, uow.Rollback())

	count, err := factory.NewUnitOfWork(ctx).ChatSessionRepository().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Error(t, uow.Commit())
}
