package main

import (
	"context"
	"testing"

	"docchat-be/internal/entity"
	"docchat-be/internal/model"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnitOfWork(t *testing.T) unitofwork.UnitOfWork {
	t.Helper()
	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return unitofwork.NewRepositoryFactory(db).NewUnitOfWork(context.Background())
}

func TestOpenSession_IngestedFileCanBeAskedBySession(t *testing.T) {
	ctx := context.Background()
	uow := newUnitOfWork(t)

	session, err := openSession(ctx, uow, nil, "report.pdf")
	require.NoError(t, err)

	found, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: session.Id})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "report.pdf", found.DocumentFilename)
	assert.Equal(t, session.Document(), found.Document())
}

func TestOpenSession_ScopesToOwner(t *testing.T) {
	ctx := context.Background()
	uow := newUnitOfWork(t)
	userId := uuid.New()
	require.NoError(t, uow.UserRepository().Create(ctx, &entity.User{Id: userId, Username: "alice", PasswordHash: "x"}))

	session, err := openSession(ctx, uow, &userId, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, userId.String(), session.OwnerKey())
}

func TestOpenSession_UnknownOwner(t *testing.T) {
	ctx := context.Background()
	uow := newUnitOfWork(t)
	stranger := uuid.New()

	_, err := openSession(ctx, uow, &stranger, "notes.txt")
	assert.ErrorIs(t, err, errOwnerNotFound)
}
