package model_test

import (
	"testing"

	"github.com/chatlinkhq/chatlink/server/model"
	"github.com/chatlinkhq/chatlink/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrateCreatesAllTables(t *testing.T) {
	db := testutil.SetupTestDB(t)

	for _, m := range []interface{}{
		&model.User{}, &model.Friendship{}, &model.Message{}, &model.AuditLog{},
	} {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
}

func TestUserUniqueConstraints(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(&model.User{
		Email: "a@example.com", Username: "alice", PasswordHash: "x",
	}).Error)

	err := db.Create(&model.User{
		Email: "a@example.com", Username: "alice2", PasswordHash: "x",
	}).Error
	assert.Error(t, err, "duplicate email must be rejected")

	err = db.Create(&model.User{
		Email: "a2@example.com", Username: "alice", PasswordHash: "x",
	}).Error
	assert.Error(t, err, "duplicate username must be rejected")
}

func TestFriendshipPairIsUniquePerDirection(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(&model.Friendship{UserID: 1, FriendID: 2}).Error)

	// Same ordered pair is rejected; the mirror direction is a distinct edge.
	assert.Error(t, db.Create(&model.Friendship{UserID: 1, FriendID: 2}).Error)
	assert.NoError(t, db.Create(&model.Friendship{UserID: 2, FriendID: 1}).Error)
}

func TestFriendStatusString(t *testing.T) {
	assert.Equal(t, "pending", model.StatusPending.String())
	assert.Equal(t, "accepted", model.StatusAccepted.String())
	assert.Equal(t, "unknown", model.FriendStatus(9).String())
}

func TestUserPublicOmitsPasswordHash(t *testing.T) {
	u := model.User{ID: 1, Email: "a@example.com", Username: "alice", PasswordHash: "hash"}
	pub := u.Public()
	assert.Equal(t, u.ID, pub.ID)
	assert.Equal(t, u.Username, pub.Username)
}
