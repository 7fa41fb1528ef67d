package rest_test

import (
	"net/http"
	"testing"

	"github.com/chatlinkhq/chatlink/server/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type friendRequestsResp struct {
	FriendRequests []struct {
		RequestID int64 `json:"request_id"`
		From      struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
	} `json:"friend_requests"`
}

type friendsResp struct {
	Friends []struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Online   bool   `json:"online"`
	} `json:"friends"`
}

func TestFriendRequestFlow(t *testing.T) {
	ts := newTestServer(t)
	tokenA, idA := ts.signupAndSignin(t, "a@example.com", "alice")
	tokenB, idB := ts.signupAndSignin(t, "b@example.com", "bob")

	// Alice requests Bob.
	w := ts.postJSON(t, "/api/v1/friends/friend-request", tokenA, gin.H{"friend_id": idB})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Bob sees the pending request with Alice's profile.
	w = ts.get(t, "/api/v1/friends/friend-requests", tokenB)
	require.Equal(t, http.StatusOK, w.Code)
	var pending friendRequestsResp
	decodeBody(t, w, &pending)
	require.Len(t, pending.FriendRequests, 1)
	assert.Equal(t, "alice", pending.FriendRequests[0].From.Username)
	assert.Equal(t, idA, pending.FriendRequests[0].From.ID)

	// Bob accepts.
	w = ts.postJSON(t, "/api/v1/friends/friend-request/accept", tokenB,
		gin.H{"request_id": pending.FriendRequests[0].RequestID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Both sides now list each other.
	w = ts.get(t, "/api/v1/friends/friends", tokenA)
	require.Equal(t, http.StatusOK, w.Code)
	var friendsOfA friendsResp
	decodeBody(t, w, &friendsOfA)
	require.Len(t, friendsOfA.Friends, 1)
	assert.Equal(t, "bob", friendsOfA.Friends[0].Username)

	w = ts.get(t, "/api/v1/friends/friends", tokenB)
	require.Equal(t, http.StatusOK, w.Code)
	var friendsOfB friendsResp
	decodeBody(t, w, &friendsOfB)
	require.Len(t, friendsOfB.Friends, 1)
	assert.Equal(t, "alice", friendsOfB.Friends[0].Username)
}

func TestDuplicateFriendRequestIs409(t *testing.T) {
	ts := newTestServer(t)
	tokenA, _ := ts.signupAndSignin(t, "a@example.com", "alice")
	_, idB := ts.signupAndSignin(t, "b@example.com", "bob")

	w := ts.postJSON(t, "/api/v1/friends/friend-request", tokenA, gin.H{"friend_id": idB})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.postJSON(t, "/api/v1/friends/friend-request", tokenA, gin.H{"friend_id": idB})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already sent")

	var count int64
	require.NoError(t, ts.db.Model(&model.Friendship{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAcceptByStrangerIs403(t *testing.T) {
	ts := newTestServer(t)
	tokenA, _ := ts.signupAndSignin(t, "a@example.com", "alice")
	tokenB, idB := ts.signupAndSignin(t, "b@example.com", "bob")
	tokenEve, _ := ts.signupAndSignin(t, "e@example.com", "eve")

	w := ts.postJSON(t, "/api/v1/friends/friend-request", tokenA, gin.H{"friend_id": idB})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.get(t, "/api/v1/friends/friend-requests", tokenB)
	var pending friendRequestsResp
	decodeBody(t, w, &pending)
	require.Len(t, pending.FriendRequests, 1)

	w = ts.postJSON(t, "/api/v1/friends/friend-request/accept", tokenEve,
		gin.H{"request_id": pending.FriendRequests[0].RequestID})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAcceptUnknownRequestIs404(t *testing.T) {
	ts := newTestServer(t)
	tokenA, _ := ts.signupAndSignin(t, "a@example.com", "alice")

	w := ts.postJSON(t, "/api/v1/friends/friend-request/accept", tokenA,
		gin.H{"request_id": 9999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelfFriendRequestIs400(t *testing.T) {
	ts := newTestServer(t)
	tokenA, idA := ts.signupAndSignin(t, "a@example.com", "alice")

	w := ts.postJSON(t, "/api/v1/friends/friend-request", tokenA, gin.H{"friend_id": idA})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchAnnotatesRelationship(t *testing.T) {
	ts := newTestServer(t)
	tokenA, _ := ts.signupAndSignin(t, "a@example.com", "alice")
	_, idB := ts.signupAndSignin(t, "b@example.com", "bob")
	ts.signupAndSignin(t, "c@example.com", "bobby")

	w := ts.postJSON(t, "/api/v1/friends/friend-request", tokenA, gin.H{"friend_id": idB})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.get(t, "/api/v1/friends/search/bob", tokenA)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Users []struct {
			Username         string `json:"username"`
			FriendshipStatus string `json:"friendship_status"`
		} `json:"users"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Users, 2)

	byName := map[string]string{}
	for _, u := range resp.Users {
		byName[u.Username] = u.FriendshipStatus
	}
	assert.Equal(t, "pending", byName["bob"])
	assert.Equal(t, "not friends", byName["bobby"])
}

func TestSearchNoMatchesIsEmptyList(t *testing.T) {
	ts := newTestServer(t)
	tokenA, _ := ts.signupAndSignin(t, "a@example.com", "alice")

	w := ts.get(t, "/api/v1/friends/search/zzz", tokenA)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"users":[]`)
}
