package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/internal/server/storage/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func seedRoom(t *testing.T, store storage.Store) {
	t.Helper()

	ctx := context.Background()
	err := store.WithTx(ctx, func(tx storage.RoomStorage) error {
		if err := tx.PutEntry(ctx, "r1", "a", json.RawMessage(`1`), 1); err != nil {
			return err
		}
		if err := tx.PutEntry(ctx, "r1", "b", json.RawMessage(`2`), 2); err != nil {
			return err
		}
		return tx.SetClientRecord(ctx, &models.ClientRecord{
			ClientID:       "c1",
			RoomID:         "r1",
			LastMutationID: 4,
		})
	})
	require.NoError(t, err)
}

func doPull(t *testing.T, h *PullHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/pull", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Pull(rec, req)
	return rec
}

func TestPull_FullSnapshot(t *testing.T) {
	store := setupStore(t)
	seedRoom(t, store)
	h := NewPullHandler(store, testLogger())

	rec := doPull(t, h, `{"roomID":"r1","clientID":"c1","baseCookie":null}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		BaseCookie     *int64 `json:"baseCookie"`
		Cookie         int64  `json:"cookie"`
		LastMutationID int64  `json:"lastMutationID"`
		Patch          []struct {
			Op  string `json:"op"`
			Key string `json:"key"`
		} `json:"patch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Nil(t, resp.BaseCookie)
	assert.Equal(t, int64(2), resp.Cookie)
	assert.Equal(t, int64(4), resp.LastMutationID)
	require.Len(t, resp.Patch, 2)
	assert.Equal(t, "a", resp.Patch[0].Key)
	assert.Equal(t, "b", resp.Patch[1].Key)
}

func TestPull_Incremental(t *testing.T) {
	store := setupStore(t)
	seedRoom(t, store)
	h := NewPullHandler(store, testLogger())

	rec := doPull(t, h, `{"roomID":"r1","clientID":"c1","baseCookie":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Patch []struct {
			Key string `json:"key"`
		} `json:"patch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Patch, 1)
	assert.Equal(t, "b", resp.Patch[0].Key)
}

func TestPull_UnknownClient(t *testing.T) {
	store := setupStore(t)
	seedRoom(t, store)
	h := NewPullHandler(store, testLogger())

	rec := doPull(t, h, `{"roomID":"r1","clientID":"stranger"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		LastMutationID int64 `json:"lastMutationID"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(0), resp.LastMutationID)
}

func TestPull_EmptyRoom(t *testing.T) {
	store := setupStore(t)
	h := NewPullHandler(store, testLogger())

	rec := doPull(t, h, `{"roomID":"empty","clientID":"c1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Cookie int64         `json:"cookie"`
		Patch  []interface{} `json:"patch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(0), resp.Cookie)
	assert.Empty(t, resp.Patch)
}

func TestPull_BadRequests(t *testing.T) {
	store := setupStore(t)
	h := NewPullHandler(store, testLogger())

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "missing roomID", body: `{"clientID":"c1"}`},
		{name: "missing clientID", body: `{"roomID":"r1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doPull(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
