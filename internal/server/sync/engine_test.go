package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/internal/server/storage/sqlite"
	"github.com/iudanet/roomsync/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSocket records every message sent to it
type fakeSocket struct {
	mu       stdsync.Mutex
	messages []*api.Message
}

func (s *fakeSocket) Send(msg *api.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeSocket) Close() error { return nil }

func (s *fakeSocket) pokes() []*api.Poke {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pokes []*api.Poke
	for _, msg := range s.messages {
		if msg.Type == api.TypePoke {
			pokes = append(pokes, msg.Poke)
		}
	}
	return pokes
}

type putArgs struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// testMutators: "put" writes args.key=args.value, "del" removes args.key,
// "boom" always fails
func testMutators() Mutators {
	return Mutators{
		"put": MutatorFunc(func(ctx context.Context, tx *Transaction, args json.RawMessage) error {
			var a putArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return err
			}
			return tx.Put(ctx, a.Key, a.Value)
		}),
		"del": MutatorFunc(func(ctx context.Context, tx *Transaction, args json.RawMessage) error {
			var a putArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return err
			}
			_, err := tx.Del(ctx, a.Key)
			return err
		}),
		"boom": MutatorFunc(func(ctx context.Context, tx *Transaction, args json.RawMessage) error {
			return errors.New("boom")
		}),
	}
}

func setupEngine(t *testing.T) (*Engine, *Registry, storage.Store) {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	registry := NewRegistry()
	engine := NewEngine(store, registry, testMutators(), testLogger(), Config{})
	return engine, registry, store
}

// connectClient creates the durable client record and registers a live
// connection, mirroring what the socket handler does at connect time
func connectClient(t *testing.T, store storage.Store, registry *Registry, clientID, roomID string) (*Client, *fakeSocket) {
	t.Helper()

	ctx := context.Background()
	err := store.WithTx(ctx, func(tx storage.RoomStorage) error {
		return tx.SetClientRecord(ctx, &models.ClientRecord{
			ClientID: clientID,
			RoomID:   roomID,
		})
	})
	require.NoError(t, err)

	socket := &fakeSocket{}
	client := NewClient(clientID, roomID, socket)
	registry.Register(client)
	return client, socket
}

func enqueue(c *Client, id int64, name string, args string) {
	now := func() time.Time { return time.UnixMilli(id * 100) }
	c.mu.Lock()
	c.enqueueLocked(api.Mutation{ID: id, Name: name, Args: json.RawMessage(args)}, now)
	c.mu.Unlock()
}

func getRecord(t *testing.T, store storage.Store, clientID string) *models.ClientRecord {
	t.Helper()
	ctx := context.Background()
	var record *models.ClientRecord
	err := store.WithTx(ctx, func(tx storage.RoomStorage) error {
		var err error
		record, err = tx.GetClientRecord(ctx, clientID)
		return err
	})
	require.NoError(t, err)
	return record
}

func TestStep_EndToEnd(t *testing.T) {
	engine, registry, store := setupEngine(t)
	client, socket := connectClient(t, store, registry, "a", "r1")

	enqueue(client, 1, "put", `{"key":"shape","value":{"x":1}}`)
	engine.Step(context.Background())

	record := getRecord(t, store, "a")
	assert.Equal(t, int64(1), record.LastMutationID)
	require.NotNil(t, record.BaseCookie)
	assert.Equal(t, int64(1), *record.BaseCookie)

	pokes := socket.pokes()
	require.Len(t, pokes, 1)
	poke := pokes[0]
	assert.Nil(t, poke.BaseCookie)
	assert.Equal(t, int64(1), poke.Cookie)
	assert.Equal(t, int64(1), poke.LastMutationID)
	require.Len(t, poke.Patch, 1)
	assert.Equal(t, api.OpPut, poke.Patch[0].Op)
	assert.Equal(t, "shape", poke.Patch[0].Key)
	assert.JSONEq(t, `{"x":1}`, string(poke.Patch[0].Value))

	// processed mutations are trimmed from the pending queue
	assert.Empty(t, client.PendingMutations())
}

func TestStep_GapStalls(t *testing.T) {
	engine, registry, store := setupEngine(t)
	client, _ := connectClient(t, store, registry, "a", "r1")

	enqueue(client, 1, "put", `{"key":"k1","value":1}`)
	enqueue(client, 3, "put", `{"key":"k3","value":3}`)
	engine.Step(context.Background())

	// only id 1 applied; id 3 waits for the gap to close
	record := getRecord(t, store, "a")
	assert.Equal(t, int64(1), record.LastMutationID)
	assert.Equal(t, []int64{3}, pendingIDs(client))

	// the gap closes, both remaining mutations apply
	enqueue(client, 2, "put", `{"key":"k2","value":2}`)
	engine.Step(context.Background())

	record = getRecord(t, store, "a")
	assert.Equal(t, int64(3), record.LastMutationID)
	assert.Empty(t, client.PendingMutations())
}

func TestStep_PoisonedMutationUnblocks(t *testing.T) {
	engine, registry, store := setupEngine(t)
	client, socket := connectClient(t, store, registry, "a", "r1")

	appliedBefore := mutationsApplied.Get()

	enqueue(client, 1, "boom", `{}`)
	enqueue(client, 2, "put", `{"key":"after","value":true}`)
	engine.Step(context.Background())

	// the failing mutation's id is consumed and the next one applies
	record := getRecord(t, store, "a")
	assert.Equal(t, int64(2), record.LastMutationID)

	// only the mutation that actually changed state counts as applied
	assert.Equal(t, appliedBefore+1, mutationsApplied.Get())

	pokes := socket.pokes()
	require.Len(t, pokes, 1)
	require.Len(t, pokes[0].Patch, 1)
	assert.Equal(t, "after", pokes[0].Patch[0].Key)
}

func TestStep_UnknownMutatorConsumed(t *testing.T) {
	engine, registry, store := setupEngine(t)
	client, socket := connectClient(t, store, registry, "a", "r1")

	appliedBefore := mutationsApplied.Get()

	enqueue(client, 1, "no-such-mutator", `{}`)
	engine.Step(context.Background())

	record := getRecord(t, store, "a")
	assert.Equal(t, int64(1), record.LastMutationID)

	// a consumed id with no effect is not an applied mutation
	assert.Equal(t, appliedBefore, mutationsApplied.Get())

	// no state change: the poke carries an empty patch
	pokes := socket.pokes()
	require.Len(t, pokes, 1)
	assert.Empty(t, pokes[0].Patch)
}

func TestStep_AlreadyProcessedNotReapplied(t *testing.T) {
	engine, registry, store := setupEngine(t)
	client, _ := connectClient(t, store, registry, "a", "r1")

	enqueue(client, 1, "put", `{"key":"n","value":1}`)
	engine.Step(context.Background())

	// client re-sends the same mutation with a different value; it must
	// not be applied again
	enqueue(client, 1, "put", `{"key":"n","value":999}`)
	engine.Step(context.Background())

	record := getRecord(t, store, "a")
	assert.Equal(t, int64(1), record.LastMutationID)

	ctx := context.Background()
	err := store.WithTx(ctx, func(tx storage.RoomStorage) error {
		entry, err := tx.GetEntry(ctx, "r1", "n")
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(entry.Value))
		return nil
	})
	require.NoError(t, err)
}

func TestStep_UnknownClientFailsRoom(t *testing.T) {
	engine, registry, _ := setupEngine(t)

	// registered connection without a durable record: protocol violation
	socket := &fakeSocket{}
	client := NewClient("ghost", "r1", socket)
	registry.Register(client)

	enqueue(client, 1, "put", `{"key":"k","value":1}`)
	engine.Step(context.Background())

	// the step is abandoned; the mutation stays queued for a later step
	assert.Equal(t, []int64{1}, pendingIDs(client))
	assert.Empty(t, socket.pokes())
}

func TestStep_RoomIsolation(t *testing.T) {
	engine, registry, store := setupEngine(t)
	clientA, socketA := connectClient(t, store, registry, "a", "d1")
	clientB, socketB := connectClient(t, store, registry, "b", "d2")

	enqueue(clientA, 1, "put", `{"key":"only-d1","value":1}`)
	enqueue(clientB, 1, "put", `{"key":"only-d2","value":2}`)
	engine.Step(context.Background())

	pokesA := socketA.pokes()
	require.Len(t, pokesA, 1)
	require.Len(t, pokesA[0].Patch, 1)
	assert.Equal(t, "only-d1", pokesA[0].Patch[0].Key)

	pokesB := socketB.pokes()
	require.Len(t, pokesB, 1)
	require.Len(t, pokesB[0].Patch, 1)
	assert.Equal(t, "only-d2", pokesB[0].Patch[0].Key)
}

func TestStep_SpectatorGetsPoked(t *testing.T) {
	engine, registry, store := setupEngine(t)
	clientA, _ := connectClient(t, store, registry, "a", "r1")
	_, socketB := connectClient(t, store, registry, "b", "r1")

	enqueue(clientA, 1, "put", `{"key":"shared","value":1}`)
	engine.Step(context.Background())

	// b pushed nothing but shares the room, so it gets the patch too
	pokes := socketB.pokes()
	require.Len(t, pokes, 1)
	assert.Equal(t, int64(0), pokes[0].LastMutationID)
	require.Len(t, pokes[0].Patch, 1)
	assert.Equal(t, "shared", pokes[0].Patch[0].Key)
}

func TestStep_CrossClientTimestampOrder(t *testing.T) {
	engine, registry, store := setupEngine(t)
	clientA, _ := connectClient(t, store, registry, "a", "r1")
	clientB, _ := connectClient(t, store, registry, "b", "r1")

	// b's mutation carries an earlier timestamp than a's, so it applies
	// first and a's write wins the key
	clientB.mu.Lock()
	clientB.enqueueLocked(api.Mutation{ID: 1, Name: "put", Args: json.RawMessage(`{"key":"k","value":"from-b"}`)},
		func() time.Time { return time.UnixMilli(100) })
	clientB.mu.Unlock()

	clientA.mu.Lock()
	clientA.enqueueLocked(api.Mutation{ID: 1, Name: "put", Args: json.RawMessage(`{"key":"k","value":"from-a"}`)},
		func() time.Time { return time.UnixMilli(200) })
	clientA.mu.Unlock()

	engine.Step(context.Background())

	ctx := context.Background()
	err := store.WithTx(ctx, func(tx storage.RoomStorage) error {
		entry, err := tx.GetEntry(ctx, "r1", "k")
		require.NoError(t, err)
		assert.JSONEq(t, `"from-a"`, string(entry.Value))
		return nil
	})
	require.NoError(t, err)
}

func TestPush_SignalsLoop(t *testing.T) {
	engine, registry, store := setupEngine(t)
	client, socket := connectClient(t, store, registry, "a", "r1")

	engine.Push(client, &api.PushRequest{
		Mutations: []api.Mutation{{ID: 1, Name: "put", Args: json.RawMessage(`{"key":"k","value":1}`)}},
	}, time.Now)

	require.Eventually(t, func() bool {
		return len(socket.pokes()) == 1
	}, time.Second, time.Millisecond)

	assert.Empty(t, client.PendingMutations())
}

func TestStep_SharedBaseCookiePatchesMatch(t *testing.T) {
	engine, registry, store := setupEngine(t)
	clientA, socketA := connectClient(t, store, registry, "a", "r1")
	_, socketB := connectClient(t, store, registry, "b", "r1")

	for id := int64(1); id <= 3; id++ {
		enqueue(clientA, id, "put", fmt.Sprintf(`{"key":"k%d","value":%d}`, id, id))
	}
	engine.Step(context.Background())

	pokesA := socketA.pokes()
	pokesB := socketB.pokes()
	require.Len(t, pokesA, 1)
	require.Len(t, pokesB, 1)

	// both clients started from the same base cookie and share one patch
	assert.Equal(t, pokesA[0].Patch, pokesB[0].Patch)
	assert.Equal(t, pokesA[0].Cookie, pokesB[0].Cookie)
	assert.Equal(t, int64(3), pokesA[0].LastMutationID)
	assert.Equal(t, int64(0), pokesB[0].LastMutationID)
}
