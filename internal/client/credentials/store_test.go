package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/roomchat/internal/client/localdb"
	"github.com/dmitrijs2005/roomchat/internal/client/repositories/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T, dsn string) *metadata.SQLiteRepository {
	t.Helper()
	db, err := localdb.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return metadata.NewSQLiteRepository(db)
}

// failingRepo fails every write.
type failingRepo struct {
	metadata.Repository
}

func (failingRepo) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (failingRepo) SetMany(context.Context, map[string][]byte) error {
	return errors.New("disk full")
}
func (failingRepo) Delete(context.Context, string) error { return errors.New("disk full") }

func TestStore_EmptyByDefault(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Init(context.Background()))

	_, ok := s.Read()
	assert.False(t, ok)
}

func TestStore_SetReadClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)

	require.NoError(t, s.Set(ctx, full()))
	got, ok := s.Read()
	require.True(t, ok)
	assert.Equal(t, full(), got)

	require.NoError(t, s.Clear(ctx))
	_, ok = s.Read()
	assert.False(t, ok)
}

func TestStore_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	require.NoError(t, s.Set(ctx, full()))

	c, _ := s.Read()
	c.AccessToken = "tampered"

	again, _ := s.Read()
	assert.Equal(t, "a", again.AccessToken)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dsn := t.TempDir() + "/client.db"

	s1 := NewStore(newSQLiteRepo(t, dsn), nil)
	require.NoError(t, s1.Init(ctx))
	require.NoError(t, s1.Set(ctx, full()))
	require.NoError(t, s1.Update(ctx, func(c *Credential) {
		*c = c.WithTokens("a2", "r2")
	}))

	s2 := NewStore(newSQLiteRepo(t, dsn), nil)
	require.NoError(t, s2.Init(ctx))
	got, ok := s2.Read()
	require.True(t, ok)
	assert.Equal(t, full().WithTokens("a2", "r2"), got)

	require.NoError(t, s2.Clear(ctx))

	s3 := NewStore(newSQLiteRepo(t, dsn), nil)
	require.NoError(t, s3.Init(ctx))
	_, ok = s3.Read()
	assert.False(t, ok)
}

func TestStore_Init_CorruptRowIsLoggedOut(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t, ":memory:")
	require.NoError(t, repo.Set(ctx, credentialKey, []byte("{not json")))

	s := NewStore(repo, nil)
	require.NoError(t, s.Init(ctx))
	_, ok := s.Read()
	assert.False(t, ok)
}

func TestStore_Update_PersistFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	require.NoError(t, s.Set(ctx, full()))

	s.repo = failingRepo{}
	err := s.Update(ctx, func(c *Credential) { c.AccessToken = "new" })
	require.Error(t, err)

	got, _ := s.Read()
	assert.Equal(t, "a", got.AccessToken)
}

func TestStore_Clear_DropsMemoryEvenOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	require.NoError(t, s.Set(ctx, full()))

	s.repo = failingRepo{}
	require.Error(t, s.Clear(ctx))
	_, ok := s.Read()
	assert.False(t, ok)
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	require.NoError(t, s.Set(ctx, Credential{}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, func(c *Credential) { c.AccessToken += "x" })
			_, _ = s.Read()
		}()
	}
	wg.Wait()

	got, _ := s.Read()
	assert.Len(t, got.AccessToken, n)
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newSQLiteRepo(t, ":memory:"), nil)

	ok, err := s.CompareAndSwap(ctx, full(), full().WithTokens("x", "y"))
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored yet")

	require.NoError(t, s.Set(ctx, full()))

	ok, err = s.CompareAndSwap(ctx, full().WithTokens("stale", "stale"), full().WithTokens("x", "y"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, full(), full().WithTokens("x", "y"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := s.Read()
	assert.Equal(t, "x", got.AccessToken)
}

func TestStore_CompareAndSwap_AfterClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	require.NoError(t, s.Set(ctx, full()))
	require.NoError(t, s.Clear(ctx))

	ok, err := s.CompareAndSwap(ctx, full(), full().WithTokens("x", "y"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, present := s.Read()
	assert.False(t, present)
}
