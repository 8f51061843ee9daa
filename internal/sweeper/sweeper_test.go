package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi-app/raahi/internal/repository"
	"github.com/raahi-app/raahi/internal/storage"
)

type fakeAssetStore struct {
	orphans      []repository.UploadedAsset
	listErr      error
	deletedIDs   []uuid.UUID
	recordDelErr map[uuid.UUID]error

	gotAge   time.Duration
	gotLimit int
}

func (f *fakeAssetStore) ListOrphanedAssets(ctx context.Context, age time.Duration, limit int) ([]repository.UploadedAsset, error) {
	f.gotAge = age
	f.gotLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orphans, nil
}

func (f *fakeAssetStore) DeleteAssetRecord(ctx context.Context, id uuid.UUID) error {
	if err := f.recordDelErr[id]; err != nil {
		return err
	}
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

type fakeStorage struct {
	storage.Storage

	deletedKeys []string
	deleteErr   map[string]error
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	f.deletedKeys = append(f.deletedKeys, key)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		PollInterval:    time.Minute,
		MinAge:          time.Hour,
		BatchSize:       50,
		ShutdownTimeout: time.Second,
	}
}

func orphan(key string) repository.UploadedAsset {
	return repository.UploadedAsset{
		ID:         uuid.New(),
		ReportID:   uuid.New(),
		StorageKey: key,
		CreatedAt:  time.Now().Add(-2 * time.Hour),
	}
}

func TestSweep_RemovesObjectThenRecord(t *testing.T) {
	a, b := orphan("reports/x/images/a.jpg"), orphan("reports/y/images/b.jpg")
	store := &fakeAssetStore{orphans: []repository.UploadedAsset{a, b}}
	files := &fakeStorage{}

	s, err := New(store, files, testConfig(), discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Sweep(context.Background()))

	assert.Equal(t, []string{a.StorageKey, b.StorageKey}, files.deletedKeys)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, store.deletedIDs)
	assert.Equal(t, time.Hour, store.gotAge)
	assert.Equal(t, 50, store.gotLimit)
}

func TestSweep_NoOrphansIsQuiet(t *testing.T) {
	store := &fakeAssetStore{}
	files := &fakeStorage{}

	s, err := New(store, files, testConfig(), discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Sweep(context.Background()))
	assert.Empty(t, files.deletedKeys)
}

func TestSweep_MissingObjectStillDropsRecord(t *testing.T) {
	a := orphan("reports/x/images/gone.jpg")
	store := &fakeAssetStore{orphans: []repository.UploadedAsset{a}}
	files := &fakeStorage{deleteErr: map[string]error{
		a.StorageKey: &storage.StorageError{Op: "delete", Key: a.StorageKey, Err: storage.ErrNotFound},
	}}

	s, err := New(store, files, testConfig(), discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, []uuid.UUID{a.ID}, store.deletedIDs)
}

func TestSweep_KeepsRecordWhenDeleteFails(t *testing.T) {
	a, b := orphan("reports/x/images/a.jpg"), orphan("reports/y/images/b.jpg")
	store := &fakeAssetStore{orphans: []repository.UploadedAsset{a, b}}
	files := &fakeStorage{deleteErr: map[string]error{
		a.StorageKey: errors.New("bucket unavailable"),
	}}

	s, err := New(store, files, testConfig(), discardLogger())
	require.NoError(t, err)

	err = s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), a.StorageKey)

	// The failed orphan keeps its record for the next pass.
	assert.Equal(t, []uuid.UUID{b.ID}, store.deletedIDs)
	assert.Equal(t, []string{b.StorageKey}, files.deletedKeys)
}

func TestSweep_ListFailurePropagates(t *testing.T) {
	store := &fakeAssetStore{listErr: errors.New("connection refused")}

	s, err := New(store, &fakeStorage{}, testConfig(), discardLogger())
	require.NoError(t, err)

	assert.Error(t, s.Sweep(context.Background()))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 0

	_, err := New(&fakeAssetStore{}, &fakeStorage{}, cfg, discardLogger())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	store := &fakeAssetStore{}
	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond

	s, err := New(store, &fakeStorage{}, cfg, discardLogger())
	require.NoError(t, err)

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	// The initial sweep plus at least one tick ran.
	assert.Equal(t, time.Hour, store.gotAge)
}
