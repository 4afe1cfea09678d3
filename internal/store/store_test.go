package store_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migdash/internal/store"
)

func newStatusStore(t *testing.T) *store.StatusStore {
	t.Helper()

	return store.NewStatusStore(
		filepath.Join(t.TempDir(), store.StatusDocument),
	)
}

func TestStatusStoreDefaultsToIdle(t *testing.T) {
	t.Parallel()

	s := newStatusStore(t)

	status, err := s.Read()
	require.NoError(t, err)

	assert.Equal(t, store.StateIdle, status.State)
	assert.Nil(t, status.StartTime)
	assert.Nil(t, status.EndTime)
	assert.Empty(t, status.Error)
}

func TestStatusStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStatusStore(t)

	start := time.Now().Truncate(time.Second)
	end := start.Add(time.Minute)

	want := store.JobStatus{
		ID:        "e6a7117e-41e2-4b44-a2b3-beffa0c5b4b2",
		State:     store.StateFailed,
		Source:    "/mnt/old",
		Target:    "/mnt/new",
		StartTime: &start,
		EndTime:   &end,
		Error:     "migration process exited with code 3",
	}

	require.NoError(t, s.Write(want))

	got, err := s.Read()
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.Source, got.Source)
	assert.Equal(t, want.Target, got.Target)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.Equal(end))
	assert.Equal(t, want.Error, got.Error)
}

func TestStatusStoreLastWriteWins(t *testing.T) {
	t.Parallel()

	s := newStatusStore(t)

	require.NoError(t, s.Write(store.JobStatus{State: store.StateRunning}))
	require.NoError(t, s.Write(store.JobStatus{State: store.StateCompleted}))

	got, err := s.Read()
	require.NoError(t, err)

	assert.Equal(t, store.StateCompleted, got.State)
}

func TestStatusStoreCorruptDocumentDegradesToIdle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "current.json")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := store.NewStatusStore(path)

	status, err := s.Read()

	assert.Error(t, err)
	assert.Equal(t, store.StateIdle, status.State)
}

func TestStatusStoreConcurrentReadersSeeWholeRecords(t *testing.T) {
	t.Parallel()

	s := newStatusStore(t)

	require.NoError(t, s.Write(store.JobStatus{State: store.StateRunning, Source: "a", Target: "b"}))

	var wg sync.WaitGroup

	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				select {
				case <-stop:
					return
				default:
				}

				status, err := s.Read()
				if err != nil {
					t.Errorf("read during concurrent writes: %v", err)

					return
				}

				// Source and target are always written together; seeing one
				// without the other would mean a torn record.
				if (status.Source == "") != (status.Target == "") {
					t.Errorf("observed partial record: %+v", status)

					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		status := store.JobStatus{State: store.StateRunning, Source: "a", Target: "b"}
		if i%2 == 0 {
			status = store.JobStatus{State: store.StateStopping, Source: "c", Target: "d"}
		}

		require.NoError(t, s.Write(status))
	}

	close(stop)
	wg.Wait()
}

func TestDocumentStoreMissingDocumentIsEmpty(t *testing.T) {
	t.Parallel()

	docs := store.NewDocumentStore(t.TempDir())

	doc, err := docs.Load(store.ConfigDocument)

	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	t.Parallel()

	docs := store.NewDocumentStore(t.TempDir())

	want := map[string]any{
		"bandwidth_limit": "100M",
		"verify":          true,
		"excludes":        []any{"tmp", "cache"},
	}

	require.NoError(t, docs.Save(store.ConfigDocument, want))

	got, err := docs.Load(store.ConfigDocument)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestDocumentStoreCorruptDocument(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, store.ConfigDocument)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("]["), 0o644))

	docs := store.NewDocumentStore(root)

	doc, err := docs.Load(store.ConfigDocument)

	assert.Error(t, err)
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
}

func TestTransferMetricsSuccessRate(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		transfers []store.Transfer
		want      float64
	}{
		"Mixed results": {
			transfers: []store.Transfer{
				{"success": true},
				{"success": false},
				{"success": true},
			},
			want: 200.0 / 3.0,
		},
		"No transfers": {
			transfers: []store.Transfer{},
			want:      0,
		},
		"All failed": {
			transfers: []store.Transfer{{"success": false}},
			want:      0,
		},
		"Missing success field": {
			transfers: []store.Transfer{{"bytes": 42.0}, {"success": true}},
			want:      50,
		},
	}

	for scenario, config := range scenarios {
		scenario, config := scenario, config
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			metrics := store.TransferMetrics{Transfers: config.transfers}

			assert.InDelta(t, config.want, metrics.SuccessRate(), 0.01)
		})
	}
}

func TestLoadTransferMetrics(t *testing.T) {
	t.Parallel()

	t.Run("Missing document yields empty metrics", func(t *testing.T) {
		t.Parallel()

		metrics, err := store.LoadTransferMetrics(store.NewDocumentStore(t.TempDir()))

		require.NoError(t, err)
		assert.NotNil(t, metrics.Transfers)
		assert.Empty(t, metrics.Transfers)
		assert.Zero(t, metrics.SuccessRate())
	})

	t.Run("Unknown transfer fields round-trip", func(t *testing.T) {
		t.Parallel()

		docs := store.NewDocumentStore(t.TempDir())

		require.NoError(t, docs.Save(store.HistoricalDocument, map[string]any{
			"transfers": []map[string]any{
				{"success": true, "duration_seconds": 12.5, "path": "/mnt/old/a"},
			},
		}))

		metrics, err := store.LoadTransferMetrics(docs)
		require.NoError(t, err)

		require.Len(t, metrics.Transfers, 1)
		assert.Equal(t, "/mnt/old/a", metrics.Transfers[0]["path"])
		assert.InDelta(t, 100, metrics.SuccessRate(), 0.01)
	})
}
