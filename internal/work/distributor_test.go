package work

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `src/a.go:1:1: error: first error
src/b.go:2:2: error: second error
src/c.go:3:3: error: third error
src/d.go:4:4: warning: first warning
src/e.go:5:5: warning: second warning
`

func newTestDistributor(t *testing.T) *Distributor {
	t.Helper()
	d, err := NewDistributor(filepath.Join(t.TempDir(), "work_state.json"), 10)
	require.NoError(t, err)
	return d
}

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWorkFromFile(t *testing.T) {
	d := newTestDistributor(t)

	added, err := d.LoadWorkFromFile(writeReport(t, sampleReport))
	require.NoError(t, err)
	assert.Equal(t, 5, added)

	stats := d.Statistics()
	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 0, stats.Assigned)
}

func TestLoadWorkFromFile_SkipsUnrecognizedAndCompleted(t *testing.T) {
	d := newTestDistributor(t)

	report := "random noise line\n" +
		"[COMPLETED] src/a.go:1:1: error: first error\n" +
		"src/b.go:2:2: error: second error\n"

	added, err := d.LoadWorkFromFile(writeReport(t, report))
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestGetWorkChunk_PriorityAndScenario(t *testing.T) {
	// 3 errors + 2 warnings; a chunk of 2 must contain only error items.
	d := newTestDistributor(t)
	_, err := d.LoadWorkFromFile(writeReport(t, sampleReport))
	require.NoError(t, err)

	chunk, err := d.GetWorkChunk("agent1", 2)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.Len(t, chunk.ItemIDs, 2)
	assert.Equal(t, "agent1", chunk.AssignedTo)

	assert.Equal(t, LineID("src/a.go:1:1: error: first error"), chunk.ItemIDs[0],
		"within-priority order must be stable relative to insertion")
	assert.Equal(t, LineID("src/b.go:2:2: error: second error"), chunk.ItemIDs[1])

	stats := d.Statistics()
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 2, stats.Assigned)
	assert.Equal(t, 1, stats.ActiveChunks)
}

func TestGetWorkChunk_FullPriorityOrdering(t *testing.T) {
	d := newTestDistributor(t)
	report := "src/x.go: TODO: low thing\n" +
		"src/y.go:1:1: warning: medium thing\n" +
		"src/z.go:2:2: error: high thing\n"
	_, err := d.LoadWorkFromFile(writeReport(t, report))
	require.NoError(t, err)

	chunk, err := d.GetWorkChunk("a1", 3)
	require.NoError(t, err)
	require.Len(t, chunk.ItemIDs, 3)

	assert.Equal(t, LineID("src/z.go:2:2: error: high thing"), chunk.ItemIDs[0])
	assert.Equal(t, LineID("src/y.go:1:1: warning: medium thing"), chunk.ItemIDs[1])
	assert.Equal(t, LineID("src/x.go: TODO: low thing"), chunk.ItemIDs[2])
}

func TestGetWorkChunk_EmptyBacklog(t *testing.T) {
	d := newTestDistributor(t)

	chunk, err := d.GetWorkChunk("agent1", 0)
	require.NoError(t, err)
	assert.Nil(t, chunk, "no pending work is a normal empty result, not an error")
}

func TestDynamicSize(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		pending   int
		want      int
	}{
		{"tiny backlog takes all", 10, 7, 7},
		{"small backlog capped at 10", 50, 30, 10},
		{"medium backlog capped at 25", 50, 100, 25},
		{"medium backlog respects smaller default", 5, 100, 5},
		{"large backlog uses default", 50, 500, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Distributor{chunkSize: tt.chunkSize}
			assert.Equal(t, tt.want, d.dynamicSize(tt.pending))
		})
	}
}

func TestMarkChunkCompleted_Conservation(t *testing.T) {
	d := newTestDistributor(t)
	_, err := d.LoadWorkFromFile(writeReport(t, sampleReport))
	require.NoError(t, err)

	chunk, err := d.GetWorkChunk("agent1", 4)
	require.NoError(t, err)
	require.Len(t, chunk.ItemIDs, 4)

	before := d.Statistics()
	completed := chunk.ItemIDs[:3]
	require.NoError(t, d.MarkChunkCompleted(chunk.ID, completed))

	after := d.Statistics()
	assert.Equal(t, before.Pending+(4-3), after.Pending, "pending_after = pending_before + (N - |S|)")
	assert.Equal(t, before.Completed+3, after.Completed)
	assert.Equal(t, 0, after.Assigned)
	assert.Equal(t, 0, after.ActiveChunks)

	// The reverted item carries an incremented attempt count.
	reverted := d.items[chunk.ItemIDs[3]]
	require.NotNil(t, reverted)
	assert.Equal(t, 1, reverted.Attempts)
	assert.Equal(t, StatusPending, reverted.Status)
}

func TestMarkChunkCompleted_UnknownChunk(t *testing.T) {
	d := newTestDistributor(t)
	err := d.MarkChunkCompleted("nope", nil)
	require.ErrorIs(t, err, ErrChunkNotFound)
}

func TestIdempotentReparse(t *testing.T) {
	d := newTestDistributor(t)
	path := writeReport(t, sampleReport)

	_, err := d.LoadWorkFromFile(path)
	require.NoError(t, err)

	chunk, err := d.GetWorkChunk("agent1", 5)
	require.NoError(t, err)
	require.NoError(t, d.MarkChunkCompleted(chunk.ID, chunk.ItemIDs[:1]))

	liveBefore := len(d.items)
	_, err = d.LoadWorkFromFile(path)
	require.NoError(t, err)
	assert.Len(t, d.items, liveBefore, "completed ids must never be reintroduced")
}

func TestMarkChunkCompleted_RetainsCompletionRecord(t *testing.T) {
	d := newTestDistributor(t)
	_, err := d.LoadWorkFromFile(writeReport(t, sampleReport))
	require.NoError(t, err)

	chunk, err := d.GetWorkChunk("agent1", 2)
	require.NoError(t, err)
	require.NoError(t, d.MarkChunkCompleted(chunk.ID, chunk.ItemIDs))

	record := d.chunks[chunk.ID]
	require.NotNil(t, record, "completed chunk stays on record until the sweep ages it out")
	require.NotNil(t, record.CompletedAt)
	assert.Equal(t, 0, d.Statistics().ActiveChunks)

	// Completing the same chunk twice is an error.
	require.ErrorIs(t, d.MarkChunkCompleted(chunk.ID, nil), ErrChunkNotFound)

	// The sweep leaves fresh records alone, then purges aged ones.
	released, err := d.ReleaseStaleChunks(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.NotNil(t, d.chunks[chunk.ID])

	d.now = func() time.Time { return record.CompletedAt.Add(6 * time.Minute) }
	released, err = d.ReleaseStaleChunks(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, released, "purging a completion record reclaims nothing")
	assert.Nil(t, d.chunks[chunk.ID])
}

func TestReleaseStaleChunks(t *testing.T) {
	d := newTestDistributor(t)
	_, err := d.LoadWorkFromFile(writeReport(t, sampleReport))
	require.NoError(t, err)

	chunk, err := d.GetWorkChunk("agent1", 3)
	require.NoError(t, err)

	// Fresh chunk is left alone.
	released, err := d.ReleaseStaleChunks(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	// Age the chunk past the cutoff.
	d.now = func() time.Time { return chunk.AssignedAt.Add(6 * time.Minute) }
	released, err = d.ReleaseStaleChunks(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	stats := d.Statistics()
	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 0, stats.Assigned)
	assert.Equal(t, 0, stats.ActiveChunks)

	for _, id := range chunk.ItemIDs {
		require.NotNil(t, d.items[id])
		assert.Equal(t, 1, d.items[id].Attempts, "every reclaimed item gains exactly one attempt")
	}
}

func TestAppendCompletedMarker(t *testing.T) {
	d := newTestDistributor(t)
	path := writeReport(t, sampleReport)

	_, err := d.LoadWorkFromFile(path)
	require.NoError(t, err)
	chunk, err := d.GetWorkChunk("agent1", 2)
	require.NoError(t, err)
	require.NoError(t, d.MarkChunkCompleted(chunk.ID, chunk.ItemIDs))

	require.NoError(t, d.AppendCompletedMarker(path, chunk.ItemIDs))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	marked := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, CompletedMarker) {
			marked++
		}
	}
	assert.Equal(t, 2, marked)

	// Idempotent: marking again changes nothing.
	require.NoError(t, d.AppendCompletedMarker(path, chunk.ItemIDs))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))

	// Re-parsing the marked file does not reintroduce finished items.
	added, err := d.LoadWorkFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestDistributor_PersistAndReload(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "work_state.json")

	d, err := NewDistributor(statePath, 10)
	require.NoError(t, err)
	_, err = d.LoadWorkFromFile(writeReport(t, sampleReport))
	require.NoError(t, err)
	chunk, err := d.GetWorkChunk("agent1", 2)
	require.NoError(t, err)
	require.NoError(t, d.MarkChunkCompleted(chunk.ID, chunk.ItemIDs[:1]))

	reloaded, err := NewDistributor(statePath, 10)
	require.NoError(t, err)

	want := d.Statistics()
	got := reloaded.Statistics()
	assert.Equal(t, want, got, "statistics must survive a restart")

	// Insertion order survives too: next chunk starts with the remaining errors.
	next, err := reloaded.GetWorkChunk("agent2", 2)
	require.NoError(t, err)
	require.Len(t, next.ItemIDs, 2)
}

func TestLoadWorkFromFile_MissingFile(t *testing.T) {
	d := newTestDistributor(t)
	_, err := d.LoadWorkFromFile(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestLoadReports_Globs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "reports", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "reports", "a.txt"),
		[]byte("src/a.go:1:1: error: one\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "reports", "nested", "b.txt"),
		[]byte("src/b.go:2:2: warning: two\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.log"),
		[]byte("src/c.go:3:3: error: three\n"), 0o644))

	d := newTestDistributor(t)
	added, err := d.LoadReports(root, []string{"reports/**/*.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
}
