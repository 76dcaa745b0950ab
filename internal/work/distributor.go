package work

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/r3e-network/autopilot/internal/store/jsonfile"
)

// Input caps for report files. Larger inputs are truncated with a warning,
// not rejected.
const (
	MaxReportSize  = 10 << 20 // 10MB
	MaxReportLines = 10_000
)

// ErrChunkNotFound is returned for completion calls naming an unknown chunk.
var ErrChunkNotFound = fmt.Errorf("chunk not found")

// Distributor owns the backlog: it parses report files into items, hands out
// prioritized chunks, and reclaims abandoned assignments. State is persisted
// after every mutation and reloaded at construction, so a crash loses at most
// the in-flight mutation.
type Distributor struct {
	mu        sync.Mutex
	statePath string
	chunkSize int

	items     map[string]*Item
	order     []string // insertion order, for stable within-priority sorting
	chunks    map[string]*Chunk
	completed map[string]struct{}

	now func() time.Time
}

// stateFile is the on-disk layout of the distributor's state.
type stateFile struct {
	WorkItems     []*Item           `json:"workItems"`
	CompletedWork []string          `json:"completedWork"`
	Chunks        map[string]*Chunk `json:"chunks"`
	Timestamp     time.Time         `json:"timestamp"`
}

// NewDistributor creates a distributor persisting to statePath, reloading any
// prior state. chunkSize is the configured default chunk size.
func NewDistributor(statePath string, chunkSize int) (*Distributor, error) {
	d := &Distributor{
		statePath: statePath,
		chunkSize: chunkSize,
		items:     make(map[string]*Item),
		chunks:    make(map[string]*Chunk),
		completed: make(map[string]struct{}),
		now:       time.Now,
	}

	var state stateFile
	ok, err := jsonfile.Load(statePath, &state)
	if err != nil {
		return nil, fmt.Errorf("load work state: %w", err)
	}
	if ok {
		for _, item := range state.WorkItems {
			d.items[item.ID] = item
			d.order = append(d.order, item.ID)
		}
		for _, id := range state.CompletedWork {
			d.completed[id] = struct{}{}
		}
		if state.Chunks != nil {
			d.chunks = state.Chunks
		}
	}

	return d, nil
}

// LoadWorkFromFile parses a report file into backlog items. Items whose ids
// are already completed are never re-inserted, and ids already live in the
// backlog are skipped, keeping their status and attempt count. Returns the
// number of new items added.
func (d *Distributor) LoadWorkFromFile(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat report: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("report %s is not a regular file", path)
	}
	if info.Size() > MaxReportSize {
		return 0, fmt.Errorf("report %s exceeds %d bytes", path, MaxReportSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read report: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > MaxReportLines {
		log.Warn().Str("path", path).Int("lines", len(lines)).Int("cap", MaxReportLines).
			Msg("report truncated to line cap")
		lines = lines[:MaxReportLines]
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	added := 0
	for _, line := range lines {
		item, ok := ParseLine(line)
		if !ok {
			continue
		}
		if _, done := d.completed[item.ID]; done {
			continue
		}
		if _, exists := d.items[item.ID]; exists {
			continue
		}
		it := item
		d.items[it.ID] = &it
		d.order = append(d.order, it.ID)
		added++
	}

	log.Info().Str("path", path).Int("added", added).Msg("loaded work from report")
	return added, d.persist()
}

// LoadReports loads every report file matching the given doublestar globs,
// relative to root. Missing matches are not an error.
func (d *Distributor) LoadReports(root string, patterns []string) (int, error) {
	total := 0
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return total, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			n, err := d.LoadWorkFromFile(filepath.Join(root, match))
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

// GetWorkChunk assembles the next chunk for an agent. preferredSize <= 0
// selects a dynamic size based on backlog depth. Returns nil when no pending
// work exists.
func (d *Distributor) GetWorkChunk(agentID string, preferredSize int) (*Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.pendingLocked()
	if len(pending) == 0 {
		return nil, nil
	}

	size := preferredSize
	if size <= 0 {
		size = d.dynamicSize(len(pending))
	}
	if size > len(pending) {
		size = len(pending)
	}

	// Priority sort, stable so insertion order breaks ties.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority.rank() < pending[j].Priority.rank()
	})

	chunk := &Chunk{
		ID:         uuid.NewString(),
		AssignedTo: agentID,
		AssignedAt: d.now(),
	}
	for _, item := range pending[:size] {
		item.Status = StatusAssigned
		item.AssignedTo = agentID
		chunk.ItemIDs = append(chunk.ItemIDs, item.ID)
	}
	d.chunks[chunk.ID] = chunk

	log.Debug().Str("agent", agentID).Str("chunk", chunk.ID).Int("items", size).Msg("assigned work chunk")
	return chunk, d.persist()
}

// dynamicSize avoids starving a small backlog across too many chunks and
// over-committing huge batches to one agent.
func (d *Distributor) dynamicSize(pending int) int {
	switch {
	case pending < 10:
		return pending
	case pending < 50:
		return min(10, d.chunkSize)
	case pending < 200:
		return min(25, d.chunkSize)
	default:
		return d.chunkSize
	}
}

// MarkChunkCompleted finishes a chunk. Items in completedIDs move to the
// permanent completed set and leave the live map; every other item in the
// chunk reverts to pending with attempts incremented. The chunk record stays
// behind with CompletedAt set until the stale sweep ages it out.
func (d *Distributor) MarkChunkCompleted(chunkID string, completedIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	chunk, ok := d.chunks[chunkID]
	if !ok || chunk.CompletedAt != nil {
		return fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}

	done := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = struct{}{}
	}

	for _, id := range chunk.ItemIDs {
		item, live := d.items[id]
		if !live {
			continue
		}
		if _, finished := done[id]; finished {
			d.completed[id] = struct{}{}
			d.removeItemLocked(id)
			continue
		}
		item.Status = StatusPending
		item.AssignedTo = ""
		item.Attempts++
	}

	completed := d.now()
	chunk.CompletedAt = &completed

	log.Info().Str("chunk", chunkID).Int("completed", len(completedIDs)).
		Int("reverted", len(chunk.ItemIDs)-len(completedIDs)).Msg("chunk completed")
	return d.persist()
}

// ReleaseStaleChunks reclaims chunks assigned longer than maxAge ago with no
// completion. Their items revert to pending with attempts incremented.
// Completion records older than maxAge are purged in the same pass. Returns
// the number of chunks released.
func (d *Distributor) ReleaseStaleChunks(maxAge time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	released, purged := 0, 0
	cutoff := d.now().Add(-maxAge)
	for id, chunk := range d.chunks {
		if chunk.CompletedAt != nil {
			// Completion records age out on the same cutoff.
			if chunk.CompletedAt.Before(cutoff) {
				delete(d.chunks, id)
				purged++
			}
			continue
		}
		if chunk.AssignedAt.After(cutoff) {
			continue
		}
		for _, itemID := range chunk.ItemIDs {
			if item, live := d.items[itemID]; live {
				item.Status = StatusPending
				item.AssignedTo = ""
				item.Attempts++
			}
		}
		delete(d.chunks, id)
		released++
		log.Warn().Str("chunk", id).Str("agent", chunk.AssignedTo).Msg("released stale chunk")
	}

	if released == 0 && purged == 0 {
		return 0, nil
	}
	return released, d.persist()
}

// AppendCompletedMarker rewrites the report at path, prefixing lines whose
// ids are newly completed with the completed marker. Idempotent: already
// marked lines are left alone.
func (d *Distributor) AppendCompletedMarker(path string, completedIDs []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	done := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = struct{}{}
	}

	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, CompletedMarker) {
			continue
		}
		if _, ok := done[LineID(trimmed)]; ok {
			lines[i] = CompletedMarker + line
			changed = true
		}
	}

	if !changed {
		return nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp, path)
}

// Items returns snapshots of the live items with the given ids, in order.
// Unknown ids are skipped.
func (d *Distributor) Items(ids []string) []Item {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := d.items[id]; ok {
			out = append(out, *item)
		}
	}
	return out
}

// Statistics returns backlog counts.
func (d *Distributor) Statistics() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := Statistics{
		Total:     len(d.items) + len(d.completed),
		Completed: len(d.completed),
	}
	for _, chunk := range d.chunks {
		if chunk.CompletedAt == nil {
			stats.ActiveChunks++
		}
	}
	for _, item := range d.items {
		switch item.Status {
		case StatusPending:
			stats.Pending++
		case StatusAssigned:
			stats.Assigned++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// pendingLocked returns live pending items in insertion order.
func (d *Distributor) pendingLocked() []*Item {
	var pending []*Item
	for _, id := range d.order {
		if item, ok := d.items[id]; ok && item.Status == StatusPending {
			pending = append(pending, item)
		}
	}
	return pending
}

func (d *Distributor) removeItemLocked(id string) {
	delete(d.items, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// persist writes the full state file. Callers hold the mutex.
func (d *Distributor) persist() error {
	state := stateFile{
		CompletedWork: make([]string, 0, len(d.completed)),
		Chunks:        d.chunks,
		Timestamp:     d.now(),
	}
	for _, id := range d.order {
		if item, ok := d.items[id]; ok {
			state.WorkItems = append(state.WorkItems, item)
		}
	}
	for id := range d.completed {
		state.CompletedWork = append(state.CompletedWork, id)
	}
	sort.Strings(state.CompletedWork)

	if err := jsonfile.Save(d.statePath, state); err != nil {
		return fmt.Errorf("persist work state: %w", err)
	}
	return nil
}
