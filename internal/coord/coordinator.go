package coord

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/r3e-network/autopilot/internal/store/jsonfile"
)

// On-disk layout under the coordination directory.
const (
	activeRegistryFile = "active_work_registry.json"
	completedLogFile   = "completed_work_log.json"
	plannedQueueFile   = "planned_work_queue.json"
	locksDirName       = "locks"
	lockSuffix         = ".lock"
)

// ErrNotFound is returned when a plan does not exist or is not owned by the
// caller.
var ErrNotFound = errors.New("work plan not found")

// Coordinator mediates resource claims between cooperating processes through
// a shared directory. It holds no authority beyond the files: every mutation
// is persisted immediately, and any process may run its own Coordinator over
// the same directory.
type Coordinator struct {
	mu  sync.Mutex
	dir string

	locks        map[string]*AgentLock // agentID -> lock
	active       map[string]*WorkPlan  // planID -> active plan
	planned      []*WorkPlan           // priority-ordered queue
	completedLog []*WorkPlan

	staleLockAge time.Duration
	now          func() time.Time
}

// New creates a Coordinator over dir, loads persisted state, and reclaims
// stale locks left behind by crashed processes.
func New(dir string, staleLockAge time.Duration) (*Coordinator, error) {
	c := &Coordinator{
		dir:          dir,
		locks:        make(map[string]*AgentLock),
		active:       make(map[string]*WorkPlan),
		staleLockAge: staleLockAge,
		now:          time.Now,
	}

	if err := os.MkdirAll(c.locksDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create coordination dir: %w", err)
	}

	if err := c.loadState(); err != nil {
		return nil, err
	}
	if err := c.loadLocks(); err != nil {
		return nil, err
	}
	c.cleanupStaleLocks()

	return c, nil
}

// PlanWork validates and enqueues a plan. Conflicting plans are rejected with
// a ConflictError naming the overlapping agent and resource.
func (c *Coordinator) PlanWork(agentID string, plan WorkPlan) (*WorkPlan, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}
	if plan.Title == "" {
		return nil, errors.New("plan title is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	plan.Files = SanitizePaths(plan.Files)
	if reasons := CheckConflicts(agentID, plan.Files, plan.Features, c.heldLocks()); len(reasons) > 0 {
		return nil, &ConflictError{Reasons: reasons}
	}

	plan.ID = uuid.NewString()
	plan.AgentID = agentID
	plan.Status = PlanPlanned
	plan.CreatedAt = c.now()
	if plan.Priority == "" {
		plan.Priority = PriorityMedium
	}

	c.enqueueLocked(&plan)

	log.Info().Str("agent", agentID).Str("plan", plan.ID).Str("title", plan.Title).Msg("work planned")
	return &plan, c.persistState()
}

// RequestWork hands the first takeable planned work to an agent: the agent
// must hold no lock, the plan's resources must not conflict with any held
// lock, and — when the agent declares capabilities — the plan's features must
// fall within them. Returns nil when nothing is takeable.
func (c *Coordinator) RequestWork(agentID string, capabilities []string) (*WorkPlan, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.locks[agentID]; held {
		return nil, nil
	}

	capSet := make(map[string]struct{}, len(capabilities))
	for _, capability := range capabilities {
		capSet[capability] = struct{}{}
	}

	for i, plan := range c.planned {
		if len(capSet) > 0 && !featuresWithin(plan.Features, capSet) {
			continue
		}
		if reasons := CheckConflicts(agentID, plan.Files, plan.Features, c.heldLocks()); len(reasons) > 0 {
			continue
		}

		c.planned = append(c.planned[:i], c.planned[i+1:]...)

		started := c.now()
		plan.Status = PlanActive
		plan.AgentID = agentID
		plan.StartedAt = &started
		c.active[plan.ID] = plan

		if err := c.writeLockLocked(&AgentLock{
			AgentID:     agentID,
			Timestamp:   started,
			Files:       plan.Files,
			Features:    plan.Features,
			Description: plan.Title,
		}); err != nil {
			return nil, err
		}

		log.Info().Str("agent", agentID).Str("plan", plan.ID).Msg("work requested")
		return plan, c.persistState()
	}

	return nil, nil
}

// ClaimWork takes a lease over files and features without pre-planning.
// Returns false on conflict — the common case, not an error. estimate is an
// advisory free-form duration ("2h", "30m") recorded on the lock for other
// agents to read; empty means no estimate.
func (c *Coordinator) ClaimWork(agentID string, files, features []string, description, estimate string) (bool, error) {
	if agentID == "" {
		return false, errors.New("agent id is required")
	}
	if description == "" {
		return false, errors.New("description is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files = SanitizePaths(files)
	if reasons := CheckConflicts(agentID, files, features, c.heldLocks()); len(reasons) > 0 {
		log.Debug().Str("agent", agentID).Strs("reasons", reasons).Msg("claim rejected")
		return false, nil
	}

	if err := c.writeLockLocked(&AgentLock{
		AgentID:           agentID,
		Timestamp:         c.now(),
		Files:             files,
		Features:          features,
		Description:       description,
		EstimatedDuration: estimate,
	}); err != nil {
		return false, err
	}

	log.Info().Str("agent", agentID).Int("files", len(files)).Int("features", len(features)).Msg("work claimed")
	return true, nil
}

// ReleaseWork drops an agent's lock. Any active plan the agent owned reverts
// to planned and is re-enqueued — work is never silently lost on release.
func (c *Coordinator) ReleaseWork(agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(agentID)
}

// CompleteWork finishes a plan owned by the caller, appends it to the
// immutable completed log, and releases the agent's lock. Returns ErrNotFound
// if the plan does not exist or belongs to another agent.
func (c *Coordinator) CompleteWork(agentID, workID string, success bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, ok := c.active[workID]
	if !ok || plan.AgentID != agentID {
		return fmt.Errorf("%w: %s for agent %s", ErrNotFound, workID, agentID)
	}

	completed := c.now()
	plan.CompletedAt = &completed
	if success {
		plan.Status = PlanCompleted
	} else {
		plan.Status = PlanFailed
	}

	c.completedLog = append(c.completedLog, plan)
	delete(c.active, workID)

	if err := c.removeLockLocked(agentID); err != nil {
		return err
	}

	log.Info().Str("agent", agentID).Str("plan", workID).Bool("success", success).Msg("work completed")
	return c.persistState()
}

// Locks returns a snapshot of currently held locks.
func (c *Coordinator) Locks() []AgentLock {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AgentLock, 0, len(c.locks))
	for _, l := range c.locks {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// PlannedQueue returns a snapshot of the planned queue in priority order.
func (c *Coordinator) PlannedQueue() []WorkPlan {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorkPlan, 0, len(c.planned))
	for _, p := range c.planned {
		out = append(out, *p)
	}
	return out
}

// ActivePlans returns a snapshot of active plans.
func (c *Coordinator) ActivePlans() []WorkPlan {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorkPlan, 0, len(c.active))
	for _, p := range c.active {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CompletedLog returns a snapshot of the completed log, oldest first.
func (c *Coordinator) CompletedLog() []WorkPlan {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorkPlan, 0, len(c.completedLog))
	for _, p := range c.completedLog {
		out = append(out, *p)
	}
	return out
}

// CleanupStaleLocks reclaims locks older than the stale age and returns how
// many were released. Run at startup and periodically by the sweep loop; this
// is how the system recovers from workers that crashed while holding
// resources.
func (c *Coordinator) CleanupStaleLocks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupStaleLocks()
}

// LocksDir returns the directory holding per-agent lock files.
func (c *Coordinator) LocksDir() string {
	return c.locksDir()
}

func (c *Coordinator) releaseLocked(agentID string) error {
	if err := c.removeLockLocked(agentID); err != nil {
		return err
	}

	for id, plan := range c.active {
		if plan.AgentID != agentID {
			continue
		}
		plan.Status = PlanPlanned
		plan.StartedAt = nil
		delete(c.active, id)
		c.enqueueLocked(plan)
		log.Info().Str("agent", agentID).Str("plan", id).Msg("active plan requeued on release")
	}

	return c.persistState()
}

func (c *Coordinator) cleanupStaleLocks() int {
	cutoff := c.now().Add(-c.staleLockAge)
	released := 0
	for agentID, lock := range c.locks {
		if lock.Timestamp.After(cutoff) {
			continue
		}
		log.Warn().Str("agent", agentID).Time("since", lock.Timestamp).Msg("reclaiming stale lock")
		if err := c.releaseLocked(agentID); err != nil {
			log.Error().Err(err).Str("agent", agentID).Msg("stale lock release failed")
			continue
		}
		released++
	}
	return released
}

// enqueueLocked inserts a plan keeping the queue priority-ordered, stable
// within a priority band.
func (c *Coordinator) enqueueLocked(plan *WorkPlan) {
	idx := len(c.planned)
	for i, p := range c.planned {
		if plan.Priority.rank() < p.Priority.rank() {
			idx = i
			break
		}
	}
	c.planned = append(c.planned, nil)
	copy(c.planned[idx+1:], c.planned[idx:])
	c.planned[idx] = plan
}

func (c *Coordinator) heldLocks() []AgentLock {
	out := make([]AgentLock, 0, len(c.locks))
	for _, l := range c.locks {
		out = append(out, *l)
	}
	return out
}

func featuresWithin(features []string, capabilities map[string]struct{}) bool {
	for _, f := range features {
		if _, ok := capabilities[f]; !ok {
			return false
		}
	}
	return true
}

func (c *Coordinator) locksDir() string {
	return filepath.Join(c.dir, locksDirName)
}

func (c *Coordinator) lockPath(agentID string) string {
	return filepath.Join(c.locksDir(), agentID+lockSuffix)
}

func (c *Coordinator) writeLockLocked(lock *AgentLock) error {
	if err := jsonfile.Save(c.lockPath(lock.AgentID), lock); err != nil {
		return fmt.Errorf("write lock for %s: %w", lock.AgentID, err)
	}
	c.locks[lock.AgentID] = lock
	return nil
}

func (c *Coordinator) removeLockLocked(agentID string) error {
	if err := os.Remove(c.lockPath(agentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock for %s: %w", agentID, err)
	}
	delete(c.locks, agentID)
	return nil
}

// loadLocks reads every *.lock file in the locks directory. Unreadable lock
// files are skipped with a loud log rather than failing startup.
func (c *Coordinator) loadLocks() error {
	entries, err := os.ReadDir(c.locksDir())
	if err != nil {
		return fmt.Errorf("read locks dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, lockSuffix) {
			continue
		}
		var lock AgentLock
		ok, err := jsonfile.Load(filepath.Join(c.locksDir(), name), &lock)
		if err != nil || !ok {
			log.Error().Err(err).Str("file", name).Msg("skipping unreadable lock file")
			continue
		}
		c.locks[lock.AgentID] = &lock
	}
	return nil
}

func (c *Coordinator) loadState() error {
	if _, err := jsonfile.Load(filepath.Join(c.dir, activeRegistryFile), &c.active); err != nil {
		return fmt.Errorf("load active registry: %w", err)
	}
	if _, err := jsonfile.Load(filepath.Join(c.dir, completedLogFile), &c.completedLog); err != nil {
		return fmt.Errorf("load completed log: %w", err)
	}
	if _, err := jsonfile.Load(filepath.Join(c.dir, plannedQueueFile), &c.planned); err != nil {
		return fmt.Errorf("load planned queue: %w", err)
	}
	return nil
}

// persistState writes the registry, log, and queue. Callers hold the mutex.
// Each file is replaced atomically so cooperating processes never observe a
// partial write.
func (c *Coordinator) persistState() error {
	if err := jsonfile.Save(filepath.Join(c.dir, activeRegistryFile), c.active); err != nil {
		return fmt.Errorf("persist active registry: %w", err)
	}
	if err := jsonfile.Save(filepath.Join(c.dir, completedLogFile), c.completedLog); err != nil {
		return fmt.Errorf("persist completed log: %w", err)
	}
	if err := jsonfile.Save(filepath.Join(c.dir, plannedQueueFile), c.planned); err != nil {
		return fmt.Errorf("persist planned queue: %w", err)
	}
	return nil
}
