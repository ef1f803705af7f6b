package containers

import "sync"

type LockGroup string

const (
	DescriptorAllocation   LockGroup = "descriptor_allocation"
	AccelerationManagement LockGroup = "acceleration_management"
	CommandListManagement  LockGroup = "command_list_management"
	StagingDescriptors     LockGroup = "staging_descriptors"
	RenderPassManagement   LockGroup = "render_pass_management"
)

// LockPool hands out one mutex per group, created lazily.
type LockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

// Get or create a mutex for a specific group
func (lp *LockPool) getLock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if _, exists := lp.locks[group]; !exists {
		lp.locks[group] = &sync.Mutex{}
	}
	return lp.locks[group]
}

// SafeCall runs fn while holding the mutex of group.
func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.getLock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}
