package workspace

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/wyrmspire/agentcore/internal/fileutil"
)

// ResourceStats reports current resource usage.
type ResourceStats struct {
	WorkspaceSizeBytes int64
	WorkspaceLimitGB   float64
	RAMUsedPercent     float64
	RAMFreePercent     float64
}

// Size returns the total size of the workspace in bytes.
func (w *Workspace) Size() int64 {
	return fileutil.DirSize(w.root)
}

// CheckSize verifies the workspace is within its disk budget.
func (w *Workspace) CheckSize() error {
	size := w.Size()
	if size > w.opts.MaxSizeBytes {
		return &Error{
			BlockedBy: BlockedByRuntime,
			Code:      CodeResourceLimit,
			Message: fmt.Sprintf("workspace size (%.2fGB) exceeds limit (%.2fGB); clean up files before continuing",
				float64(size)/(1<<30), float64(w.opts.MaxSizeBytes)/(1<<30)),
		}
	}
	return nil
}

// CheckRAM verifies the system has sufficient free memory.
func (w *Workspace) CheckRAM() error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		// Cannot read memory stats; do not block on it.
		return nil
	}
	free := 100.0 - vm.UsedPercent
	if free < w.opts.MinFreeRAMPercent {
		return &Error{
			BlockedBy: BlockedByRuntime,
			Code:      CodeResourceLimit,
			Message: fmt.Sprintf("low system memory: only %.1f%% free (minimum: %.1f%%)",
				free, w.opts.MinFreeRAMPercent),
		}
	}
	return nil
}

// CheckResources runs all resource limit checks. Call before expensive
// write-producing operations; a failure must propagate as a tool error, never
// be swallowed.
func (w *Workspace) CheckResources() error {
	if err := w.CheckSize(); err != nil {
		return err
	}
	return w.CheckRAM()
}

// ResourceUsage returns current resource statistics.
func (w *Workspace) ResourceUsage() ResourceStats {
	stats := ResourceStats{
		WorkspaceSizeBytes: w.Size(),
		WorkspaceLimitGB:   float64(w.opts.MaxSizeBytes) / (1 << 30),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.RAMUsedPercent = vm.UsedPercent
		stats.RAMFreePercent = 100.0 - vm.UsedPercent
	}
	return stats
}
