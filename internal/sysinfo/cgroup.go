// Package sysinfo detects container resource limits so the supervisor
// can size itself to the host instead of carrying a single hard-coded
// constant across every deployment shape.
package sysinfo

import (
	"os"
	"strconv"
	"strings"
)

// MemoryLimitBytes returns the container memory limit in bytes, read
// from the cgroup filesystem. It tries cgroup v2 first
// (/sys/fs/cgroup/memory.max), then falls back to cgroup v1
// (/sys/fs/cgroup/memory/memory.limit_in_bytes). Returns 0 with a nil
// error when neither file exists or cgroup v2 reports "max", matching
// the caller's own conservative-default fallback. A cgroup v1 file is
// returned as read, so an unlimited v1 cgroup yields its very large
// sentinel byte count rather than 0.
func MemoryLimitBytes() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			return strconv.ParseInt(limitStr, 10, 64)
		}
		return 0, nil
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		return strconv.ParseInt(limitStr, 10, 64)
	}

	return 0, nil
}

// Per-task memory budget: two goroutine stacks, a bounded message
// queue (QueueCapacity messages, each assumed up to a few KB of JSON),
// and the franz-go client buffers on both the source and sink side.
const (
	runtimeOverheadBytes  = 128 * 1024 * 1024
	bytesPerRunningTask   = 4 * 1024 * 1024
	defaultMaxTasksNoLimit = 200
	minMaxTasks            = 5
	maxMaxTasks            = 5000
)

// MaxConcurrentTasks derives a safe upper bound on simultaneously
// running tasks from a detected container memory limit, reserving
// runtimeOverheadBytes for the Go runtime and client libraries and
// budgeting bytesPerRunningTask per task. memoryLimitBytes == 0 (no
// limit detected) returns a conservative fixed default.
func MaxConcurrentTasks(memoryLimitBytes int64) int {
	if memoryLimitBytes == 0 {
		return defaultMaxTasksNoLimit
	}

	available := memoryLimitBytes - runtimeOverheadBytes
	if available < 0 {
		available = memoryLimitBytes / 2
	}

	max := int(available / bytesPerRunningTask)
	if max < minMaxTasks {
		max = minMaxTasks
	}
	if max > maxMaxTasks {
		max = maxMaxTasks
	}
	return max
}
