package cgroups

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/psantana5/dockerapp/internal/config"
)

// Limits are the per-worker resource caps written into a cgroup.
type Limits struct {
	CPUWeight int   // 1-10000, 0 = unset
	MemoryMax int64 // bytes, 0 = no limit
}

// FromConfig converts configured limits. Nil means nothing to apply.
func FromConfig(cfg config.LimitsConfig) *Limits {
	if cfg.CPUWeight == 0 && cfg.MemoryMB == 0 {
		return nil
	}
	return &Limits{
		CPUWeight: cfg.CPUWeight,
		MemoryMax: cfg.MemoryMB * 1024 * 1024,
	}
}

func detectVersion(root string) int {
	if _, err := os.Stat(filepath.Join(root, "cgroup.controllers")); err == nil {
		return 2
	}
	return 1
}

// writeCPUWeight writes cpu.weight (v2) or cpu.shares (v1).
func writeCPUWeight(version int, cgroupPath string, weight int) error {
	if weight <= 0 || weight > 10000 {
		return fmt.Errorf("invalid cpu weight: %d (must be 1-10000)", weight)
	}

	if version == 2 {
		return os.WriteFile(filepath.Join(cgroupPath, "cpu.weight"), []byte(strconv.Itoa(weight)), 0644)
	}

	// weight 100 = 1024 shares
	shares := (weight * 1024) / 100
	return os.WriteFile(filepath.Join(cgroupPath, "cpu.shares"), []byte(strconv.Itoa(shares)), 0644)
}

// writeMemoryMax writes memory.max (v2) or memory.limit_in_bytes (v1).
func writeMemoryMax(version int, cgroupPath string, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("invalid memory limit: %d", bytes)
	}
	if bytes == 0 {
		return nil
	}

	value := []byte(strconv.FormatInt(bytes, 10))
	if version == 2 {
		return os.WriteFile(filepath.Join(cgroupPath, "memory.max"), value, 0644)
	}
	return os.WriteFile(filepath.Join(cgroupPath, "memory.limit_in_bytes"), value, 0644)
}
