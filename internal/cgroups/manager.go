// Package cgroups places worker processes in their own cgroup and writes
// resource caps. Everything here is best effort: a host without a
// writable cgroup tree just runs workers unconstrained.
package cgroups

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const cgroupRoot = "/sys/fs/cgroup"

// Manager handles cgroup lifecycle: create, join, delete.
type Manager struct {
	root    string
	version int
}

func New() *Manager {
	return NewAt(cgroupRoot)
}

// NewAt roots the manager at an arbitrary cgroup mount.
func NewAt(root string) *Manager {
	return &Manager{root: root, version: detectVersion(root)}
}

func (m *Manager) Version() int {
	return m.version
}

// Create makes dockerapp/<name>. An empty path with a nil error means the
// tree is not writable and limits should be skipped.
func (m *Manager) Create(name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("unnamed-%d", os.Getpid())
	}
	rel := filepath.Join("dockerapp", name)

	dir := filepath.Join(m.root, rel)
	if m.version == 1 {
		dir = filepath.Join(m.root, "cpu", rel)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		if os.IsPermission(err) || os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	if m.version == 1 {
		os.MkdirAll(m.memoryPath(dir), 0755)
	}
	return dir, nil
}

// Join moves pid into the cgroup.
func (m *Manager) Join(cgroupPath string, pid int) error {
	if cgroupPath == "" {
		return nil
	}
	if pid <= 0 {
		return fmt.Errorf("invalid pid: %d", pid)
	}

	data := []byte(strconv.Itoa(pid))
	if err := os.WriteFile(filepath.Join(cgroupPath, "cgroup.procs"), data, 0644); err != nil {
		return err
	}
	if m.version == 1 {
		os.WriteFile(filepath.Join(m.memoryPath(cgroupPath), "cgroup.procs"), data, 0644)
	}
	return nil
}

// Apply writes limits into cgroupPath. The first failure is returned but
// every limit is attempted.
func (m *Manager) Apply(cgroupPath string, limits *Limits) error {
	if cgroupPath == "" || limits == nil {
		return nil
	}

	var firstErr error
	if limits.CPUWeight > 0 {
		firstErr = writeCPUWeight(m.version, cgroupPath, limits.CPUWeight)
	}
	if limits.MemoryMax > 0 {
		memPath := cgroupPath
		if m.version == 1 {
			memPath = m.memoryPath(cgroupPath)
		}
		if err := writeMemoryMax(m.version, memPath, limits.MemoryMax); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Delete removes the cgroup directory.
func (m *Manager) Delete(cgroupPath string) error {
	if cgroupPath == "" {
		return nil
	}
	if m.version == 1 {
		os.Remove(m.memoryPath(cgroupPath))
	}
	return os.Remove(cgroupPath)
}

func (m *Manager) memoryPath(cpuPath string) string {
	cpuRoot := filepath.Join(m.root, "cpu") + string(filepath.Separator)
	memRoot := filepath.Join(m.root, "memory") + string(filepath.Separator)
	return strings.Replace(cpuPath, cpuRoot, memRoot, 1)
}
