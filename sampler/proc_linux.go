//go:build linux

package sampler

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// processRSS returns the resident set of pid in bytes, read from
// /proc/<pid>/statm (second field, in pages).
func processRSS(pid int) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("short statm payload for pid %d", pid)
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return pages * uint64(os.Getpagesize()), nil
}

// descendants returns root plus every transitive child found in /proc.
// The parent map is rebuilt per call so children forked between ticks are
// picked up.
func descendants(root int) []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return []int{root}
	}

	children := map[int][]int{}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ppid, err := parentPID(pid)
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], pid)
	}

	pids := []int{root}
	for i := 0; i < len(pids); i++ {
		pids = append(pids, children[pids[i]]...)
	}
	return pids
}

// parentPID reads the ppid from /proc/<pid>/stat. The comm field can
// contain spaces, so fields are located after the final ") ".
func parentPID(pid int) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	payload := string(data)
	idx := strings.LastIndex(payload, ") ")
	if idx == -1 {
		return 0, fmt.Errorf("invalid stat format")
	}
	fields := strings.Fields(payload[idx+2:])
	// After comm: state ppid pgrp ... so ppid is the second field.
	if len(fields) < 2 {
		return 0, fmt.Errorf("short stat payload")
	}
	return strconv.Atoi(fields[1])
}

// availableMemory returns MemAvailable from /proc/meminfo in bytes.
func availableMemory() (uint64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found in /proc/meminfo")
}
