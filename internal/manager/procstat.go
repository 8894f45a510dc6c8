package manager

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
)

// procStartTicks returns the start time of pid in clock ticks since boot,
// field 22 of /proc/<pid>/stat.
func procStartTicks(pid int) (uint64, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	// comm (field 2) may contain spaces and parentheses; fields resume after
	// the last ')'.
	i := bytes.LastIndexByte(b, ')')
	if i < 0 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := bytes.Fields(b[i+1:])
	const startTimeIdx = 22 - 3
	if len(fields) <= startTimeIdx {
		return 0, fmt.Errorf("short stat for pid %d", pid)
	}
	return strconv.ParseUint(string(fields[startTimeIdx]), 10, 64)
}

func procfsAvailable() bool {
	_, err := os.Stat("/proc/self/stat")
	return err == nil
}
