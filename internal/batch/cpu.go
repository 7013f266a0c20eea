package batch

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// clockTicksPerSecond is the kernel USER_HZ value. Linux has reported 100
// for every supported architecture for a long time.
const clockTicksPerSecond = 100

// CPUMonitor samples this process's CPU utilization from /proc/self/stat.
// On platforms without procfs every sample reports zero, which disables the
// sequential fallback.
type CPUMonitor struct {
	lastSample  time.Time
	lastProcSec float64
}

// NewCPUMonitor primes the monitor with an initial sample.
func NewCPUMonitor() *CPUMonitor {
	m := &CPUMonitor{}
	m.lastProcSec = processCPUSeconds()
	m.lastSample = time.Now()
	return m
}

// Utilization returns the percent of one core this process consumed since
// the previous call, normalized across available cores so the result is
// comparable against a 0-100 threshold.
func (m *CPUMonitor) Utilization() float64 {
	now := time.Now()
	procSec := processCPUSeconds()

	wall := now.Sub(m.lastSample).Seconds()
	used := procSec - m.lastProcSec
	m.lastSample = now
	m.lastProcSec = procSec

	if wall <= 0 || used < 0 {
		return 0
	}
	pct := used / wall * 100 / float64(runtime.NumCPU())
	if pct > 100 {
		pct = 100
	}
	return pct
}

// processCPUSeconds reads cumulative user+system time from /proc/self/stat.
func processCPUSeconds() float64 {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0
	}
	// comm may contain spaces; fields start after the closing paren.
	raw := string(data)
	close := strings.LastIndexByte(raw, ')')
	if close < 0 {
		return 0
	}
	fields := strings.Fields(raw[close+1:])
	// After the paren: state is field 0, utime is field 11, stime field 12.
	if len(fields) < 13 {
		return 0
	}
	utime, err1 := strconv.ParseFloat(fields[11], 64)
	stime, err2 := strconv.ParseFloat(fields[12], 64)
	if err1 != nil || err2 != nil {
		return 0
	}
	return (utime + stime) / clockTicksPerSecond
}
