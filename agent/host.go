package agent

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const mib = 1024 * 1024

// MemoryInfo is the host memory usage in MiB.
type MemoryInfo struct {
	Total     int64   `json:"total"`
	Available int64   `json:"available"`
	Used      int64   `json:"used"`
	Percent   float64 `json:"percent"`
}

// DiskInfo is the usage of the root filesystem in GiB.
type DiskInfo struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

// SystemInfo describes the host the agent runs on.
type SystemInfo struct {
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	Architecture    string `json:"architecture"`
	Hostname        string `json:"hostname"`
	CPUCores        int    `json:"cpu_cores_logical"`
	TotalMemory     int64  `json:"total_memory"`
	BootTime        string `json:"boot_time,omitempty"`
	IPAddress       string `json:"ip_address"`
}

// cpuStat holds the aggregate counters of the first /proc/stat line.
type cpuStat struct {
	idle  uint64
	total uint64
}

func systemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	info := SystemInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		Hostname:     hostname,
		CPUCores:     runtime.NumCPU(),
		IPAddress:    primaryIP(),
	}
	if data, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		info.PlatformVersion = strings.TrimSpace(string(data))
	}
	if f, err := os.Open("/proc/meminfo"); err == nil {
		if mem, err := parseMeminfo(f); err == nil {
			info.TotalMemory = mem.Total
		}
		f.Close()
	}
	if boot, err := bootTime(); err == nil {
		info.BootTime = boot.Format(time.DateTime)
	}
	return info
}

// primaryIP returns the first non-loopback IPv4 address of the host.
func primaryIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}

func bootTime() (time.Time, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "btime" {
			sec, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return time.Time{}, err
			}
			return time.Unix(sec, 0), nil
		}
	}
	return time.Time{}, fmt.Errorf("btime not found in /proc/stat")
}

func memoryInfo() (MemoryInfo, error) {
	if runtime.GOOS != "linux" {
		return MemoryInfo{}, fmt.Errorf("memory info is not supported on %s", runtime.GOOS)
	}
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return MemoryInfo{}, err
	}
	defer f.Close()
	return parseMeminfo(f)
}

// parseMeminfo reads /proc/meminfo content. Values there are in kB.
func parseMeminfo(r io.Reader) (MemoryInfo, error) {
	var total, free, available, buffers, cached int64
	hasAvailable := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		value *= 1024

		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total = value
		case "MemFree":
			free = value
		case "MemAvailable":
			available = value
			hasAvailable = true
		case "Buffers":
			buffers = value
		case "Cached":
			cached = value
		}
	}
	if err := scanner.Err(); err != nil {
		return MemoryInfo{}, err
	}
	if total == 0 {
		return MemoryInfo{}, fmt.Errorf("MemTotal missing from meminfo")
	}
	if !hasAvailable {
		available = free + buffers + cached
	}

	used := total - available
	return MemoryInfo{
		Total:     total / mib,
		Available: available / mib,
		Used:      used / mib,
		Percent:   round2(float64(used) / float64(total) * 100),
	}, nil
}

// cpuUsage samples /proc/stat twice, interval apart, and returns the busy
// percentage of all CPUs.
func cpuUsage(interval time.Duration) (float64, error) {
	if runtime.GOOS != "linux" {
		return 0, fmt.Errorf("cpu usage is not supported on %s", runtime.GOOS)
	}
	first, err := readCPUStat()
	if err != nil {
		return 0, err
	}
	time.Sleep(interval)
	second, err := readCPUStat()
	if err != nil {
		return 0, err
	}
	return busyPercent(first, second), nil
}

func busyPercent(a, b cpuStat) float64 {
	total := float64(b.total - a.total)
	if total <= 0 {
		return 0
	}
	idle := float64(b.idle - a.idle)
	return round2((total - idle) / total * 100)
}

func readCPUStat() (cpuStat, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuStat{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuStat{}, fmt.Errorf("failed to read /proc/stat")
	}
	return parseCPULine(scanner.Text())
}

// parseCPULine parses the aggregate "cpu" line of /proc/stat.
func parseCPULine(line string) (cpuStat, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuStat{}, fmt.Errorf("invalid /proc/stat format")
	}

	var stat cpuStat
	for i, field := range fields[1:] {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return cpuStat{}, fmt.Errorf("failed to parse CPU stat: %w", err)
		}
		stat.total += v
		// idle and iowait
		if i == 3 || i == 4 {
			stat.idle += v
		}
	}
	return stat, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
