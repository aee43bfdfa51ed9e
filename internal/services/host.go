package services

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"asteriskgui/internal/models"
)

// HostService reports on the machine the PBX runs on, read from procfs.
type HostService struct {
	procRoot string
	hostname func() (string, error)
}

func NewHostService() *HostService {
	return &HostService{procRoot: "/proc", hostname: os.Hostname}
}

func (s *HostService) Info() models.HostInfo {
	info := models.HostInfo{}

	if hostname, err := s.hostname(); err == nil {
		info.Hostname = hostname
	}

	if data, err := os.ReadFile(filepath.Join(s.procRoot, "version")); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.KernelVersion = parts[2]
		}
	}

	if data, err := os.ReadFile(filepath.Join(s.procRoot, "uptime")); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 1 {
			if uptime, err := strconv.ParseFloat(parts[0], 64); err == nil {
				info.Uptime = formatUptime(int64(uptime))
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(s.procRoot, "loadavg")); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.LoadAverage = strings.Join(parts[:3], " ")
		}
	}

	if mem := s.memInfo(); mem != nil {
		used := mem["MemTotal"] - mem["MemAvailable"]
		info.MemoryTotal = formatBytes(mem["MemTotal"])
		info.MemoryUsed = formatBytes(used)
		if mem["MemTotal"] > 0 {
			info.MemoryPercent = int(float64(used) / float64(mem["MemTotal"]) * 100)
		}
	}

	return info
}

// memInfo returns /proc/meminfo values in bytes.
func (s *HostService) memInfo() map[string]uint64 {
	file, err := os.Open(filepath.Join(s.procRoot, "meminfo"))
	if err != nil {
		return nil
	}
	defer file.Close()

	values := make(map[string]uint64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
			values[strings.TrimSuffix(fields[0], ":")] = v * 1024
		}
	}
	return values
}

func formatUptime(seconds int64) string {
	duration := time.Duration(seconds) * time.Second
	days := int(duration.Hours()) / 24
	hours := int(duration.Hours()) % 24
	minutes := int(duration.Minutes()) % 60

	if days > 0 {
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	}
	if hours > 0 {
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	}
	return strconv.Itoa(minutes) + "m"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + []string{"KB", "MB", "GB", "TB"}[exp]
}
