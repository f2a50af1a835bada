// Package metrics reports host resource usage and free space on the
// locations backups are staged in and written to.
package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Location is a named directory whose filesystem usage is reported.
type Location struct {
	Name string
	Path string
}

// SystemMetrics represents current system resource usage.
type SystemMetrics struct {
	Memory  MemoryMetrics    `json:"memory"`
	Storage []StorageMetrics `json:"storage"`
	Uptime  int64            `json:"uptime"`   // seconds
	LoadAvg []float64        `json:"load_avg"` // 1, 5, 15 min
}

// MemoryMetrics represents memory usage information.
type MemoryMetrics struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// StorageMetrics represents usage of the filesystem holding a location.
type StorageMetrics struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Filesystem  string  `json:"filesystem"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage returns usage of the filesystem holding path. A path that does
// not exist yet is measured at its nearest existing ancestor.
func DiskUsage(path string) (*StorageMetrics, error) {
	probe, err := existingAncestor(path)
	if err != nil {
		return nil, err
	}

	usage, err := disk.Usage(probe)
	if err != nil {
		return nil, err
	}

	return &StorageMetrics{
		Path:        path,
		Filesystem:  usage.Fstype,
		Total:       usage.Total,
		Used:        usage.Used,
		Available:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// FreeSpace returns the bytes available on the filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	u, err := DiskUsage(path)
	if err != nil {
		return 0, err
	}
	return u.Available, nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p, nil
		}
		p = parent
	}
}

// GetSystemMetrics collects current system metrics for the given locations.
func GetSystemMetrics(locations []Location) (*SystemMetrics, error) {
	return GetSystemMetricsWithContext(context.Background(), locations)
}

// GetSystemMetricsWithContext collects system metrics with context cancellation support.
func GetSystemMetricsWithContext(ctx context.Context, locations []Location) (*SystemMetrics, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	metrics := &SystemMetrics{}
	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		vmem, err := mem.VirtualMemoryWithContext(ctx)
		if err == nil {
			mu.Lock()
			metrics.Memory = MemoryMetrics{
				Total:       vmem.Total,
				Used:        vmem.Used,
				Available:   vmem.Available,
				UsedPercent: vmem.UsedPercent,
			}
			mu.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		storage := make([]StorageMetrics, 0, len(locations))
		for _, loc := range locations {
			if ctx.Err() != nil {
				return
			}
			if loc.Path == "" {
				continue
			}
			usage, err := DiskUsage(loc.Path)
			if err != nil {
				continue
			}
			usage.Name = loc.Name
			storage = append(storage, *usage)
		}

		mu.Lock()
		metrics.Storage = storage
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		hostInfo, err := host.InfoWithContext(ctx)
		if err == nil {
			mu.Lock()
			metrics.Uptime = int64(hostInfo.Uptime)
			mu.Unlock()
		}

		loadAvg, err := load.AvgWithContext(ctx)
		if err == nil {
			mu.Lock()
			metrics.LoadAvg = []float64{loadAvg.Load1, loadAvg.Load5, loadAvg.Load15}
			mu.Unlock()
		}
	}()

	wg.Wait()

	return metrics, nil
}
