package metrics

import (
	"time"

	"github.com/caravel-io/caravel/pkg/types"
)

// StatsSource supplies the aggregate counts the collector polls. The
// deployment manager implements it.
type StatsSource interface {
	CountDeploymentsByStatus() (map[types.DeploymentStatus]int, error)
	CountTasksByStatus() (map[types.TaskStatus]int, error)
}

// Collector periodically refreshes the deployment and task gauges
type Collector struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StatsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if deployments, err := c.source.CountDeploymentsByStatus(); err == nil {
		DeploymentsTotal.Reset()
		for status, count := range deployments {
			DeploymentsTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}

	if tasks, err := c.source.CountTasksByStatus(); err == nil {
		TasksTotal.Reset()
		for status, count := range tasks {
			TasksTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}
