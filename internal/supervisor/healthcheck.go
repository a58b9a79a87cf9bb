package supervisor

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// HealthChecker periodically checks that the polling backend answers.
type HealthChecker struct {
	url           string
	checkInterval time.Duration
	timeout       time.Duration
	healthy       atomic.Bool
	lastCheck     atomic.Value // time.Time
	lastError     atomic.Value // string
	metrics       *Metrics
	logger        *slog.Logger
	client        *http.Client
	stopCh        chan struct{}
}

// NewHealthChecker starts checking baseURL+path every checkInterval.
func NewHealthChecker(baseURL, path string, checkInterval, timeout time.Duration, metrics *Metrics, logger *slog.Logger) *HealthChecker {
	hc := &HealthChecker{
		url:           baseURL + path,
		checkInterval: checkInterval,
		timeout:       timeout,
		metrics:       metrics,
		logger:        logger,
		client: &http.Client{
			Timeout: timeout,
		},
		stopCh: make(chan struct{}),
	}

	// Unhealthy until the first check completes.
	hc.healthy.Store(false)

	go hc.run()

	return hc
}

func (hc *HealthChecker) run() {
	hc.check()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.check()
		case <-hc.stopCh:
			return
		}
	}
}

func (hc *HealthChecker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.url, nil)
	if err != nil {
		hc.updateHealth(false, err.Error())
		return
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		hc.updateHealth(false, err.Error())
		return
	}
	defer resp.Body.Close()

	// 404 still proves the backend is listening; only 5xx counts as down.
	if resp.StatusCode < 500 {
		hc.updateHealth(true, "")
	} else {
		hc.updateHealth(false, "status code: "+strconv.Itoa(resp.StatusCode))
	}
}

func (hc *HealthChecker) updateHealth(healthy bool, errMsg string) {
	wasHealthy := hc.healthy.Swap(healthy)
	hc.lastCheck.Store(time.Now())
	hc.lastError.Store(errMsg)

	if hc.logger != nil {
		switch {
		case errMsg != "":
			hc.logger.Debug("backend health check failed", "url", hc.url, "error", errMsg)
		case !wasHealthy:
			hc.logger.Info("backend reachable", "url", hc.url)
		}
	}

	if hc.metrics != nil {
		hc.metrics.UpdateBackendHealth(healthy)
	}
}

// Healthy returns whether the backend is currently reachable.
func (hc *HealthChecker) Healthy() bool {
	return hc.healthy.Load()
}

// LastCheck returns the time of the last health check.
func (hc *HealthChecker) LastCheck() time.Time {
	if v := hc.lastCheck.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

// LastError returns the last error message, if any.
func (hc *HealthChecker) LastError() string {
	if v := hc.lastError.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Shutdown stops the health checker.
func (hc *HealthChecker) Shutdown() {
	close(hc.stopCh)
}
