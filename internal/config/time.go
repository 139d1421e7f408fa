package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultRefreshInterval = 6 * time.Hour

var (
	refreshInterval          atomic.Value
	refreshIntervalListeners []chan time.Duration
	listenersMu              sync.Mutex
)

func init() {
	refreshInterval.Store(defaultRefreshInterval)
}

func SetBetweenTime() {
	cfg := GetConfig()
	setRefreshInterval(calculateRefreshInterval(cfg))
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfPeriod(timer)

	// Enforce minimum interval
	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func GetRefreshInterval() time.Duration {
	return refreshInterval.Load().(time.Duration)
}

// RefreshIntervalUpdates returns a channel that receives the current refresh
// interval immediately and every later change, so the collection loop can
// reschedule without restarting.
func RefreshIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	refreshIntervalListeners = append(refreshIntervalListeners, ch)
	listenersMu.Unlock()

	ch <- GetRefreshInterval()
	return ch
}

func setRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	current := GetRefreshInterval()
	if current == interval {
		return
	}

	refreshInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range refreshIntervalListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateRefreshInterval(cfg Config) time.Duration {
	timer := cfg.Collector.RefreshTimer
	if timer.Days == 0 && timer.Hours == 0 && timer.Minutes == 0 && timer.Seconds == 0 {
		return defaultRefreshInterval
	}
	return CalculateBetweenTime(timer)
}
