package config

import (
	"testing"
	"time"
)

func TestCalculateMillisecondsOfPeriod(t *testing.T) {
	timer := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	want := uint64((24*60*60 + 2*60*60 + 3*60 + 4) * 1000)

	if got := CalculateMillisecondsOfPeriod(timer); got != want {
		t.Fatalf("CalculateMillisecondsOfPeriod returned %d, want %d", got, want)
	}
}

func TestCalculateBetweenTime(t *testing.T) {
	t.Run("enforces minimum interval", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{}); got != time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1s", got)
		}
	})

	t.Run("returns configured duration", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{Minutes: 1, Seconds: 30}); got != 90*time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1m30s", got)
		}
	})
}

func TestSetBetweenTime(t *testing.T) {
	origCfg := GetConfig()
	origInterval := GetRefreshInterval()
	origListeners := refreshIntervalListeners

	t.Cleanup(func() {
		configValue.Store(origCfg)
		refreshInterval.Store(origInterval)
		refreshIntervalListeners = origListeners
	})

	testCfg := Config{}
	testCfg.Collector.RefreshTimer = Timer{Minutes: 30}
	configValue.Store(testCfg)

	updates := RefreshIntervalUpdates()
	<-updates // drain the immediate current value

	SetBetweenTime()

	if got := GetRefreshInterval(); got != 30*time.Minute {
		t.Fatalf("GetRefreshInterval returned %s, want 30m", got)
	}

	select {
	case got := <-updates:
		if got != 30*time.Minute {
			t.Fatalf("listener received %s, want 30m", got)
		}
	default:
		t.Fatal("listener did not receive interval update")
	}
}

func TestSetBetweenTimeDefaultsWhenTimerUnset(t *testing.T) {
	origCfg := GetConfig()
	origInterval := GetRefreshInterval()

	t.Cleanup(func() {
		configValue.Store(origCfg)
		refreshInterval.Store(origInterval)
	})

	configValue.Store(Config{})
	SetBetweenTime()

	if got := GetRefreshInterval(); got != defaultRefreshInterval {
		t.Fatalf("GetRefreshInterval returned %s, want default %s", got, defaultRefreshInterval)
	}
}
