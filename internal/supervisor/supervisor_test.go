package supervisor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/nyxbot/voiceengine/pkg/logger"
)

func TestArmFiresAfterTimeoutWhenSafe(t *testing.T) {
	orig := pollInterval
	pollInterval = 10 * time.Millisecond
	defer func() { pollInterval = orig }()

	var fired int32
	s := New(logger.New(logger.Config{Level: "error"}),
		func(string) time.Duration { return 20 * time.Millisecond },
		func(string) bool { return true },
		func(string) { atomic.StoreInt32(&fired, 1) },
	)

	s.Arm("g1")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fired) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected fire to be called before the deadline")
}

func TestClearPreventsFire(t *testing.T) {
	orig := pollInterval
	pollInterval = 10 * time.Millisecond
	defer func() { pollInterval = orig }()

	var fired int32
	s := New(logger.New(logger.Config{Level: "error"}),
		func(string) time.Duration { return 20 * time.Millisecond },
		func(string) bool { return true },
		func(string) { atomic.StoreInt32(&fired, 1) },
	)

	s.Arm("g1")
	s.Clear("g1")
	time.Sleep(500 * time.Millisecond)
	if atomic.LoadInt32(&fired) == 1 {
		t.Fatal("expected Clear to prevent the timer from ever firing")
	}
}

func TestUnsafeAtExpirySkipsFire(t *testing.T) {
	orig := pollInterval
	pollInterval = 10 * time.Millisecond
	defer func() { pollInterval = orig }()

	var fired int32
	s := New(logger.New(logger.Config{Level: "error"}),
		func(string) time.Duration { return 20 * time.Millisecond },
		func(string) bool { return false },
		func(string) { atomic.StoreInt32(&fired, 1) },
	)

	s.Arm("g1")
	time.Sleep(500 * time.Millisecond)
	if atomic.LoadInt32(&fired) == 1 {
		t.Fatal("expected the safety check failure to skip the fire callback")
	}
}
