package utils_test

import (
	"testing"
	"time"

	"sentiment-backend/internal/core/utils"
)

func TestMutexMap_RunSequentiallyWhenSameKey(t *testing.T) {
	m := utils.NewMutexMap(10)
	key := "test"

	sleepDuration := 200 * time.Millisecond

	routine := func(wait chan bool) {
		if err := m.Lock(key); err != nil {
			t.Errorf("Error locking key: %v", err)
		}

		time.Sleep(sleepDuration)
		m.Unlock(key) //nolint:errcheck
		wait <- true
	}

	wait1 := make(chan bool)
	wait2 := make(chan bool)

	start := time.Now()
	go routine(wait1)
	go routine(wait2)

	<-wait1
	<-wait2

	elapsed := time.Since(start)
	if elapsed < 2*sleepDuration {
		t.Errorf("Routines are not running sequentially, expected > %v elapsed, got %v", 2*sleepDuration, elapsed)
	}
}

func TestMutexMap_RunConcurrentlyWhenDifferentKeys(t *testing.T) {
	m := utils.NewMutexMap(10)

	sleepDuration := 200 * time.Millisecond

	routine := func(key string, wait chan bool) {
		if err := m.Lock(key); err != nil {
			t.Errorf("Error locking key: %v", err)
		}

		time.Sleep(sleepDuration)
		m.Unlock(key) //nolint:errcheck
		wait <- true
	}

	wait1 := make(chan bool)
	wait2 := make(chan bool)

	start := time.Now()
	go routine("key1", wait1)
	go routine("key2", wait2)

	<-wait1
	<-wait2

	elapsed := time.Since(start)
	if elapsed >= 2*sleepDuration {
		t.Errorf("Routines are not running concurrently, expected < %v elapsed, got %v", 2*sleepDuration, elapsed)
	}
}

func TestMutexMap_MaxSize(t *testing.T) {
	m := utils.NewMutexMap(1)

	if err := m.Lock("a"); err != nil {
		t.Fatalf("unexpected error locking first key: %v", err)
	}
	if err := m.Lock("b"); err == nil {
		t.Fatal("expected error when exceeding max size")
	}

	m.Unlock("a") //nolint:errcheck

	if err := m.Lock("b"); err != nil {
		t.Fatalf("unexpected error after freeing capacity: %v", err)
	}
	m.Unlock("b") //nolint:errcheck
}
