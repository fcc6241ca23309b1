// common/safe/safe_test.go
package safe

import (
	"sync"
	"testing"

	"github.com/YaganovValera/analytics-system/common/logger"
)

func TestCall(t *testing.T) {
	log := logger.NewNop()
	if !Call(log, "ok", func() {}) {
		t.Error("expected ok for non-panicking callback")
	}
	if Call(log, "boom", func() { panic("boom") }) {
		t.Error("expected false for panicking callback")
	}
}

func TestGo(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	Go(logger.NewNop(), "worker", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()
}
