// common/safe/safe.go
package safe

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
)

// Call вызывает fn и гасит панику, логируя её под именем name.
// Возвращает false, если fn запаниковала.
func Call(log *logger.Logger, name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			log.Error("safe: panic recovered",
				zap.String("callback", name),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn()
	return true
}

// Go запускает защищённую goroutine.
func Go(log *logger.Logger, name string, fn func()) {
	go Call(log, name, fn)
}
