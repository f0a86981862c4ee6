package nettables

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention in the `nettables` package:
// Info:
//     abnormal events. This level should be silent on normal operation,
//     with the exception of one time start and stop lines
//     this includes:
//     - connection read/write errors and bad messages
//     - rejected handshakes
//     - dropped updates with a mismatched type
// Warning:
//     unexpected panics in listener callbacks, recovered
// V(1):
//     connection lifecycle - established, closed, reconnect attempts
// V(2):
//     per message trace. Noisy, use for debugging a single connection

const LogLevelInfo = glog.Level(0)
const LogLevelLifecycle = glog.Level(1)
const LogLevelTrace = glog.Level(2)

type LogFunction func(string, ...any)

func LogFn(level glog.Level, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			m := fmt.Sprintf(format, a...)
			glog.InfoDepth(1, fmt.Sprintf("[%s]%s", tag, m))
		}
	}
}

func SubLogFn(level glog.Level, log LogFunction, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			m := fmt.Sprintf(format, a...)
			log("[%s]%s", tag, m)
		}
	}
}
