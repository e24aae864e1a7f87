package bicos

import (
	"os"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Optional package-level diagnostics sink.
 *
 * Description:	A BICOS run can emit a dispatch diagnostic (stack
 *		length, mode, width picked, band count) for callers who
 *		want visibility into the pipeline without threading a
 *		logger through Match's signature. Off by default; callers
 *		opt in with SetLogger/EnableDebugLog. A package-level
 *		optional diagnostics sink, mirroring the single shared-sink
 *		pattern used elsewhere for stage diagnostics, backed by
 *		github.com/charmbracelet/log.
 *
 *------------------------------------------------------------------*/

var pkgLogger atomic.Pointer[charmlog.Logger]

var debugEnabled atomic.Bool

// SetLogger installs l as the package-wide diagnostics sink. Passing
// nil disables logging entirely.
func SetLogger(l *charmlog.Logger) {
	pkgLogger.Store(l)
}

// EnableDebugLog turns on a default stderr logger at Debug level if no
// logger has been installed yet, and enables debug-level output if one
// has.
func EnableDebugLog() {
	debugEnabled.Store(true)
	if pkgLogger.Load() == nil {
		l := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			Prefix: "bicos",
			Level:  charmlog.DebugLevel,
		})
		pkgLogger.Store(l)
	} else {
		pkgLogger.Load().SetLevel(charmlog.DebugLevel)
	}
}

func logDebug(format string, args ...any) {
	l := pkgLogger.Load()
	if l == nil || !debugEnabled.Load() {
		return
	}
	l.Debugf(format, args...)
}
