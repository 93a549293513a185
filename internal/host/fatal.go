package host

import (
	"os"

	"github.com/codefionn/macroscript/internal/console"
	"github.com/codefionn/macroscript/internal/logger"
)

// ExitFatal is the process status after an unrecoverable error.
const ExitFatal = 2

var exit = os.Exit

// Fatal logs err, flushes the log, puts the terminal back the way it was at
// start and exits with ExitFatal. Nil arguments are skipped.
func Fatal(log *logger.Logger, con *console.Console, err error) {
	if log != nil {
		log.Error("fatal: %v", err)
		_ = log.Sync()
	}
	if con != nil {
		if rerr := con.Restore(); rerr != nil && log != nil {
			log.Error("%v", rerr)
		}
	}
	if log == nil || log.GetLevel() == logger.LevelNone {
		os.Stderr.WriteString("macroscript: fatal: " + err.Error() + "\n")
	}
	exit(ExitFatal)
}

// Fatal is the host's fatal path.
func (h *Host) Fatal(err error) {
	Fatal(h.Log, h.Console, err)
}
