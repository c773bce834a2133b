package satlink

// Logging.  The message class is the log level and charmbracelet/log
// does the colouring.

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

/*-------------------------------------------------------------------
 *
 * Name:        NewLogger
 *
 * Purpose:     Create the root logger for the application.
 *
 * Inputs:	w	- Where to write.  nil for stderr.
 *
 *		level	- "debug", "info", "warn", or "error".
 *
 * Returns:	Logger.  Components derive their own with WithPrefix.
 *
 *--------------------------------------------------------------------*/

func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	var lvl, err = log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var logger = log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
	})

	return logger, nil
}

// Logger that throws everything away.  Used when a component is given nil.

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func componentLogger(parent *log.Logger, prefix string) *log.Logger {
	if parent == nil {
		return discardLogger()
	}
	return parent.WithPrefix(prefix)
}
