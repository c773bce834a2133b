package satlink

/*------------------------------------------------------------------
 *
 * Purpose:	Save frames sent and received to a log file.
 *
 * Description: Rather than saving the raw, sometimes rather cryptic and
 *		unreadable, format, write separated properties into
 *		CSV format for easy reading and later processing.
 *
 *		File names come from a strftime pattern in the log
 *		directory, so the default of one file per day (UTC)
 *		just falls out of the pattern.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const DEFAULT_FRAME_LOG_PATTERN = "%Y-%m-%d.log"
const DEFAULT_TIMESTAMP_FORMAT = "%Y-%m-%dT%H:%M:%SZ"

var frameLogHeader = []string{"dir", "utime", "isotime", "command", "len", "corrected", "crc", "rssi"}

type Direction string

const (
	DirectionTx Direction = "tx"
	DirectionRx Direction = "rx"
)

// FrameRecord describes one frame for the log and for frame events.
type FrameRecord struct {
	Time      time.Time `json:"time"`
	Direction Direction `json:"dir"`
	Command   byte      `json:"command"`
	Len       int       `json:"len"`       // Payload bytes.
	Corrected int       `json:"corrected"` // Received only.
	CRCValid  bool      `json:"crc_ok"`
	RSSI      int       `json:"rssi"` // Received only.
}

// FrameObserver is told about every frame sent or received.
type FrameObserver interface {
	ObserveFrame(rec FrameRecord)
}

type FrameLog struct {
	logger *log.Logger
	dir    string
	names  *strftime.Strftime
	stamp  *strftime.Strftime

	mu       sync.Mutex
	fp       *os.File
	openName string
}

/*------------------------------------------------------------------
 *
 * Function:	NewFrameLog
 *
 * Purpose:	Prepare to write frame log files.
 *
 * Inputs:	dir	- Directory for the files.  Created if it does
 *			  not exist, but not its parents.
 *
 *		pattern	- strftime pattern for file names.
 *
 *		stampFormat - strftime pattern for the isotime column.
 *
 *------------------------------------------------------------------*/

func NewFrameLog(dir, pattern, stampFormat string, logger *log.Logger) (*FrameLog, error) {
	var names, err = strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("frame log file name pattern %q: %w", pattern, err)
	}

	stamp, err := strftime.New(stampFormat)
	if err != nil {
		return nil, fmt.Errorf("frame log timestamp format %q: %w", stampFormat, err)
	}

	logger = componentLogger(logger, "log")

	var stat, statErr = os.Stat(dir)
	if statErr == nil {
		if !stat.IsDir() {
			return nil, fmt.Errorf("frame log location %q is not a directory", dir)
		}
	} else {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, fmt.Errorf("can't create frame log location: %w", err)
		}
		logger.Info("Frame log location has been created", "dir", dir)
	}

	return &FrameLog{
		logger: logger,
		dir:    dir,
		names:  names,
		stamp:  stamp,
	}, nil
}

// ObserveFrame writes one line.  Failures are logged, never returned.
func (l *FrameLog) ObserveFrame(rec FrameRecord) {
	if err := l.Write(rec); err != nil {
		l.logger.Error("Can't write frame log", "err", err)
	}
}

func (l *FrameLog) Write(rec FrameRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var now = rec.Time.UTC()
	var fname = l.names.FormatString(now)

	// Close current file if name has changed.

	if l.fp != nil && fname != l.openName {
		l.closeLocked()
	}

	if l.fp == nil {
		var full_path = filepath.Join(l.dir, fname)

		// Header only if this will be the first line.
		var _, statErr = os.Stat(full_path)
		var already_there = statErr == nil

		l.logger.Info("Opening frame log file", "file", fname)

		var f, err = os.OpenFile(full_path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return err
		}
		l.fp = f
		l.openName = fname

		if !already_there {
			var w = csv.NewWriter(l.fp)
			w.Write(frameLogHeader) //nolint:errcheck
			w.Flush()
			if err := w.Error(); err != nil {
				return err
			}
		}
	}

	var w = csv.NewWriter(l.fp)
	w.Write([]string{ //nolint:errcheck
		string(rec.Direction),
		strconv.FormatInt(now.Unix(), 10),
		l.stamp.FormatString(now),
		fmt.Sprintf("0x%02x", rec.Command),
		strconv.Itoa(rec.Len),
		strconv.Itoa(rec.Corrected),
		IfThenElse(rec.CRCValid, "ok", "bad"),
		strconv.Itoa(rec.RSSI),
	})
	w.Flush()

	return w.Error()
}

func (l *FrameLog) closeLocked() {
	if l.fp != nil {
		l.logger.Info("Closing frame log file", "file", l.openName)
		l.fp.Close()
		l.fp = nil
		l.openName = ""
	}
}

// Close any open log file.
func (l *FrameLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}
