package satlink

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, fname string) [][]string {
	t.Helper()

	var fp, err = os.Open(fname)
	require.NoError(t, err)
	defer fp.Close()

	records, err := csv.NewReader(fp).ReadAll()
	require.NoError(t, err)
	return records
}

func TestFrameLogWritesCSV(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "frames")

	var fl, err = NewFrameLog(dir, DEFAULT_FRAME_LOG_PATTERN, DEFAULT_TIMESTAMP_FORMAT, nil)
	require.NoError(t, err)
	defer fl.Close()

	var when = time.Date(2024, 3, 9, 12, 34, 56, 0, time.UTC)

	fl.ObserveFrame(FrameRecord{Time: when, Direction: DirectionRx, Command: 0x00, Len: 5, Corrected: 2, CRCValid: true, RSSI: -87})
	fl.ObserveFrame(FrameRecord{Time: when.Add(time.Second), Direction: DirectionTx, Command: 0x09, Len: 0, CRCValid: true})

	var records = readCSV(t, filepath.Join(dir, "2024-03-09.log"))
	require.Len(t, records, 3)
	assert.Equal(t, frameLogHeader, records[0])
	assert.Equal(t, []string{"rx", "1709987696", "2024-03-09T12:34:56Z", "0x00", "5", "2", "ok", "-87"}, records[1])
	assert.Equal(t, []string{"tx", "1709987697", "2024-03-09T12:34:57Z", "0x09", "0", "0", "ok", "0"}, records[2])
}

func TestFrameLogNewFileEachDay(t *testing.T) {
	var dir = t.TempDir()

	var fl, err = NewFrameLog(dir, DEFAULT_FRAME_LOG_PATTERN, DEFAULT_TIMESTAMP_FORMAT, nil)
	require.NoError(t, err)

	var day1 = time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC)
	require.NoError(t, fl.Write(FrameRecord{Time: day1, Direction: DirectionRx}))
	require.NoError(t, fl.Write(FrameRecord{Time: day1.Add(time.Second), Direction: DirectionRx, CRCValid: false}))
	fl.Close()

	assert.Len(t, readCSV(t, filepath.Join(dir, "2024-03-09.log")), 2)

	var day2 = readCSV(t, filepath.Join(dir, "2024-03-10.log"))
	require.Len(t, day2, 2)
	assert.Equal(t, "bad", day2[1][6])

	// Appending to an existing file doesn't repeat the header.
	fl, err = NewFrameLog(dir, DEFAULT_FRAME_LOG_PATTERN, DEFAULT_TIMESTAMP_FORMAT, nil)
	require.NoError(t, err)
	require.NoError(t, fl.Write(FrameRecord{Time: day1, Direction: DirectionTx}))
	fl.Close()

	assert.Len(t, readCSV(t, filepath.Join(dir, "2024-03-09.log")), 3)
}

func TestFrameLogLocationNotDirectory(t *testing.T) {
	var fname = filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(fname, nil, 0644))

	var _, err = NewFrameLog(fname, DEFAULT_FRAME_LOG_PATTERN, DEFAULT_TIMESTAMP_FORMAT, nil)
	assert.ErrorContains(t, err, "not a directory")
}
