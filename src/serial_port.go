package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Serial port to the host computer.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/pkg/term"
)

/*-------------------------------------------------------------------
 *
 * Name:	OpenHostPort
 *
 * Purpose:	Open serial port.
 *
 * Inputs:	devicename	- Usually like /dev/ttyS0 or /dev/ttyUSB0.
 *				  Could be /dev/rfcomm0 for Bluetooth.
 *
 *		baud		- Speed.  1200, 4800, 9600 bps, etc.
 *				  If 0, leave it alone.
 *
 * Returns 	Handle for serial port, raw mode.
 *
 *---------------------------------------------------------------*/

func OpenHostPort(devicename string, baud int) (*term.Term, error) {
	switch baud {
	case 0, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400:
	default:
		return nil, fmt.Errorf("serial port %s: unsupported speed %d", devicename, baud)
	}

	var fd, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", devicename, err)
	}

	if baud != 0 {
		if err := fd.SetSpeed(baud); err != nil {
			fd.Close()
			return nil, fmt.Errorf("serial port %s speed %d: %w", devicename, baud, err)
		}
	}

	return fd, nil
}
