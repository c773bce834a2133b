package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Serial port to the radio modem.
 *
 * Description:	Same as the host port except reads give up after a short
 *		time, so the read goroutine notices cancellation, and
 *		the ports on the system can be listed.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const MODEM_READ_TIMEOUT = 100 * time.Millisecond

func OpenModemPort(portName string, baud int) (serial.Port, error) {
	var mode = &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var port, err = serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open modem port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(MODEM_READ_TIMEOUT); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return port, nil
}

func ListSerialPorts() ([]string, error) {
	var ports, err = serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return ports, nil
}
