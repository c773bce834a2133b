package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Key the transmitter with a GPIO line.
 *
 * Description:	The channel arbiter calls SetTransmit on entering and
 *		leaving Transmitting.  The line is driven through the
 *		Linux GPIO character device.
 *
 *		Some hardware needs the line low to transmit so the
 *		sense can be inverted.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
)

// gpioOutputLine is the part of *gpiocdev.Line used here.
type gpioOutputLine interface {
	SetValue(v int) error
	Close() error
}

type GPIOSwitch struct {
	logger *log.Logger
	line   gpioOutputLine
	invert bool
	on     bool
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenGPIOSwitch
 *
 * Inputs:	chip	- e.g. "gpiochip0".
 *		offset	- Line number on the chip.
 *		invert	- Drive low to transmit.
 *
 * Returns:	Switch, already set to receive.
 *
 *--------------------------------------------------------------------*/

func OpenGPIOSwitch(chip string, offset int, invert bool, logger *log.Logger) (*GPIOSwitch, error) {
	var idle = IfThenElse(invert, 1, 0)

	var line, err = gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(idle), gpiocdev.WithConsumer("satlink"))
	if err != nil {
		return nil, fmt.Errorf("can't use GPIO %s line %d for PTT: %w", chip, offset, err)
	}

	var s = newGPIOSwitch(line, invert, logger)
	s.logger.Info("PTT line ready", "chip", chip, "line", offset, "invert", invert)
	return s, nil
}

func newGPIOSwitch(line gpioOutputLine, invert bool, logger *log.Logger) *GPIOSwitch {
	return &GPIOSwitch{
		logger: componentLogger(logger, "ptt"),
		line:   line,
		invert: invert,
	}
}

func (s *GPIOSwitch) SetTransmit(on bool) error {
	var v = IfThenElse(on != s.invert, 1, 0)

	s.logger.Debug("PTT", "on", on, "value", v)

	if err := s.line.SetValue(v); err != nil {
		return fmt.Errorf("set PTT line to %d: %w", v, err)
	}
	s.on = on
	return nil
}

// Close turns the transmitter off first if it was left on.
func (s *GPIOSwitch) Close() error {
	if s.on {
		if err := s.SetTransmit(false); err != nil {
			s.logger.Error("Can't turn off PTT", "err", err)
		}
	}
	return s.line.Close()
}
