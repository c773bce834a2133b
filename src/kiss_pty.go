package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Pseudo terminal for host commands.
 *
 * Description:	A local client can open the slave side and send KISS
 *		frames the same as over the host serial port.  They go into
 *		the command buffer.  A symlink makes the name predictable.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
)

const DEFAULT_PTY_LINK = "/tmp/satlink"

type CommandPty struct {
	Master *os.File
	slave  *os.File
	link   string
}

func OpenCommandPty(link string, logger *log.Logger) (*CommandPty, error) {
	logger = componentLogger(logger, "kiss")

	var ptmx, pts, err = pty.Open()
	if err != nil {
		return nil, fmt.Errorf("could not create pseudo terminal: %w", err)
	}

	var p = &CommandPty{Master: ptmx, slave: pts}

	logger.Info("Virtual KISS TNC is available", "device", pts.Name())

	if link != "" {
		os.Remove(link)
		if err := os.Symlink(pts.Name(), link); err != nil {
			logger.Warn("Can't create symlink to pseudo terminal", "link", link, "err", err)
		} else {
			p.link = link
			logger.Info("Created symlink", "link", link, "device", pts.Name())
		}
	}

	return p, nil
}

func (p *CommandPty) Name() string {
	return p.slave.Name()
}

func (p *CommandPty) Close() error {
	if p.link != "" {
		os.Remove(p.link)
	}
	p.slave.Close()
	return p.Master.Close()
}
