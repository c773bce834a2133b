package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the satellite link layer.
 *
 *		Frames from the host data port are protected with
 *		IL2P and sent over the radio modem when the channel is
 *		clear.  Frames received over the radio are checked,
 *		corrected, and handed to the host or the command
 *		dispatcher.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	satlink "github.com/doismellburning/satlink/src"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "satlink: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var flags = pflag.NewFlagSet("satlink", pflag.ContinueOnError)

	var configFile = flags.StringP("config", "c", satlink.DEFAULT_CONFIG_FILE, "Configuration file, .yaml or .toml.")
	var listPorts = flags.Bool("list-ports", false, "List serial ports and exit.")
	var version = flags.Bool("version", false, "Display version and exit.")
	var verbose = flags.BoolP("verbose", "v", false, "Debug logging, including frame hex dumps.")
	var modemDevice = flags.StringP("modem", "m", "", "Radio modem serial port, overrides the configuration file.")
	var hostDevice = flags.StringP("host", "p", "", "Host serial port, overrides the configuration file.")
	var ptyLink = flags.String("pty-link", satlink.DEFAULT_PTY_LINK, "Symlink to the command pseudo terminal.")

	flags.Usage = func() {
		fmt.Fprintf(stdout, "satlink - IL2P link layer for a half duplex satellite radio.\n\n")
		fmt.Fprintf(stdout, "Usage: satlink [options]\n")
		flags.SetOutput(stdout)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *version {
		satlink.PrintVersion(stdout, *verbose)
		return nil
	}

	if *listPorts {
		var ports, err = satlink.ListSerialPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintf(stdout, "No serial ports found.\n")
		}
		for _, p := range ports {
			fmt.Fprintf(stdout, "%s\n", p)
		}
		return nil
	}

	// The default file is optional, one named on the command line is not.
	var cfg, err = satlink.LoadConfig(*configFile, !flags.Changed("config"))
	if err != nil {
		return err
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *modemDevice != "" {
		cfg.Transport.ModemDevice = *modemDevice
	}
	if *hostDevice != "" {
		cfg.Transport.HostDevice = *hostDevice
	}

	logger, err := satlink.NewLogger(os.Stderr, cfg.Log.Level)
	if err != nil {
		return err
	}

	var ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, *ptyLink, logger)
}

// A host side transport stopped.  The daemon can't do its job deaf on one
// side so this ends serve and a supervisor can restart it.
var errTransportStopped = errors.New("transport stopped")

// watchReader waits for a reader started with StartReader to fail.
func watchReader(ctx context.Context, fail context.CancelCauseFunc, name string, errs <-chan error, logger *log.Logger) {
	select {
	case <-ctx.Done():
	case err := <-errs:
		logger.Error("Transport stopped", "transport", name, "err", err)
		fail(fmt.Errorf("%s: %w: %w", name, errTransportStopped, err))
	}
}

// readerFailure is the error that made watchReader cancel ctx, if any.
func readerFailure(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, errTransportStopped) {
		return cause
	}
	return nil
}

func serve(parent context.Context, cfg *satlink.Config, ptyLink string, logger *log.Logger) error {
	var ctx, fail = context.WithCancelCause(parent)
	defer fail(nil)

	if cfg.Transport.ModemDevice == "" {
		return fmt.Errorf("no radio modem, set transport.modem_device or use --modem")
	}

	var modem, err = satlink.OpenModemPort(cfg.Transport.ModemDevice, cfg.Transport.ModemBaud)
	if err != nil {
		return err
	}
	defer modem.Close()

	var radio = satlink.NewStreamRadio(modem, cfg.Channel.QuietRSSI, logger)
	radio.Start(ctx)

	var deps = satlink.PipelineDeps{
		Radio: radio,
		Dispatcher: satlink.DispatcherFunc(func(cmd byte, payload []byte) {
			logger.Warn("No command dispatcher, command ignored", "command", cmd, "len", len(payload))
		}),
	}

	var dataIn, cmdIn <-chan []byte

	if cfg.Transport.HostDevice != "" {
		var host, err = satlink.OpenHostPort(cfg.Transport.HostDevice, cfg.Transport.HostBaud)
		if err != nil {
			return err
		}
		defer host.Close()

		deps.Host = host
		var errs <-chan error
		dataIn, errs = satlink.StartReader(ctx, host)
		go watchReader(ctx, fail, "host port", errs, logger)
		logger.Info("Host port open", "device", cfg.Transport.HostDevice, "baud", cfg.Transport.HostBaud)
	}

	if cfg.Transport.CommandPty {
		var pt, err = satlink.OpenCommandPty(ptyLink, logger)
		if err != nil {
			return err
		}
		defer pt.Close()

		var errs <-chan error
		cmdIn, errs = satlink.StartReader(ctx, pt.Master)
		go watchReader(ctx, fail, "command pty", errs, logger)

		// Commands the link doesn't handle itself go to whoever has the pty open.
		deps.Dispatcher = satlink.DispatcherFunc(func(cmd byte, payload []byte) {
			var frame = satlink.Escape(append([]byte{cmd}, payload...))
			if _, err := pt.Master.Write(frame); err != nil {
				logger.Error("Can't pass command to pseudo terminal", "err", err)
			}
		})
		if deps.Host == nil {
			deps.Host = pt.Master
		}
	}

	if cfg.PTT.Chip != "" {
		var ptt, err = satlink.OpenGPIOSwitch(cfg.PTT.Chip, cfg.PTT.Line, cfg.PTT.Invert, logger)
		if err != nil {
			return err
		}
		defer ptt.Close()
		deps.TxSwitch = ptt
	}

	if cfg.Log.FrameLogDir != "" {
		var flog, err = satlink.NewFrameLog(cfg.Log.FrameLogDir, cfg.Log.FrameLogPattern, cfg.Log.TimestampFormat, logger)
		if err != nil {
			return err
		}
		defer flog.Close()
		deps.Observers = append(deps.Observers, flog)
	}

	if cfg.Log.MQTTURL != "" {
		var events, disconnect, err = satlink.DialFrameEvents(cfg.Log.MQTTURL, logger)
		if err != nil {
			return err
		}
		defer disconnect()
		go events.Run(ctx)
		deps.Observers = append(deps.Observers, events)
	}

	pipeline, err := satlink.NewPipeline(cfg, deps, logger)
	if err != nil {
		return err
	}

	err = pipeline.Run(ctx, cfg.Link.PassInterval, cmdIn, dataIn)
	if err == nil {
		err = readerFailure(ctx)
	}
	if err == nil {
		err = radio.Err()
	}
	logger.Info("Stopped", "stats", fmt.Sprintf("%+v", pipeline.Codec().Stats()))

	return err
}
