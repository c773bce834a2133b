package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Encode and decode link layer frames by hand, and show
 *		how much damage the error correction can repair.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"unicode"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	satlink "github.com/doismellburning/satlink/src"
)

type options struct {
	src      string
	srcSSID  int
	dst      string
	dstSSID  int
	command  uint8
	hexIn    bool
	errors   int
	perFrame int // Stress test errors.
	seed     uint64
	lenient  bool
	count    int
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	var rootCmd = &cobra.Command{
		Use:   "il2ptool",
		Short: "Encode, decode, and stress test IL2P link frames",
		Long: `il2ptool builds the frames the link layer hands to the radio and takes
them apart again.  Symbol errors can be injected into the protected
parts of a frame to see what Reed-Solomon repairs.`,
		SilenceUsage: true,
	}

	var pf = rootCmd.PersistentFlags()
	pf.StringVar(&opts.src, "src", "NOCALL", "Source callsign")
	pf.IntVar(&opts.srcSSID, "src-ssid", 0, "Source SSID")
	pf.StringVar(&opts.dst, "dst", "CQ", "Destination callsign")
	pf.IntVar(&opts.dstSSID, "dst-ssid", 0, "Destination SSID")
	pf.Uint64Var(&opts.seed, "seed", 1, "Random seed for error injection")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	var encodeCmd = &cobra.Command{
		Use:   "encode <payload>",
		Short: "Encode a payload and print the frame as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd.OutOrStdout(), &opts, args[0])
		},
	}
	encodeCmd.Flags().Uint8VarP(&opts.command, "command", "C", satlink.KISS_CMD_DATA_FRAME, "Command byte")
	encodeCmd.Flags().BoolVarP(&opts.hexIn, "hex", "x", false, "Payload is hex rather than text")
	encodeCmd.Flags().IntVarP(&opts.errors, "errors", "e", 0, "Symbol errors to inject into the encoded frame")

	var decodeCmd = &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a frame given as hex",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.OutOrStdout(), &opts, strings.Join(args, ""))
		},
	}
	decodeCmd.Flags().BoolVar(&opts.lenient, "lenient", false, "Deliver frames with a bad CRC")
	decodeCmd.Flags().IntVarP(&opts.errors, "errors", "e", 0, "Symbol errors to inject before decoding")

	var stressCmd = &cobra.Command{
		Use:   "stress",
		Short: "Round trip random frames with injected errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res, err = runStress(cmd.ErrOrStderr(), &opts)
			if err != nil {
				return err
			}
			res.print(cmd.OutOrStdout())
			if res.silent > 0 {
				return fmt.Errorf("%d frames decoded with wrong contents", res.silent)
			}
			return nil
		},
	}
	stressCmd.Flags().IntVarP(&opts.count, "count", "n", 10000, "Number of frames")
	stressCmd.Flags().IntVarP(&opts.perFrame, "errors", "e", 1, "Symbol errors to inject into each frame")
	stressCmd.Flags().BoolVar(&opts.lenient, "lenient", false, "Deliver frames with a bad CRC")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			satlink.PrintVersion(cmd.OutOrStdout(), opts.verbose)
		},
	}

	rootCmd.AddCommand(encodeCmd, decodeCmd, stressCmd, versionCmd)

	return rootCmd
}

func (o *options) codec() (*satlink.Codec, error) {
	var logger, err = satlink.NewLogger(os.Stderr, satlink.IfThenElse(o.verbose, "debug", "warn"))
	if err != nil {
		return nil, err
	}

	return satlink.NewCodec(satlink.CodecConfig{
		Destination:     o.dst,
		DestinationSSID: o.dstSSID,
		Source:          o.src,
		SourceSSID:      o.srcSSID,
		CRCPolicy:       satlink.IfThenElse(o.lenient, satlink.CRCLenient, satlink.CRCStrict),
	}, logger)
}

func (o *options) rng() *rand.Rand {
	return rand.New(rand.NewPCG(o.seed, o.seed^0x5a5a5a5a))
}

// Offset of the first symbol covered by Reed-Solomon.
const protectedStart = satlink.FRAME_COMMAND_SIZE + satlink.IL2P_SYNC_WORD_SIZE

/*-------------------------------------------------------------------
 *
 * Name:        injectErrors
 *
 * Purpose:     Corrupt n different symbols of the header and payload
 *		blocks.  The command byte, sync word, and CRC are left alone.
 *
 * Returns:	Positions changed.
 *
 *--------------------------------------------------------------------*/

func injectErrors(rng *rand.Rand, frame []byte, n int) []int {
	var protected = len(frame) - protectedStart - satlink.IL2P_CRC_ENCODED_SIZE
	n = min(n, protected)
	if n <= 0 {
		return nil
	}

	var positions = rng.Perm(protected)[:n]
	for i, p := range positions {
		positions[i] = p + protectedStart
		frame[positions[i]] ^= byte(1 + rng.IntN(255))
	}
	return positions
}

func parseHex(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func runEncode(w io.Writer, o *options, arg string) error {
	var payload = []byte(arg)
	if o.hexIn {
		var err error
		if payload, err = parseHex(arg); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
	}

	var codec, err = o.codec()
	if err != nil {
		return err
	}

	frame, err := codec.Encode(o.command, payload)
	if err != nil {
		return err
	}

	if o.errors > 0 {
		var positions = injectErrors(o.rng(), frame, o.errors)
		fmt.Fprintf(w, "# corrupted symbols at %v\n", positions)
	}

	fmt.Fprintf(w, "%s\n", strings.ToUpper(hex.EncodeToString(frame)))
	return nil
}

func runDecode(w io.Writer, o *options, arg string) error {
	var wire, err = parseHex(arg)
	if err != nil {
		return fmt.Errorf("frame: %w", err)
	}

	codec, err := o.codec()
	if err != nil {
		return err
	}

	if o.errors > 0 {
		var positions = injectErrors(o.rng(), wire, o.errors)
		fmt.Fprintf(w, "# corrupted symbols at %v\n", positions)
	}

	f, err := codec.Decode(wire)
	if err != nil {
		var de *satlink.DecodeError
		if errors.As(err, &de) {
			fmt.Fprintf(w, "discarded after %s\n", de.Stage)
		}
		return err
	}

	fmt.Fprintf(w, "command:   0x%02x\n", f.Command)
	fmt.Fprintf(w, "header:    %s\n", &f.Header)
	fmt.Fprintf(w, "length:    %d\n", len(f.Payload))
	fmt.Fprintf(w, "corrected: %d header, %d payload\n", f.HeaderCorrected, f.PayloadCorrected)
	fmt.Fprintf(w, "crc:       %s\n", satlink.IfThenElse(f.CRCValid, "ok", "MISMATCH"))
	if len(f.Payload) > 0 {
		fmt.Fprintf(w, "payload:   %s\n", strings.ToUpper(hex.EncodeToString(f.Payload)))
		if printable(f.Payload) {
			fmt.Fprintf(w, "text:      %q\n", f.Payload)
		}
	}

	return nil
}

type stressResult struct {
	total     int
	clean     int // Decoded with nothing to fix.
	corrected int
	discarded int
	crcBad    int // Delivered with CRC mismatch, lenient only.
	silent    int // Decoded to something other than what was sent.
}

func (r *stressResult) print(w io.Writer) {
	fmt.Fprintf(w, "frames:    %d\n", r.total)
	fmt.Fprintf(w, "clean:     %d\n", r.clean)
	fmt.Fprintf(w, "corrected: %d\n", r.corrected)
	fmt.Fprintf(w, "discarded: %d\n", r.discarded)
	fmt.Fprintf(w, "crc bad:   %d\n", r.crcBad)
	fmt.Fprintf(w, "silent:    %d\n", r.silent)
}

func runStress(progress io.Writer, o *options) (stressResult, error) {
	var res stressResult

	var codec, err = o.codec()
	if err != nil {
		return res, err
	}

	var rng = o.rng()

	var bar = progressbar.NewOptions(o.count,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Frames"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var payload = make([]byte, satlink.IL2P_MAX_PAYLOAD_SIZE)
	var frame = make([]byte, 0, satlink.IL2P_MAX_ENCODED_SIZE)

	for range o.count {
		var n = rng.IntN(satlink.IL2P_MAX_PAYLOAD_SIZE + 1)
		var sent = payload[:n]
		for i := range sent {
			sent[i] = byte(rng.Uint32())
		}
		var cmd = byte(rng.IntN(256))

		frame, err = codec.AppendEncoded(frame[:0], cmd, sent)
		if err != nil {
			return res, err
		}
		injectErrors(rng, frame, o.perFrame)

		res.total++

		var f, decodeErr = codec.Decode(frame)
		switch {
		case decodeErr != nil:
			res.discarded++
		case f.Command != cmd || !bytes.Equal(f.Payload, sent):
			if f.CRCValid {
				res.silent++
			} else {
				res.crcBad++
			}
		case !f.CRCValid:
			res.crcBad++
		case f.Corrected() > 0:
			res.corrected++
		default:
			res.clean++
		}

		bar.Add(1) //nolint:errcheck
	}

	bar.Finish() //nolint:errcheck

	return res, nil
}
