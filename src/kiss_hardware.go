package satlink

import (
	"bytes"
	"fmt"
	"strconv"
)

/*-------------------------------------------------------------------
 *
 * Name:        setHardware
 *
 * Purpose:     Process the "set hardware" command.
 *
 * Inputs:	command		- All but the first byte.  e.g.  "TXBUF:"
 *				  Case sensitive.
 *
 * Description:	Human readable in both directions:
 *
 *			COMMAND: [ parameter ]
 *
 *		Lack of a parameter is a query which generates a response
 *		in the same format.  Setting something also responds with
 *		the new value.
 *
 *		Query		Response		Comment
 *		-----		--------		-------
 *
 *		TNC:		TNC:SATLINK 1.0		Software version.
 *		TXBUF:		TXBUF:999		Bytes (not frames) in transmit queue.
 *		CCA:		CCA:-90			Clear channel threshold, dBm.
 *		CCA:-95		CCA:-95			Change it.
 *		CRC:		CRC:strict		What to do on CRC mismatch.
 *		CRC:lenient	CRC:lenient		Change it.
 *		STATE:		STATE:Receiving		Channel arbiter state.
 *		STATS:		STATS:tx=1,rx=2,...	Codec counters.
 *
 *		The response goes to the host.  Anything not understood is
 *		logged and gets no response.
 *
 *--------------------------------------------------------------------*/

func (p *Pipeline) setHardware(command []byte) {
	var response, err = p.hardwareResponse(command)
	if err != nil {
		p.logger.Error("KISS Set Hardware", "command", string(command), "err", err)
		return
	}

	p.logger.Debug("KISS Set Hardware", "command", string(command), "response", response)
	p.sendToHost(KISS_CMD_SET_HARDWARE, []byte(response))
}

func (p *Pipeline) hardwareResponse(command []byte) (string, error) {
	var cmd, value, found = bytes.Cut(command, []byte{':'})
	if !found {
		return "", fmt.Errorf("expected the form COMMAND:[parameter]")
	}

	var name = string(cmd)

	switch name {
	case "TNC": /* TNC - Identify software version. */
		if len(value) > 0 {
			return "", fmt.Errorf("%s did not expect a parameter", name)
		}
		return "TNC:SATLINK " + Version(), nil

	case "TXBUF": /* TXBUF - Number of bytes in transmit queue. */
		if len(value) > 0 {
			return "", fmt.Errorf("%s did not expect a parameter", name)
		}
		return fmt.Sprintf("TXBUF:%d", p.txq.Bytes()), nil

	case "CCA": /* CCA - Clear channel threshold. */
		if len(value) > 0 {
			var t, err = strconv.Atoi(string(value))
			if err != nil {
				return "", fmt.Errorf("CCA threshold %q: %w", value, err)
			}
			p.arbiter.SetThreshold(t)
		}
		return fmt.Sprintf("CCA:%d", p.arbiter.Threshold()), nil

	case "CRC": /* CRC - Mismatch policy. */
		if len(value) > 0 {
			var policy, err = ParseCRCPolicy(string(value))
			if err != nil {
				return "", err
			}
			p.codec.SetCRCPolicy(policy)
		}
		return "CRC:" + p.codec.CRCPolicy().String(), nil

	case "STATE":
		return "STATE:" + p.arbiter.State().String(), nil

	case "STATS":
		var s = p.codec.Stats()
		return fmt.Sprintf("STATS:tx=%d,rx=%d,discarded=%d,crc=%d,corrected=%d",
			s.Encoded, s.Decoded, s.Discarded, s.CRCMismatches, s.SymbolsCorrected), nil

	default:
		return "", fmt.Errorf("unrecognized command %q", name)
	}
}
