package satlink

/*--------------------------------------------------------------------------------
 *
 * Purpose:	Scramble / descramble data as specified in the IL2P protocol specification.
 *
 * Description:	Scrambling removes long runs of identical bits so the receiver
 *		keeps its clock.  It is a 9 bit LFSR, x^9 + x^4 + 1, so the
 *		descrambler is self synchronizing: whatever state it starts in,
 *		output is correct after the first 9 bits.
 *
 *--------------------------------------------------------------------------------*/

// Scramble bits for il2p transmit.

// Note that there is a delay of 5 until the first bit comes out.
// So we need to need to ignore the first 5 out and stick in
// an extra 5 filler bits to flush at the end.

const INIT_TX_LSFR = 0x00f

const SCRAMBLE_DELAY_BITS = 5

func scramble_bit(in int, state *int) int {
	var out = ((*state >> 4) ^ *state) & 1
	*state = ((((in ^ *state) & 1) << 9) | (*state ^ ((*state & 1) << 4))) >> 1
	return out
}

// Undo data scrambling for il2p receive.

const INIT_RX_LSFR = 0x1f0

func descramble_bit(in int, state *int) int {
	var out = (in ^ *state) & 1
	*state = ((*state >> 1) | ((in & 1) << 8)) ^ ((in & 1) << 3)
	return out
}

/*--------------------------------------------------------------------------------
 *
 * Function:	scrambleBlockInto
 *
 * Purpose:	Scramble a block before adding RS parity.
 *
 * Inputs:	in		Array of bytes.
 *
 * Outputs:	out		Same length as in.  Must not overlap.
 *
 * Description:	Bits go in and come out MSB first.  The first 5 bits out
 *		are dropped, to remove the delay, and the last 5 come from
 *		flushing the register with zeros.  The state before flushing
 *		is not carried over to another block; every block starts
 *		from the same initial state.
 *
 *--------------------------------------------------------------------------------*/

func scrambleBlockInto(out []byte, in []byte) {
	Assert(len(out) == len(in))

	if len(in) == 0 {
		return
	}

	clear(out)

	var state = INIT_TX_LSFR

	var skipping = true // Discard the first 5 out.
	var ob = 0          // Index to output byte.
	var om byte = 0x80  // Output bit mask.

	var emit = func(s int) {
		if s != 0 {
			out[ob] |= om
		}
		om >>= 1
		if om == 0 {
			om = 0x80
			ob++
		}
	}

	for ib, b := range in {
		for im := byte(0x80); im != 0; im >>= 1 {
			var s = scramble_bit(IfThenElse(b&im != 0, 1, 0), &state)
			if ib == 0 && im == 0x80>>SCRAMBLE_DELAY_BITS {
				skipping = false
			}
			if !skipping {
				emit(s)
			}
		}
	}

	// Flush it.
	for range SCRAMBLE_DELAY_BITS {
		emit(scramble_bit(0, &state))
	}
}

/*--------------------------------------------------------------------------------
 *
 * Function:	descrambleBlockInto
 *
 * Purpose:	Descramble a block after removing RS parity.
 *
 * Inputs:	in		Array of bytes.
 *
 * Outputs:	out		Same length as in.  Must not overlap.
 *
 *--------------------------------------------------------------------------------*/

func descrambleBlockInto(out []byte, in []byte) {
	Assert(len(out) == len(in))

	clear(out)

	var state = INIT_RX_LSFR

	for b, v := range in {
		for m := byte(0x80); m != 0; m >>= 1 {
			var d = descramble_bit(IfThenElse(v&m != 0, 1, 0), &state)
			if d != 0 {
				out[b] |= m
			}
		}
	}
}

func ScrambleBlock(in []byte) []byte {
	var out = make([]byte, len(in))
	scrambleBlockInto(out, in)
	return out
}

func DescrambleBlock(in []byte) []byte {
	var out = make([]byte, len(in))
	descrambleBlockInto(out, in)
	return out
}
