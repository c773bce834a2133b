package satlink

// SPDX-FileCopyrightText: 2002 Phil Karn, KA9Q
// SPDX-FileCopyrightText: The Samoyed Authors

/*-------------------------------------------------------------
 *
 * Purpose:	Reed-Solomon over GF(2^8) for IL2P header and payload blocks.
 *
 * Description:	Field generator polynomial 0x11d, first consecutive root 0,
 *		primitive element 1.  One codec for each number of parity
 *		symbols the protocol uses.  Shorter blocks are treated as
 *		a full 255 symbol block with zeros in front.
 *
 *		The Reed Solomon routines are based on work performed by
 *		Phil Karn, released under the GPL.
 *
 * Interesting related stuff:
 *		https://www.kernel.org/doc/html/v4.15/core-api/librs.html
 *		https://berthub.eu/articles/posts/reed-solomon-for-programmers/
 *
 *--------------------------------------------------------------*/

import (
	"fmt"
)

const RS_SYMSIZE = 8
const RS_GFPOLY = 0x11d
const RS_FCR = 0
const RS_PRIM = 1

const NN = RS_BLOCK_SIZE // Symbols per block.
const A0 = NN            // Special index for log(0).

// Galois field lookup tables, shared by all codecs.
var alpha_to [NN + 1]int
var index_of [NN + 1]int

type rsCodec struct {
	nroots  int
	iprim   int
	genpoly [RS_MAX_PARITY + 1]int // Index form.
}

// Parity sizes in use.  2 for headers, 16 for payloads, others are available.
var rsParitySizes = [...]int{2, 4, 6, 8, 16}

var rsCodecs [RS_MAX_PARITY + 1]*rsCodec

func init() {
	init_gf_tables()

	for _, nroots := range rsParitySizes {
		rsCodecs[nroots] = init_rs(nroots)
	}
}

func modnn(x int) int {
	for x >= NN {
		x -= NN
		x = (x >> RS_SYMSIZE) + (x & NN)
	}
	return x
}

func init_gf_tables() {
	index_of[0] = A0 // log(zero) = -inf
	alpha_to[A0] = 0 // alpha**-inf = 0

	var sr = 1
	for i := range NN {
		index_of[sr] = i
		alpha_to[i] = sr
		sr <<= 1
		if sr&(1<<RS_SYMSIZE) != 0 {
			sr ^= RS_GFPOLY
		}
		sr &= NN
	}

	// Otherwise the field generator polynomial is not primitive.
	Assert(sr == 1)
}

/*-------------------------------------------------------------
 *
 * Name:	init_rs
 *
 * Purpose:	Form RS code generator polynomial from its roots.
 *
 * Inputs:	nroots	- RS code generator polynomial degree.
 *			  Same as number of check bytes added.
 *
 *--------------------------------------------------------------*/

func init_rs(nroots int) *rsCodec {
	Assert(nroots > 0 && nroots <= RS_MAX_PARITY)

	var rs = &rsCodec{nroots: nroots}

	// Find prim-th root of 1, used in decoding
	var iprim = 1
	for iprim%RS_PRIM != 0 {
		iprim += NN
	}
	rs.iprim = iprim / RS_PRIM

	var g = rs.genpoly[:nroots+1]

	g[0] = 1
	for i, root := 0, RS_FCR*RS_PRIM; i < nroots; i, root = i+1, root+RS_PRIM {
		g[i+1] = 1

		// Multiply g[] by  @**(root + x)
		for j := i; j > 0; j-- {
			if g[j] != 0 {
				g[j] = g[j-1] ^ alpha_to[modnn(index_of[g[j]]+root)]
			} else {
				g[j] = g[j-1]
			}
		}
		// g[0] can never be zero
		g[0] = alpha_to[modnn(index_of[g[0]]+root)]
	}

	// convert to index form for quicker encoding
	for i := range g {
		g[i] = index_of[g[i]]
	}

	return rs
}

func rsCodecFor(nparity int) (*rsCodec, error) {
	if nparity < 0 || nparity >= len(rsCodecs) || rsCodecs[nparity] == nil {
		return nil, fmt.Errorf("%d parity symbols: %w", nparity, ErrInvalidParity)
	}
	return rsCodecs[nparity], nil
}

/*-------------------------------------------------------------
 *
 * Name:	encode
 *
 * Purpose:	Compute parity symbols for a block of data.
 *
 * Inputs:	data	- Header or other data to transmit.
 *
 * Outputs:	bb	- nroots parity symbols.
 *
 * Description:	The data is logically right aligned in a 255 symbol block.
 *		Leading zeros do not change the shift register so they are
 *		not fed in at all.
 *
 *--------------------------------------------------------------*/

func (rs *rsCodec) encode(data []byte, bb []byte) {
	Assert(len(bb) == rs.nroots)
	Assert(len(data)+rs.nroots <= NN)

	var nroots = rs.nroots

	clear(bb)

	for _, d := range data {
		var feedback = index_of[d^bb[0]]

		if feedback != A0 { // feedback term is non-zero
			for j := 1; j < nroots; j++ {
				bb[j] ^= byte(alpha_to[modnn(feedback+rs.genpoly[nroots-j])])
			}
		}

		// Shift
		copy(bb, bb[1:])

		if feedback != A0 {
			bb[nroots-1] = byte(alpha_to[modnn(feedback+rs.genpoly[0])])
		} else {
			bb[nroots-1] = 0
		}
	}
}

/*-------------------------------------------------------------
 *
 * Name:	RSEncode
 *
 * Purpose:	Add parity symbols to a block of data.
 *
 * Inputs:	data		Header or other data to transmit.
 *		nparity		Number of parity symbols to add.
 *
 * Returns:	Parity symbols.
 *
 * Restriction:	len(data) + nparity <= 255 which is the RS block size.
 *
 *--------------------------------------------------------------*/

func RSEncode(data []byte, nparity int) ([]byte, error) {
	var rs, err = rsCodecFor(nparity)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 || len(data)+nparity > NN {
		return nil, fmt.Errorf("%d data symbols with %d parity: %w", len(data), nparity, ErrPayloadTooLarge)
	}

	var parity = make([]byte, nparity)
	rs.encode(data, parity)

	return parity, nil
}
