package satlink

// SPDX-FileCopyrightText: 2002 Phil Karn, KA9Q
// SPDX-FileCopyrightText: The Samoyed Authors

import (
	"fmt"
)

/*-------------------------------------------------------------
 *
 * Name:	decode
 *
 * Purpose:	Find and fix errors in a full 255 symbol block.
 *
 * Inputs:	data	- Data followed by parity.  Corrected in place.
 *
 * Outputs:	locs	- Positions of corrected symbols, in data[].
 *
 * Returns:	Number of symbols corrected, 0 if the block is a codeword.
 *		-1 if the errors could not be located.
 *
 * Description:	Syndromes, then Berlekamp-Massey for the error locator,
 *		Chien search for its roots, and Forney for the values.
 *		No erasures.
 *
 *--------------------------------------------------------------*/

func (rs *rsCodec) decode(data *[NN]byte, locs *[RS_MAX_PARITY]int) int {
	var nroots = rs.nroots

	var lambda [RS_MAX_PARITY + 1]int // Err Locator poly
	var s [RS_MAX_PARITY]int          // syndrome poly
	var b [RS_MAX_PARITY + 1]int
	var t [RS_MAX_PARITY + 1]int
	var omega [RS_MAX_PARITY + 1]int
	var root [RS_MAX_PARITY]int
	var reg [RS_MAX_PARITY + 1]int
	var loc [RS_MAX_PARITY]int

	// form the syndromes; i.e., evaluate data(x) at roots of g(x)
	for i := range nroots {
		s[i] = int(data[0])
	}

	for j := 1; j < NN; j++ {
		for i := range nroots {
			if s[i] == 0 {
				s[i] = int(data[j])
			} else {
				s[i] = int(data[j]) ^ alpha_to[modnn(index_of[s[i]]+(RS_FCR+i)*RS_PRIM)]
			}
		}
	}

	// Convert syndromes to index form, checking for nonzero condition
	var syn_error = 0
	for i := range nroots {
		syn_error |= s[i]
		s[i] = index_of[s[i]]
	}

	if syn_error == 0 {
		// data[] is a codeword and there are no errors to correct.
		return 0
	}

	lambda[0] = 1

	for i := 0; i <= nroots; i++ {
		b[i] = index_of[lambda[i]]
	}

	// Begin Berlekamp-Massey algorithm to determine error locator polynomial
	var el = 0
	for r := 1; r <= nroots; r++ {
		// Compute discrepancy at the r-th step in poly-form
		var discr_r = 0
		for i := range r {
			if lambda[i] != 0 && s[r-i-1] != A0 {
				discr_r ^= alpha_to[modnn(index_of[lambda[i]]+s[r-i-1])]
			}
		}
		discr_r = index_of[discr_r] // Index form

		if discr_r == A0 {
			// B(x) <-- x*B(x)
			copy(b[1:nroots+1], b[:nroots])
			b[0] = A0
			continue
		}

		// T(x) <-- lambda(x) - discr_r*x*b(x)
		t[0] = lambda[0]
		for i := range nroots {
			if b[i] != A0 {
				t[i+1] = lambda[i+1] ^ alpha_to[modnn(discr_r+b[i])]
			} else {
				t[i+1] = lambda[i+1]
			}
		}

		if 2*el <= r-1 {
			el = r - el
			// B(x) <-- inv(discr_r) * lambda(x)
			for i := 0; i <= nroots; i++ {
				b[i] = IfThenElse(lambda[i] == 0, A0, modnn(index_of[lambda[i]]-discr_r+NN))
			}
		} else {
			// B(x) <-- x*B(x)
			copy(b[1:nroots+1], b[:nroots])
			b[0] = A0
		}
		lambda = t
	}

	// Convert lambda to index form and compute deg(lambda(x))
	var deg_lambda = 0
	for i := 0; i <= nroots; i++ {
		lambda[i] = index_of[lambda[i]]
		if lambda[i] != A0 {
			deg_lambda = i
		}
	}

	// Find roots of the error locator polynomial by Chien search.
	// k is the error location for i, so it advances after the first pass.
	copy(reg[1:nroots+1], lambda[1:nroots+1])
	var count = 0 // Number of roots of lambda(x)
	var k = rs.iprim - 1
	for i := 1; i <= NN; i++ {
		if i > 1 {
			k = modnn(k + rs.iprim)
		}
		var q = 1 // lambda[0] is always 0
		for j := deg_lambda; j > 0; j-- {
			if reg[j] != A0 {
				reg[j] = modnn(reg[j] + j)
				q ^= alpha_to[reg[j]]
			}
		}
		if q != 0 {
			continue // Not a root
		}
		// store root (index-form) and error location number
		root[count] = i
		loc[count] = k
		count++
		// If we've already found max possible roots, abort the search to save time
		if count == deg_lambda {
			break
		}
	}

	if deg_lambda != count {
		// deg(lambda) unequal to number of roots => uncorrectable error detected
		return -1
	}

	// Compute err evaluator poly omega(x) = s(x)*lambda(x) (modulo x**nroots)
	// in index form.  Also find deg(omega).
	var deg_omega = 0
	for i := range nroots {
		var tmp = 0
		for j := min(deg_lambda, i); j >= 0; j-- {
			if s[i-j] != A0 && lambda[j] != A0 {
				tmp ^= alpha_to[modnn(s[i-j]+lambda[j])]
			}
		}
		if tmp != 0 {
			deg_omega = i
		}
		omega[i] = index_of[tmp]
	}
	omega[nroots] = A0

	// Compute error values in poly-form.  num1 = omega(inv(X(l))),
	// num2 = inv(X(l))**(FCR-1) and den = lambda_pr(inv(X(l))) all in poly-form
	for j := count - 1; j >= 0; j-- {
		var num1 = 0
		for i := deg_omega; i >= 0; i-- {
			if omega[i] != A0 {
				num1 ^= alpha_to[modnn(omega[i]+i*root[j])]
			}
		}
		var num2 = alpha_to[modnn(root[j]*(RS_FCR-1)+NN)]

		// lambda[i+1] for i even is the formal derivative lambda_pr of lambda[i]
		var den = 0
		for i := min(deg_lambda, nroots-1) &^ 1; i >= 0; i -= 2 {
			if lambda[i+1] != A0 {
				den ^= alpha_to[modnn(lambda[i+1]+i*root[j])]
			}
		}
		if den == 0 {
			return -1
		}

		// Apply error to data
		if num1 != 0 {
			data[loc[j]] ^= byte(alpha_to[modnn(index_of[num1]+index_of[num2]+NN-index_of[den])])
		}
	}

	copy(locs[:], loc[:count])

	return count
}

/*-------------------------------------------------------------
 *
 * Name:	RSDecode
 *
 * Purpose:	Check and attempt to fix block with FEC.
 *
 * Inputs:	block		Received block composed of data and parity.
 *				Corrected in place.
 *		nparity		Number of parity symbols at the end of block.
 *
 * Returns:	Number of symbols corrected.
 *		ErrUncorrectable if the block could not be fixed.  The
 *		block is left as it was received in that case.
 *
 *--------------------------------------------------------------*/

func RSDecode(block []byte, nparity int) (int, error) {
	var rs, err = rsCodecFor(nparity)
	if err != nil {
		return 0, err
	}

	if len(block) <= nparity || len(block) > NN {
		return 0, fmt.Errorf("%d symbols with %d parity: %w", len(block), nparity, ErrShortFrame)
	}

	// Use zero padding in front if data size is too small.
	var work [NN]byte
	var pad = NN - len(block)
	copy(work[pad:], block)

	var locs [RS_MAX_PARITY]int
	var derrors = rs.decode(&work, &locs)

	if derrors < 0 {
		return 0, ErrUncorrectable
	}

	// It is possible to have a situation where too many errors are
	// present but the algorithm could get a good code block by "fixing"
	// one of the padding bytes that should be 0.

	for _, l := range locs[:derrors] {
		if l < pad {
			return 0, fmt.Errorf("padding position %d should be 0 but it was set to %02x: %w", l, work[l], ErrUncorrectable)
		}
	}

	copy(block, work[pad:])

	return derrors, nil
}
