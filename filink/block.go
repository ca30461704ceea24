package filink

import "io"

// readBlock fills block with up to 128 bytes read from r. It returns
// the number of real file bytes placed in block (n), and eof true
// once r is exhausted. The unfilled tail of block is padded with Pad.
//
// On an exhausted reader it returns n == 0 and a block of nothing but
// padding. The sender's S6/S7 loop treats n == 0 as end of file and
// sends ETX instead of that block, so a file whose length is an exact
// multiple of 128 ends with a full, unpadded final block and EOF is
// discovered on the following, data-less call.
func readBlock(r io.Reader, block *[BlockSize]byte) (n int, eof bool, err error) {
	for n < BlockSize {
		m, rerr := r.Read(block[n:])
		n += m
		if rerr == io.EOF {
			eof = true
			break
		}
		if rerr != nil {
			return n, false, rerr
		}
		if m == 0 {
			// Reader made no progress and reported no error; treat as EOF
			// rather than spin, matching a well-behaved io.Reader contract.
			eof = true
			break
		}
	}
	for i := n; i < BlockSize; i++ {
		block[i] = Pad
	}
	return n, eof, nil
}
