package filink

import (
	"bytes"
	"strings"
	"testing"
)

func TestReadBlockPadsPartialTail(t *testing.T) {
	r := strings.NewReader("Hello")
	var block [BlockSize]byte
	n, eof, err := readBlock(r, &block)
	if err != nil {
		t.Fatalf("readBlock: %v", err)
	}
	if n != 5 {
		t.Errorf("n = %d, want 5", n)
	}
	if !eof {
		t.Errorf("eof = false, want true")
	}
	if !bytes.Equal(block[:5], []byte("Hello")) {
		t.Errorf("block[:5] = %v, want Hello", block[:5])
	}
	for i := 5; i < BlockSize; i++ {
		if block[i] != Pad {
			t.Errorf("block[%d] = 0x%02x, want Pad", i, block[i])
		}
	}
}

func TestReadBlockExactMultipleNoPadOnlyBlock(t *testing.T) {
	data := bytes.Repeat([]byte{'X'}, BlockSize)
	r := bytes.NewReader(data)
	var block [BlockSize]byte

	n, _, err := readBlock(r, &block)
	if err != nil {
		t.Fatalf("readBlock: %v", err)
	}
	if n != BlockSize {
		t.Fatalf("n = %d, want %d", n, BlockSize)
	}
	if !bytes.Equal(block[:], data) {
		t.Errorf("block should be all file data, no padding")
	}

	// The subsequent call, on an exhausted reader, must report n=0,
	// eof=true — this is where the sender emits ETX, not an extra
	// pad-only block.
	n2, eof2, err := readBlock(r, &block)
	if err != nil {
		t.Fatalf("readBlock (second call): %v", err)
	}
	if n2 != 0 || !eof2 {
		t.Errorf("second readBlock = (n=%d, eof=%v), want (0, true)", n2, eof2)
	}
}

func TestReadBlockCountMatchesCeilDiv(t *testing.T) {
	sizes := []int{0, 1, 127, 128, 129, 300, 256}
	for _, size := range sizes {
		data := bytes.Repeat([]byte{'A'}, size)
		r := bytes.NewReader(data)
		blocks := 0
		for {
			var block [BlockSize]byte
			n, _, err := readBlock(r, &block)
			if err != nil {
				t.Fatalf("size %d: readBlock: %v", size, err)
			}
			if n == 0 {
				break
			}
			blocks++
		}
		want := (size + BlockSize - 1) / BlockSize
		if size == 0 {
			want = 0
		}
		if blocks != want {
			t.Errorf("size %d: got %d blocks, want %d", size, blocks, want)
		}
	}
}
