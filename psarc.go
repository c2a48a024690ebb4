package rstab

import (
	"bytes"
	"crypto/aes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"
)

const (
	psarcMagic           = 0x50534152 // "PSAR"
	psarcCompressionZlib = 0x7A6C6962 // "zlib"
	psarcHeaderSize      = 32
	psarcTocEncryptedBit = 1 << 2
)

// PsarcEntry describes one file stored in a PSARC archive.
type PsarcEntry struct {
	id     int
	md5    [16]byte
	zIndex uint32
	length uint64
	offset uint64
	Name   string

	archive *PsarcArchive
}

// PsarcArchive is an opened PSARC container. It owns the file handle and
// the block-length table for its lifetime; reads
// against the handle are serialized because they mutate the file
// position.
type PsarcArchive struct {
	file      *os.File
	blockSize uint32
	zLens     []uint64
	entries   []*PsarcEntry

	mu sync.Mutex
}

// OpenPsarc opens and parses a PSARC archive's header, TOC and name
// table. The returned archive must be closed with Close when finished.
func OpenPsarc(path string) (*PsarcArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening psarc: %w", err)
	}

	a := &PsarcArchive{file: f}
	if err := a.parse(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the archive's file handle.
func (a *PsarcArchive) Close() error {
	return a.file.Close()
}

// Entries returns the archive's entries, excluding the names blob (entry
// 0), in TOC order.
func (a *PsarcArchive) Entries() []*PsarcEntry {
	return a.entries
}

func (a *PsarcArchive) parse() error {
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	br := NewBigEndianReader(a.file)

	magic, err := br.U32()
	if err != nil {
		return fmt.Errorf("reading psarc header: %w", err)
	}
	if magic != psarcMagic {
		return fmt.Errorf("%w: psarc magic %08x", ErrBadMagic, magic)
	}
	if err := br.Skip(4); err != nil { // version, unused
		return err
	}
	compression, err := br.U32()
	if err != nil {
		return err
	}
	if compression != psarcCompressionZlib {
		return fmt.Errorf("%w: psarc compression tag %08x", ErrUnsupportedCompression, compression)
	}
	tocSize, err := br.U32()
	if err != nil {
		return err
	}
	tocEntrySize, err := br.U32()
	if err != nil {
		return err
	}
	numFiles, err := br.U32()
	if err != nil {
		return err
	}
	blockSize, err := br.U32()
	if err != nil {
		return err
	}
	archiveFlags, err := br.U32()
	if err != nil {
		return err
	}
	a.blockSize = blockSize

	tocRest := int(tocSize) - psarcHeaderSize
	if tocRest < 0 {
		return fmt.Errorf("%w: psarc toc_size smaller than header", ErrUnexpectedEOF)
	}
	tocBytes, err := br.Bytes(tocRest)
	if err != nil {
		return fmt.Errorf("reading psarc toc: %w", err)
	}

	encrypted := archiveFlags&psarcTocEncryptedBit != 0
	if encrypted {
		tocBytes, err = decryptPsarcToc(tocBytes)
		if err != nil {
			return fmt.Errorf("decrypting psarc toc: %w", err)
		}
	}

	tr := NewBigEndianReader(bytes.NewReader(tocBytes))

	entries := make([]*PsarcEntry, 0, numFiles)
	for i := 0; i < int(numFiles); i++ {
		md5, err := tr.Bytes(16)
		if err != nil {
			return fmt.Errorf("reading psarc entry %d: %w", i, err)
		}
		zIndex, err := tr.U32()
		if err != nil {
			return err
		}
		length, err := tr.U40()
		if err != nil {
			return err
		}
		offset, err := tr.U40()
		if err != nil {
			return err
		}

		read := 16 + 4 + 5 + 5
		if pad := int(tocEntrySize) - read; pad > 0 {
			if err := tr.Skip(pad); err != nil {
				return err
			}
		}

		e := &PsarcEntry{id: i, zIndex: zIndex, length: length, offset: offset, archive: a}
		copy(e.md5[:], md5)
		entries = append(entries, e)
	}

	// Block-length table width: smallest b in {2,3,4} s.t. 256^b >= block_size.
	width := 2
	for ; width < 4; width++ {
		limit := uint64(1)
		for j := 0; j < width; j++ {
			limit *= 256
		}
		if limit >= uint64(blockSize) {
			break
		}
	}

	remaining := tocBytes[tr.Position():]
	if encrypted && len(remaining) >= 32 {
		remaining = remaining[:len(remaining)-32]
	}
	count := len(remaining) / width
	zLens := make([]uint64, count)
	zr := NewBigEndianReader(bytes.NewReader(remaining))
	for i := 0; i < count; i++ {
		v, err := zr.uintN(width)
		if err != nil {
			break
		}
		zLens[i] = v
	}
	a.zLens = zLens
	a.entries = entries

	return a.resolveNames()
}

// resolveNames decompresses entry 0 (the names blob), assigns names to
// entries 1..n, and drops entry 0 from the externally visible list.
func (a *PsarcArchive) resolveNames() error {
	if len(a.entries) == 0 {
		return nil
	}
	namesEntry := a.entries[0]
	data, err := a.readEntry(namesEntry)
	if err != nil {
		return fmt.Errorf("reading psarc name blob: %w", err)
	}

	names := strings.Split(string(data), "\n")
	rest := a.entries[1:]
	for i, e := range rest {
		if i < len(names) {
			e.Name = names[i]
		}
	}
	a.entries = rest
	return nil
}

// readEntry decompresses an entry's full contents by walking its blocks
// starting at zIndex.
func (a *PsarcArchive) readEntry(e *PsarcEntry) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Seek(int64(e.offset), io.SeekStart); err != nil {
		return nil, err
	}

	out := make([]byte, 0, e.length)
	produced := uint64(0)
	blockIdx := int(e.zIndex)

	for produced < e.length && blockIdx < len(a.zLens) {
		zLen := a.zLens[blockIdx]
		blockIdx++

		if zLen == 0 {
			want := uint64(a.blockSize)
			if remain := e.length - produced; remain < want {
				want = remain
			}
			buf := make([]byte, want)
			if _, err := io.ReadFull(a.file, buf); err != nil {
				return nil, fmt.Errorf("%w: reading raw psarc block: %v", ErrUnexpectedEOF, err)
			}
			out = append(out, buf...)
			produced += want
			continue
		}

		buf := make([]byte, zLen)
		if _, err := io.ReadFull(a.file, buf); err != nil {
			return nil, fmt.Errorf("%w: reading compressed psarc block: %v", ErrUnexpectedEOF, err)
		}

		if len(buf) > 0 && buf[0] == 0x78 {
			zr, err := zlib.NewReader(bytes.NewReader(buf))
			if err != nil {
				return nil, fmt.Errorf("inflating psarc block: %w", err)
			}
			inflated, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("inflating psarc block: %w", err)
			}
			out = append(out, inflated...)
			produced += uint64(len(inflated))
		} else {
			// Short block that didn't compress; stored verbatim.
			out = append(out, buf...)
			produced += uint64(len(buf))
		}
	}

	if uint64(len(out)) > e.length {
		out = out[:e.length]
	}
	return out, nil
}

// DataSource decompresses and returns this entry's full contents.
func (e *PsarcEntry) DataSource() ([]byte, error) {
	return e.archive.readEntry(e)
}

// Length returns the entry's decompressed size.
func (e *PsarcEntry) Length() uint64 { return e.length }

// decryptPsarcToc decrypts a PSARC TOC using AES-256 CFB-8 (1-byte
// feedback) with a 16-byte zero IV. Go's standard
// cipher.NewCFBDecrypter implements full-block (128-bit) feedback, not
// the 1-byte feedback PSARC uses, so the shift register is stepped by
// hand, one ciphertext byte at a time.
func decryptPsarcToc(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(psarcTocKey)
	if err != nil {
		return nil, err
	}

	shift := make([]byte, aes.BlockSize) // zero IV
	scratch := make([]byte, aes.BlockSize)
	out := make([]byte, len(data))

	for i, c := range data {
		block.Encrypt(scratch, shift)
		p := c ^ scratch[0]
		out[i] = p
		copy(shift, shift[1:])
		shift[len(shift)-1] = c
	}

	return out, nil
}
