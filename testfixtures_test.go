package rstab

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
)

// psarcFixtureEntry describes one non-names entry to embed in a
// synthesized PSARC archive built by buildPsarcFixture (test-only
// helper, assembling the container layout by construction instead of
// parsing an existing file).
type psarcFixtureEntry struct {
	name     string
	data     []byte
	compress bool
}

const fixtureBlockSize = 1 << 20 // large enough that every fixture entry fits in one block

// buildPsarcFixture assembles a complete, unencrypted-TOC PSARC byte
// stream containing a names blob (entry 0) followed by one entry per
// fixtureEntry, each stored as a single block (raw or zlib-compressed).
func buildPsarcFixture(entries []psarcFixtureEntry) []byte {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	namesBlob := []byte(joinNames(names))

	type block struct {
		bytes  []byte
		zLen   uint64 // 0 means "stored raw"
		length uint64 // decompressed size
	}

	blocks := make([]block, 0, len(entries)+1)
	blocks = append(blocks, block{bytes: namesBlob, zLen: 0, length: uint64(len(namesBlob))})
	for _, e := range entries {
		if e.compress {
			var buf bytes.Buffer
			zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
			zw.Write(e.data)
			zw.Close()
			blocks = append(blocks, block{bytes: buf.Bytes(), zLen: uint64(buf.Len()), length: uint64(len(e.data))})
		} else {
			blocks = append(blocks, block{bytes: e.data, zLen: 0, length: uint64(len(e.data))})
		}
	}

	numFiles := len(blocks)
	const tocEntrySize = 16 + 4 + 5 + 5
	width := 3 // 256^3 >= fixtureBlockSize

	zLensSize := numFiles * width
	tocSize := 32 + numFiles*tocEntrySize + zLensSize

	var out bytes.Buffer
	writeU32BE(&out, psarcMagic)
	writeU32BE(&out, 0) // version
	writeU32BE(&out, psarcCompressionZlib)
	writeU32BE(&out, uint32(tocSize))
	writeU32BE(&out, uint32(tocEntrySize))
	writeU32BE(&out, uint32(numFiles))
	writeU32BE(&out, uint32(fixtureBlockSize))
	writeU32BE(&out, 0) // archive_flags: TOC not encrypted

	offset := uint64(32 + numFiles*tocEntrySize + zLensSize)
	for i, b := range blocks {
		out.Write(make([]byte, 16)) // md5, unchecked by the reader
		writeU32BE(&out, uint32(i))
		writeUintNBE(&out, b.length, 5) // length
		writeUintNBE(&out, offset, 5)   // offset
		offset += uint64(len(b.bytes))
	}

	for _, b := range blocks {
		writeUintNBE(&out, b.zLen, width)
	}

	for _, b := range blocks {
		out.Write(b.bytes)
	}

	return out.Bytes()
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "\n"
		}
		out += n
	}
	return out
}

func writeU32BE(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUintNBE(buf *bytes.Buffer, v uint64, n int) {
	tmp := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		tmp[i] = byte(v)
		v >>= 8
	}
	buf.Write(tmp)
}

func leU8(buf *bytes.Buffer, v uint8)   { buf.WriteByte(v) }
func leI8(buf *bytes.Buffer, v int8)    { buf.WriteByte(byte(v)) }
func leU16(buf *bytes.Buffer, v uint16) { binary.Write(buf, binary.LittleEndian, v) }
func leI16(buf *bytes.Buffer, v int16)  { binary.Write(buf, binary.LittleEndian, v) }
func leU32(buf *bytes.Buffer, v uint32) { binary.Write(buf, binary.LittleEndian, v) }
func leI32(buf *bytes.Buffer, v int32)  { binary.Write(buf, binary.LittleEndian, v) }
func leF32(buf *bytes.Buffer, v float32) { binary.Write(buf, binary.LittleEndian, v) }
func leF64(buf *bytes.Buffer, v float64) { binary.Write(buf, binary.LittleEndian, v) }

func leName(buf *bytes.Buffer, s string, size int) {
	field := make([]byte, size)
	copy(field, s)
	buf.Write(field)
}

func leBendPoints(buf *bytes.Buffer) {
	for i := 0; i < sngBendPoints; i++ {
		leF32(buf, 0)
		leF32(buf, 0)
	}
}

// buildMinimalSngFixture hand-assembles the decrypted, inflated byte
// stream parseSngSections expects: one BPM event, one phrase, one
// arrangement carrying one note.
func buildMinimalSngFixture() []byte {
	var buf bytes.Buffer

	// BPM: count=1
	leU32(&buf, 1)
	leF32(&buf, 0) // TimeSec
	leI16(&buf, 0) // Measure
	leI16(&buf, 0) // Beat
	leI32(&buf, 0) // PhraseIteration

	// Phrase: count=1
	leU32(&buf, 1)
	leU8(&buf, 0) // Solo
	leU8(&buf, 0) // Disparity
	leU8(&buf, 0) // Ignore
	leU8(&buf, 0) // padding
	leI32(&buf, 0)
	leI32(&buf, 0)
	leName(&buf, "solo", sngShortNameSize)

	// Chord: count=0
	leU32(&buf, 0)
	// ChordNotes: count=0
	leU32(&buf, 0)
	// Vocal: count=0
	leU32(&buf, 0)
	// SymbolsHeader: count=0
	leU32(&buf, 0)
	// SymbolsTexture: count=0
	leU32(&buf, 0)
	// SymbolDefinition: count=0
	leU32(&buf, 0)
	// PhraseIteration: count=0
	leU32(&buf, 0)
	// PhraseExtraInfo: count=0
	leU32(&buf, 0)
	// NLinkedDifficulty: count=0
	leU32(&buf, 0)
	// Action: count=0
	leU32(&buf, 0)
	// Event: count=0
	leU32(&buf, 0)
	// Tone: count=0
	leU32(&buf, 0)
	// DNA: count=0
	leU32(&buf, 0)
	// Section: count=0
	leU32(&buf, 0)

	// Arrangement: count=1
	leU32(&buf, 1)
	leI32(&buf, 3) // Difficulty
	leU32(&buf, 0) // Anchors count
	leU32(&buf, 0) // AnchorExtensions count
	leU32(&buf, 0) // Fingerprints1 count
	leU32(&buf, 0) // Fingerprints2 count
	leU32(&buf, 1) // Notes count
	leU32(&buf, 0) // NoteMask
	leF32(&buf, 0) // TimeSec
	leU8(&buf, 0)  // StringIndex
	leU8(&buf, 3)  // FretId
	leI32(&buf, -1) // ChordId
	leI32(&buf, -1) // ChordNotesId
	leI32(&buf, -1) // PhraseIterationId
	leF32(&buf, 1.0) // SustainSec
	leBendPoints(&buf)
	leU8(&buf, 0xFF) // SlideTo
	leU8(&buf, 0xFF) // SlideUnpitchTo
	leU8(&buf, 0xFF) // LeftHand
	leU8(&buf, 0xFF) // Tap
	leU8(&buf, 0xFF) // Slap
	leU8(&buf, 0xFF) // Pluck
	leI16(&buf, 0)   // Vibrato
	leU32(&buf, 0)   // PhraseIterationNoteCounts1 count
	leU32(&buf, 0)   // PhraseIterationNoteCounts2 count

	// Metadata (no count prefix)
	leF64(&buf, 0) // MaxScore
	leF64(&buf, 0) // MaxNotesAndChords
	leF64(&buf, 0) // PointsPerNote
	leF32(&buf, 0) // FirstBeatLengthSec
	leF32(&buf, 0) // StartTimeSec
	leU8(&buf, 0xFF) // CapoFretId
	leI16(&buf, 0)   // Part
	leF32(&buf, 2.0) // SongLengthSec
	leI32(&buf, 4)   // StringCount
	for i := 0; i < 6; i++ {
		leI32(&buf, 0)
	}
	leF32(&buf, 0) // FirstNoteTimeSec
	leI32(&buf, 3) // MaxDifficulty

	return buf.Bytes()
}

// buildSngAssetPayload wraps decoded (an already-assembled, uncompressed
// section stream such as buildMinimalSngFixture's output) in the
// length-prefixed zlib envelope sngInflate expects, skipping the AES
// envelope entirely (sngStripEnvelope passes bytes through unchanged
// whenever the first byte isn't the 0x4A magic marker).
func buildSngAssetPayload(decoded []byte) []byte {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(decoded)
	zw.Close()

	var out bytes.Buffer
	leU32(&out, uint32(len(decoded)))
	leU32(&out, uint32(compressed.Len()))
	out.Write(compressed.Bytes())
	return out.Bytes()
}

// encryptPsarcTocForTest is the inverse of decryptPsarcToc, built the
// same way (hand-stepped 1-byte-feedback CFB) so a test can produce a
// known ciphertext and assert decryptPsarcToc recovers the plaintext.
func encryptPsarcTocForTest(plaintext []byte) []byte {
	block, err := aes.NewCipher(psarcTocKey)
	if err != nil {
		panic(err)
	}
	shift := make([]byte, aes.BlockSize)
	scratch := make([]byte, aes.BlockSize)
	out := make([]byte, len(plaintext))

	for i, p := range plaintext {
		block.Encrypt(scratch, shift)
		c := p ^ scratch[0]
		out[i] = c
		copy(shift, shift[1:])
		shift[len(shift)-1] = c
	}
	return out
}
