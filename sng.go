package rstab

import (
	"bytes"
	"crypto/aes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	sngIVSize          = 16
	sngMagicLowByte    = 0x4A
	sngLenPrefixes     = 8 // uncompressed_size + compressed_size, both u32 LE
	sngMaxSectionCount = 1 << 20
)

// SngDocument is the fully parsed, typed content of a decrypted and
// inflated .sng asset. Sections are consumed
// in the fixed order the format specifies.
type SngDocument struct {
	BPM                []SngBPM
	Phrases            []SngPhrase
	Chords             []SngChordTemplate
	ChordNotes         []SngChordNotes
	Vocals             []SngVocal
	SymbolsHeader      []SngSymbolsHeader
	SymbolsTexture     []SngSymbolsTexture
	SymbolDefinitions  []SngSymbolDefinition
	PhraseIterations   []SngPhraseIteration
	PhraseExtraInfos   []SngPhraseExtraInfo
	NLinkedDifficulty  []SngNLinkedDifficulty
	Actions            []SngAction
	Events             []SngEvent
	Tones              []SngTone
	DNAs               []SngDNA
	Sections           []SngSection
	Arrangements       []SngArrangement
	Metadata           SngMetadata2014
}

// OpenSng decrypts and parses a .sng asset's raw bytes into a typed
// document. platformKey selects PC or Mac.
func OpenSng(raw []byte, platformKey []byte) (*SngDocument, error) {
	payload, err := sngStripEnvelope(raw, platformKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting sng envelope: %w", err)
	}

	inflated, err := sngInflate(payload)
	if err != nil {
		return nil, fmt.Errorf("inflating sng payload: %w", err)
	}

	return parseSngSections(inflated)
}

// OpenSngAnyPlatform tries each platform key (PC first, then Mac) and
// returns the first document that decrypts and parses cleanly. The
// envelope carries no reliable platform discriminator (platform_flags is
// undocumented and discarded), so a failed zlib inflate or section parse
// under one key is the signal to retry under the other.
func OpenSngAnyPlatform(raw []byte) (*SngDocument, error) {
	keys := [][]byte{sngKeyPC, sngKeyMac}

	var firstErr error
	for _, key := range keys {
		doc, err := OpenSng(raw, key)
		if err == nil {
			return doc, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// sngStripEnvelope reads the 8-byte header + 16-byte IV and, if the
// magic byte matches, decrypts the remainder with counter-stepped
// CFB-128. If the magic byte doesn't match, the buffer is
// returned unchanged (treated as already unencrypted).
func sngStripEnvelope(raw []byte, platformKey []byte) ([]byte, error) {
	if len(raw) < 4 {
		return raw, nil
	}
	magicLow := raw[0]
	if magicLow != sngMagicLowByte {
		return raw, nil
	}
	if len(raw) < 8+sngIVSize {
		return nil, ErrUnexpectedEOF
	}

	iv := raw[8 : 8+sngIVSize]
	ciphertext := raw[8+sngIVSize:]

	return decryptCounterSteppedCFB128(ciphertext, platformKey, iv)
}

// decryptCounterSteppedCFB128 implements the non-standard SNG cipher
// mode: each 16-byte keystream block is AES-ECB(iv_k), XORed
// against the next up-to-16 ciphertext bytes, with iv_{k+1} = iv_k + 1
// (big-endian 128-bit integer addition) stepped between blocks rather
// than fed back from the ciphertext (as standard CFB-128 would do).
func decryptCounterSteppedCFB128(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	counter := make([]byte, len(iv))
	copy(counter, iv)

	out := make([]byte, len(ciphertext))
	keystream := make([]byte, aes.BlockSize)

	for offset := 0; offset < len(ciphertext); offset += aes.BlockSize {
		block.Encrypt(keystream, counter)

		end := offset + aes.BlockSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		for i := offset; i < end; i++ {
			out[i] = ciphertext[i] ^ keystream[i-offset]
		}

		incrementCounter(counter)
	}

	return out, nil
}

// incrementCounter treats counter as a big-endian 128-bit integer and
// adds 1, with carry propagating right to left.
func incrementCounter(counter []byte) {
	for i := len(counter) - 1; i >= 0; i-- {
		counter[i]++
		if counter[i] != 0 {
			return
		}
	}
}

// encryptCounterSteppedCFB128 is the inverse operation; since the cipher
// is a symmetric XOR-keystream construction, encryption and decryption
// are the same transform.
func encryptCounterSteppedCFB128(plaintext, key, iv []byte) ([]byte, error) {
	return decryptCounterSteppedCFB128(plaintext, key, iv)
}

// sngInflate reads the uncompressed_size/compressed_size prefix and
// zlib-inflates the payload.
func sngInflate(payload []byte) ([]byte, error) {
	if len(payload) < sngLenPrefixes {
		return nil, ErrUnexpectedEOF
	}
	lr := NewLittleEndianReader(bytes.NewReader(payload[:sngLenPrefixes]))
	if _, err := lr.U32(); err != nil { // uncompressed_size, advisory
		return nil, err
	}
	compressedSize, err := lr.U32()
	if err != nil {
		return nil, err
	}

	rest := payload[sngLenPrefixes:]
	if uint64(len(rest)) < uint64(compressedSize) {
		compressedSize = uint32(len(rest))
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest[:compressedSize]))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(zr)
}
