package rstab

import (
	"bytes"
	"fmt"
)

// Fixed-width name field sizes used across SNG records.
const (
	sngShortNameSize = 32
	sngLongNameSize  = 256
	sngBendPoints    = 32
	sngStrings       = 6
)

type SngBPM struct {
	TimeSec         float32
	Measure         int16
	Beat            int16
	PhraseIteration int32
}

type SngPhrase struct {
	Solo                 uint8
	Disparity            uint8
	Ignore               uint8
	MaxDifficulty        int32
	PhraseIterationLinks int32
	Name                 string
}

type SngChordTemplate struct {
	Mask    uint32
	Frets   [sngStrings]int8
	Fingers [sngStrings]int8
	Notes   [sngStrings]int32
	Name    string
}

type SngBendPoint struct {
	TimeSec float32
	Step    float32
}

type SngChordNotes struct {
	NoteMask       [sngStrings]uint32
	BendData       [sngStrings][sngBendPoints]SngBendPoint
	SlideTo        [sngStrings]int8
	SlideUnpitchTo [sngStrings]int8
	Vibrato        [sngStrings]int16
}

type SngVocal struct {
	TimeSec   float32
	Note      int32
	LengthSec float32
	Lyric     string
}

type SngSymbolsHeader struct {
	Unknown [16]byte
}

type SngSymbolsTexture struct {
	Font   string
	Width  int32
	Height int32
}

type SngSymbolDefinition struct {
	Text  string
	Outer [4]float32
	Inner [4]float32
}

type SngPhraseIteration struct {
	PhraseId          int32
	StartTimeSec      float32
	NextPhraseTimeSec float32
	Difficulty        [3]int32
}

type SngPhraseExtraInfo struct {
	PhraseId   int32
	Difficulty int32
	Empty      int32
	LevelJump  uint8
	Redundant  int16
}

type SngNLinkedDifficulty struct {
	LevelBreak int32
	NLevels    int32
	Levels     [32]int32
}

type SngAction struct {
	TimeSec float32
	Name    string
}

type SngEvent struct {
	TimeSec float32
	Name    string
}

type SngTone struct {
	TimeSec float32
	ToneId  int32
}

type SngDNA struct {
	TimeSec float32
	DnaId   int32
}

type SngSection struct {
	Name                    string
	StartTimeSec            float32
	EndTimeSec              float32
	StartPhraseIterationId  int32
	EndPhraseIterationId    int32
}

type SngAnchor struct {
	StartTimeSec      float32
	EndTimeSec        float32
	FretId            uint8
	Width             uint8
	PhraseIterationId int32
}

type SngAnchorExtension struct {
	TimeSec float32
	FretId  uint8
}

type SngFingerprint struct {
	ChordId      int32
	StartTimeSec float32
	EndTimeSec   float32
}

// SngNote is one raw note (or chord-member note) record inside an
// arrangement.
type SngNote struct {
	NoteMask          uint32
	TimeSec           float32
	StringIndex       uint8
	FretId            uint8
	ChordId           int32
	ChordNotesId      int32
	PhraseIterationId int32
	SustainSec        float32
	BendData          [sngBendPoints]SngBendPoint
	SlideTo           uint8
	SlideUnpitchTo    uint8
	LeftHand          uint8
	Tap               uint8
	Slap              uint8
	Pluck             uint8
	Vibrato           int16
}

// SngArrangement is a nested composite record: anchors, anchor
// extensions, two fingerprint levels, notes, and two phrase-iteration
// note-count arrays, all for one playable difficulty level of one
// arrangement.
type SngArrangement struct {
	Difficulty                 int32
	Anchors                    []SngAnchor
	AnchorExtensions           []SngAnchorExtension
	Fingerprints1              []SngFingerprint
	Fingerprints2              []SngFingerprint
	Notes                      []SngNote
	PhraseIterationNoteCounts1 []int32
	PhraseIterationNoteCounts2 []int32
}

// SngMetadata2014 is the final, fixed-size SNG section.
type SngMetadata2014 struct {
	MaxScore           float64
	MaxNotesAndChords  float64
	PointsPerNote      float64
	FirstBeatLengthSec float32
	StartTimeSec       float32
	CapoFretId         uint8
	Part               int16
	SongLengthSec      float32
	StringCount        int32
	Tuning             [sngStrings]int32
	FirstNoteTimeSec   float32
	MaxDifficulty      int32
}

// readSection reads a 32-bit count followed by that many records decoded
// by decode, the fixed envelope every SNG section shares. Short reads
// are fatal.
func readSection[T any](lr *LittleEndianReader, decode func(*LittleEndianReader) (T, error)) ([]T, error) {
	count, err := lr.U32()
	if err != nil {
		return nil, err
	}
	if count > sngMaxSectionCount {
		return nil, fmt.Errorf("section count %d exceeds sanity limit", count)
	}
	out := make([]T, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := decode(lr)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func readName(lr *LittleEndianReader, size int) (string, error) {
	buf, err := lr.Bytes(size)
	if err != nil {
		return "", err
	}
	return asciiZ(buf), nil
}

func readBendPoints(lr *LittleEndianReader) ([sngBendPoints]SngBendPoint, error) {
	var points [sngBendPoints]SngBendPoint
	for i := range points {
		t, err := lr.F32()
		if err != nil {
			return points, err
		}
		step, err := lr.F32()
		if err != nil {
			return points, err
		}
		points[i] = SngBendPoint{TimeSec: t, Step: step}
	}
	return points, nil
}

func decodeBPM(lr *LittleEndianReader) (SngBPM, error) {
	var v SngBPM
	var err error
	if v.TimeSec, err = lr.F32(); err != nil {
		return v, err
	}
	m, err := lr.I16()
	if err != nil {
		return v, err
	}
	v.Measure = m
	b, err := lr.I16()
	if err != nil {
		return v, err
	}
	v.Beat = b
	pi, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.PhraseIteration = pi
	return v, nil
}

func decodePhrase(lr *LittleEndianReader) (SngPhrase, error) {
	var v SngPhrase
	solo, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.Solo = solo
	disparity, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.Disparity = disparity
	ignore, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.Ignore = ignore
	if err := lr.Skip(1); err != nil { // padding
		return v, err
	}
	maxDiff, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.MaxDifficulty = maxDiff
	links, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.PhraseIterationLinks = links
	name, err := readName(lr, sngShortNameSize)
	if err != nil {
		return v, err
	}
	v.Name = name
	return v, nil
}

func readInt8Array6(lr *LittleEndianReader) ([sngStrings]int8, error) {
	var out [sngStrings]int8
	for i := range out {
		b, err := lr.U8()
		if err != nil {
			return out, err
		}
		out[i] = int8(b)
	}
	return out, nil
}

func readInt32Array6(lr *LittleEndianReader) ([sngStrings]int32, error) {
	var out [sngStrings]int32
	for i := range out {
		v, err := lr.I32()
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeChordTemplate(lr *LittleEndianReader) (SngChordTemplate, error) {
	var v SngChordTemplate
	mask, err := lr.U32()
	if err != nil {
		return v, err
	}
	v.Mask = mask
	frets, err := readInt8Array6(lr)
	if err != nil {
		return v, err
	}
	v.Frets = frets
	fingers, err := readInt8Array6(lr)
	if err != nil {
		return v, err
	}
	v.Fingers = fingers
	notes, err := readInt32Array6(lr)
	if err != nil {
		return v, err
	}
	v.Notes = notes
	name, err := readName(lr, sngShortNameSize)
	if err != nil {
		return v, err
	}
	v.Name = name
	return v, nil
}

func decodeChordNotes(lr *LittleEndianReader) (SngChordNotes, error) {
	var v SngChordNotes
	for s := 0; s < sngStrings; s++ {
		m, err := lr.U32()
		if err != nil {
			return v, err
		}
		v.NoteMask[s] = m
	}
	for s := 0; s < sngStrings; s++ {
		pts, err := readBendPoints(lr)
		if err != nil {
			return v, err
		}
		v.BendData[s] = pts
	}
	for s := 0; s < sngStrings; s++ {
		b, err := lr.U8()
		if err != nil {
			return v, err
		}
		v.SlideTo[s] = int8(b)
	}
	for s := 0; s < sngStrings; s++ {
		b, err := lr.U8()
		if err != nil {
			return v, err
		}
		v.SlideUnpitchTo[s] = int8(b)
	}
	for s := 0; s < sngStrings; s++ {
		b, err := lr.I16()
		if err != nil {
			return v, err
		}
		v.Vibrato[s] = b
	}
	return v, nil
}

func decodeVocal(lr *LittleEndianReader) (SngVocal, error) {
	var v SngVocal
	t, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.TimeSec = t
	note, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.Note = note
	length, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.LengthSec = length
	lyric, err := readName(lr, sngShortNameSize)
	if err != nil {
		return v, err
	}
	v.Lyric = lyric
	return v, nil
}

func decodeSymbolsHeader(lr *LittleEndianReader) (SngSymbolsHeader, error) {
	var v SngSymbolsHeader
	b, err := lr.Bytes(len(v.Unknown))
	if err != nil {
		return v, err
	}
	copy(v.Unknown[:], b)
	return v, nil
}

func decodeSymbolsTexture(lr *LittleEndianReader) (SngSymbolsTexture, error) {
	var v SngSymbolsTexture
	font, err := readName(lr, sngShortNameSize)
	if err != nil {
		return v, err
	}
	v.Font = font
	w, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.Width = w
	h, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.Height = h
	return v, nil
}

func decodeSymbolDefinition(lr *LittleEndianReader) (SngSymbolDefinition, error) {
	var v SngSymbolDefinition
	text, err := readName(lr, sngShortNameSize)
	if err != nil {
		return v, err
	}
	v.Text = text
	for i := range v.Outer {
		f, err := lr.F32()
		if err != nil {
			return v, err
		}
		v.Outer[i] = f
	}
	for i := range v.Inner {
		f, err := lr.F32()
		if err != nil {
			return v, err
		}
		v.Inner[i] = f
	}
	return v, nil
}

func decodePhraseIteration(lr *LittleEndianReader) (SngPhraseIteration, error) {
	var v SngPhraseIteration
	id, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.PhraseId = id
	start, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.StartTimeSec = start
	next, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.NextPhraseTimeSec = next
	for i := range v.Difficulty {
		d, err := lr.I32()
		if err != nil {
			return v, err
		}
		v.Difficulty[i] = d
	}
	return v, nil
}

func decodePhraseExtraInfo(lr *LittleEndianReader) (SngPhraseExtraInfo, error) {
	var v SngPhraseExtraInfo
	id, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.PhraseId = id
	diff, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.Difficulty = diff
	empty, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.Empty = empty
	jump, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.LevelJump = jump
	redundant, err := lr.I16()
	if err != nil {
		return v, err
	}
	v.Redundant = redundant
	return v, nil
}

func decodeNLinkedDifficulty(lr *LittleEndianReader) (SngNLinkedDifficulty, error) {
	var v SngNLinkedDifficulty
	lb, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.LevelBreak = lb
	n, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.NLevels = n
	for i := range v.Levels {
		lv, err := lr.I32()
		if err != nil {
			return v, err
		}
		v.Levels[i] = lv
	}
	return v, nil
}

func decodeAction(lr *LittleEndianReader) (SngAction, error) {
	var v SngAction
	t, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.TimeSec = t
	name, err := readName(lr, sngLongNameSize)
	if err != nil {
		return v, err
	}
	v.Name = name
	return v, nil
}

func decodeEvent(lr *LittleEndianReader) (SngEvent, error) {
	var v SngEvent
	t, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.TimeSec = t
	name, err := readName(lr, sngShortNameSize)
	if err != nil {
		return v, err
	}
	v.Name = name
	return v, nil
}

func decodeTone(lr *LittleEndianReader) (SngTone, error) {
	var v SngTone
	t, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.TimeSec = t
	id, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.ToneId = id
	return v, nil
}

func decodeDNA(lr *LittleEndianReader) (SngDNA, error) {
	var v SngDNA
	t, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.TimeSec = t
	id, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.DnaId = id
	return v, nil
}

func decodeSection(lr *LittleEndianReader) (SngSection, error) {
	var v SngSection
	name, err := readName(lr, sngShortNameSize)
	if err != nil {
		return v, err
	}
	v.Name = name
	start, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.StartTimeSec = start
	end, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.EndTimeSec = end
	startPI, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.StartPhraseIterationId = startPI
	endPI, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.EndPhraseIterationId = endPI
	return v, nil
}

func decodeAnchor(lr *LittleEndianReader) (SngAnchor, error) {
	var v SngAnchor
	start, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.StartTimeSec = start
	end, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.EndTimeSec = end
	fret, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.FretId = fret
	width, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.Width = width
	pid, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.PhraseIterationId = pid
	return v, nil
}

func decodeAnchorExtension(lr *LittleEndianReader) (SngAnchorExtension, error) {
	var v SngAnchorExtension
	t, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.TimeSec = t
	fret, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.FretId = fret
	return v, nil
}

func decodeFingerprint(lr *LittleEndianReader) (SngFingerprint, error) {
	var v SngFingerprint
	id, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.ChordId = id
	start, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.StartTimeSec = start
	end, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.EndTimeSec = end
	return v, nil
}

func decodeNote(lr *LittleEndianReader) (SngNote, error) {
	var v SngNote
	mask, err := lr.U32()
	if err != nil {
		return v, err
	}
	v.NoteMask = mask
	t, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.TimeSec = t
	str, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.StringIndex = str
	fret, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.FretId = fret
	chordId, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.ChordId = chordId
	chordNotesId, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.ChordNotesId = chordNotesId
	pid, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.PhraseIterationId = pid
	sustain, err := lr.F32()
	if err != nil {
		return v, err
	}
	v.SustainSec = sustain
	bends, err := readBendPoints(lr)
	if err != nil {
		return v, err
	}
	v.BendData = bends
	slideTo, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.SlideTo = slideTo
	slideUnpitch, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.SlideUnpitchTo = slideUnpitch
	leftHand, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.LeftHand = leftHand
	tap, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.Tap = tap
	slap, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.Slap = slap
	pluck, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.Pluck = pluck
	vibrato, err := lr.I16()
	if err != nil {
		return v, err
	}
	v.Vibrato = vibrato
	return v, nil
}

func decodeInt32(lr *LittleEndianReader) (int32, error) {
	return lr.I32()
}

func decodeArrangement(lr *LittleEndianReader) (SngArrangement, error) {
	var v SngArrangement
	difficulty, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.Difficulty = difficulty

	if v.Anchors, err = readSection(lr, decodeAnchor); err != nil {
		return v, fmt.Errorf("anchors: %w", err)
	}
	if v.AnchorExtensions, err = readSection(lr, decodeAnchorExtension); err != nil {
		return v, fmt.Errorf("anchor extensions: %w", err)
	}
	if v.Fingerprints1, err = readSection(lr, decodeFingerprint); err != nil {
		return v, fmt.Errorf("fingerprints1: %w", err)
	}
	if v.Fingerprints2, err = readSection(lr, decodeFingerprint); err != nil {
		return v, fmt.Errorf("fingerprints2: %w", err)
	}
	if v.Notes, err = readSection(lr, decodeNote); err != nil {
		return v, fmt.Errorf("notes: %w", err)
	}
	if v.PhraseIterationNoteCounts1, err = readSection(lr, decodeInt32); err != nil {
		return v, fmt.Errorf("phrase iteration note counts 1: %w", err)
	}
	if v.PhraseIterationNoteCounts2, err = readSection(lr, decodeInt32); err != nil {
		return v, fmt.Errorf("phrase iteration note counts 2: %w", err)
	}

	return v, nil
}

func decodeMetadata(lr *LittleEndianReader) (SngMetadata2014, error) {
	var v SngMetadata2014
	var err error
	if v.MaxScore, err = lr.F64(); err != nil {
		return v, err
	}
	if v.MaxNotesAndChords, err = lr.F64(); err != nil {
		return v, err
	}
	if v.PointsPerNote, err = lr.F64(); err != nil {
		return v, err
	}
	if v.FirstBeatLengthSec, err = lr.F32(); err != nil {
		return v, err
	}
	if v.StartTimeSec, err = lr.F32(); err != nil {
		return v, err
	}
	capo, err := lr.U8()
	if err != nil {
		return v, err
	}
	v.CapoFretId = capo
	part, err := lr.I16()
	if err != nil {
		return v, err
	}
	v.Part = part
	if v.SongLengthSec, err = lr.F32(); err != nil {
		return v, err
	}
	stringCount, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.StringCount = stringCount
	for i := range v.Tuning {
		t, err := lr.I32()
		if err != nil {
			return v, err
		}
		v.Tuning[i] = t
	}
	if v.FirstNoteTimeSec, err = lr.F32(); err != nil {
		return v, err
	}
	maxDiff, err := lr.I32()
	if err != nil {
		return v, err
	}
	v.MaxDifficulty = maxDiff
	return v, nil
}

// parseSngSections consumes the format's fixed sequence of sections, in
// order.
func parseSngSections(data []byte) (*SngDocument, error) {
	lr := NewLittleEndianReader(bytes.NewReader(data))
	doc := &SngDocument{}

	var err error
	if doc.BPM, err = readSection(lr, decodeBPM); err != nil {
		return nil, fmt.Errorf("bpm section: %w", err)
	}
	if doc.Phrases, err = readSection(lr, decodePhrase); err != nil {
		return nil, fmt.Errorf("phrase section: %w", err)
	}
	if doc.Chords, err = readSection(lr, decodeChordTemplate); err != nil {
		return nil, fmt.Errorf("chord section: %w", err)
	}
	if doc.ChordNotes, err = readSection(lr, decodeChordNotes); err != nil {
		return nil, fmt.Errorf("chordnotes section: %w", err)
	}
	if doc.Vocals, err = readSection(lr, decodeVocal); err != nil {
		return nil, fmt.Errorf("vocal section: %w", err)
	}
	if doc.SymbolsHeader, err = readSection(lr, decodeSymbolsHeader); err != nil {
		return nil, fmt.Errorf("symbolsheader section: %w", err)
	}
	if doc.SymbolsTexture, err = readSection(lr, decodeSymbolsTexture); err != nil {
		return nil, fmt.Errorf("symbolstexture section: %w", err)
	}
	if doc.SymbolDefinitions, err = readSection(lr, decodeSymbolDefinition); err != nil {
		return nil, fmt.Errorf("symboldefinition section: %w", err)
	}
	if doc.PhraseIterations, err = readSection(lr, decodePhraseIteration); err != nil {
		return nil, fmt.Errorf("phraseiteration section: %w", err)
	}
	if doc.PhraseExtraInfos, err = readSection(lr, decodePhraseExtraInfo); err != nil {
		return nil, fmt.Errorf("phraseextrainfo section: %w", err)
	}
	if doc.NLinkedDifficulty, err = readSection(lr, decodeNLinkedDifficulty); err != nil {
		return nil, fmt.Errorf("nlinkeddifficulty section: %w", err)
	}
	if doc.Actions, err = readSection(lr, decodeAction); err != nil {
		return nil, fmt.Errorf("action section: %w", err)
	}
	if doc.Events, err = readSection(lr, decodeEvent); err != nil {
		return nil, fmt.Errorf("event section: %w", err)
	}
	if doc.Tones, err = readSection(lr, decodeTone); err != nil {
		return nil, fmt.Errorf("tone section: %w", err)
	}
	if doc.DNAs, err = readSection(lr, decodeDNA); err != nil {
		return nil, fmt.Errorf("dna section: %w", err)
	}
	if doc.Sections, err = readSection(lr, decodeSection); err != nil {
		return nil, fmt.Errorf("section section: %w", err)
	}
	if doc.Arrangements, err = readSection(lr, decodeArrangement); err != nil {
		return nil, fmt.Errorf("arrangement section: %w", err)
	}
	if doc.Metadata, err = decodeMetadata(lr); err != nil {
		return nil, fmt.Errorf("metadata section: %w", err)
	}

	return doc, nil
}
