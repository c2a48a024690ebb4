package rstab

import (
	"fmt"
	"math"
	"sort"
)

// Note mask bits.
const (
	maskChordNotes     = 0x00000002
	maskSlide          = 0x00000004
	maskHarmonic       = 0x00000020
	maskPalmMute       = 0x00000040
	maskVibrato        = 0x00000100
	maskHammerOn       = 0x00000200
	maskPullOff        = 0x00000400
	maskSlideUnpitched = 0x00000800
	maskTremolo        = 0x00002000
	maskAccent         = 0x00004000
	maskLinkNext       = 0x00008000
	maskIgnore         = 0x00010000
	maskMute           = 0x00020000
	maskPinchOrPluck   = 0x00040000
	maskSlap           = 0x00080000
	maskTap            = 0x00100000
)

// sentinelByte reports whether a single-byte technique field is the
// "absent" sentinel.
func sentinelByte(b uint8) bool {
	return b == 0 || b == 0xFF
}

// BuildTrack converts one arrangement's decrypted SNG document plus its
// manifest attributes into a Track. Only the
// highest-difficulty arrangement in doc.Arrangements contributes notes.
func BuildTrack(doc *SngDocument, attrs Attributes2014) (*Track, error) {
	track := &Track{
		Name:           attrs.ArrangementName,
		Instrument:     trackInstrument(attrs.ArrangementType),
		Path:           trackPath(attrs.ArrangementType),
		NumStrings:     trackNumStrings(doc.Metadata.StringCount),
		Tuning:         trackTuning(doc.Metadata.Tuning),
		Capo:           trackCapo(doc.Metadata.CapoFretId),
		ChordTemplates: buildChordTemplates(doc.Chords),
		bonus:          attrs.ArrangementType,
	}

	track.AverageBPM = averageBPM(doc.BPM)

	bars := buildBars(doc.BPM, doc.Metadata.SongLengthSec, track.AverageBPM)
	track.Bars = bars

	arrangement := highestDifficulty(doc.Arrangements)
	if arrangement == nil {
		return track, nil
	}

	if err := populateNotes(track, arrangement, doc.ChordNotes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArrangementDecode, err)
	}

	return track, nil
}

func trackInstrument(arrangementType int) Instrument {
	if arrangementType == 3 {
		return InstrumentBass
	}
	if arrangementType == 4 {
		return InstrumentVocals
	}
	return InstrumentGuitar
}

func trackPath(arrangementType int) Path {
	switch arrangementType {
	case 0:
		return PathLead
	case 1, 2:
		return PathRhythm
	case 3:
		return PathBass
	default:
		return PathLead
	}
}

func trackNumStrings(stringCount int32) int {
	n := int(stringCount)
	if n < 4 {
		return 4
	}
	return n
}

func trackTuning(raw [6]int32) [6]int {
	var t [6]int
	for i := range t {
		t[i] = int(raw[i])
	}
	return t
}

func trackCapo(capoFret uint8) int {
	if capoFret == 0xFF {
		return 0
	}
	return int(capoFret)
}

func buildChordTemplates(chords []SngChordTemplate) map[int]ChordTemplate {
	out := make(map[int]ChordTemplate, len(chords))
	for i, c := range chords {
		var ct ChordTemplate
		ct.Name = c.Name
		for s := 0; s < 6; s++ {
			ct.Frets[s] = decodeFretByte(uint8(c.Frets[s]))
			ct.Fingers[s] = decodeFretByte(uint8(c.Fingers[s]))
		}
		out[i] = ct
	}
	return out
}

func decodeFretByte(b uint8) int {
	if b == 0xFF {
		return -1
	}
	return int(b)
}

// averageBPM is 60*(n-1)/(t[n-1]-t[0]), defaulting to 120.
func averageBPM(events []SngBPM) float64 {
	n := len(events)
	if n < 2 {
		return 120
	}
	span := float64(events[n-1].TimeSec - events[0].TimeSec)
	if span <= 0 {
		return 120
	}
	return 60 * float64(n-1) / span
}

// buildBars groups the BPM beat-stream into bars.
func buildBars(events []SngBPM, songLength float32, averageBpm float64) []*Bar {
	if len(events) == 0 {
		return nil
	}

	var starts []int
	for i, e := range events {
		if e.Measure != -1 {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		starts = []int{0}
	}

	var bars []*Bar
	for bi, first := range starts {
		last := len(events)
		if bi+1 < len(starts) {
			last = starts[bi+1]
		}

		start := float64(events[first].TimeSec)
		var end float64
		if last < len(events) {
			end = float64(events[last].TimeSec)
		} else {
			end = float64(songLength)
		}

		beatTimes := make([]float64, 0, last-first+1)
		for i := first; i < last; i++ {
			beatTimes = append(beatTimes, float64(events[i].TimeSec))
		}
		beatTimes = append(beatTimes, end)

		numerator := last - first
		if numerator < 1 {
			numerator = 1
		}

		delta := (end - start) / float64(numerator)
		denominator, bpm := guessMeter(delta, averageBpm)

		bars = append(bars, &Bar{
			StartSec:        start,
			EndSec:          end,
			BeatTimesSec:    beatTimes,
			TimeNumerator:   numerator,
			TimeDenominator: denominator,
			BeatsPerMinute:  bpm,
		})
	}

	return bars
}

func guessMeter(delta, averageBpm float64) (int, float64) {
	if delta <= 0 {
		return 4, averageBpm
	}
	denom4Dist := math.Abs(averageBpm - 60/delta)
	denom8Dist := math.Abs(averageBpm - 30/delta)

	denominator := 8
	if denom4Dist < denom8Dist {
		denominator = 4
	}

	bpm := math.Round((4/float64(denominator))*60/delta*1000) / 1000
	return denominator, bpm
}

func highestDifficulty(arrangements []SngArrangement) *SngArrangement {
	var best *SngArrangement
	for i := range arrangements {
		a := &arrangements[i]
		if best == nil || a.Difficulty > best.Difficulty {
			best = a
		}
	}
	return best
}

func findBar(bars []*Bar, t float64) *Bar {
	for _, b := range bars {
		if b.StartSec <= t && t < b.EndSec {
			return b
		}
	}
	return nil
}

// populateNotes groups the chosen arrangement's notes by time and
// assigns each group's resulting Chord to its bar.
func populateNotes(track *Track, arrangement *SngArrangement, chordNotes []SngChordNotes) error {
	groups := groupByTime(arrangement.Notes)

	times := make([]float64, 0, len(groups))
	for t := range groups {
		times = append(times, t)
	}
	sort.Float64s(times)

	for _, t := range times {
		group := groups[t]
		bar := findBar(track.Bars, t)
		if bar == nil {
			continue
		}

		chord := buildChord(group, chordNotes, track.ChordTemplates)
		chord.DurationTicks = int(math.Round(bar.DurationFor(chord.StartSec, chord.EndSec-chord.StartSec) * 48))

		bar.Chords = append(bar.Chords, chord)
	}

	return nil
}

func groupByTime(notes []SngNote) map[float64][]SngNote {
	out := make(map[float64][]SngNote)
	for _, n := range notes {
		t := float64(n.TimeSec)
		out[t] = append(out[t], n)
	}
	return out
}

func isChordGroup(group []SngNote) bool {
	if len(group) >= 2 {
		return true
	}
	for _, n := range group {
		if n.NoteMask&maskChordNotes != 0 {
			return true
		}
		if n.ChordId != -1 {
			return true
		}
	}
	return false
}

func buildChord(group []SngNote, chordNotesTable []SngChordNotes, templates map[int]ChordTemplate) *Chord {
	start := float64(group[0].TimeSec)
	sustainMax := 0.0
	for _, n := range group {
		if float64(n.SustainSec) > sustainMax {
			sustainMax = float64(n.SustainSec)
		}
	}
	end := start + math.Max(sustainMax, 0.01)

	chord := &Chord{
		StartSec: start,
		EndSec:   end,
		ChordID:  -1,
		Notes:    make(map[int]*Note),
	}

	chordID := -1
	for _, n := range group {
		if n.ChordId >= 0 {
			chordID = int(n.ChordId)
		}
	}
	chord.ChordID = chordID

	if !isChordGroup(group) {
		for _, n := range group {
			note := decodeSingleNote(n)
			chord.Notes[note.String] = note
			applyChordFlags(chord, n.NoteMask)
		}
		return chord
	}

	tmpl, ok := templates[chordID]
	if !ok {
		for s := range tmpl.Frets {
			tmpl.Frets[s] = -1
			tmpl.Fingers[s] = -1
		}
	}

	used := false
	for _, n := range group {
		if n.ChordNotesId >= 0 && int(n.ChordNotesId) < len(chordNotesTable) {
			expandChordNotes(chord, chordNotesTable[n.ChordNotesId], tmpl)
			applyChordFlags(chord, n.NoteMask)
			used = true
		}
	}
	if used {
		return chord
	}

	for _, n := range group {
		note := decodeSingleNote(n)
		chord.Notes[note.String] = note
		applyChordFlags(chord, n.NoteMask)
	}
	return chord
}

func applyChordFlags(chord *Chord, mask uint32) {
	// maskPinchOrPluck is overloaded in chord context and carries no
	// chord-level meaning, so it is not mapped here.
	if mask&maskSlap != 0 {
		chord.Slapped = true
	}
	if mask&maskTremolo != 0 {
		chord.Tremolo = true
	}
}

func decodeSingleNote(n SngNote) *Note {
	mask := n.NoteMask
	note := &Note{
		String:     int(n.StringIndex),
		Fret:       int(n.FretId),
		SustainSec: float64(n.SustainSec),
		PalmMuted:  mask&maskPalmMute != 0,
		Muted:      mask&maskMute != 0,
		Hopo:       mask&(maskHammerOn|maskPullOff) != 0,
		Vibrato:    mask&maskVibrato != 0,
		LinkNext:   mask&maskLinkNext != 0,
		Accent:     mask&maskAccent != 0,
		Harmonic:   mask&maskHarmonic != 0,
		Pinch:      mask&maskPinchOrPluck != 0,
		Tremolo:    mask&maskTremolo != 0,
		Slide:      SlideNone,
	}

	if mask&maskSlide != 0 && !sentinelByte(n.SlideTo) {
		note.Slide = SlideToNext
		note.SlideTarget = int(n.SlideTo)
	} else if mask&maskSlideUnpitched != 0 && !sentinelByte(n.SlideUnpitchTo) {
		if int(n.SlideUnpitchTo) >= note.Fret {
			note.Slide = SlideUnpitchUp
		} else {
			note.Slide = SlideUnpitchDown
		}
		note.SlideTarget = int(n.SlideUnpitchTo)
	}

	if !sentinelByte(n.Tap) {
		note.Tapped = true
	}
	if !sentinelByte(n.Slap) {
		note.Slapped = true
	}
	if !sentinelByte(n.Pluck) {
		note.Popped = true
	}
	if !sentinelByte(n.LeftHand) {
		note.LeftFingering = true
	}

	for _, p := range n.BendData {
		if p.TimeSec == 0 {
			continue
		}
		rel := float64(p.TimeSec) - float64(n.TimeSec)
		if rel < 0 {
			rel = 0
		}
		note.BendValues = append(note.BendValues, BendValue{OffsetSec: rel, StepSemitone: float64(p.Step)})
	}

	return note
}

// expandChordNotes synthesizes one Note per string from a ChordNotes
// record and the chord's template: skip a string when the template fret
// is absent and the chord-note mask for that string is zero, otherwise
// synthesize a Note whose fret comes from the template.
func expandChordNotes(chord *Chord, cn SngChordNotes, tmpl ChordTemplate) {
	tNote := chord.StartSec
	for s := 0; s < 6; s++ {
		mask := cn.NoteMask[s]
		fret := tmpl.Frets[s]
		if fret == -1 && mask == 0 {
			continue
		}

		note := &Note{
			String:    s,
			Fret:      fret,
			PalmMuted: mask&maskPalmMute != 0,
			Muted:     mask&maskMute != 0,
			Hopo:      mask&(maskHammerOn|maskPullOff) != 0,
			Vibrato:   mask&maskVibrato != 0 || cn.Vibrato[s] != 0,
			LinkNext:  mask&maskLinkNext != 0,
			Accent:    mask&maskAccent != 0,
			Harmonic:  mask&maskHarmonic != 0,
			Tremolo:   mask&maskTremolo != 0,
			Slide:     SlideNone,
		}

		if mask&maskSlide != 0 && !sentinelByte(uint8(cn.SlideTo[s])) {
			note.Slide = SlideToNext
			note.SlideTarget = int(cn.SlideTo[s])
		} else if mask&maskSlideUnpitched != 0 && !sentinelByte(uint8(cn.SlideUnpitchTo[s])) {
			if int(cn.SlideUnpitchTo[s]) >= note.Fret {
				note.Slide = SlideUnpitchUp
			} else {
				note.Slide = SlideUnpitchDown
			}
			note.SlideTarget = int(cn.SlideUnpitchTo[s])
		}

		for _, p := range cn.BendData[s] {
			if p.TimeSec == 0 {
				continue
			}
			rel := float64(p.TimeSec) - tNote
			if rel < 0 {
				rel = 0
			}
			note.BendValues = append(note.BendValues, BendValue{OffsetSec: rel, StepSemitone: float64(p.Step)})
		}

		chord.Notes[s] = note
	}
}
