package rstab

import "fmt"

// GPIF arena types: parallel index-addressed vectors,
// all cross-references are plain integer ids into the vector they name.

type GpifRhythm struct {
	ID        int
	NoteValue string
	Dots      int
}

type GpifNote struct {
	ID          int
	String      int // 1-based, high to low
	Fret        int
	Accent      bool
	HammerOn    bool
	Tapping     bool
	Vibrato     bool
	Slide       string // "" when none
	BendPoints  []GpifBendPoint
}

type GpifBendPoint struct {
	Time  int
	Value int
}

type GpifBeat struct {
	ID       int
	RhythmID int
	NoteIDs  []int
	ChordID  int // -1 when the beat has no chord-template reference
	Rest     bool
}

type GpifVoice struct {
	ID      int
	BeatIDs []int
}

type GpifBar struct {
	ID       int
	VoiceIDs []int
}

type GpifMasterBar struct {
	TimeNumerator   int
	TimeDenominator int
	BarIDs          []int
}

type GpifTrack struct {
	ID            int
	Name          string
	ShortName     string
	ColorRGB      [3]int
	InstrumentRef string
	TuningMidi    []int // high to low
	Capo          int
}

// GpifDocument is the complete arena consumed by the XML writer.
type GpifDocument struct {
	Title  string
	Artist string
	Album  string
	Tempo  int

	Tracks     []GpifTrack
	MasterBars []GpifMasterBar
	Bars       []GpifBar
	Voices     []GpifVoice
	Beats      []GpifBeat
	Notes      []GpifNote
	Rhythms    []GpifRhythm
}

// BuildGPIF lowers a Score into the GPIF arena. Every
// track is expected to already have been run through SnapBar.
func BuildGPIF(score *Score) (*GpifDocument, error) {
	doc := &GpifDocument{
		Title:  score.Title,
		Artist: score.Artist,
		Album:  score.Album,
		Tempo:  120,
	}

	numBars := 0
	for _, t := range score.Tracks {
		if len(t.Bars) > numBars {
			numBars = len(t.Bars)
		}
	}

	for ti, track := range score.Tracks {
		if len(track.Bars) > 0 {
			doc.Tempo = int(track.Bars[0].BeatsPerMinute)
		}
		doc.Tracks = append(doc.Tracks, gpifTrack(ti, track))

		for m := 0; m < numBars; m++ {
			wantID := ti*numBars + m
			var bar *Bar
			if m < len(track.Bars) {
				bar = track.Bars[m]
			}
			barID := addGpifBar(doc, bar, track.NumStrings)
			if barID != wantID {
				return nil, fmt.Errorf("gpif bar id mismatch: track %d measure %d got %d want %d", ti, m, barID, wantID)
			}
		}
	}

	firstTrackBars := 0
	if len(score.Tracks) > 0 {
		firstTrackBars = len(score.Tracks[0].Bars)
	}
	for m := 0; m < numBars; m++ {
		num, den := 4, 4
		if m < firstTrackBars {
			b := score.Tracks[0].Bars[m]
			num, den = b.TimeNumerator, b.TimeDenominator
		}
		mb := GpifMasterBar{TimeNumerator: num, TimeDenominator: den}
		for ti := range score.Tracks {
			mb.BarIDs = append(mb.BarIDs, ti*numBars+m)
		}
		doc.MasterBars = append(doc.MasterBars, mb)
	}

	return doc, nil
}

func gpifTrack(index int, track *Track) GpifTrack {
	instrumentRef := "Guitar"
	if track.Instrument == InstrumentBass {
		instrumentRef = "Bass"
	}

	// Internal string 0 is the lowest-pitched string; GPIF wants absolute
	// MIDI pitches listed highest string first.
	open := standardOpenStringMidi(track.NumStrings)
	tuning := make([]int, track.NumStrings)
	for i := 0; i < track.NumStrings; i++ {
		internal := track.NumStrings - 1 - i
		pitch := 0
		if internal < len(open) {
			pitch = open[internal]
		}
		if internal < len(track.Tuning) {
			pitch += track.Tuning[internal]
		}
		tuning[i] = pitch
	}

	return GpifTrack{
		ID:            index,
		Name:          track.Name,
		ShortName:     track.Name,
		ColorRGB:      [3]int{255, 0, 0},
		InstrumentRef: instrumentRef,
		TuningMidi:    tuning,
		Capo:          track.Capo,
	}
}

// addGpifBar appends one Bar/Voice/Beat run for a (possibly nil, for
// padding) bar and returns the new Bar's id.
func addGpifBar(doc *GpifDocument, bar *Bar, numStrings int) int {
	barID := len(doc.Bars)
	voiceID := len(doc.Voices)

	voice := GpifVoice{ID: voiceID}

	if bar != nil {
		for _, chord := range bar.Chords {
			beatID := addGpifBeat(doc, chord, numStrings)
			voice.BeatIDs = append(voice.BeatIDs, beatID)
		}
	}
	if len(voice.BeatIDs) == 0 {
		restBeat := addRestBeat(doc)
		voice.BeatIDs = append(voice.BeatIDs, restBeat)
	}

	doc.Voices = append(doc.Voices, voice)
	doc.Bars = append(doc.Bars, GpifBar{ID: barID, VoiceIDs: []int{voiceID}})
	return barID
}

func addRestBeat(doc *GpifDocument) int {
	rhythmID := len(doc.Rhythms)
	doc.Rhythms = append(doc.Rhythms, GpifRhythm{ID: rhythmID, NoteValue: "Quarter"})

	beatID := len(doc.Beats)
	doc.Beats = append(doc.Beats, GpifBeat{ID: beatID, RhythmID: rhythmID, ChordID: -1, Rest: true})
	return beatID
}

func addGpifBeat(doc *GpifDocument, chord *Chord, numStrings int) int {
	rhythmID := len(doc.Rhythms)
	noteValue, dots := rhythmFromTicks(chord.DurationTicks)
	doc.Rhythms = append(doc.Rhythms, GpifRhythm{ID: rhythmID, NoteValue: noteValue, Dots: dots})

	beat := GpifBeat{ID: len(doc.Beats), RhythmID: rhythmID, ChordID: -1}
	if chord.ChordID >= 0 {
		beat.ChordID = chord.ChordID
	}

	for _, stringIdx := range sortedNoteStrings(chord.Notes) {
		note := chord.Notes[stringIdx]
		noteID := addGpifNote(doc, note, stringIdx, numStrings)
		beat.NoteIDs = append(beat.NoteIDs, noteID)
	}
	beat.Rest = len(beat.NoteIDs) == 0

	doc.Beats = append(doc.Beats, beat)
	return beat.ID
}

func sortedNoteStrings(notes map[int]*Note) []int {
	out := make([]int, 0, len(notes))
	for s := range notes {
		out = append(out, s)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func addGpifNote(doc *GpifDocument, note *Note, internalString int, numStrings int) int {
	gn := GpifNote{
		ID:       len(doc.Notes),
		Fret:     note.Fret,
		Accent:   note.Accent,
		HammerOn: note.Hopo,
		Tapping:  note.Tapped,
		Vibrato:  note.Vibrato,
	}

	switch note.Slide {
	case SlideToNext:
		gn.Slide = "Shift"
	case SlideUnpitchUp:
		gn.Slide = "SlideOutUp"
	case SlideUnpitchDown:
		gn.Slide = "SlideOutDown"
	}

	for _, bv := range note.BendValues {
		gn.BendPoints = append(gn.BendPoints, GpifBendPoint{
			Time:  roundInt(bv.OffsetSec * 100),
			Value: roundInt(bv.StepSemitone * 100),
		})
	}

	// GPIF string numbers are 1-based, high to low.
	gn.String = numStrings - internalString

	doc.Notes = append(doc.Notes, gn)
	return gn.ID
}

func roundInt(f float64) int {
	if f < 0 {
		return -roundInt(-f)
	}
	return int(f + 0.5)
}

// rhythmFromTicks derives (note_value, dots) from a duration in ticks.
func rhythmFromTicks(ticks int) (string, int) {
	switch {
	case ticks >= 192:
		return "Whole", 0
	case ticks >= 144:
		return "Half", 1
	case ticks >= 96:
		return "Half", 0
	case ticks >= 72:
		return "Quarter", 1
	case ticks >= 48:
		return "Quarter", 0
	case ticks >= 36:
		return "Eighth", 1
	case ticks >= 24:
		return "Eighth", 0
	case ticks >= 18:
		return "Sixteenth", 1
	case ticks >= 12:
		return "Sixteenth", 0
	case ticks >= 8:
		return "ThirtySecond", 0
	default:
		return "SixtyFourth", 0
	}
}
