package rstab

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// MIDI preview exporter: one GM track per Score track, for
// sanity-checking the rebuilt rhythm by ear before trusting the GPX
// output.

const midiResolution = 480

// midiEvent is one absolute-time MIDI event, delta-encoded at emit time.
type midiEvent struct {
	Time    uint32
	Message smf.Message
}

type midiTrackInfo struct {
	Name    string
	Channel uint8
	Program uint8
	Events  []midiEvent
}

// WriteMidiPreview renders every track of score as a playable standard
// MIDI file.
func WriteMidiPreview(score *Score, w io.Writer) error {
	file := smf.NewSMF1()
	file.TimeFormat = smf.MetricTicks(midiResolution)

	file.Add(midiTempoTrack(score))

	for i, track := range score.Tracks {
		info := midiTrackInfoFor(i, track)
		if len(info.Events) == 0 {
			continue
		}
		file.Add(createMidiPreviewTrack(info))
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("writing midi preview: %w", err)
	}
	return nil
}

// midiTempoTrack builds the conductor track from the bars of the first
// track that has any (120 BPM 4/4 when none does): tempo and time-signature changes live on a dedicated timing
// track, separate from the per-instrument note tracks.
func midiTempoTrack(score *Score) smf.Track {
	track := smf.Track{}
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(smf.MetaTrackSequenceName("Tempo"))})

	var reference *Track
	for _, t := range score.Tracks {
		if len(t.Bars) > 0 {
			reference = t
			break
		}
	}

	type absEvent struct {
		tick uint32
		msg  smf.Message
	}
	var events []absEvent

	if reference == nil {
		events = append(events, absEvent{0, smf.Message(smf.MetaTempo(120))})
		events = append(events, absEvent{0, smf.Message(smf.MetaTimeSig(4, 4, 24, 8))})
	} else {
		lastNum, lastDen, lastBpm := -1, -1, -1.0
		for _, bar := range reference.Bars {
			tick := ticksFromSeconds(bar.StartSec, bar.BeatsPerMinute)
			if bar.TimeNumerator != lastNum || bar.TimeDenominator != lastDen {
				events = append(events, absEvent{tick, smf.Message(smf.MetaTimeSig(uint8(bar.TimeNumerator), uint8(bar.TimeDenominator), 24, 8))})
				lastNum, lastDen = bar.TimeNumerator, bar.TimeDenominator
			}
			if bar.BeatsPerMinute != lastBpm {
				events = append(events, absEvent{tick, smf.Message(smf.MetaTempo(bar.BeatsPerMinute))})
				lastBpm = bar.BeatsPerMinute
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

	var lastTick uint32
	for _, e := range events {
		track = append(track, smf.Event{Delta: e.tick - lastTick, Message: e.msg})
		lastTick = e.tick
	}
	track = append(track, smf.Event{Delta: 0, Message: smf.EOT})
	return track
}

func midiTrackInfoFor(index int, track *Track) midiTrackInfo {
	channel := uint8(index % 16)
	if channel == 9 {
		channel = 10 // reserve channel 9 for GM drums, which this pipeline never emits
	}

	info := midiTrackInfo{
		Name:    track.Name,
		Channel: channel,
		Program: gmProgramFor(track.Instrument),
	}

	openStrings := standardOpenStringMidi(track.NumStrings)

	for _, bar := range track.Bars {
		for _, chord := range bar.Chords {
			for stringIdx, note := range chord.Notes {
				key := midiKeyForNote(openStrings, track, stringIdx, note)
				if key < 0 || key > 127 {
					continue
				}
				onTime := ticksFromSeconds(chord.StartSec, bar.BeatsPerMinute)
				offTime := ticksFromSeconds(chord.EndSec, bar.BeatsPerMinute)
				if offTime <= onTime {
					offTime = onTime + 1
				}
				velocity := uint8(96)
				if note.Accent {
					velocity = 120
				}
				info.Events = append(info.Events,
					midiEvent{Time: onTime, Message: smf.Message(midi.NoteOn(info.Channel, uint8(key), velocity))},
					midiEvent{Time: offTime, Message: smf.Message(midi.NoteOff(info.Channel, uint8(key)))},
				)
			}
		}
	}

	return info
}

func gmProgramFor(instrument Instrument) uint8 {
	switch instrument {
	case InstrumentBass:
		return 33 // Electric Bass (finger)
	case InstrumentVocals:
		return 53 // Voice Oohs (unused: vocals are filtered before this stage)
	default:
		return 27 // Electric Guitar (clean)
	}
}

// standardOpenStringMidi returns the open-string MIDI note for each
// internal string index, low pitch to high, for common string counts.
// Internal string 0 is the lowest-pitched string.
func standardOpenStringMidi(numStrings int) []int {
	switch numStrings {
	case 4:
		return []int{28, 33, 38, 43} // bass E1 A1 D2 G2
	case 5:
		return []int{23, 28, 33, 38, 43} // bass B0 E1 A1 D2 G2
	case 7:
		return []int{35, 40, 45, 50, 55, 59, 64} // guitar B1 E2 A2 D3 G3 B3 E4
	default:
		return []int{40, 45, 50, 55, 59, 64} // guitar E2 A2 D3 G3 B3 E4
	}
}

func midiKeyForNote(openStrings []int, track *Track, internalString int, note *Note) int {
	if internalString < 0 || internalString >= len(openStrings) {
		return -1
	}
	base := openStrings[internalString]
	tuningOffset := 0
	if internalString < len(track.Tuning) {
		tuningOffset = track.Tuning[internalString]
	}
	fret := note.Fret
	if fret < 0 {
		return -1
	}
	return base + tuningOffset + track.Capo + fret
}

func ticksFromSeconds(t float64, bpm float64) uint32 {
	if bpm <= 0 {
		bpm = 120
	}
	beats := t * bpm / 60
	ticks := beats * midiResolution
	if ticks < 0 {
		return 0
	}
	return uint32(ticks)
}

// createMidiPreviewTrack emits one instrument track: name, program
// change, stable time-ordered events with note-offs prioritized at
// equal ticks, delta-encoded.
func createMidiPreviewTrack(info midiTrackInfo) smf.Track {
	track := smf.Track{}
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(smf.MetaTrackSequenceName(info.Name))})

	if info.Channel != 9 {
		track = append(track, smf.Event{Delta: 0, Message: smf.Message(midi.ProgramChange(info.Channel, info.Program))})
	}

	events := make([]midiEvent, len(info.Events))
	copy(events, info.Events)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time == events[j].Time {
			var ch1, note1, vel1 uint8
			var ch2, note2, vel2 uint8
			isOff1 := events[i].Message.GetNoteOff(&ch1, &note1, &vel1)
			isOn2 := events[j].Message.GetNoteOn(&ch2, &note2, &vel2)
			if (isOff1 || (isOn2 && vel2 == 0)) && ch1 == ch2 && note1 == note2 {
				return true
			}
		}
		return events[i].Time < events[j].Time
	})

	var lastTime uint32
	for _, event := range events {
		delta := event.Time - lastTime
		track = append(track, smf.Event{Delta: delta, Message: event.Message})
		lastTime = event.Time
	}

	track = append(track, smf.Event{Delta: 0, Message: smf.EOT})
	return track
}
