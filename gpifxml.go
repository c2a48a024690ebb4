package rstab

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// GPIF XML document structures, serialized with struct tags and
// xml.Encoder.Indent, then a self-closing-tag regex pass over the
// buffered output (encoding/xml always emits <Tag></Tag> for the empty
// case where Guitar Pro writes <Tag/>).

type gpifXML struct {
	XMLName     xml.Name          `xml:"GPIF"`
	GPVersion   string            `xml:"GPVersion"`
	Score       gpifXMLScore      `xml:"Score"`
	MasterTrack gpifXMLMasterTrk  `xml:"MasterTrack"`
	Tracks      gpifXMLTracks     `xml:"Tracks"`
	MasterBars  gpifXMLMasterBars `xml:"MasterBars"`
	Bars        gpifXMLBars       `xml:"Bars"`
	Voices      gpifXMLVoices     `xml:"Voices"`
	Beats       gpifXMLBeats      `xml:"Beats"`
	Notes       gpifXMLNotes      `xml:"Notes"`
	Rhythms     gpifXMLRhythms    `xml:"Rhythms"`
}

type gpifXMLScore struct {
	Title  string `xml:"Title"`
	Artist string `xml:"Artist"`
	Album  string `xml:"Album"`
}

type gpifXMLMasterTrk struct {
	Automations gpifXMLAutomations `xml:"Automations"`
}

type gpifXMLAutomations struct {
	Automation gpifXMLAutomation `xml:"Automation"`
}

type gpifXMLAutomation struct {
	Type  string `xml:"Type"`
	Value int    `xml:"Value"`
}

type gpifXMLTracks struct {
	Track []gpifXMLTrack `xml:"Track"`
}

type gpifXMLTrack struct {
	ID            int            `xml:"id,attr"`
	Name          string         `xml:"Name"`
	ShortName     string         `xml:"ShortName"`
	Color         gpifXMLColor   `xml:"Color"`
	InstrumentRef string         `xml:"InstrumentRef"`
	Tuning        gpifXMLTuning  `xml:"Tuning"`
	Capo          int            `xml:"Capo"`
}

type gpifXMLColor struct {
	Red   int `xml:"Red"`
	Green int `xml:"Green"`
	Blue  int `xml:"Blue"`
}

type gpifXMLTuning struct {
	Midi string `xml:"midi,attr"`
}

type gpifXMLMasterBars struct {
	MasterBar []gpifXMLMasterBar `xml:"MasterBar"`
}

type gpifXMLMasterBar struct {
	Time string `xml:"Time"`
	Bars string `xml:"Bars"`
}

type gpifXMLBars struct {
	Bar []gpifXMLBar `xml:"Bar"`
}

type gpifXMLBar struct {
	ID     int    `xml:"id,attr"`
	Voices string `xml:"Voices"`
}

type gpifXMLVoices struct {
	Voice []gpifXMLVoice `xml:"Voice"`
}

type gpifXMLVoice struct {
	ID    int    `xml:"id,attr"`
	Beats string `xml:"Beats"`
}

type gpifXMLBeats struct {
	Beat []gpifXMLBeat `xml:"Beat"`
}

type gpifXMLBeat struct {
	ID     int    `xml:"id,attr"`
	Rhythm int    `xml:"Rhythm"`
	Notes  string `xml:"Notes,omitempty"`
	Chord  *int   `xml:"Chord,omitempty"`
}

type gpifXMLNotes struct {
	Note []gpifXMLNote `xml:"Note"`
}

type gpifXMLNote struct {
	ID         int                `xml:"id,attr"`
	Properties gpifXMLProperties  `xml:"Properties"`
	Accent     *string            `xml:"Accent,omitempty"`
	HammerOn   *string            `xml:"HammerOn,omitempty"`
	Tapping    *string            `xml:"Tapping,omitempty"`
	Vibrato    *string            `xml:"Vibrato,omitempty"`
	Bend       *gpifXMLBend       `xml:"Bend,omitempty"`
}

type gpifXMLProperties struct {
	Property []gpifXMLProperty `xml:"Property"`
}

type gpifXMLProperty struct {
	Name   string `xml:"name,attr"`
	Number *int   `xml:"Number,omitempty"`
	Flag   *bool  `xml:"Flag,omitempty"`
}

type gpifXMLBend struct {
	Point []gpifXMLBendPoint `xml:"Point"`
}

type gpifXMLBendPoint struct {
	Time  int `xml:"time,attr"`
	Value int `xml:"value,attr"`
}

type gpifXMLRhythms struct {
	Rhythm []gpifXMLRhythm `xml:"Rhythm"`
}

type gpifXMLRhythm struct {
	ID             int  `xml:"id,attr"`
	NoteValue      string `xml:"NoteValue"`
	AugmentationDot *int `xml:"AugmentationDot,omitempty"`
}

// WriteGPIFXML serializes a GpifDocument to UTF-8 indented XML in the
// shape Guitar Pro's own exporter produces.
func WriteGPIFXML(doc *GpifDocument, w io.Writer) error {
	x := toGpifXML(doc)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(x); err != nil {
		return fmt.Errorf("encoding gpif xml: %w", err)
	}
	buf.WriteString("\n")

	out := selfClosingTags(buf.String())
	if _, err := w.Write([]byte(out)); err != nil {
		return fmt.Errorf("writing gpif xml: %w", err)
	}
	return nil
}

var emptyTagRegex = regexp.MustCompile(`<(\w+)([^>]*?)></\w+>`)

func selfClosingTags(xmlString string) string {
	return emptyTagRegex.ReplaceAllStringFunc(xmlString, func(match string) string {
		m := emptyTagRegex.FindStringSubmatch(match)
		if len(m) < 3 {
			return match
		}
		tagName, attrs := m[1], m[2]
		if strings.Contains(match, "</"+tagName+">") {
			return "<" + tagName + attrs + "/>"
		}
		return match
	})
}

func toGpifXML(doc *GpifDocument) gpifXML {
	x := gpifXML{
		GPVersion: "6",
		Score: gpifXMLScore{
			Title:  doc.Title,
			Artist: doc.Artist,
			Album:  doc.Album,
		},
		MasterTrack: gpifXMLMasterTrk{
			Automations: gpifXMLAutomations{
				Automation: gpifXMLAutomation{Type: "Tempo", Value: doc.Tempo},
			},
		},
	}

	for _, t := range doc.Tracks {
		x.Tracks.Track = append(x.Tracks.Track, gpifXMLTrack{
			ID:            t.ID,
			Name:          t.Name,
			ShortName:     t.ShortName,
			Color:         gpifXMLColor{Red: t.ColorRGB[0], Green: t.ColorRGB[1], Blue: t.ColorRGB[2]},
			InstrumentRef: t.InstrumentRef,
			Tuning:        gpifXMLTuning{Midi: joinInts(t.TuningMidi)},
			Capo:          t.Capo,
		})
	}

	for _, mb := range doc.MasterBars {
		x.MasterBars.MasterBar = append(x.MasterBars.MasterBar, gpifXMLMasterBar{
			Time: fmt.Sprintf("%d/%d", mb.TimeNumerator, mb.TimeDenominator),
			Bars: joinInts(mb.BarIDs),
		})
	}

	for _, b := range doc.Bars {
		x.Bars.Bar = append(x.Bars.Bar, gpifXMLBar{ID: b.ID, Voices: joinInts(b.VoiceIDs)})
	}

	for _, v := range doc.Voices {
		x.Voices.Voice = append(x.Voices.Voice, gpifXMLVoice{ID: v.ID, Beats: joinInts(v.BeatIDs)})
	}

	for _, b := range doc.Beats {
		xb := gpifXMLBeat{ID: b.ID, Rhythm: b.RhythmID, Notes: joinInts(b.NoteIDs)}
		if b.ChordID >= 0 {
			id := b.ChordID
			xb.Chord = &id
		}
		x.Beats.Beat = append(x.Beats.Beat, xb)
	}

	for _, n := range doc.Notes {
		x.Notes.Note = append(x.Notes.Note, toGpifXMLNote(n))
	}

	for _, r := range doc.Rhythms {
		xr := gpifXMLRhythm{ID: r.ID, NoteValue: r.NoteValue}
		if r.Dots > 0 {
			d := r.Dots
			xr.AugmentationDot = &d
		}
		x.Rhythms.Rhythm = append(x.Rhythms.Rhythm, xr)
	}

	return x
}

func toGpifXMLNote(n GpifNote) gpifXMLNote {
	xn := gpifXMLNote{ID: n.ID}

	str, fret := n.String, n.Fret
	xn.Properties.Property = append(xn.Properties.Property,
		gpifXMLProperty{Name: "String", Number: &str},
		gpifXMLProperty{Name: "Fret", Number: &fret},
	)

	if n.Slide != "" {
		slideCode := map[string]int{"Shift": 1, "SlideOutUp": 2, "SlideOutDown": 3}[n.Slide]
		xn.Properties.Property = append(xn.Properties.Property, gpifXMLProperty{Name: "Slide", Number: &slideCode})
	}

	yes := "true"
	if n.Accent {
		xn.Accent = &yes
	}
	if n.HammerOn {
		xn.HammerOn = &yes
	}
	if n.Tapping {
		xn.Tapping = &yes
	}
	if n.Vibrato {
		xn.Vibrato = &yes
	}

	if len(n.BendPoints) > 0 {
		bend := &gpifXMLBend{}
		for _, p := range n.BendPoints {
			bend.Point = append(bend.Point, gpifXMLBendPoint{Time: p.Time, Value: p.Value})
		}
		xn.Bend = bend
	}

	return xn
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " ")
}
