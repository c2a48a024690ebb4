package rstab

import (
	"bytes"
	"fmt"
	"os"
	"sort"
)

// ProgressCallback reports a stage label and completion percentage
// between major pipeline stages. May be nil.
type ProgressCallback func(stage string, percent int)

// ConvertResult is returned by Convert on success.
type ConvertResult struct {
	OutputPath string   `json:"output_path"`
	TrackCount int      `json:"track_count"`
	Warnings   []string `json:"warnings"`
}

func noopProgress(string, int) {}

// Convert runs the full PSARC-to-GPX pipeline.
// No output file is written unless every stage completes; fatal errors
// abort and are returned, non-fatal ones accumulate as warnings.
func Convert(inputPath, outputPath string, progress ProgressCallback) (*ConvertResult, error) {
	if progress == nil {
		progress = noopProgress
	}

	var warnings []string
	warn := func(err error) {
		warnings = append(warnings, err.Error())
	}

	archive, err := OpenPsarc(inputPath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	progress("Reading PSARC", 10)

	attrs, err := collectAttributes(archive, warn)
	if err != nil {
		return nil, err
	}

	score, err := buildScore(archive, attrs, warn)
	if err != nil {
		return nil, err
	}
	if len(score.Tracks) == 0 {
		return nil, ErrNoArrangements
	}

	progress("Detecting rhythm", 50)

	sort.SliceStable(score.Tracks, func(i, j int) bool {
		return trackLess(score.Tracks[i], score.Tracks[j])
	})
	for _, t := range score.Tracks {
		for _, b := range t.Bars {
			SnapBar(b)
		}
	}

	gpif, err := BuildGPIF(score)
	if err != nil {
		return nil, fmt.Errorf("building gpif: %w", err)
	}

	var xmlBuf bytes.Buffer
	if err := WriteGPIFXML(gpif, &xmlBuf); err != nil {
		return nil, fmt.Errorf("serializing gpif xml: %w", err)
	}

	progress("Exporting GPX", 80)

	outFile, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}

	if err := WriteGPX(xmlBuf.Bytes(), outputFilenameFor(score), outFile); err != nil {
		outFile.Close()
		os.Remove(outputPath)
		return nil, fmt.Errorf("writing gpx: %w", err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("closing output file: %w", err)
	}

	progress("Done", 100)

	return &ConvertResult{
		OutputPath: outputPath,
		TrackCount: len(score.Tracks),
		Warnings:   warnings,
	}, nil
}

// BuildScoreFromPsarc runs the pipeline through Score construction
// without writing a GPX file, for callers that only need the
// intermediate representation (the MIDI preview exporter).
func BuildScoreFromPsarc(inputPath string) (*Score, error) {
	archive, err := OpenPsarc(inputPath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	var warnings []error
	warn := func(err error) { warnings = append(warnings, err) }

	attrs, err := collectAttributes(archive, warn)
	if err != nil {
		return nil, err
	}

	score, err := buildScore(archive, attrs, warn)
	if err != nil {
		return nil, err
	}
	if len(score.Tracks) == 0 {
		return nil, ErrNoArrangements
	}

	sort.SliceStable(score.Tracks, func(i, j int) bool {
		return trackLess(score.Tracks[i], score.Tracks[j])
	})
	for _, t := range score.Tracks {
		for _, b := range t.Bars {
			SnapBar(b)
		}
	}

	return score, nil
}

// collectAttributes locates and parses every manifest entry in the
// archive, warning and continuing on malformed manifests.
func collectAttributes(archive *PsarcArchive, warn func(error)) ([]Attributes2014, error) {
	var out []Attributes2014
	for _, e := range archive.Entries() {
		if !isManifestEntry(normalizeEntryName(e.Name)) {
			continue
		}
		data, err := e.DataSource()
		if err != nil {
			warn(fmt.Errorf("%w: reading manifest %s: %v", ErrInvalidManifest, e.Name, err))
			continue
		}
		parsed, err := ParseManifest(data, warn)
		if err != nil {
			warn(fmt.Errorf("manifest %s: %w", e.Name, err))
			continue
		}
		out = append(out, parsed...)
	}
	return out, nil
}

// buildScore builds one Track per non-excluded arrangement attribute
// record, locating and decoding each one's SNG asset.
func buildScore(archive *PsarcArchive, attrs []Attributes2014, warn func(error)) (*Score, error) {
	score := &Score{}

	entryNames := make([]string, len(archive.Entries()))
	for i, e := range archive.Entries() {
		entryNames[i] = e.Name
	}
	byName := make(map[string]*PsarcEntry, len(archive.Entries()))
	for _, e := range archive.Entries() {
		byName[e.Name] = e
	}

	for _, a := range attrs {
		if a.ArrangementType == 4 || a.ArrangementType == 5 {
			continue // vocals / show-lights excluded
		}

		if score.Title == "" {
			score.Title = a.SongName
			score.Artist = a.ArtistName
			score.Album = a.AlbumName
			score.Year = fmt.Sprintf("%d", a.SongYear)
		}

		base := sngAssetBaseName(a)
		entryName, found := findSngEntryName(entryNames, base)
		if !found {
			warn(fmt.Errorf("%w: arrangement %s", ErrMissingSngAsset, a.ArrangementName))
			continue
		}

		raw, err := byName[entryName].DataSource()
		if err != nil {
			warn(fmt.Errorf("%w: reading sng %s: %v", ErrArrangementDecode, entryName, err))
			continue
		}

		doc, err := OpenSngAnyPlatform(raw)
		if err != nil {
			warn(fmt.Errorf("%w: %v", ErrArrangementDecode, err))
			continue
		}

		track, err := BuildTrack(doc, a)
		if err != nil {
			warn(err)
			continue
		}

		score.Tracks = append(score.Tracks, track)
	}

	return score, nil
}

// trackLess orders tracks by (path, bonus, name).
func trackLess(a, b *Track) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.bonus != b.bonus {
		return a.bonus < b.bonus
	}
	return a.Name < b.Name
}

// outputFilenameFor is the filename recorded in the GPX directory
// sector; Guitar Pro itself names its embedded score
// "score.gpif" regardless of the outer file's name.
func outputFilenameFor(score *Score) string {
	return "score.gpif"
}
