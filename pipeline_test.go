package rstab

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

func manifestJSON(entries map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"Entries":{`)
	i := 0
	for outer, attrs := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		fmt.Fprintf(&buf, `"%s":{"0":%s}`, outer, attrs)
		i++
	}
	buf.WriteString("}}")
	return buf.Bytes()
}

func writeConvertInput(t *testing.T, entries []psarcFixtureEntry) string {
	t.Helper()
	archive := buildPsarcFixture(entries)
	return writeFixtureFile(t, archive)
}

func TestConvertEmptyArchiveFailsWithNoArrangements(t *testing.T) {
	input := writeConvertInput(t, nil)
	out := filepath.Join(t.TempDir(), "out.gpx")

	_, err := Convert(input, out, nil)
	require.ErrorIs(t, err, ErrNoArrangements)
	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func TestConvertLeadOnlySongProducesOneTrack(t *testing.T) {
	manifest := manifestJSON(map[string]string{
		"1": `{"SongName":"Test Song","ArtistName":"Test Artist","ArrangementName":"lead","ArrangementType":0,"SongAsset":"urn:application:musicgame-song:appid:testsong_lead"}`,
	})
	sng := buildSngAssetPayload(buildMinimalSngFixture())

	input := writeConvertInput(t, []psarcFixtureEntry{
		{name: "manifests/testsong/testsong_lead.json", data: manifest},
		{name: "songs/bin/generic/testsong_lead.sng", data: sng},
	})
	out := filepath.Join(t.TempDir(), "out.gpx")

	result, err := Convert(input, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.TrackCount)
	require.Empty(t, result.Warnings)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "BCFS", string(data[0:4]))
}

func TestConvertVocalsArrangementIsFilteredOut(t *testing.T) {
	manifest := manifestJSON(map[string]string{
		"1": `{"SongName":"Test Song","ArrangementName":"lead","ArrangementType":0,"SongAsset":"urn:application:musicgame-song:appid:testsong_lead"}`,
		"2": `{"SongName":"Test Song","ArrangementName":"vocals","ArrangementType":4,"SongAsset":"urn:application:musicgame-song:appid:testsong_vocals"}`,
	})
	sng := buildSngAssetPayload(buildMinimalSngFixture())

	input := writeConvertInput(t, []psarcFixtureEntry{
		{name: "manifests/testsong/testsong.json", data: manifest},
		{name: "songs/bin/generic/testsong_lead.sng", data: sng},
	})
	out := filepath.Join(t.TempDir(), "out.gpx")

	result, err := Convert(input, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.TrackCount) // vocals excluded, only lead counted
}

func TestConvertSngFallbackNamingViaSongXml(t *testing.T) {
	manifest := manifestJSON(map[string]string{
		"1": `{"SongName":"Test Song","ArrangementName":"lead","ArrangementType":0,"SongXml":"Testsong_Lead.xml"}`,
	})
	sng := buildSngAssetPayload(buildMinimalSngFixture())

	input := writeConvertInput(t, []psarcFixtureEntry{
		{name: "manifests/testsong/testsong.json", data: manifest},
		{name: "songs/bin/generic/Testsong_Lead.sng", data: sng},
	})
	out := filepath.Join(t.TempDir(), "out.gpx")

	result, err := Convert(input, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.TrackCount)
}

func TestConvertMissingSngAssetWarnsAndOmitsTrack(t *testing.T) {
	manifest := manifestJSON(map[string]string{
		"1": `{"SongName":"Test Song","ArrangementName":"lead","ArrangementType":0,"SongAsset":"urn:application:musicgame-song:appid:testsong_lead"}`,
		"2": `{"SongName":"Test Song","ArrangementName":"rhythm","ArrangementType":1,"SongAsset":"urn:application:musicgame-song:appid:testsong_rhythm"}`,
	})
	sng := buildSngAssetPayload(buildMinimalSngFixture())

	input := writeConvertInput(t, []psarcFixtureEntry{
		{name: "manifests/testsong/testsong.json", data: manifest},
		{name: "songs/bin/generic/testsong_lead.sng", data: sng}, // only lead's sng is present
	})
	out := filepath.Join(t.TempDir(), "out.gpx")

	result, err := Convert(input, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.TrackCount)
	require.Len(t, result.Warnings, 1)
}

func TestConvertContainerRoundTripsTitle(t *testing.T) {
	manifest := manifestJSON(map[string]string{
		"1": `{"SongName":"Round Trip Song","ArtistName":"Round Trip Artist","ArrangementName":"lead","ArrangementType":0,"SongAsset":"urn:application:musicgame-song:appid:testsong_lead"}`,
	})
	sng := buildSngAssetPayload(buildMinimalSngFixture())

	input := writeConvertInput(t, []psarcFixtureEntry{
		{name: "manifests/testsong/testsong.json", data: manifest},
		{name: "songs/bin/generic/testsong_lead.sng", data: sng},
	})
	out := filepath.Join(t.TempDir(), "out.gpx")

	_, err := Convert(input, out, nil)
	require.NoError(t, err)

	buf, err := os.ReadFile(out)
	require.NoError(t, err)

	var compressed bytes.Buffer
	for offset := 2 * gpxSectorSize; offset < len(buf); offset += gpxSectorSize {
		compressed.Write(buf[offset+4 : offset+gpxSectorSize])
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed.Bytes()))
	require.NoError(t, err)
	defer zr.Close()

	var xml bytes.Buffer
	_, err = xml.ReadFrom(zr)
	require.NoError(t, err)
	require.Contains(t, xml.String(), "<Title>Round Trip Song</Title>")
}

func TestConvertReportsProgressStages(t *testing.T) {
	manifest := manifestJSON(map[string]string{
		"1": `{"SongName":"Test Song","ArrangementName":"lead","ArrangementType":0,"SongAsset":"urn:application:musicgame-song:appid:testsong_lead"}`,
	})
	sng := buildSngAssetPayload(buildMinimalSngFixture())

	input := writeConvertInput(t, []psarcFixtureEntry{
		{name: "manifests/testsong/testsong.json", data: manifest},
		{name: "songs/bin/generic/testsong_lead.sng", data: sng},
	})
	out := filepath.Join(t.TempDir(), "out.gpx")

	var stages []string
	_, err := Convert(input, out, func(stage string, percent int) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Reading PSARC", "Detecting rhythm", "Exporting GPX", "Done"}, stages)
}
