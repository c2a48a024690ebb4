package rstab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseManifestFlattensNestedEntries(t *testing.T) {
	data := []byte(`{
		"Entries": {
			"1234": {
				"5678": {
					"SongName": "Test Song",
					"ArtistName": "Test Artist",
					"ArrangementName": "lead",
					"ArrangementType": 0,
					"SongYear": 2014,
					"SongLength": 123.5,
					"CapoFret": 2,
					"SongAsset": "urn:application:musicgame-song:appid:testsong_lead",
					"Tuning": {"String0": -2, "String1": 0, "String2": 0, "String3": 0, "String4": 0, "String5": 0}
				}
			}
		}
	}`)

	var warnings []error
	attrs, err := ParseManifest(data, func(e error) { warnings = append(warnings, e) })
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, attrs, 1)

	a := attrs[0]
	require.Equal(t, "Test Song", a.SongName)
	require.Equal(t, "Test Artist", a.ArtistName)
	require.Equal(t, "lead", a.ArrangementName)
	require.Equal(t, 0, a.ArrangementType)
	require.Equal(t, 2014, a.SongYear)
	require.InDelta(t, 123.5, a.SongLength, 1e-9)
	require.Equal(t, 2, a.CapoFret)
	require.Equal(t, -2, a.Tuning[0])
	require.Equal(t, "urn:application:musicgame-song:appid:testsong_lead", a.SongAsset)
}

func TestParseManifestMultipleEntriesAllFlattened(t *testing.T) {
	data := []byte(`{
		"Entries": {
			"a": {"1": {"ArrangementName": "lead"}},
			"b": {"2": {"ArrangementName": "rhythm"}, "3": {"ArrangementName": "bass"}}
		}
	}`)

	attrs, err := ParseManifest(data, nil)
	require.NoError(t, err)
	require.Len(t, attrs, 3)
}

func TestParseManifestMissingFieldsDefaultToZeroValues(t *testing.T) {
	data := []byte(`{"Entries": {"a": {"b": {}}}}`)
	attrs, err := ParseManifest(data, nil)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	require.Equal(t, "", attrs[0].SongName)
	require.Equal(t, 0, attrs[0].ArrangementType)
	require.Equal(t, 0.0, attrs[0].SongLength)
}

func TestParseManifestWarnsOnNonObjectLeafButContinues(t *testing.T) {
	data := []byte(`{
		"Entries": {
			"a": {
				"bad": "not an object",
				"good": {"ArrangementName": "lead"}
			}
		}
	}`)

	var warnings []error
	attrs, err := ParseManifest(data, func(e error) { warnings = append(warnings, e) })
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	require.Len(t, warnings, 1)
	require.ErrorIs(t, warnings[0], ErrInvalidManifest)
}

func TestParseManifestRejectsMissingEntriesObject(t *testing.T) {
	_, err := ParseManifest([]byte(`{"NotEntries": {}}`), nil)
	require.ErrorIs(t, err, ErrInvalidManifest)
}

func TestParseManifestRejectsInvalidJSON(t *testing.T) {
	_, err := ParseManifest([]byte(`{not json`), nil)
	require.ErrorIs(t, err, ErrInvalidManifest)
}

func TestSngAssetBaseNameStripsURNPrefix(t *testing.T) {
	a := Attributes2014{SongAsset: "urn:application:musicgame-song:appid:testsong_lead"}
	require.Equal(t, "testsong_lead", sngAssetBaseName(a))
}

func TestSngAssetBaseNameFallsBackToSongXmlStem(t *testing.T) {
	a := Attributes2014{SongXml: "Testsong_Lead.xml"}
	require.Equal(t, "Testsong_Lead", sngAssetBaseName(a))
}

func TestSngAssetBaseNameEmptyWhenBothMissing(t *testing.T) {
	require.Equal(t, "", sngAssetBaseName(Attributes2014{}))
}

func TestFindSngEntryNameMatchesCaseInsensitiveSuffix(t *testing.T) {
	names := []string{"songs/bin/generic/Testsong_Lead.sng", "gfxassets/album_art.dds"}
	got, ok := findSngEntryName(names, "testsong_lead")
	require.True(t, ok)
	require.Equal(t, "songs/bin/generic/Testsong_Lead.sng", got)
}

func TestFindSngEntryNameMatchesWithoutExtension(t *testing.T) {
	names := []string{"songs/bin/generic/testsong_lead"}
	got, ok := findSngEntryName(names, "testsong_lead")
	require.True(t, ok)
	require.Equal(t, names[0], got)
}

func TestFindSngEntryNameNoMatch(t *testing.T) {
	_, ok := findSngEntryName([]string{"songs/bin/generic/other.sng"}, "testsong_lead")
	require.False(t, ok)
}

func TestFindSngEntryNameEmptyBase(t *testing.T) {
	_, ok := findSngEntryName([]string{"songs/bin/generic/testsong_lead.sng"}, "")
	require.False(t, ok)
}

func TestNormalizeEntryNameLowercasesAndFixesSlashes(t *testing.T) {
	require.Equal(t, "manifests/foo/bar.json", normalizeEntryName(`Manifests\Foo\Bar.json`))
}

func TestIsManifestEntryRequiresPathAndExtension(t *testing.T) {
	require.True(t, isManifestEntry("manifests/foo/bar.json"))
	require.False(t, isManifestEntry("songs/bin/generic/foo.sng"))
	require.False(t, isManifestEntry("manifests/foo/bar.xml"))
}
