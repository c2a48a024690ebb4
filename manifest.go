package rstab

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Attributes2014 is the flat per-arrangement metadata record embedded in
// a manifest JSON entry.
type Attributes2014 struct {
	SongName       string
	SongNameSort   string
	ArtistName     string
	ArtistNameSort string
	AlbumName      string
	AlbumNameSort  string
	SongYear       int
	SongLength     float64
	ArrangementName string
	ArrangementType int
	Tuning          [6]int
	CapoFret        int
	SongAsset       string
	SongXml         string
}

// ParseManifest flattens a manifest JSON document of shape
// {"Entries": {outerKey: {innerKey: attrsObject}}} into its attribute
// records. Malformed leaf entries are skipped and reported via onWarn
// rather than aborting the whole manifest.
func ParseManifest(data []byte, onWarn func(error)) ([]Attributes2014, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid json", ErrInvalidManifest)
	}

	root := gjson.ParseBytes(data)
	entries := root.Get("Entries")
	if !entries.Exists() || !entries.IsObject() {
		return nil, fmt.Errorf("%w: missing Entries object", ErrInvalidManifest)
	}

	var out []Attributes2014
	entries.ForEach(func(_, outer gjson.Result) bool {
		if !outer.IsObject() {
			if onWarn != nil {
				onWarn(fmt.Errorf("%w: entry is not an object", ErrInvalidManifest))
			}
			return true
		}
		outer.ForEach(func(_, attrs gjson.Result) bool {
			a, err := decodeAttributes(attrs)
			if err != nil {
				if onWarn != nil {
					onWarn(err)
				}
				return true
			}
			out = append(out, a)
			return true
		})
		return true
	})

	return out, nil
}

func decodeAttributes(v gjson.Result) (Attributes2014, error) {
	if !v.IsObject() {
		return Attributes2014{}, fmt.Errorf("%w: attributes leaf is not an object", ErrInvalidManifest)
	}

	a := Attributes2014{
		SongName:        stringField(v, "SongName"),
		SongNameSort:    stringField(v, "SongNameSort"),
		ArtistName:      stringField(v, "ArtistName"),
		ArtistNameSort:  stringField(v, "ArtistNameSort"),
		AlbumName:       stringField(v, "AlbumName"),
		AlbumNameSort:   stringField(v, "AlbumNameSort"),
		SongYear:        intField(v, "SongYear"),
		SongLength:      floatField(v, "SongLength"),
		ArrangementName: stringField(v, "ArrangementName"),
		ArrangementType: intField(v, "ArrangementType"),
		CapoFret:        intField(v, "CapoFret"),
		SongAsset:       stringField(v, "SongAsset"),
		SongXml:         stringField(v, "SongXml"),
	}

	tuning := v.Get("Tuning")
	if tuning.IsObject() {
		keys := []string{"String0", "String1", "String2", "String3", "String4", "String5"}
		for i, key := range keys {
			a.Tuning[i] = int(tuning.Get(key).Int())
		}
	} else if tuning.IsArray() {
		items := tuning.Array()
		for i := 0; i < len(a.Tuning) && i < len(items); i++ {
			a.Tuning[i] = int(items[i].Int())
		}
	}

	return a, nil
}

func stringField(v gjson.Result, key string) string {
	f := v.Get(key)
	if !f.Exists() {
		return ""
	}
	return f.String()
}

func intField(v gjson.Result, key string) int {
	f := v.Get(key)
	if !f.Exists() {
		return 0
	}
	return int(f.Int())
}

func floatField(v gjson.Result, key string) float64 {
	f := v.Get(key)
	if !f.Exists() {
		return 0
	}
	return f.Float()
}

// normalizeEntryName lowercases an archive entry name and normalizes
// backslashes to forward slashes for manifest/asset matching.
func normalizeEntryName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "\\", "/"))
}

// isManifestEntry reports whether an (already-normalized) entry name is a
// manifest JSON sidecar.
func isManifestEntry(normalizedName string) bool {
	return strings.Contains(normalizedName, "manifests/") && strings.HasSuffix(normalizedName, ".json")
}

// sngAssetBaseName extracts the base asset name from a song_asset URN,
// falling back to song_xml with its extension stripped.
func sngAssetBaseName(a Attributes2014) string {
	if a.SongAsset != "" {
		if idx := strings.LastIndex(a.SongAsset, ":"); idx >= 0 {
			return a.SongAsset[idx+1:]
		}
		return a.SongAsset
	}
	if a.SongXml != "" {
		return strings.TrimSuffix(a.SongXml, ".xml")
	}
	return ""
}

// findSngEntryName locates the archive entry name matching base by
// suffix, after lowercasing and slash-normalizing both sides.
func findSngEntryName(entryNames []string, base string) (string, bool) {
	if base == "" {
		return "", false
	}
	base = normalizeEntryName(base)
	wantA := "/" + base
	wantB := "/" + base + ".sng"
	for _, name := range entryNames {
		n := normalizeEntryName(name)
		if strings.HasSuffix(n, wantA) || strings.HasSuffix(n, wantB) {
			return name, true
		}
	}
	return "", false
}
