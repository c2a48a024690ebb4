package rstab

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

func TestGpxHeaderSectorLayout(t *testing.T) {
	sector := gpxHeaderSector(1000, 400)
	require.Len(t, sector, gpxSectorSize)
	require.Equal(t, "BCFS", string(sector[0:4]))
}

func TestGpxDirectorySectorLayout(t *testing.T) {
	sector := gpxDirectorySector("score.gpif")
	require.Len(t, sector, gpxSectorSize)
	require.Equal(t, "BCFE", string(sector[0:4]))

	nameField := sector[4 : 4+gpxFilenameSize]
	require.True(t, bytes.HasPrefix(nameField, []byte("score.gpif")))
}

func TestGpxDataSectorsTagEachSectorAndSpanMultipleSectors(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, gpxSectorSize*2)
	data := gpxDataSectors(payload)

	require.Equal(t, 0, len(data)%gpxSectorSize)
	numSectors := len(data) / gpxSectorSize
	require.GreaterOrEqual(t, numSectors, 2)

	for i := 0; i < numSectors; i++ {
		start := i * gpxSectorSize
		require.Equal(t, "imrf", string(data[start:start+4]))
	}
}

func TestWriteGPXRoundTripsCompressedXML(t *testing.T) {
	xml := []byte(`<?xml version="1.0"?><GPIF><Score><Title>Test Song</Title></Score></GPIF>`)

	var out bytes.Buffer
	err := WriteGPX(xml, "score.gpif", &out)
	require.NoError(t, err)

	buf := out.Bytes()
	require.Equal(t, 0, len(buf)%gpxSectorSize)
	require.Equal(t, "BCFS", string(buf[0:4]))
	require.Equal(t, "BCFE", string(buf[gpxSectorSize:gpxSectorSize+4]))
	require.Equal(t, "imrf", string(buf[2*gpxSectorSize:2*gpxSectorSize+4]))

	// Concatenate every data sector's payload (minus its "imrf" tag) and
	// inflate it; it must reproduce the original XML bytes.
	var compressed bytes.Buffer
	for offset := 2 * gpxSectorSize; offset < len(buf); offset += gpxSectorSize {
		compressed.Write(buf[offset+4 : offset+gpxSectorSize])
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed.Bytes()))
	require.NoError(t, err)
	defer zr.Close()

	var inflated bytes.Buffer
	_, err = inflated.ReadFrom(zr)
	require.NoError(t, err)
	require.Equal(t, xml, inflated.Bytes())
}
