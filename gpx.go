package rstab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// GPX sectorized container layout. All integers little-endian.
const (
	gpxSectorSize   = 0x1000
	gpxDataOffset   = 2 * gpxSectorSize
	gpxVersion      = 0x00000200
	gpxFilenameSize = 128
)

// WriteGPX compresses xmlBytes and writes it into a GPX container with
// the fixed sectorized layout: a BCFS header sector, a
// BCFE directory sector, then "imrf"-tagged data sectors.
func WriteGPX(xmlBytes []byte, filename string, w io.Writer) error {
	compressed, err := deflateGPX(xmlBytes)
	if err != nil {
		return fmt.Errorf("compressing gpif xml: %w", err)
	}

	header := gpxHeaderSector(len(xmlBytes), len(compressed))
	directory := gpxDirectorySector(filename)
	data := gpxDataSectors(compressed)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing gpx header sector: %w", err)
	}
	if _, err := w.Write(directory); err != nil {
		return fmt.Errorf("writing gpx directory sector: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing gpx data sectors: %w", err)
	}
	return nil
}

func deflateGPX(xmlBytes []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(xmlBytes); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gpxHeaderSector(uncompressedSize, compressedSize int) []byte {
	sector := make([]byte, gpxSectorSize)
	copy(sector[0:4], "BCFS")
	binary.LittleEndian.PutUint32(sector[4:8], gpxVersion)

	binary.LittleEndian.PutUint32(sector[8:12], uint32(gpxDataOffset))
	binary.LittleEndian.PutUint32(sector[12:16], uint32(uncompressedSize))
	binary.LittleEndian.PutUint32(sector[16:20], uint32(compressedSize))
	binary.LittleEndian.PutUint32(sector[20:24], 0) // flags

	return sector
}

func gpxDirectorySector(filename string) []byte {
	sector := make([]byte, gpxSectorSize)
	copy(sector[0:4], "BCFE")

	nameBuf := make([]byte, gpxFilenameSize)
	name := []byte(filename)
	if len(name) > gpxFilenameSize-1 {
		name = name[:gpxFilenameSize-1]
	}
	copy(nameBuf, name)

	copy(sector[4:4+gpxFilenameSize], nameBuf)
	binary.LittleEndian.PutUint32(sector[4+gpxFilenameSize:4+gpxFilenameSize+4], 0) // file_index

	return sector
}

func gpxDataSectors(payload []byte) []byte {
	const payloadPerSector = gpxSectorSize - 4

	numSectors := (len(payload) + payloadPerSector - 1) / payloadPerSector
	if numSectors == 0 {
		numSectors = 1
	}

	out := make([]byte, numSectors*gpxSectorSize)
	for i := 0; i < numSectors; i++ {
		sectorStart := i * gpxSectorSize
		copy(out[sectorStart:sectorStart+4], "imrf")

		payloadStart := i * payloadPerSector
		payloadEnd := payloadStart + payloadPerSector
		if payloadEnd > len(payload) {
			payloadEnd = len(payload)
		}
		copy(out[sectorStart+4:], payload[payloadStart:payloadEnd])
	}

	return out
}
