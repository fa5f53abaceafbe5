// Copyright 2025 Lucid Fabrics
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fetch

import (
	"compress/zlib"
	"encoding/binary"
	"encoding/xml"
	"io"
	"os"
)

// XAR on-disk layout: a 28-byte big-endian header, a zlib-compressed XML
// table of contents, then the heap. File data offsets in the TOC are
// relative to the heap start.
const xarHeaderSize = 28

var xarMagic = [4]byte{'x', 'a', 'r', '!'}

type xarHeader struct {
	Magic             [4]byte
	Size              uint16
	Version           uint16
	TocCompressed     uint64
	TocUncompressed   uint64
	ChecksumAlgorithm uint32
}

type xarTOC struct {
	Files []xarFile `xml:"toc>file"`
}

type xarFile struct {
	Name  string    `xml:"name"`
	Data  xarData   `xml:"data"`
	Files []xarFile `xml:"file"`
}

type xarData struct {
	Offset int64 `xml:"offset"`
	Length int64 `xml:"length"`
}

// extractXarMember streams the first member with the given name (searched
// depth-first, nested directories included) of a XAR archive (e.g.
// SharedSupport.dmg out of InstallAssistant.pkg) to destPath.
func extractXarMember(archivePath, member, destPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return newError(KindParse, "", err, "opening %s", archivePath)
	}
	defer f.Close()

	var hdr xarHeader
	if err := binary.Read(f, binary.BigEndian, &hdr); err != nil {
		return newError(KindParse, "the downloaded package looks truncated", err, "reading XAR header of %s", archivePath)
	}
	if hdr.Magic != xarMagic {
		return newError(KindParse, "the downloaded package is not a XAR archive", nil, "bad XAR magic in %s", archivePath)
	}

	entry, err := findXarEntry(f, hdr, member)
	if err != nil {
		return err
	}

	heapStart := int64(hdr.Size) + int64(hdr.TocCompressed)
	if _, err := f.Seek(heapStart+entry.Data.Offset, io.SeekStart); err != nil {
		return newError(KindParse, "", err, "seeking to %s in %s", member, archivePath)
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return newError(KindParse, "", err, "creating %s", destPath)
	}
	defer out.Close()

	if _, err := io.CopyN(out, f, entry.Data.Length); err != nil {
		os.Remove(destPath)
		return newError(KindParse, "the downloaded package looks truncated", err, "extracting %s", member)
	}
	return out.Sync()
}

func findXarEntry(f *os.File, hdr xarHeader, member string) (*xarFile, error) {
	if _, err := f.Seek(int64(hdr.Size), io.SeekStart); err != nil {
		return nil, newError(KindParse, "", err, "seeking to XAR TOC")
	}
	zr, err := zlib.NewReader(io.LimitReader(f, int64(hdr.TocCompressed)))
	if err != nil {
		return nil, newError(KindParse, "the downloaded package looks corrupt", err, "opening XAR TOC")
	}
	defer zr.Close()

	tocXML, err := io.ReadAll(zr)
	if err != nil {
		return nil, newError(KindParse, "the downloaded package looks corrupt", err, "inflating XAR TOC")
	}

	var toc xarTOC
	if err := xml.Unmarshal(tocXML, &toc); err != nil {
		return nil, newError(KindParse, "", err, "parsing XAR TOC")
	}

	if entry := findXarFile(toc.Files, member); entry != nil {
		return entry, nil
	}
	return nil, newError(KindParse,
		"Apple may have restructured the installer package",
		nil, "no %q entry in XAR TOC", member)
}

func findXarFile(files []xarFile, name string) *xarFile {
	for i := range files {
		if files[i].Name == name {
			return &files[i]
		}
		if found := findXarFile(files[i].Files, name); found != nil {
			return found
		}
	}
	return nil
}
