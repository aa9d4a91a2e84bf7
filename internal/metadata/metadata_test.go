/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package metadata

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"impulse/internal/fixture"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

func id3Frame(id string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(id)
	binary.Write(&b, binary.BigEndian, uint32(len(body)))
	b.Write([]byte{0, 0})
	b.Write(body)
	return b.Bytes()
}

func textFrame(id, text string) []byte {
	return id3Frame(id, append([]byte{0}, text...))
}

// id3v23 builds an ID3v2.3 tag followed by filler that no decoder accepts.
func id3v23(frames ...[]byte) []byte {
	body := bytes.Join(frames, nil)
	size := len(body)
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7F), byte(size >> 14 & 0x7F), byte(size >> 7 & 0x7F), byte(size & 0x7F)}
	out := append(header, body...)
	return append(out, []byte(strings.Repeat("not audio ", 64))...)
}

func TestFormatDuration(t *testing.T) {
	Convey("FormatDuration", t, func() {
		So(TrackMetadata{}.FormatDuration(), ShouldEqual, "Unknown")
		So(TrackMetadata{Duration: 59 * time.Second}.FormatDuration(), ShouldEqual, "0:59")
		So(TrackMetadata{Duration: 3*time.Minute + 7*time.Second + 900*time.Millisecond}.FormatDuration(), ShouldEqual, "3:07")
		So(TrackMetadata{Duration: time.Hour + 2*time.Minute + 3*time.Second}.FormatDuration(), ShouldEqual, "1:02:03")
	})
}

func TestExtract(t *testing.T) {
	Convey("Given a file extractor", t, func() {
		fs := afero.NewMemMapFs()
		ex := NewExtractor(fs)

		Convey("A WAV without tags still yields a duration", func() {
			So(fixture.WAV{Rate: 8000, Channels: 1, BitDepth: 16, Frames: 12000}.WriteFile(fs, "plain.wav"), ShouldBeNil)
			md, err := ex.Extract("plain.wav")
			So(err, ShouldBeNil)
			So(md.Duration, ShouldEqual, 1500*time.Millisecond)
			So(md.Title, ShouldBeEmpty)
			So(md.FormatDuration(), ShouldEqual, "0:01")
		})

		Convey("ID3 tags are read even when the audio is unreadable", func() {
			pic := append([]byte{0}, "image/png\x00"...)
			pic = append(pic, 3, 0)
			pic = append(pic, 0x89, 'P', 'N', 'G')
			tagged := id3v23(
				textFrame("TIT2", "Sunrise"),
				textFrame("TPE1", "The Band"),
				textFrame("TALB", "Mornings"),
				textFrame("TPE2", "Various"),
				textFrame("TYER", "2021"),
				textFrame("TRCK", "3/12"),
				textFrame("TCON", "Ambient"),
				id3Frame("APIC", pic),
			)
			So(afero.WriteFile(fs, "tagged.bin", tagged, 0o644), ShouldBeNil)

			md, err := ex.Extract("tagged.bin")
			So(err, ShouldBeNil)
			So(md.Title, ShouldEqual, "Sunrise")
			So(md.Artist, ShouldEqual, "The Band")
			So(md.Album, ShouldEqual, "Mornings")
			So(md.AlbumArtist, ShouldEqual, "Various")
			So(md.Year, ShouldEqual, 2021)
			So(md.TrackNumber, ShouldEqual, 3)
			So(md.TrackTotal, ShouldEqual, 12)
			So(md.Genre, ShouldEqual, "Ambient")
			So(md.CoverMIME, ShouldEqual, "image/png")
			So(md.CoverArt, ShouldResemble, []byte{0x89, 'P', 'N', 'G'})
			So(md.Duration, ShouldEqual, 0)
		})

		Convey("A file with neither tags nor audio fails", func() {
			So(afero.WriteFile(fs, "junk.dat", []byte("nothing useful here"), 0o644), ShouldBeNil)
			_, err := ex.Extract("junk.dat")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "junk.dat")
		})

		Convey("A file shorter than an ID3v1 block still reports its duration", func() {
			So(fixture.WAV{Rate: 8000, Channels: 1, BitDepth: 16, Frames: 20}.WriteFile(fs, "tiny.wav"), ShouldBeNil)
			var md TrackMetadata
			var err error
			So(func() { md, err = ex.Extract("tiny.wav") }, ShouldNotPanic)
			So(err, ShouldBeNil)
			So(md.Duration, ShouldEqual, 2500*time.Microsecond)
			So(md.Title, ShouldBeEmpty)
		})

		Convey("A missing file fails", func() {
			_, err := ex.Extract("nope.wav")
			So(err, ShouldNotBeNil)
		})
	})
}
