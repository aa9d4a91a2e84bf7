/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package metadata

import (
	"errors"
	"fmt"
	"time"

	"impulse/internal/container"
	"impulse/internal/log"

	"github.com/dhowden/tag"
	"github.com/spf13/afero"
)

// TrackMetadata holds whatever a file tells about itself. Zero values mean
// absent; Duration 0 is unknown.
type TrackMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"track,omitempty"`
	TrackTotal  int    `json:"track_total,omitempty"`
	DiscNumber  int    `json:"disc,omitempty"`

	Duration  time.Duration `json:"duration,omitempty"`
	CoverArt  []byte        `json:"-"`
	CoverMIME string        `json:"cover_mime,omitempty"`
}

// FormatDuration renders whole seconds as h:mm:ss or m:ss.
func (m TrackMetadata) FormatDuration() string {
	if m.Duration <= 0 {
		return "Unknown"
	}
	secs := int(m.Duration / time.Second)
	h, mi, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mi, s)
	}
	return fmt.Sprintf("%d:%02d", mi, s)
}

type Extractor interface {
	Extract(path string) (TrackMetadata, error)
}

// id3v1Size is the trailing tag block tag.ReadFrom falls back to; smaller
// files make it seek before the start.
const id3v1Size = 128

var errTooSmall = errors.New("file too small to carry tags")

// FileExtractor reads tags with dhowden/tag and takes the duration from the
// container headers.
type FileExtractor struct {
	fs afero.Fs
}

func NewExtractor(fs afero.Fs) *FileExtractor {
	return &FileExtractor{fs: fs}
}

// Extract fails only when neither tags nor a duration could be read.
func (e *FileExtractor) Extract(path string) (TrackMetadata, error) {
	var md TrackMetadata

	tagErr := e.readTags(path, &md)
	if tagErr != nil {
		log.Debugf("no tags in %s: %v", path, tagErr)
	}

	durErr := e.readDuration(path, &md)
	if durErr != nil {
		log.Debugf("no duration for %s: %v", path, durErr)
	}

	if tagErr != nil && durErr != nil {
		return TrackMetadata{}, fmt.Errorf("metadata %s: %w", path, errors.Join(tagErr, durErr))
	}
	return md, nil
}

func (e *FileExtractor) readTags(path string, md *TrackMetadata) error {
	f, err := e.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() < id3v1Size {
		return errTooSmall
	}

	m, err := tag.ReadFrom(f)
	if err != nil {
		return err
	}
	md.Title = m.Title()
	md.Artist = m.Artist()
	md.Album = m.Album()
	md.AlbumArtist = m.AlbumArtist()
	md.Genre = m.Genre()
	md.Year = m.Year()
	md.TrackNumber, md.TrackTotal = m.Track()
	md.DiscNumber, _ = m.Disc()
	if pic := m.Picture(); pic != nil {
		md.CoverArt = pic.Data
		md.CoverMIME = pic.MIMEType
	}
	return nil
}

func (e *FileExtractor) readDuration(path string, md *TrackMetadata) error {
	f, err := e.fs.Open(path)
	if err != nil {
		return err
	}
	r, err := container.Probe(f, container.HintFromPath(path), container.Options{})
	if err != nil {
		f.Close()
		return err
	}
	defer r.Close()

	track, ok := r.DefaultTrack()
	if !ok {
		return container.ErrNoTrack
	}
	d := track.Params.Duration()
	if d == 0 {
		return errors.New("container does not report a length")
	}
	md.Duration = d
	return nil
}
