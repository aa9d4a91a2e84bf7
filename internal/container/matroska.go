/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ebml-go/ebml"
)

// === ELEMENT IDS ===
const (
	idEBML        = 0x1A45DFA3
	idSegment     = 0x18538067
	idSeekHead    = 0x114D9B74
	idInfo        = 0x1549A966
	idTracks      = 0x1654AE6B
	idCues        = 0x1C53BB6B
	idCluster     = 0x1F43B675
	idTags        = 0x1254C367
	idChapters    = 0x1043A770
	idAttachments = 0x1941A469
	idSimpleBlock = 0xA3
	idBlockGroup  = 0xA0

	trackTypeAudio = 2

	maxElementSize = 64 << 20
	defaultScale   = 1000000
)

var cuesID = []byte{0x1C, 0x53, 0xBB, 0x6B}

// Level 1 children of Segment. Seeing one inside a cluster of unknown size
// ends that cluster.
var topLevel = map[uint]bool{
	idSeekHead: true, idInfo: true, idTracks: true, idCues: true,
	idCluster: true, idTags: true, idChapters: true, idAttachments: true,
}

type mkvInfo struct {
	TimecodeScale uint64  `ebml:"2AD7B1"`
	Duration      float64 `ebml:"4489"`
}

type mkvAudio struct {
	SamplingFrequency float64 `ebml:"B5"`
	Channels          uint64  `ebml:"9F"`
	BitDepth          uint64  `ebml:"6264"`
}

type mkvTrackEntry struct {
	TrackNumber  uint64   `ebml:"D7"`
	TrackType    uint64   `ebml:"83"`
	CodecID      string   `ebml:"86"`
	CodecPrivate []byte   `ebml:"63A2"`
	CodecDelay   uint64   `ebml:"56AA"`
	Audio        mkvAudio `ebml:"E1"`
}

type mkvTracks struct {
	TrackEntry []mkvTrackEntry `ebml:"AE"`
}

type mkvSeek struct {
	SeekID       []byte `ebml:"53AB"`
	SeekPosition uint64 `ebml:"53AC"`
}

type mkvSeekHead struct {
	Seek []mkvSeek `ebml:"4DBB"`
}

type mkvCueTrackPositions struct {
	CueTrack           uint64 `ebml:"F7"`
	CueClusterPosition uint64 `ebml:"F1"`
}

type mkvCuePoint struct {
	CueTime           uint64                 `ebml:"B3"`
	CueTrackPositions []mkvCueTrackPositions `ebml:"B7"`
}

type mkvCues struct {
	CuePoint []mkvCuePoint `ebml:"BB"`
}

type mkvBlockGroup struct {
	Block []byte `ebml:"A1"`
}

// mkvCluster reads the cluster header and stops at the first block, leaving
// the cluster element positioned there.
type mkvCluster struct {
	Timecode    uint64        `ebml:"E7"`
	SimpleBlock []byte        `ebml:"A3" ebmlstop:"1"`
	BlockGroup  mkvBlockGroup `ebml:"A0" ebmlstop:"1"`
	NextCluster []byte        `ebml:"1F43B675" ebmlstop:"1"`
}

type cue struct {
	time  uint64 // in timecode ticks
	track uint32
	pos   int64 // relative to segment data
}

// matroskaReader walks a Matroska/WebM file with ebml-go element cursors.
// Offsets handed to Seek are absolute file positions.
type matroskaReader struct {
	src       MediaSource
	segment   *ebml.Element
	dataStart int64
	fileSize  int64
	scale     uint64
	tracks    []Track
	cues      []cue

	cluster   *ebml.Element
	clusterTC int64
	pending   []*Packet
}

func openMatroska(src MediaSource, opts Options) (FormatReader, error) {
	fileSize, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	root, err := ebml.RootElement(src)
	if err != nil {
		return nil, err
	}

	// 1. EBML header
	hdr, err := root.Next()
	if err != nil {
		return nil, fmt.Errorf("ebml header: %w", err)
	}
	if hdr.Id != idEBML {
		return nil, fmt.Errorf("missing EBML header (id %#x)", hdr.Id)
	}
	if dataEnd(hdr) > fileSize {
		return nil, errors.New("EBML header runs past end of file")
	}
	if _, err := root.Seek(hdr.Size(), io.SeekCurrent); err != nil {
		return nil, err
	}

	// 2. Segment
	seg, err := root.Next()
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if seg.Id != idSegment {
		return nil, fmt.Errorf("expected segment, found %#x", seg.Id)
	}
	r := &matroskaReader{src: src, segment: seg, fileSize: fileSize, scale: defaultScale}
	if r.dataStart, err = seg.Seek(0, io.SeekCurrent); err != nil {
		return nil, err
	}

	// 3. Metadata up to the first cluster
	var info mkvInfo
	var entries []mkvTrackEntry
	cuesAt := int64(-1)
	firstCluster := fileSize
	for {
		el, err := seg.Next()
		if err != nil {
			break
		}
		if el.Id == idCluster {
			firstCluster = el.Offset
			break
		}
		if dataEnd(el) > fileSize {
			return nil, fmt.Errorf("element %#x runs past end of file", el.Id)
		}

		switch el.Id {
		case idInfo:
			if err := el.Unmarshal(&info); err != nil {
				return nil, fmt.Errorf("segment info: %w", err)
			}
		case idTracks:
			var t mkvTracks
			if err := el.Unmarshal(&t); err != nil {
				return nil, fmt.Errorf("tracks: %w", err)
			}
			entries = append(entries, t.TrackEntry...)
		case idSeekHead:
			var sh mkvSeekHead
			if err := el.Unmarshal(&sh); err == nil {
				for _, s := range sh.Seek {
					if bytes.Equal(s.SeekID, cuesID) {
						cuesAt = r.dataStart + int64(s.SeekPosition)
					}
				}
			}
		case idCues:
			r.parseCues(el)
		}
		if _, err := seg.Seek(el.Size(), io.SeekCurrent); err != nil {
			return nil, err
		}
	}

	if info.TimecodeScale > 0 {
		r.scale = info.TimecodeScale
	}

	// 4. Cues written after the clusters are found through the seek head
	if len(r.cues) == 0 && cuesAt >= r.dataStart && cuesAt < fileSize {
		if _, err := seg.Seek(cuesAt, io.SeekStart); err != nil {
			return nil, err
		}
		if el, err := seg.Next(); err == nil && el.Id == idCues && dataEnd(el) <= fileSize {
			r.parseCues(el)
		}
	}
	if _, err := seg.Seek(firstCluster, io.SeekStart); err != nil {
		return nil, err
	}

	// 5. Audio tracks
	for _, e := range entries {
		if e.TrackType != 0 && e.TrackType != trackTypeAudio {
			continue
		}
		r.tracks = append(r.tracks, r.trackFrom(e, info, opts))
	}
	if len(r.tracks) == 0 {
		return nil, ErrNoTrack
	}
	return r, nil
}

// dataEnd is the absolute offset where the payload of a freshly read
// element ends.
func dataEnd(el *ebml.Element) int64 {
	pos, _ := el.Seek(0, io.SeekCurrent)
	return pos + el.Size()
}

func (r *matroskaReader) trackFrom(e mkvTrackEntry, info mkvInfo, opts Options) Track {
	p := CodecParams{
		SampleRate: int(e.Audio.SamplingFrequency),
		Channels:   int(e.Audio.Channels),
		BitDepth:   int(e.Audio.BitDepth),
		Extra:      e.CodecPrivate,
	}
	switch e.CodecID {
	case "A_OPUS":
		p.Codec = CodecOpus
		// Opus always decodes at 48 kHz
		p.SampleRate = 48000
		if opts.Gapless && e.CodecDelay > 0 {
			p.Delay = FramesAt(time.Duration(e.CodecDelay), p.SampleRate)
		}
	case "A_PCM/INT/LIT":
		p.Codec = CodecPCM
	case "A_PCM/FLOAT/IEEE":
		p.Codec = CodecPCM
		p.Format = SampleFloat
	case "A_VORBIS":
		p.Codec = CodecVorbis
	case "A_FLAC":
		p.Codec = CodecFLAC
	case "A_MPEG/L3":
		p.Codec = CodecMP3
	default:
		p.Codec = CodecType(e.CodecID)
	}
	if info.Duration > 0 && p.SampleRate > 0 {
		ns := time.Duration(info.Duration * float64(r.scale))
		p.NumFrames = FramesAt(ns, p.SampleRate)
	}
	return Track{ID: uint32(e.TrackNumber), Params: p}
}

func (r *matroskaReader) parseCues(el *ebml.Element) {
	var c mkvCues
	if err := el.Unmarshal(&c); err != nil {
		return
	}
	for _, p := range c.CuePoint {
		for _, tp := range p.CueTrackPositions {
			r.cues = append(r.cues, cue{time: p.CueTime, track: uint32(tp.CueTrack), pos: int64(tp.CueClusterPosition)})
		}
	}
	sort.SliceStable(r.cues, func(i, j int) bool { return r.cues[i].time < r.cues[j].time })
}

func (r *matroskaReader) Format() string { return "matroska" }

func (r *matroskaReader) Tracks() []Track { return r.tracks }

func (r *matroskaReader) DefaultTrack() (Track, bool) {
	if len(r.tracks) == 0 {
		return Track{}, false
	}
	return r.tracks[0], true
}

func (r *matroskaReader) rate(trackID uint32) int {
	for _, t := range r.tracks {
		if t.ID == trackID && t.Params.SampleRate > 0 {
			return t.Params.SampleRate
		}
	}
	return 48000
}

func (r *matroskaReader) NextPacket() (*Packet, error) {
	for {
		if len(r.pending) > 0 {
			p := r.pending[0]
			r.pending = r.pending[1:]
			return p, nil
		}

		if r.cluster == nil {
			if err := r.nextCluster(); err != nil {
				return nil, err
			}
			continue
		}

		el, err := r.cluster.Next()
		if err != nil {
			r.cluster = nil
			continue
		}
		if topLevel[el.Id] {
			r.cluster = nil
			if _, err := r.segment.Seek(el.Offset, io.SeekStart); err != nil {
				return nil, err
			}
			continue
		}
		if el.Size() > maxElementSize {
			r.abandon()
			return nil, fmt.Errorf("cluster child %#x: bad size %d", el.Id, el.Size())
		}

		switch el.Id {
		case idSimpleBlock:
			data, err := el.ReadData()
			if err != nil {
				r.abandon()
				return nil, fmt.Errorf("simple block: %w", err)
			}
			if err := r.queueBlock(data); err != nil {
				return nil, err
			}
		case idBlockGroup:
			var bg mkvBlockGroup
			if err := el.Unmarshal(&bg); err != nil {
				r.abandon()
				return nil, fmt.Errorf("block group: %w", err)
			}
			if err := r.queueBlock(bg.Block); err != nil {
				return nil, err
			}
		}
		if _, err := r.cluster.Seek(el.Size(), io.SeekCurrent); err != nil {
			return nil, err
		}
	}
}

// nextCluster enters the next cluster of the segment, skipping any other
// level 1 element on the way.
func (r *matroskaReader) nextCluster() error {
	for {
		el, err := r.segment.Next()
		if err != nil {
			return io.EOF
		}
		if el.Id != idCluster {
			if _, err := r.segment.Seek(el.Size(), io.SeekCurrent); err != nil {
				return err
			}
			continue
		}

		var c mkvCluster
		err = el.Unmarshal(&c)
		var stop ebml.ReachedPayloadError
		switch {
		case errors.As(err, &stop):
			r.cluster = el
			r.clusterTC = int64(c.Timecode)
			return nil
		case err != nil:
			return io.EOF
		}
		// a cluster without blocks
	}
}

// abandon moves past the end of the file so the next read reports io.EOF.
func (r *matroskaReader) abandon() {
	r.cluster = nil
	r.pending = nil
	_, _ = r.segment.Seek(r.fileSize, io.SeekStart)
}

// queueBlock splits a (Simple)Block into packets, one per lace.
func (r *matroskaReader) queueBlock(block []byte) error {
	track, n := vint(block)
	if n == 0 || len(block) < n+3 {
		return errors.New("short block header")
	}
	rel := int64(int16(binary.BigEndian.Uint16(block[n : n+2])))
	flags := block[n+2]
	body := block[n+3:]

	trackID := uint32(track)
	if !r.hasTrack(trackID) {
		return nil
	}

	frames, err := splitLaces(body, (flags>>1)&3)
	if err != nil {
		return err
	}

	ticks := r.clusterTC + rel
	if ticks < 0 {
		ticks = 0
	}
	ts := FramesAt(time.Duration(uint64(ticks)*r.scale), r.rate(trackID))
	for _, f := range frames {
		r.pending = append(r.pending, &Packet{TrackID: trackID, Timestamp: ts, Data: f})
	}
	return nil
}

func (r *matroskaReader) hasTrack(id uint32) bool {
	for _, t := range r.tracks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (r *matroskaReader) Seek(trackID uint32, ts uint64) (uint64, error) {
	if !r.hasTrack(trackID) {
		return 0, fmt.Errorf("%w: track %d", ErrNoTrack, trackID)
	}
	if len(r.cues) == 0 {
		return 0, fmt.Errorf("%w: no cues", ErrSeekUnsupported)
	}
	rate := r.rate(trackID)
	for _, t := range r.tracks {
		if t.ID == trackID && t.Params.NumFrames > 0 && ts > t.Params.NumFrames {
			return 0, fmt.Errorf("%w: frame %d of %d", ErrSeekOutOfRange, ts, t.Params.NumFrames)
		}
	}

	target := uint64(DurationOf(ts, rate)) / r.scale
	var chosen *cue
	for i := range r.cues {
		c := &r.cues[i]
		if c.track != trackID && c.track != 0 {
			continue
		}
		if chosen == nil || c.time <= target {
			chosen = c
		}
		if c.time > target {
			break
		}
	}
	if chosen == nil {
		return 0, fmt.Errorf("%w: no cue for track %d", ErrSeekUnsupported, trackID)
	}
	at := r.dataStart + chosen.pos
	if chosen.pos < 0 || at >= r.fileSize {
		return 0, fmt.Errorf("%w: cue points past end of file", ErrSeekUnsupported)
	}

	if _, err := r.segment.Seek(at, io.SeekStart); err != nil {
		return 0, err
	}
	r.pending = nil
	r.cluster = nil
	return FramesAt(time.Duration(chosen.time*r.scale), rate), nil
}

func (r *matroskaReader) Close() error {
	return r.src.Close()
}

// vint decodes a variable size integer from a block header or lace table.
func vint(b []byte) (uint64, int) {
	if len(b) == 0 {
		return 0, 0
	}
	n := 0
	for i := 0; i < 8; i++ {
		if b[0]&(0x80>>uint(i)) != 0 {
			n = i + 1
			break
		}
	}
	if n == 0 || n > len(b) {
		return 0, 0
	}
	v := uint64(b[0] & (0xFF >> uint(n)))
	for _, c := range b[1:n] {
		v = v<<8 | uint64(c)
	}
	return v, n
}

// splitLaces cuts a block body into frames. lacing: 0 none, 1 Xiph, 2 fixed, 3 EBML.
func splitLaces(body []byte, lacing byte) ([][]byte, error) {
	if lacing == 0 {
		return [][]byte{body}, nil
	}
	if len(body) < 1 {
		return nil, errors.New("laced block without frame count")
	}
	count := int(body[0]) + 1
	cur := 1
	sizes := make([]int, count)

	switch lacing {
	case 1:
		for i := 0; i < count-1; i++ {
			for {
				if cur >= len(body) {
					return nil, errors.New("truncated xiph lacing")
				}
				b := body[cur]
				cur++
				sizes[i] += int(b)
				if b != 255 {
					break
				}
			}
		}
	case 2:
		each := (len(body) - cur) / count
		for i := range sizes {
			sizes[i] = each
		}
	case 3:
		first, n := vint(body[cur:])
		if n == 0 {
			return nil, errors.New("truncated ebml lacing")
		}
		cur += n
		sizes[0] = int(first)
		for i := 1; i < count-1; i++ {
			raw, n := vint(body[cur:])
			if n == 0 {
				return nil, errors.New("truncated ebml lacing")
			}
			cur += n
			bias := (int64(1) << (7*uint(n) - 1)) - 1
			sizes[i] = sizes[i-1] + int(int64(raw)-bias)
		}
	}

	if lacing != 2 {
		used := 0
		for _, s := range sizes[:count-1] {
			used += s
		}
		sizes[count-1] = len(body) - cur - used
	}

	frames := make([][]byte, 0, count)
	for _, s := range sizes {
		if s < 0 || cur+s > len(body) {
			return nil, errors.New("lace sizes exceed block")
		}
		frames = append(frames, body[cur:cur+s])
		cur += s
	}
	return frames, nil
}
