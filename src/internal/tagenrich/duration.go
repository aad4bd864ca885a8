package tagenrich

import "errors"

// Bitrate and samplerate tables for the MPEG audio frame header, ported
// from the original's MAD-based scanner. Only the MPEG1 Layer III tables
// are present and they are applied to every header. Duration prefers a
// Xing header's frame count for VBR, else filesize*8/bitrate from the
// first frame; frame durations are not summed, so a VBR file without a
// Xing/Info header is estimated as if it were CBR at its first frame's
// bitrate.
var bitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var sampleRateTableV1 = [4]int{44100, 48000, 32000, 0}

const frameSyncMask = 0xFFE0

// ReaderAtSeeker is the minimal surface Duration needs over a staging
// file: random access without disturbing the caller's own seek position.
type ReaderAtSeeker interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Duration estimates an MP3 file's playing time in milliseconds by
// scanning its MPEG frame headers. size is the total file size in bytes.
func Duration(f ReaderAtSeeker, size int64) (int64, error) {
	off, header, err := firstFrameHeader(f, size)
	if err != nil {
		return 0, err
	}

	if frames, ok := xingFrameCount(f, off, header); ok {
		durMS := int64(frames) * frameSamples(header) * 1000 / int64(sampleRate(header))
		return durMS, nil
	}

	bitrate := bitrateKbps(header)
	if bitrate <= 0 {
		return 0, errors.New("cannot determine bitrate from first frame")
	}
	// CBR estimate: filesize in bits / bitrate in bits/sec, in milliseconds.
	// Multiply before dividing so sub-second durations aren't truncated away.
	return size * 8 * 1000 / int64(bitrate*1000), nil
}

// firstFrameHeader scans forward from the start of the file for the first
// valid MPEG frame sync word, skipping any ID3v2 header.
func firstFrameHeader(f ReaderAtSeeker, size int64) (int64, uint32, error) {
	var off int64
	if tag, ok := id3v2Size(f); ok {
		off = tag
	}
	buf := make([]byte, 4)
	for off+4 <= size {
		if _, err := f.ReadAt(buf, off); err != nil {
			return 0, 0, err
		}
		h := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
		if h&0xFFE00000 == 0xFFE00000 && isValidHeader(h) {
			return off, h, nil
		}
		off++
	}
	return 0, 0, errors.New("no MPEG frame sync found")
}

func id3v2Size(f ReaderAtSeeker) (int64, bool) {
	buf := make([]byte, 10)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, false
	}
	if string(buf[0:3]) != "ID3" {
		return 0, false
	}
	size := int64(buf[6]&0x7f)<<21 | int64(buf[7]&0x7f)<<14 | int64(buf[8]&0x7f)<<7 | int64(buf[9]&0x7f)
	return size + 10, true
}

func isValidHeader(h uint32) bool {
	versionBits := (h >> 19) & 0x3
	layerBits := (h >> 17) & 0x3
	bitrateIdx := (h >> 12) & 0xF
	sampleIdx := (h >> 10) & 0x3
	return versionBits != 1 && layerBits != 0 && bitrateIdx != 0 && bitrateIdx != 0xF && sampleIdx != 3
}

func bitrateKbps(h uint32) int {
	idx := (h >> 12) & 0xF
	return bitrateTableV1L3[idx]
}

func sampleRate(h uint32) int {
	idx := (h >> 10) & 0x3
	return sampleRateTableV1[idx]
}

// frameSamples is 1152, the samples per frame of Layer II/III at MPEG1,
// the overwhelmingly common case for MP3 uploads; this scanner does not
// special-case Layer I or MPEG2/2.5 frame sizes since the original source
// doesn't either.
func frameSamples(h uint32) int64 { return 1152 }

// sideInfoSize returns the Layer III side-information block size in bytes,
// keyed off MPEG version and channel mode: 32 bytes for MPEG1 stereo/joint
// stereo/dual channel, 17 for MPEG1 mono, 17 for MPEG2/2.5 stereo/joint
// stereo/dual channel, 9 for MPEG2/2.5 mono.
func sideInfoSize(h uint32) int64 {
	versionBits := (h >> 19) & 0x3 // 0b11 = MPEG1, else MPEG2/2.5
	mono := (h>>6)&0x3 == 0x3      // channel mode 0b11 = single channel
	mpeg1 := versionBits == 0x3
	switch {
	case mpeg1 && mono:
		return 17
	case mpeg1 && !mono:
		return 32
	case !mpeg1 && mono:
		return 9
	default:
		return 17
	}
}

// xingFrameCount reports whether the frame at off carries a Xing/Info
// header (VBR marker) and, if so, its declared frame count. The tag
// immediately follows the 4-byte frame header plus the side-info block.
func xingFrameCount(f ReaderAtSeeker, off int64, header uint32) (int, bool) {
	tagOffset := off + 4 + sideInfoSize(header)
	buf := make([]byte, 12)
	if _, err := f.ReadAt(buf, tagOffset); err != nil {
		return 0, false
	}
	tag := string(buf[0:4])
	if tag != "Xing" && tag != "Info" {
		return 0, false
	}
	flags := uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	if flags&0x1 == 0 {
		return 0, false // frames field not present
	}
	frames := int(uint32(buf[8])<<24 | uint32(buf[9])<<16 | uint32(buf[10])<<8 | uint32(buf[11]))
	return frames, frames > 0
}
