// Package tagenrich extracts audio metadata from a staged MP3 file before
// it is uploaded as an MTP track object instead of a bare file object.
package tagenrich

import (
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	l "github.com/sirupsen/logrus"
	"github.com/mtpfs-project/gomtpfs/src/internal/fs"
)

var log *l.Entry = l.WithFields(l.Fields{"srv": "tagenrich"})

// unknown is the literal token spec.md calls for when a string field
// can't be read.
const unknown = fs.UnknownTag

// Extract reads ID3 tags and estimates the duration of the MP3 data in f,
// matching fs.TagEnricherFunc's signature so it can be wired directly into
// fs.New as the enrich callback.
func Extract(path string, size int64, f fs.ReaderAtSeeker, tagSeparator string) (fs.TrackMetadata, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return fs.TrackMetadata{}, err
	}

	md := fs.TrackMetadata{
		Artist:      unknown,
		Title:       unknown,
		Album:       unknown,
		Genre:       unknown,
		Year:        unknown,
		TrackNumber: unknown,
	}

	m, err := tag.ReadFrom(f)
	if err != nil {
		log.Warnf("%s: cannot read ID3 tags, using defaults: %v", path, err)
	} else {
		if v := firstNonEmpty(splitTag(m.Artist(), tagSeparator)); v != "" {
			md.Artist = v
		}
		if v := m.Title(); v != "" {
			md.Title = v
		}
		if v := m.Album(); v != "" {
			md.Album = v
		}
		if v := firstNonEmpty(splitTag(m.Genre(), tagSeparator)); v != "" {
			md.Genre = v
		}
		if y := m.Year(); y != 0 {
			md.Year = strconv.Itoa(y)
		}
		if trackNo, _ := m.Track(); trackNo != 0 {
			md.TrackNumber = strconv.Itoa(trackNo)
		}
	}

	if tlen := tlenMS(m); tlen > 0 {
		md.DurationMS = tlen
	} else {
		if _, err := f.Seek(0, 0); err != nil {
			return fs.TrackMetadata{}, err
		}
		ms, err := Duration(f, size)
		if err != nil {
			log.Warnf("%s: cannot determine duration, leaving it 0: %v", path, err)
		} else {
			md.DurationMS = ms
		}
	}

	return md, nil
}

// tlenMS extracts the ID3v2 TLEN frame (track length in integer
// milliseconds) from m's raw frame map, when present. tag.ReadFrom returns
// nil for m on a parse failure, which this tolerates.
func tlenMS(m tag.Metadata) int64 {
	if m == nil {
		return 0
	}
	raw, ok := m.Raw()["TLEN"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil {
			return n
		}
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

// splitTag splits a multi-value ID3 string (e.g. "Rock;Pop") on sep into
// several logical values. An empty sep disables splitting.
func splitTag(v, sep string) []string {
	if sep == "" || v == "" {
		return []string{v}
	}
	return strings.Split(v, sep)
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
