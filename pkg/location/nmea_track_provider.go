package location

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/adrianmo/go-nmea"

	"github.com/benmeehan/iot-swarm/pkg/file"
)

// ErrEmptyTrack is returned when a track file holds no usable fix.
var ErrEmptyTrack = errors.New("no valid GPS data found")

// Track is a recorded sequence of fixes shared by every device replaying it.
type Track struct {
	points []Location
}

// LoadTrack reads GGA sentences ($GPGGA or $GNGGA) from an NMEA log. Other
// sentences and fixes without a position are skipped.
func LoadTrack(fileClient file.FileOperations, path string) (*Track, error) {
	data, err := fileClient.ReadFileRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track %s: %w", path, err)
	}
	return ParseTrack(data)
}

// ParseTrack parses an NMEA log held in memory.
func ParseTrack(data []byte) (*Track, error) {
	var points []Location
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$GPGGA") && !strings.HasPrefix(line, "$GNGGA") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q: %w", line, err)
		}
		gga, ok := sentence.(nmea.GGA)
		if !ok || gga.FixQuality == nmea.Invalid {
			continue
		}
		points = append(points, Location{
			Latitude:  gga.Latitude,
			Longitude: gga.Longitude,
			Accuracy:  gga.HDOP,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	return &Track{points: points}, nil
}

// Len returns the number of fixes in the track.
func (t *Track) Len() int {
	return len(t.points)
}

// NMEATrackProvider replays a Track cyclically from a per-device offset.
type NMEATrackProvider struct {
	track *Track

	mu   sync.Mutex
	next int
}

// NewNMEATrackProvider starts replay at offset, modulo the track length.
func NewNMEATrackProvider(track *Track, offset int) *NMEATrackProvider {
	if offset < 0 {
		offset = -offset
	}
	return &NMEATrackProvider{track: track, next: offset % track.Len()}
}

func (p *NMEATrackProvider) GetLocation() (Location, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	loc := p.track.points[p.next]
	p.next = (p.next + 1) % len(p.track.points)
	return loc, nil
}
