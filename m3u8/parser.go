package m3u8

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Parse errors. NotAPlaylist, MissingDuration and UnexpectedEOF are
// sentinel values so callers can compare with errors.Is; IoError wraps
// whatever the underlying bufio.Scanner surfaced.
var (
	ErrNotAPlaylist    = errors.New("m3u8: not a playlist")
	ErrMissingDuration = errors.New("m3u8: missing or invalid #EXTINF duration")
	ErrUnexpectedEOF   = errors.New("m3u8: unexpected end of input")
)

// IoError wraps a lower-level read error encountered while scanning the
// input, distinguishing it from a structurally malformed playlist.
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("m3u8: io error: %v", e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

const extm3uDirective = "#EXTM3U"
const extinfDirective = "#EXTINF"
const playlistDirective = "#PLAYLIST"

// attributeRegex mirrors the non-greedy `([^ ]*?)="(.*?)"` pattern used to
// pull KEY="VALUE" tokens out of an #EXTM3U or #EXTINF attribute string,
// space-delimited, quotes required.
var attributeRegex = regexp.MustCompile(`([^ ]*?)="(.*?)"`)

func parseAttributes(s string) map[string]string {
	out := map[string]string{}
	for _, m := range attributeRegex.FindAllStringSubmatch(s, -1) {
		out[m[1]] = m[2]
	}
	return out
}

// Parse reads a playlist from data. It is a pure function: every call
// builds its own accumulator and returns a fresh Playlist, so there is
// no parser object whose state survives between calls (see SPEC_FULL.md
// §9, "Parser restartability").
func Parse(data []byte) (Playlist, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	nextLine := func() (string, bool, error) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			return line, true, nil
		}
		if err := scanner.Err(); err != nil {
			return "", false, &IoError{Err: err}
		}
		return "", false, nil
	}

	playlist := Playlist{Attributes: map[string]string{}}
	media := newMedia()

	firstLine, ok, err := nextLine()
	if err != nil {
		return Playlist{}, err
	}
	if !ok {
		return Playlist{}, ErrUnexpectedEOF
	}
	if !strings.HasPrefix(firstLine, extm3uDirective) {
		return Playlist{}, ErrNotAPlaylist
	}

	rest := strings.TrimLeft(strings.TrimPrefix(firstLine, extm3uDirective), " \t")
	for k, v := range parseAttributes(rest) {
		playlist.Attributes[k] = v
	}

	for {
		line, ok, err := nextLine()
		if err != nil {
			return Playlist{}, err
		}
		if !ok {
			break
		}

		if strings.HasPrefix(line, "#") {
			key, value, hasValue := splitDirective(line)
			switch key {
			case extinfDirective:
				if !hasValue {
					return Playlist{}, ErrMissingDuration
				}
				if err := parseExtinf(&media, value); err != nil {
					return Playlist{}, err
				}
			case playlistDirective:
				playlist.Title = value
			default:
				media.Extensions = append(media.Extensions, Extension{
					Key: key, Value: value, HasValue: hasValue,
				})
			}
			continue
		}

		media.Location = line
		playlist.Medias = append(playlist.Medias, media)
		media = newMedia()
	}

	return playlist, nil
}

// splitDirective splits a "#KEY" or "#KEY:VALUE" line on the first ':'.
func splitDirective(line string) (key, value string, hasValue bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, "", false
	}
	return line[:idx], line[idx+1:], true
}

// parseExtinf parses the value of an #EXTINF directive:
// "duration[ attr=\"v\" ...][,name]".
func parseExtinf(media *Media, value string) error {
	left, name, hasName := cutFirst(value, ',')

	durationPart, attrPart, hasAttrs := cutFirst(left, ' ')

	duration, err := strconv.ParseFloat(strings.TrimSpace(durationPart), 64)
	if err != nil {
		return ErrMissingDuration
	}
	media.Duration = duration

	if hasAttrs {
		for k, v := range parseAttributes(attrPart) {
			media.Attributes[k] = v
		}
	}

	if hasName {
		media.Name = name
		media.HasName = true
	}

	return nil
}

// cutFirst splits s on the first occurrence of sep, like strings.Cut.
func cutFirst(s string, sep byte) (before, after string, found bool) {
	idx := strings.IndexByte(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}
