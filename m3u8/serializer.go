package m3u8

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize renders a Playlist back into extended-M3U text. It is the
// inverse of Parse: parse(serialize(p)) reproduces p in media order,
// durations, names, locations and attribute maps (see SPEC_FULL.md §8,
// "Round-trip").
func Serialize(p Playlist) []byte {
	var b strings.Builder

	b.WriteString(extm3uDirective)
	writeAttributes(&b, p.Attributes)
	b.WriteByte('\n')

	if p.Title != "" {
		fmt.Fprintf(&b, "%s:%s\n", playlistDirective, p.Title)
	}

	for _, media := range p.Medias {
		b.WriteByte('\n')
		writeMedia(&b, media)
	}

	return []byte(b.String())
}

func writeMedia(b *strings.Builder, m Media) {
	for _, ext := range m.Extensions {
		if ext.HasValue {
			fmt.Fprintf(b, "%s:%s\n", ext.Key, ext.Value)
		} else {
			fmt.Fprintf(b, "%s\n", ext.Key)
		}
	}

	fmt.Fprintf(b, "%s:%s", extinfDirective, formatDuration(m.Duration))
	writeAttributes(b, m.Attributes)
	b.WriteByte(',')
	if m.HasName {
		b.WriteString(m.Name)
	}
	b.WriteByte('\n')

	b.WriteString(m.Location)
	b.WriteByte('\n')
}

func writeAttributes(b *strings.Builder, attrs map[string]string) {
	for k, v := range attrs {
		fmt.Fprintf(b, ` %s="%s"`, k, v)
	}
}

func formatDuration(d float64) string {
	if d == DurationUnset {
		return strconv.FormatFloat(d, 'f', 1, 64)
	}
	return strconv.FormatFloat(d, 'f', -1, 64)
}
