// Package ical renders read-only iCalendar feeds.
package ical

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405Z"
	maxLineOctets  = 75
)

// Event is one VEVENT. For all-day events End is the exclusive end date,
// written as-is into DTEND;VALUE=DATE.
type Event struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Categories  []string
	Transparent bool
}

// Calendar is a named feed of events.
type Calendar struct {
	Name   string
	Events []Event
}

// Write renders cal to w with CRLF line endings. stamp is used for DTSTAMP.
func Write(w io.Writer, cal Calendar, stamp time.Time) error {
	bw := bufio.NewWriter(w)
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//cyclecal//calendar//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}
	if cal.Name != "" {
		lines = append(lines, "X-WR-CALNAME:"+EscapeValue(cal.Name))
	}
	for _, ev := range cal.Events {
		lines = append(lines, eventLines(ev, stamp)...)
	}
	lines = append(lines, "END:VCALENDAR")

	for _, line := range lines {
		if _, err := bw.WriteString(fold(line)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func eventLines(ev Event, stamp time.Time) []string {
	lines := []string{
		"BEGIN:VEVENT",
		"UID:" + EscapeValue(ev.UID),
		"DTSTAMP:" + stamp.UTC().Format(dateTimeLayout),
	}

	if ev.AllDay {
		end := ev.End
		if !end.After(ev.Start) {
			end = ev.Start.AddDate(0, 0, 1)
		}
		lines = append(lines,
			"DTSTART;VALUE=DATE:"+ev.Start.Format(dateLayout),
			"DTEND;VALUE=DATE:"+end.Format(dateLayout),
		)
	} else {
		lines = append(lines,
			"DTSTART:"+ev.Start.UTC().Format(dateTimeLayout),
			"DTEND:"+ev.End.UTC().Format(dateTimeLayout),
		)
	}

	lines = append(lines, "SUMMARY:"+EscapeValue(ev.Summary))
	if ev.Description != "" {
		lines = append(lines, "DESCRIPTION:"+EscapeValue(ev.Description))
	}
	if len(ev.Categories) > 0 {
		escaped := make([]string, len(ev.Categories))
		for i, c := range ev.Categories {
			escaped[i] = EscapeValue(c)
		}
		lines = append(lines, "CATEGORIES:"+strings.Join(escaped, ","))
	}
	if ev.Transparent {
		lines = append(lines, "TRANSP:TRANSPARENT")
	}
	return append(lines, "END:VEVENT")
}

// EscapeValue escapes a TEXT property value.
func EscapeValue(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// fold splits a content line at 75 octets without breaking UTF-8 sequences
// and terminates every physical line with CRLF.
func fold(line string) string {
	if len(line) <= maxLineOctets {
		return line + "\r\n"
	}

	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines spend one octet on the leading space.
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
	return b.String()
}

// ETag returns a strong entity tag for a rendered feed.
func ETag(content []byte) string {
	return fmt.Sprintf(`"%x"`, sha256.Sum256(content))
}
