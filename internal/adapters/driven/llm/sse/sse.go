// Package sse reads server-sent event streams from model APIs.
package sse

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// maxLine bounds a single event line.
const maxLine = 1024 * 1024

// Event is one dispatched server-sent event.
type Event struct {
	// Name is the "event:" field, empty for unnamed events.
	Name string

	// Data is the joined "data:" lines.
	Data string
}

// Read dispatches each event in body to fn until the stream ends, fn
// returns stop, or ctx is done.
func Read(ctx context.Context, body io.Reader, fn func(Event) (stop bool, err error)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var name string
	var data []string
	dispatch := func() (bool, error) {
		if len(data) == 0 {
			name = ""
			return false, nil
		}
		ev := Event{Name: name, Data: strings.Join(data, "\n")}
		name, data = "", nil
		return fn(ev)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			stop, err := dispatch()
			if err != nil || stop {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	_, err := dispatch()
	return err
}
