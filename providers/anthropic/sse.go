package anthropic

import (
	"bufio"
	"bytes"
	"io"
)

// The Messages API names its SSE events (message_start, content_block_delta,
// ...), so the decoder keeps the event name alongside the data payload.
type sseEvent struct {
	Name string
	Data []byte
}

type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

func (d *sseDecoder) Next() (sseEvent, error) {
	var ev sseEvent
	var dataLines [][]byte
	flush := func() sseEvent {
		ev.Data = bytes.Join(dataLines, []byte("\n"))
		return ev
	}
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if len(dataLines) > 0 {
				return flush(), nil
			}
			if err == io.EOF {
				return sseEvent{}, io.EOF
			}
			return sseEvent{}, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) == 0 && ev.Name == "" {
				continue
			}
			return flush(), nil
		}
		if line[0] == ':' {
			continue
		}

		if name, ok := fieldValue(line, "event:"); ok {
			ev.Name = string(name)
			continue
		}
		if val, ok := fieldValue(line, "data:"); ok {
			dataLines = append(dataLines, append([]byte(nil), val...))
		}
	}
}

func fieldValue(line []byte, prefix string) ([]byte, bool) {
	if !bytes.HasPrefix(line, []byte(prefix)) {
		return nil, false
	}
	val := line[len(prefix):]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return val, true
}
