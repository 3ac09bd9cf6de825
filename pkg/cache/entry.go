package cache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// MarshalResponse renders a response in its stored form: a status line, one
// "Name: value" line per header value, a blank line and the raw body.
func MarshalResponse(resp *Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %03d %s\r\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	if err := resp.Header.Write(&buf); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}
	buf.WriteString("\r\n")
	buf.Write(resp.Body)

	return buf.Bytes(), nil
}

// UnmarshalResponse parses bytes produced by MarshalResponse.
func UnmarshalResponse(data []byte) (*Response, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: read status line: %v", ErrMalformedEntry, err)
	}
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, fmt.Errorf("%w: bad status line %q", ErrMalformedEntry, line)
	}
	code, _, _ := strings.Cut(rest, " ")
	status, err := strconv.Atoi(code)
	if err != nil || len(code) != 3 {
		return nil, fmt.Errorf("%w: bad status code %q", ErrMalformedEntry, code)
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: read headers: %v", ErrMalformedEntry, err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedEntry, err)
	}

	return &Response{
		StatusCode: status,
		Header:     http.Header(mimeHeader),
		Body:       body,
	}, nil
}
