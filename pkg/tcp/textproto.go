package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const EndLine = "\r\n"

// Response like http.Response, but with any proto
type Response struct {
	Status     string
	StatusCode int
	Proto      string
	Header     textproto.MIMEHeader
	Body       []byte
	Request    *Request
}

func (r *Response) String() string {
	return r.Proto + " " + r.Status + EndLine + headerString(r.Header) + EndLine + string(r.Body)
}

func (r *Response) Write(w io.Writer) (err error) {
	_, err = io.WriteString(w, r.String())
	return
}

func ReadResponse(r *bufio.Reader) (*Response, error) {
	tp := textproto.NewReader(r)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, errors.New("tcp: empty response")
	}

	ss := strings.SplitN(line, " ", 3)
	if len(ss) != 3 {
		return nil, fmt.Errorf("tcp: malformed response: %s", line)
	}

	res := &Response{
		Status: ss[1] + " " + ss[2],
		Proto:  ss[0],
	}

	if res.StatusCode, err = strconv.Atoi(ss[1]); err != nil {
		return nil, err
	}

	if res.Header, err = tp.ReadMIMEHeader(); err != nil {
		return nil, err
	}

	if res.Body, err = readBody(r, res.Header); err != nil {
		return nil, err
	}

	return res, nil
}

// Request like http.Request, but with any proto
type Request struct {
	Method string
	URL    *url.URL
	Proto  string
	Header textproto.MIMEHeader
	Body   []byte
}

func (r *Request) String() string {
	return r.Method + " " + r.URL.String() + " " + r.Proto + EndLine + headerString(r.Header) + EndLine + string(r.Body)
}

func (r *Request) Write(w io.Writer) (err error) {
	_, err = io.WriteString(w, r.String())
	return
}

func ReadRequest(r *bufio.Reader) (*Request, error) {
	tp := textproto.NewReader(r)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}

	ss := strings.SplitN(line, " ", 3)
	if len(ss) != 3 {
		return nil, fmt.Errorf("tcp: wrong request: %s", line)
	}

	req := &Request{
		Method: ss[0],
		Proto:  ss[2],
	}

	if req.URL, err = url.Parse(ss[1]); err != nil {
		return nil, err
	}

	if req.Header, err = tp.ReadMIMEHeader(); err != nil {
		return nil, err
	}

	if req.Body, err = readBody(r, req.Header); err != nil {
		return nil, err
	}

	return req, nil
}

const maxBodySize = 1 << 20

func readBody(r io.Reader, header textproto.MIMEHeader) ([]byte, error) {
	val := header.Get("Content-Length")
	if val == "" {
		return nil, nil
	}

	size, err := strconv.Atoi(val)
	if err != nil || size < 0 || size > maxBodySize {
		return nil, fmt.Errorf("tcp: wrong content length: %s", val)
	}

	body := make([]byte, size)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// headerString - CSeq first, other keys sorted
func headerString(header textproto.MIMEHeader) string {
	keys := make([]string, 0, len(header))
	for k := range header {
		if k != "Cseq" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	if v := header.Get("CSeq"); v != "" {
		sb.WriteString("CSeq: " + v + EndLine)
	}
	for _, k := range keys {
		for _, v := range header[k] {
			sb.WriteString(k + ": " + v + EndLine)
		}
	}
	return sb.String()
}
