package chunk

import (
	"bufio"
	"io"
)

func newTestBufWriter(w io.Writer) *bufio.Writer { return bufio.NewWriter(w) }
func newTestBufReader(r io.Reader) *bufio.Reader { return bufio.NewReader(r) }
