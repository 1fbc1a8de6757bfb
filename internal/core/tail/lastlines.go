package tail

import (
	"bytes"
	"io"
	"os"
	"strings"
)

const readBlock = 64 * 1024

// ReadLastLines returns up to max trailing lines of the file at path,
// oldest first. A final unterminated line counts as a line.
func ReadLastLines(path string, max int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return lastLines(f, fi.Size(), max)
}

// lastLines reads backwards in blocks until enough line terminators have
// been seen, so large files are never read in full.
func lastLines(r io.ReaderAt, size int64, max int) ([]string, error) {
	if max <= 0 || size <= 0 {
		return nil, nil
	}
	var buf []byte
	off := size
	for off > 0 {
		n := int64(readBlock)
		if off < n {
			n = off
		}
		off -= n
		chunk := make([]byte, n)
		if _, err := r.ReadAt(chunk, off); err != nil {
			return nil, err
		}
		buf = append(chunk, buf...)
		if bytes.Count(buf, []byte{'\n'}) > max {
			break
		}
	}
	s := strings.TrimSuffix(string(buf), "\n")
	if s == "" {
		return nil, nil
	}
	lines := strings.Split(s, "\n")
	// When the scan stopped mid-file the first element may be a line
	// fragment; the cap below always discards it.
	if len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, nil
}
