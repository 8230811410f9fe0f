package frame

import (
	"bufio"
	"bytes"
	"io"
)

// gameState is the framer's position within the grammar of a single game:
// tag-pair section, the movetext that follows it, or the run of blank
// lines between two games.
type gameState int

const (
	stateBetween gameState = iota
	stateTags
	stateMovetext
	stateAfterResult
)

// Framer splits a decompressed byte stream into individual PGN game
// segments. It is not restartable and not safe for concurrent use; the
// controller owns one Framer per ingest run and feeds its output to the
// batch dispatcher single-threaded.
type Framer struct {
	r        *bufio.Reader
	errCount int
	eof      bool
}

// NewFramer wraps r for game-at-a-time reading.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next game's raw bytes (tag section through the blank
// line that closes it), or io.EOF once the stream is exhausted. A
// malformed game (stream ends, or a new tag section starts, before a
// result token is reached) is dropped silently; the caller can read
// FrameErrors afterward for a count. The returned slice is owned by the
// caller and is not reused across calls.
func (f *Framer) Next() ([]byte, error) {
	for {
		game, ok, err := f.nextSegment()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.EOF
		}
		if game != nil {
			return game, nil
		}
		// game == nil, ok == true: malformed segment, already counted; loop for the next one.
	}
}

// FrameErrors reports the number of malformed games dropped so far.
func (f *Framer) FrameErrors() int {
	return f.errCount
}

// nextSegment reads one game-shaped run of lines. It returns ok=false only
// at true end of stream with nothing left to read. A successfully reached
// result token yields a non-nil segment; a stream that runs out before any
// result token is found yields a nil segment with ok=true and bumps
// errCount. A fresh tag section that begins before any result token bumps
// errCount, discards the unfinished game, and framing continues with the
// new game in the same call.
func (f *Framer) nextSegment() (segment []byte, ok bool, err error) {
	state := stateBetween
	var buf bytes.Buffer
	commentDepth := 0
	variationDepth := 0
	sawResult := false
	sawAnyLine := false

	for {
		line, readErr := f.readLine()
		if line == nil && readErr == io.EOF {
			if !sawAnyLine {
				return nil, false, nil
			}
			if sawResult {
				return buf.Bytes(), true, nil
			}
			f.errCount++
			return nil, true, nil
		}
		if readErr != nil {
			return nil, false, readErr
		}

		trimmed := bytes.TrimRight(line, "\r\n")
		isBlank := len(bytes.TrimSpace(trimmed)) == 0

		switch state {
		case stateBetween:
			if isBlank {
				continue
			}
			state = stateTags
			sawAnyLine = true
			buf.Write(trimmed)
			buf.WriteByte('\n')

		case stateTags:
			sawAnyLine = true
			if isBlank {
				state = stateMovetext
				buf.WriteByte('\n')
				continue
			}
			buf.Write(trimmed)
			buf.WriteByte('\n')

		case stateMovetext:
			sawAnyLine = true
			if !sawResult && commentDepth == 0 && bytes.HasPrefix(bytes.TrimSpace(trimmed), []byte("[")) {
				// A new tag section began before any result: drop the
				// unfinished game and start the next one from this line.
				f.errCount++
				buf.Reset()
				variationDepth = 0
				state = stateTags
				buf.Write(trimmed)
				buf.WriteByte('\n')
				continue
			}
			buf.Write(trimmed)
			buf.WriteByte('\n')
			scanMovetextLine(trimmed, &commentDepth, &variationDepth, &sawResult)
			if isBlank && commentDepth == 0 {
				// A blank line inside movetext before any result is just
				// a comment artifact (comments may contain blank lines);
				// only a blank line once the result has been seen closes
				// the game.
				if sawResult {
					return buf.Bytes(), true, nil
				}
			}

		case stateAfterResult:
			// unreachable: handled inline above via sawResult+isBlank.
		}
	}
}

// scanMovetextLine updates comment/variation depth and result-seen state
// for one line of movetext. Comments do not nest; variations do.
func scanMovetextLine(line []byte, commentDepth, variationDepth *int, sawResult *bool) {
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case *commentDepth > 0:
			if c == '}' {
				*commentDepth--
			}
		case c == '{':
			*commentDepth++
		case c == '(':
			*variationDepth++
		case c == ')':
			if *variationDepth > 0 {
				*variationDepth--
			}
		case *variationDepth == 0 && isResultStart(line, i):
			*sawResult = true
			i += resultTokenLen(line, i) - 1
		}
		i++
	}
}

var resultTokens = [][]byte{
	[]byte("1-0"),
	[]byte("0-1"),
	[]byte("1/2-1/2"),
	[]byte("*"),
}

func isResultStart(line []byte, i int) bool {
	for _, tok := range resultTokens {
		if bytes.HasPrefix(line[i:], tok) {
			return true
		}
	}
	return false
}

func resultTokenLen(line []byte, i int) int {
	for _, tok := range resultTokens {
		if bytes.HasPrefix(line[i:], tok) {
			return len(tok)
		}
	}
	return 1
}

// readLine reads one line, tolerating \n, \r\n, and bare \r endings. It
// returns the line without its terminator; at end of stream with no more
// bytes it returns (nil, io.EOF).
func (f *Framer) readLine() ([]byte, error) {
	if f.eof {
		return nil, io.EOF
	}

	var line []byte
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			f.eof = true
			if len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		}
		switch b {
		case '\n':
			return line, nil
		case '\r':
			next, peekErr := f.r.Peek(1)
			if peekErr == nil && len(next) == 1 && next[0] == '\n' {
				f.r.Discard(1)
			}
			return line, nil
		default:
			line = append(line, b)
		}
	}
}
