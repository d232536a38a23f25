package dumpsource

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	copyPrefix     = "COPY "
	copyTerminator = `\.`
)

// CopyFilter drives a LineReader through the "COPY … FROM stdin;" section
// of a pg_restore byte stream, per spec.md §4.3.
type CopyFilter struct {
	lines  *LineReader
	inCopy bool

	// done latches true once the terminator or end of stream has been
	// observed, so every ReadRow call thereafter returns false without
	// consulting the underlying LineReader again.
	done bool
}

// NewCopyFilter wraps lines. Call Init before ReadRow.
func NewCopyFilter(lines *LineReader) *CopyFilter {
	return &CopyFilter{lines: lines}
}

// Init consumes lines until one begins with "COPY ", parses it against
//
//	COPY <table> ( <ident> (, <ident>)* ) FROM stdin;
//
// and returns the ordered column list. Returns ErrDumpHeaderMissing if
// the stream ends first, ErrDumpHeaderMalformed if a "COPY " line fails
// to parse, and ErrDumpHeaderEmpty if the column list parses empty.
func (f *CopyFilter) Init() ([]string, error) {
	var line []byte
	for {
		ok, err := f.lines.ReadLine(&line)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Mark(errors.New("dumpsource: end of stream before COPY header"), ErrDumpHeaderMissing)
		}

		if bytes.HasPrefix(line, []byte(copyPrefix)) {
			cols, err := parseCopyHeader(string(line))
			if err != nil {
				return nil, err
			}
			if len(cols) == 0 {
				return nil, errors.Mark(errors.Newf("dumpsource: empty column list in header %q", line), ErrDumpHeaderEmpty)
			}
			f.inCopy = true
			return cols, nil
		}
	}
}

// ReadRow returns the next data line of the COPY section into *out.
// Returns false once the literal terminator line `\.` has been observed
// or the stream ends; *out then holds no row and its contents are not
// meaningful. The
// terminator line itself is never delivered to the caller. Once ReadRow
// has returned false, every subsequent call also returns false without
// consuming any further lines from the underlying stream, per spec.md
// §4.3.
func (f *CopyFilter) ReadRow(out *[]byte) (bool, error) {
	if f.done {
		return false, nil
	}

	for {
		ok, err := f.lines.ReadLine(out)
		if err != nil {
			return false, err
		}
		if !ok {
			f.inCopy = false
			f.done = true
			return false, nil
		}

		if f.inCopy && string(*out) == copyTerminator {
			f.inCopy = false
			f.done = true
			return false, nil
		}

		return true, nil
	}
}

// parseCopyHeader parses a single "COPY <table> (<cols>) FROM stdin;"
// line. It is a small hand-rolled recursive-descent parser mirroring the
// boost::spirit grammar of the original C++ implementation:
//
//	root  = "COPY" table "(" ident % "," ")" "FROM stdin;"
//	ident = [A-Za-z][A-Za-z0-9_]*  |  '"' (any char but '"' or '\') * '"'
func parseCopyHeader(line string) ([]string, error) {
	s := strings.TrimPrefix(line, copyPrefix)

	open := strings.IndexByte(s, '(')
	if open < 0 {
		return nil, errors.Mark(errors.Newf("dumpsource: malformed COPY header (missing '('): %q", line), ErrDumpHeaderMalformed)
	}
	// table name occupies s[:open], trimmed; not otherwise validated.
	if strings.TrimSpace(s[:open]) == "" {
		return nil, errors.Mark(errors.Newf("dumpsource: malformed COPY header (missing table name): %q", line), ErrDumpHeaderMalformed)
	}

	rest := s[open+1:]
	closeIdx := strings.IndexByte(rest, ')')
	if closeIdx < 0 {
		return nil, errors.Mark(errors.Newf("dumpsource: malformed COPY header (missing ')'): %q", line), ErrDumpHeaderMalformed)
	}

	colList := rest[:closeIdx]
	tail := strings.TrimSpace(rest[closeIdx+1:])
	if tail != "FROM stdin;" {
		return nil, errors.Mark(errors.Newf("dumpsource: malformed COPY header (expected 'FROM stdin;'): %q", line), ErrDumpHeaderMalformed)
	}

	cols, err := splitIdentList(colList)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "dumpsource: malformed COPY header %q", line), ErrDumpHeaderMalformed)
	}
	return cols, nil
}

// splitIdentList splits a comma-separated list of unquoted or
// double-quoted identifiers, tolerating surrounding whitespace.
func splitIdentList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var idents []string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}

		var ident string
		var err error
		if s[i] == '"' {
			ident, i, err = parseQuotedIdent(s, i)
		} else {
			ident, i, err = parseBareIdent(s, i)
		}
		if err != nil {
			return nil, err
		}
		idents = append(idents, ident)

		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		if s[i] != ',' {
			return nil, errors.Newf("expected ',' at offset %d in %q", i, s)
		}
		i++
	}
	return idents, nil
}

func isIdentStart(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '_'
}

func parseBareIdent(s string, i int) (string, int, error) {
	start := i
	if i >= len(s) || !isIdentStart(s[i]) {
		return "", i, errors.Newf("expected identifier at offset %d in %q", i, s)
	}
	i++
	for i < len(s) && isIdentCont(s[i]) {
		i++
	}
	return s[start:i], i, nil
}

func parseQuotedIdent(s string, i int) (string, int, error) {
	// s[i] == '"'
	i++
	start := i
	for i < len(s) && s[i] != '"' && s[i] != '\\' {
		i++
	}
	if i >= len(s) || s[i] != '"' {
		return "", i, errors.Newf("unterminated quoted identifier at offset %d in %q", start, s)
	}
	ident := s[start:i]
	i++ // closing quote
	return ident, i, nil
}
