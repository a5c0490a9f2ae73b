package sqlite

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnterminatedQuote   = errors.New("unterminated quoted string")
	ErrUnterminatedComment = errors.New("unterminated block comment")
)

type kind uint8

const (
	kindExec kind = iota
	kindRows
	kindBegin
	kindCommit
	kindCancel
	kindLive
	kindKill
)

// statement is one statement of a query with its comments removed.
type statement struct {
	text   string
	params []string // distinct $names in order of appearance
	kind   kind
}

// split breaks a query into statements on top-level semicolons. Quoted
// strings and identifiers are kept verbatim, comments are replaced by a
// space, and the body of CREATE TRIGGER runs until its END.
func split(query string) ([]statement, error) {
	var (
		out       []statement
		buf       strings.Builder
		words     []string
		params    []string
		seen      = make(map[string]bool)
		returning bool
	)

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			out = append(out, statement{
				text:   text,
				params: params,
				kind:   classify(words, returning),
			})
		}
		buf.Reset()
		words, params, returning = nil, nil, false
		seen = make(map[string]bool)
	}

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = len(query)
			} else {
				i += end
			}
			buf.WriteByte(' ')

		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w at offset %d", ErrUnterminatedComment, i)
			}
			i += end + 4
			buf.WriteByte(' ')

		case c == '\'' || c == '"' || c == '`' || c == '[':
			end, err := skipQuoted(query, i)
			if err != nil {
				return nil, err
			}
			buf.WriteString(query[i:end])
			i = end

		case c == '$' && i+1 < len(query) && isLetter(query[i+1]):
			end := scanIdent(query, i+1)
			name := query[i+1 : end]
			if !seen[name] {
				seen[name] = true
				params = append(params, name)
			}
			buf.WriteString(query[i:end])
			i = end

		case isIdentStart(c):
			end := scanIdent(query, i)
			word := strings.ToUpper(query[i:end])
			words = append(words, word)
			if word == "RETURNING" {
				returning = true
			}
			buf.WriteString(query[i:end])
			i = end

		case c == ';':
			i++
			if isTrigger(words) && words[len(words)-1] != "END" {
				buf.WriteByte(';')
				continue
			}
			flush()

		default:
			buf.WriteByte(c)
			i++
		}
	}
	flush()

	return out, nil
}

func classify(words []string, returning bool) kind {
	if len(words) == 0 {
		return kindExec
	}
	switch words[0] {
	case "BEGIN":
		return kindBegin
	case "COMMIT", "END":
		return kindCommit
	case "CANCEL":
		return kindCancel
	case "ROLLBACK":
		for _, w := range words[1:] {
			if w == "TO" {
				return kindExec
			}
		}
		return kindCancel
	case "LIVE":
		return kindLive
	case "KILL":
		return kindKill
	case "SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN":
		return kindRows
	}
	if returning {
		return kindRows
	}
	return kindExec
}

func isTrigger(words []string) bool {
	if len(words) < 2 || words[0] != "CREATE" {
		return false
	}
	if words[1] == "TEMP" || words[1] == "TEMPORARY" {
		return len(words) > 2 && words[2] == "TRIGGER"
	}
	return words[1] == "TRIGGER"
}

// skipQuoted returns the offset just past the quoted token starting at i.
// A doubled quote character inside the token is an escaped quote.
func skipQuoted(s string, i int) (int, error) {
	q := s[i]
	if q == '[' {
		end := strings.IndexByte(s[i+1:], ']')
		if end < 0 {
			return 0, fmt.Errorf("%w at offset %d", ErrUnterminatedQuote, i)
		}
		return i + end + 2, nil
	}
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1, nil
	}
	return 0, fmt.Errorf("%w at offset %d", ErrUnterminatedQuote, i)
}

func scanIdent(s string, i int) int {
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return i
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentStart(c byte) bool {
	return isLetter(c) || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// inline replaces every $name outside quotes in text with the SQL returned
// by fn. text must already be comment-free.
func inline(text string, fn func(name string) (string, error)) (string, error) {
	var b strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			end, err := skipQuoted(text, i)
			if err != nil {
				return "", err
			}
			b.WriteString(text[i:end])
			i = end
		case c == '$' && i+1 < len(text) && isLetter(text[i+1]):
			end := scanIdent(text, i+1)
			lit, err := fn(text[i+1 : end])
			if err != nil {
				return "", err
			}
			b.WriteString(lit)
			i = end
		case isIdentStart(c):
			end := scanIdent(text, i)
			b.WriteString(text[i:end])
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}
