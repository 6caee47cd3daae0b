// Package sqlfmt re-indents SQL text for display. It doesn't validate or rewrite statements,
// it only normalizes whitespace outside literals and breaks lines before the major clauses.
package sqlfmt

import (
	"strings"
)

const selectIndent = "       " // aligns continued select-list items under the first one

type tokenKind int

const (
	tkWord tokenKind = iota
	tkLiteral
	tkPunct
	tkLineComment
	tkBlockComment
	tkOther
)

type token struct {
	kind  tokenKind
	text  string
	space bool // token was preceded by whitespace in the source
}

var joinModifiers = map[string]bool{
	"LEFT": true, "RIGHT": true, "INNER": true, "OUTER": true, "CROSS": true, "FULL": true, "NATURAL": true,
}

// Format returns sql re-indented. Multiple statements are separated by a blank line.
func Format(sql string) string {
	f := formatter{}
	for _, t := range tokenize(sql) {
		f.add(t)
	}
	return strings.TrimSpace(f.out.String())
}

type formatter struct {
	out strings.Builder

	depth        int
	started      bool // anything written at all
	stmtTokens   int  // non-comment tokens in the current statement
	lineStart    bool
	pendingNL    bool // next token starts a new line
	stmtBreak    bool // next token starts a new statement
	inSelectList bool
	clause       string
	between      bool
	setOp        bool // previous word was UNION, EXCEPT or INTERSECT
	prevWord     string
}

func (f *formatter) add(t token) {
	switch t.kind {
	case tkLineComment:
		f.emit(t, false, "")
		f.pendingNL = true
		return
	case tkBlockComment:
		f.emit(t, false, "")
		return
	case tkPunct:
		f.punct(t)
		return
	case tkWord:
		f.word(t)
		return
	}
	f.emit(t, false, "")
	f.stmtTokens++
}

func (f *formatter) punct(t token) {
	switch t.text {
	case "(":
		f.emit(t, false, "")
		f.depth++
	case ")":
		if f.depth > 0 {
			f.depth--
		}
		f.emit(t, false, "")
	case ",":
		t.space = false
		f.emit(t, false, "")
		if f.depth == 0 && f.inSelectList {
			f.out.WriteString("\n" + selectIndent)
			f.lineStart = true
		}
	case ";":
		t.space = false
		f.emit(t, false, "")
		f.resetStatement()
		f.stmtBreak = true
		return
	default:
		f.emit(t, false, "")
	}
	f.stmtTokens++
}

func (f *formatter) word(t token) {
	upper := strings.ToUpper(t.text)
	breakBefore, indent := false, ""

	if f.setOp {
		f.setOp = false
		if upper == "ALL" || upper == "DISTINCT" {
			f.pendingNL = false
			f.emit(t, false, "")
			f.pendingNL = true
			f.stmtTokens++
			return
		}
	}

	if f.depth == 0 && f.stmtTokens > 0 {
		switch upper {
		case "SELECT":
			f.inSelectList, f.clause = true, upper
		case "FROM", "WHERE", "HAVING", "LIMIT", "VALUES", "SET", "GROUP", "ORDER":
			breakBefore = true
			f.inSelectList, f.clause = false, upper
		case "UNION", "EXCEPT", "INTERSECT":
			breakBefore = true
			f.inSelectList, f.clause = false, upper
			f.setOp = true
		case "JOIN":
			breakBefore = !joinModifiers[f.prevWord]
			f.inSelectList, f.clause = false, upper
		case "LEFT", "RIGHT", "INNER", "OUTER", "CROSS", "FULL", "NATURAL":
			breakBefore = !joinModifiers[f.prevWord]
		case "BETWEEN":
			f.between = true
		case "AND", "OR":
			if f.clause == "WHERE" || f.clause == "HAVING" {
				if upper == "AND" && f.between {
					f.between = false
					break
				}
				breakBefore, indent = true, "  "
			}
		}
	}

	if f.depth == 0 && f.stmtTokens == 0 && upper == "SELECT" {
		f.inSelectList, f.clause = true, upper
	}

	f.emit(t, breakBefore, indent)
	if upper == "UNION" || upper == "EXCEPT" || upper == "INTERSECT" {
		f.pendingNL = f.depth == 0
	}
	if f.depth == 0 {
		f.prevWord = upper
	}
	f.stmtTokens++
}

// emit writes the token text preceded by a line break, a single space or nothing.
func (f *formatter) emit(t token, breakBefore bool, indent string) {
	switch {
	case !f.started:
	case f.stmtBreak:
		f.out.WriteString("\n\n")
	case breakBefore || f.pendingNL:
		f.out.WriteString("\n" + indent)
	case f.lineStart:
	case t.space:
		f.out.WriteString(" ")
	}
	f.out.WriteString(t.text)
	f.started, f.stmtBreak, f.pendingNL, f.lineStart = true, false, false, false
}

func (f *formatter) resetStatement() {
	f.depth, f.stmtTokens = 0, 0
	f.inSelectList, f.between, f.setOp = false, false, false
	f.clause, f.prevWord = "", ""
	f.pendingNL = false
}

func tokenize(s string) []token {
	var res []token
	space := false
	for i := 0; i < len(s); {
		c := s[i]
		if isSpace(c) {
			space = true
			i++
			continue
		}

		var j int
		kind := tkOther
		switch {
		case c == '\'' || c == '"' || c == '`':
			j, kind = quoted(s, i, c), tkLiteral
		case c == '[':
			j, kind = closing(s, i+1, "]"), tkLiteral
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			j, kind = i, tkLineComment
			for j < len(s) && s[j] != '\n' {
				j++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			j, kind = closing(s, i+2, "*/"), tkBlockComment
		case c == ',' || c == ';' || c == '(' || c == ')':
			j, kind = i+1, tkPunct
		case isWord(c):
			j, kind = i, tkWord
			for j < len(s) && isWord(s[j]) {
				j++
			}
		default:
			j = i
			for j < len(s) && !isSpace(s[j]) && !isWord(s[j]) && !isSpecial(s, j) {
				j++
			}
			if j == i {
				j++
			}
		}

		res = append(res, token{kind: kind, text: strings.TrimRight(s[i:j], "\r"), space: space})
		space = false
		i = j
	}
	return res
}

// quoted returns the end offset of a literal starting at i, doubled quote chars are escapes.
func quoted(s string, i int, q byte) int {
	j := i + 1
	for j < len(s) {
		if s[j] == q {
			if j+1 < len(s) && s[j+1] == q {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(s)
}

func closing(s string, from int, end string) int {
	if idx := strings.Index(s[from:], end); idx >= 0 {
		return from + idx + len(end)
	}
	return len(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWord(c byte) bool {
	return c == '_' || c == '.' || c == '$' || c == '@' || c == ':' || c == '?' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}

func isSpecial(s string, i int) bool {
	switch s[i] {
	case '\'', '"', '`', '[', ',', ';', '(', ')':
		return true
	case '-':
		return i+1 < len(s) && s[i+1] == '-'
	case '/':
		return i+1 < len(s) && s[i+1] == '*'
	}
	return false
}
