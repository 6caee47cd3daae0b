package sqlfmt

import "strings"

// Shape describes statement boundaries of sql text.
type Shape struct {
	Statements int  // statements with at least one token besides comments
	Terminated bool // the last token is a ';' closing a statement
	OpenBlock  bool // text stops inside a trigger body (BEGIN ... END)
}

// Inspect splits sql on top-level semicolons the way the engine does. Semicolons inside
// literals, comments and trigger bodies don't end a statement.
func Inspect(sql string) Shape {
	var res Shape
	tokens, trigger, block := 0, false, 0
	for _, t := range tokenize(sql) {
		switch t.kind {
		case tkLineComment, tkBlockComment:
			continue
		case tkWord:
			switch strings.ToUpper(t.text) {
			case "TRIGGER":
				trigger = tokens > 0
			case "BEGIN", "CASE":
				if trigger {
					block++
				}
			case "END":
				if trigger && block > 0 {
					block--
				}
			}
		case tkPunct:
			if t.text == ";" && block == 0 {
				if tokens > 0 {
					res.Statements++
				}
				tokens, trigger = 0, false
				res.Terminated = true
				continue
			}
		}
		tokens++
		res.Terminated = false
	}
	if tokens > 0 {
		res.Statements++
	}
	res.OpenBlock = block > 0
	return res
}
