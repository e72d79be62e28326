package detect

import "strings"

// Beautify reformats (typically minified) JavaScript so that line-based
// diffing produces usable hunks. It is a lightweight layout pass, not a
// parser: statements are split on `;`, `{` and `}` outside of string,
// template and comment context, and re-indented by brace depth.
func Beautify(content string) string {
	var out strings.Builder
	out.Grow(len(content) + len(content)/4)

	depth := 0
	atLineStart := true

	var inString bool
	var quote byte
	var inLineComment, inBlockComment bool

	writeIndent := func() {
		for i := 0; i < depth; i++ {
			out.WriteString("  ")
		}
	}

	newline := func() {
		out.WriteByte('\n')
		atLineStart = true
	}

	for i := 0; i < len(content); i++ {
		c := content[i]

		if inLineComment {
			out.WriteByte(c)
			if c == '\n' {
				inLineComment = false
				atLineStart = true
			}
			continue
		}
		if inBlockComment {
			out.WriteByte(c)
			if c == '*' && i+1 < len(content) && content[i+1] == '/' {
				out.WriteByte('/')
				i++
				inBlockComment = false
			}
			continue
		}
		if inString {
			out.WriteByte(c)
			if c == '\\' && i+1 < len(content) {
				out.WriteByte(content[i+1])
				i++
				continue
			}
			if c == quote {
				inString = false
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			if atLineStart {
				writeIndent()
				atLineStart = false
			}
			inString = true
			quote = c
			out.WriteByte(c)
		case '/':
			if i+1 < len(content) && content[i+1] == '/' {
				inLineComment = true
			} else if i+1 < len(content) && content[i+1] == '*' {
				inBlockComment = true
			}
			if atLineStart {
				writeIndent()
				atLineStart = false
			}
			out.WriteByte(c)
		case ';':
			out.WriteByte(c)
			newline()
		case '{':
			if atLineStart {
				writeIndent()
				atLineStart = false
			}
			out.WriteByte(c)
			depth++
			newline()
		case '}':
			if depth > 0 {
				depth--
			}
			if !atLineStart {
				newline()
			}
			writeIndent()
			out.WriteByte(c)
			atLineStart = false
			// Keep `} else`, `})`, `},` etc. on the same line.
			if i+1 < len(content) {
				next := content[i+1]
				if next != ')' && next != ',' && next != ';' && next != ' ' && next != '\n' {
					newline()
				}
			}
		case '\n':
			if !atLineStart {
				newline()
			}
		default:
			if atLineStart {
				if c == ' ' || c == '\t' {
					continue
				}
				writeIndent()
				atLineStart = false
			}
			out.WriteByte(c)
		}
	}

	return strings.TrimRight(out.String(), "\n")
}
