// Package scan extracts import specifiers from JavaScript sources. The
// scanner is a single-pass lexer that tracks strings, template literals,
// comments and regular expressions so that only real import sites are
// reported, along with the byte spans rewriting needs.
package scan

import (
	"bytes"
)

// Kind says which syntactic form produced an import.
type Kind int

const (
	// KindStatic is an import declaration.
	KindStatic Kind = iota
	// KindDynamic is an import() call with a literal argument.
	KindDynamic
	// KindExport is a re-export (export ... from "specifier").
	KindExport
	// KindRequire is a require() call with a literal argument.
	KindRequire
)

// Import is one import site. Start and End delimit the specifier text
// inside its quotes, so src[Start:End] == Specifier.
type Import struct {
	Specifier string
	Start     int
	End       int
	Kind      Kind

	// Default, Namespace, All and Named describe how the module is
	// consumed: the default binding, a namespace binding, everything
	// (side effects, namespaces, require) or a list of named bindings.
	Default   bool
	Namespace bool
	All       bool
	Named     []string
}

type scanner struct {
	src      []byte
	i        int
	lastSig  byte
	lastWord string
	out      []Import
}

// ScanImports returns every import site in src in source order. Sources
// that fail to parse as a module simply yield fewer results; the scanner
// never errors.
func ScanImports(src []byte) []Import {
	s := &scanner{src: src}
	s.run()
	return s.out
}

func (s *scanner) run() {
	for s.i < len(s.src) {
		c := s.src[s.i]
		switch {
		case c == '/':
			if !s.slash() {
				return
			}
		case c == '\'' || c == '"':
			if _, _, ok := s.string(c); !ok {
				return
			}
		case c == '`':
			if !s.template() {
				return
			}
		case isIdentStart(c):
			s.word()
		default:
			if !isSpace(c) {
				s.lastSig = c
			}
			s.i++
		}
	}
}

// slash dispatches between comments, regular expression literals and
// plain division.
func (s *scanner) slash() bool {
	if s.i+1 < len(s.src) {
		switch s.src[s.i+1] {
		case '/':
			for s.i < len(s.src) && s.src[s.i] != '\n' {
				s.i++
			}
			return true
		case '*':
			end := bytes.Index(s.src[s.i+2:], []byte("*/"))
			if end < 0 {
				return false
			}
			s.i += 2 + end + 2
			return true
		}
	}

	if s.regexAllowed() {
		return s.regex()
	}

	s.lastSig = '/'
	s.i++
	return true
}

// regexAllowed implements the usual lexer heuristic: a slash starts a
// regular expression unless the previous token could end an expression.
func (s *scanner) regexAllowed() bool {
	switch s.lastWord {
	case "return", "typeof", "instanceof", "case", "in", "of", "new",
		"delete", "void", "do", "else", "yield", "await":
		return true
	}
	if s.lastSig == 0 {
		return true
	}
	if isIdentChar(s.lastSig) || s.lastSig == ')' || s.lastSig == ']' {
		return false
	}
	return true
}

func (s *scanner) regex() bool {
	start := s.i
	s.i++ // opening slash
	inClass := false
	for s.i < len(s.src) {
		switch s.src[s.i] {
		case '\\':
			s.i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				s.i++
				for s.i < len(s.src) && isIdentChar(s.src[s.i]) {
					s.i++
				}
				s.lastSig = '/'
				return true
			}
		case '\n':
			// Not a regex after all. Resume after the slash.
			s.i = start + 1
			s.lastSig = '/'
			return true
		}
		s.i++
	}
	return false
}

// string consumes a string literal and returns the span of its contents.
func (s *scanner) string(quote byte) (start, end int, ok bool) {
	s.i++ // opening quote
	start = s.i
	for s.i < len(s.src) {
		switch s.src[s.i] {
		case '\\':
			s.i++
		case quote:
			end = s.i
			s.i++
			s.lastSig = quote
			return start, end, true
		}
		s.i++
	}
	return 0, 0, false
}

// template consumes a template literal, descending into ${...} holes.
func (s *scanner) template() bool {
	s.i++ // opening backtick
	for s.i < len(s.src) {
		switch s.src[s.i] {
		case '\\':
			s.i++
		case '`':
			s.i++
			s.lastSig = '`'
			return true
		case '$':
			if s.i+1 < len(s.src) && s.src[s.i+1] == '{' {
				s.i += 2
				if !s.templateHole() {
					return false
				}
				continue
			}
		}
		s.i++
	}
	return false
}

// templateHole consumes the expression inside ${...}, which may itself
// contain strings, templates and comments.
func (s *scanner) templateHole() bool {
	depth := 0
	for s.i < len(s.src) {
		switch c := s.src[s.i]; c {
		case '{':
			depth++
			s.i++
		case '}':
			if depth == 0 {
				s.i++
				return true
			}
			depth--
			s.i++
		case '\'', '"':
			if _, _, ok := s.string(c); !ok {
				return false
			}
		case '`':
			if !s.template() {
				return false
			}
		case '/':
			if !s.slash() {
				return false
			}
		default:
			if isIdentStart(c) {
				s.word()
				continue
			}
			if !isSpace(c) {
				s.lastSig = c
			}
			s.i++
		}
	}
	return false
}

// word reads an identifier or keyword and dispatches the interesting ones.
func (s *scanner) word() {
	start := s.i
	for s.i < len(s.src) && isIdentChar(s.src[s.i]) {
		s.i++
	}
	w := string(s.src[start:s.i])

	// Property accesses like a.import() are not declarations.
	boundary := start == 0 || !isIdentChar(s.src[start-1]) && s.src[start-1] != '.'

	s.lastWord = w
	s.lastSig = s.src[s.i-1]

	if !boundary {
		return
	}

	switch w {
	case "import":
		s.importSite()
	case "export":
		s.exportSite()
	case "require":
		s.requireSite()
	}
}

func (s *scanner) importSite() {
	s.space()
	if s.i >= len(s.src) {
		return
	}

	switch c := s.src[s.i]; {
	case c == '.':
		// import.meta
		return
	case c == '(':
		s.i++
		s.lastSig = '('
		s.space()
		if s.i < len(s.src) && (s.src[s.i] == '\'' || s.src[s.i] == '"') {
			quote := s.src[s.i]
			if start, end, ok := s.string(quote); ok {
				s.record(Import{
					Specifier: string(s.src[start:end]),
					Start:     start,
					End:       end,
					Kind:      KindDynamic,
					All:       true,
				})
			}
		}
		return
	case c == '\'' || c == '"':
		// Side-effect import loads the whole module.
		if start, end, ok := s.string(c); ok {
			s.record(Import{
				Specifier: string(s.src[start:end]),
				Start:     start,
				End:       end,
				Kind:      KindStatic,
				All:       true,
			})
		}
		return
	default:
		s.importClause()
	}
}

// importClause parses the bindings between "import" and "from".
func (s *scanner) importClause() {
	imp := Import{Kind: KindStatic}
	typeOnly := false

	for s.i < len(s.src) {
		s.space()
		if s.i >= len(s.src) {
			return
		}

		switch c := s.src[s.i]; {
		case c == ',':
			s.i++
		case c == '*':
			imp.Namespace = true
			s.i++
			s.space()
			s.keyword("as")
			s.space()
			s.ident()
		case c == '{':
			s.i++
			names, ok := s.namedList()
			if !ok {
				return
			}
			for _, n := range names {
				if n == "default" {
					imp.Default = true
				} else {
					imp.Named = append(imp.Named, n)
				}
			}
		case c == '\'' || c == '"':
			// "from" already consumed or malformed; tolerate both.
			if start, end, ok := s.string(c); ok {
				imp.Specifier = string(s.src[start:end])
				imp.Start = start
				imp.End = end
				if !typeOnly {
					s.record(imp)
				}
			}
			return
		case isIdentStart(c):
			w := s.identWord()
			switch w {
			case "from":
				// Specifier string follows.
			case "type":
				// TypeScript type-only imports vanish at runtime. The
				// word can also be a default binding named "type"; in
				// that case the next token is "," or "from" and the
				// import still counts.
				s.space()
				if s.i < len(s.src) && s.src[s.i] != ',' && !s.peekWord("from") {
					typeOnly = true
				} else {
					imp.Default = true
				}
			default:
				imp.Default = true
			}
		default:
			return
		}
	}
}

func (s *scanner) exportSite() {
	s.space()
	if s.i >= len(s.src) {
		return
	}

	imp := Import{Kind: KindExport}

	switch c := s.src[s.i]; {
	case c == '*':
		imp.All = true
		s.i++
		s.space()
		if s.keyword("as") {
			imp.Namespace = true
			s.space()
			s.ident()
		}
	case c == '{':
		s.i++
		names, ok := s.namedList()
		if !ok {
			return
		}
		for _, n := range names {
			if n == "default" {
				imp.Default = true
			} else {
				imp.Named = append(imp.Named, n)
			}
		}
	default:
		// export default / export const / export function: no specifier.
		return
	}

	s.space()
	if !s.keyword("from") {
		return
	}
	s.space()
	if s.i >= len(s.src) || (s.src[s.i] != '\'' && s.src[s.i] != '"') {
		return
	}
	if start, end, ok := s.string(s.src[s.i]); ok {
		imp.Specifier = string(s.src[start:end])
		imp.Start = start
		imp.End = end
		s.record(imp)
	}
}

func (s *scanner) requireSite() {
	s.space()
	if s.i >= len(s.src) || s.src[s.i] != '(' {
		return
	}
	s.i++
	s.lastSig = '('
	s.space()
	if s.i >= len(s.src) || (s.src[s.i] != '\'' && s.src[s.i] != '"') {
		return
	}
	if start, end, ok := s.string(s.src[s.i]); ok {
		s.record(Import{
			Specifier: string(s.src[start:end]),
			Start:     start,
			End:       end,
			Kind:      KindRequire,
			All:       true,
		})
	}
}

// namedList parses the inside of { ... } in an import or export clause,
// returning the remote names. For "a as b" the remote name is "a".
func (s *scanner) namedList() ([]string, bool) {
	var names []string
	for s.i < len(s.src) {
		s.space()
		if s.i >= len(s.src) {
			return nil, false
		}

		switch c := s.src[s.i]; {
		case c == '}':
			s.i++
			s.lastSig = '}'
			return names, true
		case c == ',':
			s.i++
		case c == '\'' || c == '"':
			// Arbitrary module namespace names: "some name" as alias.
			start, end, ok := s.string(c)
			if !ok {
				return nil, false
			}
			names = append(names, string(s.src[start:end]))
			s.space()
			if s.keyword("as") {
				s.space()
				s.ident()
			}
		case isIdentStart(c):
			name := s.identWord()
			if name == "type" {
				// Type-only member: skip "type X" or "type X as Y".
				s.space()
				if s.i < len(s.src) && isIdentStart(s.src[s.i]) {
					s.ident()
					s.space()
					if s.keyword("as") {
						s.space()
						s.ident()
					}
					continue
				}
			}
			s.space()
			if s.keyword("as") {
				s.space()
				s.ident()
			}
			names = append(names, name)
		default:
			return nil, false
		}
	}
	return nil, false
}

// space skips whitespace and comments.
func (s *scanner) space() {
	for s.i < len(s.src) {
		c := s.src[s.i]
		if isSpace(c) {
			s.i++
			continue
		}
		if c == '/' && s.i+1 < len(s.src) && (s.src[s.i+1] == '/' || s.src[s.i+1] == '*') {
			if !s.slash() {
				s.i = len(s.src)
				return
			}
			continue
		}
		return
	}
}

// keyword consumes the given word if it is next, reporting whether it did.
func (s *scanner) keyword(w string) bool {
	if s.peekWord(w) {
		s.i += len(w)
		s.lastWord = w
		s.lastSig = w[len(w)-1]
		return true
	}
	return false
}

func (s *scanner) peekWord(w string) bool {
	if !bytes.HasPrefix(s.src[s.i:], []byte(w)) {
		return false
	}
	after := s.i + len(w)
	return after >= len(s.src) || !isIdentChar(s.src[after])
}

// ident consumes an identifier if one is next.
func (s *scanner) ident() {
	if s.i < len(s.src) && isIdentStart(s.src[s.i]) {
		s.identWord()
	}
}

func (s *scanner) identWord() string {
	start := s.i
	for s.i < len(s.src) && isIdentChar(s.src[s.i]) {
		s.i++
	}
	s.lastWord = string(s.src[start:s.i])
	s.lastSig = s.src[s.i-1]
	return s.lastWord
}

func (s *scanner) record(imp Import) {
	s.out = append(s.out, imp)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
