package compiler

import (
	"os"
	"path/filepath"
	"strings"
)

// maxMacroExpansionPasses bounds the fixed-point substitution loop applied
// to every output line. A well-formed program's macros reach a fixed point
// in a handful of passes; hitting the cap means a macro expands into
// itself, directly or through a cycle of other macros.
const maxMacroExpansionPasses = 256

// Macro is a preprocessor definition: either object-like (Args == nil) or
// function-like (NAME(a,b) body).
type Macro struct {
	Args []string
	Body string
}

// LineOrigin records where one line of preprocessed output came from, so
// diagnostics raised by later stages can be attributed to the original
// file even after #include has inlined it.
type LineOrigin struct {
	File string
	Line int
}

// SourceMap maps a 1-based output line number to its origin.
type SourceMap []LineOrigin

// Origin returns the origin of outputLine, or a zero LineOrigin if the line
// is out of range.
func (m SourceMap) Origin(outputLine int) LineOrigin {
	if outputLine <= 0 || outputLine >= len(m) {
		return LineOrigin{}
	}
	return m[outputLine]
}

type preprocessor struct {
	defines map[string]Macro
	active  map[string]bool // include cycle stack, keyed by absolute path
	seen    map[string]bool // diamond-include memo, keyed by absolute path
	lines   []string        // index 0 unused, output is 1-based
	origins []LineOrigin
	baseDir string // the entry file's own directory, fixed once per run
	cwd     string
}

// Preprocess resolves #include/#define/#undef directives starting from
// path, returning the fully expanded source text and a line map usable to
// translate lexer/parser positions back to their originating file.
func Preprocess(path string) (string, SourceMap, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", nil, newDiag(PreprocessingError, Position{File: path}, "cannot resolve path: %v", err)
	}
	cwd, _ := os.Getwd()

	p := &preprocessor{
		defines: make(map[string]Macro),
		active:  make(map[string]bool),
		seen:    make(map[string]bool),
		lines:   []string{""},
		origins: []LineOrigin{{}},
		baseDir: filepath.Dir(absPath),
		cwd:     cwd,
	}

	if err := p.includeFile(path, absPath); err != nil {
		return "", nil, err
	}

	return strings.Join(p.lines[1:], "\n"), SourceMap(p.origins), nil
}

func (p *preprocessor) includeFile(displayName, absPath string) error {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return newDiag(PreprocessingError, Position{File: displayName}, "cannot read file: %v", err)
	}

	p.active[absPath] = true
	p.seen[absPath] = true
	includeDir := filepath.Dir(absPath)

	err = p.processLines(string(content), displayName, includeDir)
	delete(p.active, absPath)
	return err
}

func (p *preprocessor) processLines(src, displayName, includeDir string) error {
	for i, raw := range strings.Split(src, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(trimmed, "#include"):
			if err := p.handleInclude(trimmed, displayName, lineNo, includeDir); err != nil {
				return err
			}
		case strings.HasPrefix(trimmed, "#define"):
			if err := p.handleDefine(trimmed, displayName, lineNo); err != nil {
				return err
			}
			p.emit("", displayName, lineNo)
		case strings.HasPrefix(trimmed, "#undef"):
			delete(p.defines, strings.TrimSpace(strings.TrimPrefix(trimmed, "#undef")))
			p.emit("", displayName, lineNo)
		default:
			expanded, err := p.expandLine(raw, Position{File: displayName, Line: lineNo})
			if err != nil {
				return err
			}
			p.emit(expanded, displayName, lineNo)
		}
	}
	return nil
}

func (p *preprocessor) emit(text, file string, line int) {
	p.lines = append(p.lines, text)
	p.origins = append(p.origins, LineOrigin{File: file, Line: line})
}

func (p *preprocessor) handleInclude(trimmed, displayName string, lineNo int, includeDir string) error {
	pos := Position{File: displayName, Line: lineNo}

	var filename string
	switch {
	case strings.Contains(trimmed, "\""):
		q1 := strings.Index(trimmed, "\"")
		q2 := strings.Index(trimmed[q1+1:], "\"")
		if q2 < 0 {
			return newDiag(PreprocessingError, pos, "malformed #include directive: %s", trimmed)
		}
		filename = trimmed[q1+1 : q1+1+q2]
	case strings.Contains(trimmed, "<"):
		a1 := strings.Index(trimmed, "<")
		a2 := strings.Index(trimmed[a1+1:], ">")
		if a2 < 0 {
			return newDiag(PreprocessingError, pos, "malformed #include directive: %s", trimmed)
		}
		filename = trimmed[a1+1 : a1+1+a2]
	default:
		return newDiag(PreprocessingError, pos, "malformed #include directive: %s", trimmed)
	}

	resolved, err := p.resolveInclude(filename, includeDir)
	if err != nil {
		return newDiag(PreprocessingError, pos, "%v", err)
	}
	absResolved, err := filepath.Abs(resolved)
	if err != nil {
		return newDiag(PreprocessingError, pos, "cannot resolve include %q: %v", filename, err)
	}

	if p.active[absResolved] {
		return newDiag(PreprocessingError, pos, "circular include detected: %s includes %s", displayName, filename)
	}
	if p.seen[absResolved] {
		return nil // diamond include: already inlined once, skip silently
	}

	return p.includeFile(resolved, absResolved)
}

// resolveInclude searches, in order: the including file's own directory,
// then the entry file's directory (fixed once per run, distinct from the
// process's working directory whenever the two differ), then the process's
// working directory, then the bare name as given.
func (p *preprocessor) resolveInclude(filename, includeDir string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", newDiag(PreprocessingError, Position{}, "include file not found: %s", filename)
	}

	for _, candidate := range []string{
		filepath.Join(includeDir, filename),
		filepath.Join(p.baseDir, filename),
		filepath.Join(p.cwd, filename),
		filename,
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", newDiag(PreprocessingError, Position{}, "include file not found: %s", filename)
}

func (p *preprocessor) handleDefine(trimmed, displayName string, lineNo int) error {
	pos := Position{File: displayName, Line: lineNo}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#define"))
	if rest == "" {
		return newDiag(PreprocessingError, pos, "malformed #define directive")
	}

	i := 0
	for i < len(rest) && isIdentByte(rune(rest[i])) {
		i++
	}
	if i == 0 {
		return newDiag(PreprocessingError, pos, "malformed macro name in #define")
	}
	name := rest[:i]
	rest = rest[i:]

	var args []string
	if strings.HasPrefix(rest, "(") {
		closeParen := strings.Index(rest, ")")
		if closeParen == -1 {
			return newDiag(PreprocessingError, pos, "unterminated macro parameter list for %q", name)
		}
		argStr := rest[1:closeParen]
		if strings.TrimSpace(argStr) != "" {
			for _, a := range strings.Split(argStr, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		rest = rest[closeParen+1:]
	}

	p.defines[name] = Macro{Args: args, Body: strings.TrimSpace(rest)}
	return nil
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentByte(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

// expandLine substitutes every macro occurrence in line, re-scanning the
// result until a pass makes no further change (so a macro body that itself
// names another macro still expands fully). Passes are capped; exceeding
// the cap means the macro set does not converge, i.e. is recursive.
func (p *preprocessor) expandLine(line string, pos Position) (string, error) {
	current := line
	for pass := 0; pass < maxMacroExpansionPasses; pass++ {
		next, changed := applyDefinesOnce(current, p.defines)
		if !changed {
			return next, nil
		}
		current = next
	}
	return "", newDiag(PreprocessingError, pos, "macro expansion did not terminate (suspected recursive macro)")
}

// applyDefinesOnce performs a single left-to-right substitution pass over
// input, skipping the interior of string/char literals, and reports
// whether any substitution occurred.
func applyDefinesOnce(input string, defines map[string]Macro) (string, bool) {
	if len(defines) == 0 {
		return input, false
	}

	var sb strings.Builder
	n := len(input)
	i := 0
	changed := false

	for i < n {
		switch input[i] {
		case '"', '\'':
			quote := input[i]
			sb.WriteByte(input[i])
			i++
			for i < n {
				c := input[i]
				sb.WriteByte(c)
				i++
				if c == '\\' && i < n {
					sb.WriteByte(input[i])
					i++
					continue
				}
				if c == quote {
					break
				}
			}
		default:
			r := rune(input[i])
			if !isIdentStart(r) {
				sb.WriteByte(input[i])
				i++
				continue
			}

			start := i
			for i < n && isIdentByte(rune(input[i])) {
				i++
			}
			word := input[start:i]

			macro, ok := defines[word]
			if !ok {
				sb.WriteString(word)
				continue
			}

			if len(macro.Args) == 0 {
				sb.WriteString(macro.Body)
				changed = true
				continue
			}

			// Function-like macro: only expands when immediately followed
			// (after optional whitespace) by a balanced argument list.
			j := i
			for j < n && (input[j] == ' ' || input[j] == '\t') {
				j++
			}
			if j >= n || input[j] != '(' {
				sb.WriteString(word)
				continue
			}

			j++
			var args []string
			var cur strings.Builder
			depth := 1
			for j < n && depth > 0 {
				switch input[j] {
				case '(':
					depth++
					cur.WriteByte(input[j])
				case ')':
					depth--
					if depth > 0 {
						cur.WriteByte(input[j])
					}
				case ',':
					if depth == 1 {
						args = append(args, strings.TrimSpace(cur.String()))
						cur.Reset()
					} else {
						cur.WriteByte(input[j])
					}
				default:
					cur.WriteByte(input[j])
				}
				j++
			}
			if depth != 0 {
				sb.WriteString(word)
				continue
			}
			if len(macro.Args) > 0 {
				args = append(args, strings.TrimSpace(cur.String()))
			}

			if len(args) != len(macro.Args) {
				sb.WriteString(word)
				continue
			}

			argMap := make(map[string]Macro, len(macro.Args))
			for k, name := range macro.Args {
				argMap[name] = Macro{Body: args[k]}
			}
			body, _ := applyDefinesOnce(macro.Body, argMap)
			sb.WriteString(body)
			changed = true
			i = j
		}
	}
	return sb.String(), changed
}
