// Package indexer builds a lightweight symbol index over a working copy. It
// backs the index_symbols tool: line-oriented pattern matching per language,
// good enough for orientation without a full parser.
package indexer

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"agentd/pkg/repo"
)

// SymbolKind classifies an indexed symbol.
type SymbolKind string

const (
	KindFunction SymbolKind = "function"
	KindType     SymbolKind = "type"
	KindMethod   SymbolKind = "method"
	KindClass    SymbolKind = "class"
)

// Symbol is one indexed declaration.
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	Path      string     `json:"path"`
	Line      int        `json:"line"`
	Signature string     `json:"signature,omitempty"`
	Parent    string     `json:"parent,omitempty"` // receiver or class name for methods
}

// Index holds the symbols extracted from a working copy.
type Index struct {
	Symbols      []Symbol
	FilesIndexed int
}

// FindByName returns symbols whose name contains name (case-insensitive).
func (ix *Index) FindByName(name string) []Symbol {
	lower := strings.ToLower(name)
	var out []Symbol
	for _, s := range ix.Symbols {
		if strings.Contains(strings.ToLower(s.Name), lower) {
			out = append(out, s)
		}
	}
	return out
}

// FindByKind returns all symbols of the given kind.
func (ix *Index) FindByKind(kind SymbolKind) []Symbol {
	var out []Symbol
	for _, s := range ix.Symbols {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// FindInFile returns all symbols declared in path.
func (ix *Index) FindInFile(path string) []Symbol {
	var out []Symbol
	for _, s := range ix.Symbols {
		if s.Path == path {
			out = append(out, s)
		}
	}
	return out
}

// Summary returns a one-line description of the index.
func (ix *Index) Summary() string {
	counts := map[SymbolKind]int{}
	for _, s := range ix.Symbols {
		counts[s.Kind]++
	}
	return fmt.Sprintf("Indexed %d files: %d types/classes, %d functions, %d methods",
		ix.FilesIndexed,
		counts[KindType]+counts[KindClass],
		counts[KindFunction],
		counts[KindMethod])
}

// Language declaration patterns. Each captures the symbol name in the first
// group (methods capture receiver/class context where the syntax allows).
var (
	goFunc    = regexp.MustCompile(`^func\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	goMethod  = regexp.MustCompile(`^func\s+\(\s*[A-Za-z_][A-Za-z0-9_]*\s+\*?([A-Za-z_][A-Za-z0-9_]*)\s*\)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	goType    = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+`)
	pyDef     = regexp.MustCompile(`^(\s*)def\s+([A-Za-z_][A-Za-z0-9_]*)\s*(\([^)]*\)[^:]*):`)
	pyClass   = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)`)
	jsFunc    = regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	jsClass   = regexp.MustCompile(`^(?:export\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	jsArrowFn = regexp.MustCompile(`^(?:export\s+)?const\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s+)?\(`)
)

// Indexer builds and caches the index for one working copy. The cache is
// invalidated when the working copy changes (after an approved apply).
type Indexer struct {
	repo   repo.Repo
	mu     sync.Mutex
	cached *Index
}

// New creates an Indexer over the given repo.
func New(r repo.Repo) *Indexer {
	return &Indexer{repo: r}
}

// Get returns the cached index, building it on first use.
func (in *Indexer) Get() (*Index, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cached != nil {
		return in.cached, nil
	}
	ix, err := in.build()
	if err != nil {
		return nil, err
	}
	in.cached = ix
	return ix, nil
}

// Invalidate drops the cached index; the next Get rebuilds it.
func (in *Indexer) Invalidate() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cached = nil
}

func (in *Indexer) build() (*Index, error) {
	ix := &Index{}
	err := in.repo.Walk(func(rel string) error {
		ext := strings.ToLower(filepath.Ext(rel))
		switch ext {
		case ".go", ".py", ".js", ".jsx", ".ts", ".tsx":
		default:
			return nil
		}
		content, ok, err := in.repo.Read(rel)
		if err != nil || !ok {
			return nil // unreadable files are skipped, not fatal
		}
		ix.Symbols = append(ix.Symbols, extractSymbols(rel, ext, content)...)
		ix.FilesIndexed++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index working copy: %w", err)
	}
	sort.Slice(ix.Symbols, func(i, j int) bool {
		if ix.Symbols[i].Path != ix.Symbols[j].Path {
			return ix.Symbols[i].Path < ix.Symbols[j].Path
		}
		return ix.Symbols[i].Line < ix.Symbols[j].Line
	})
	return ix, nil
}

// extractSymbols scans one file line by line for declarations.
func extractSymbols(path, ext string, content []byte) []Symbol {
	var symbols []Symbol
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	var currentClass string // python/js: most recent top-level class
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		switch ext {
		case ".go":
			if m := goMethod.FindStringSubmatch(line); m != nil {
				symbols = append(symbols, Symbol{
					Name: m[2], Kind: KindMethod, Path: path, Line: lineNo,
					Parent: m[1], Signature: strings.TrimSuffix(strings.TrimSpace(line), "{"),
				})
			} else if m := goFunc.FindStringSubmatch(line); m != nil {
				symbols = append(symbols, Symbol{
					Name: m[1], Kind: KindFunction, Path: path, Line: lineNo,
					Signature: strings.TrimSuffix(strings.TrimSpace(line), "{"),
				})
			} else if m := goType.FindStringSubmatch(line); m != nil {
				symbols = append(symbols, Symbol{Name: m[1], Kind: KindType, Path: path, Line: lineNo})
			}
		case ".py":
			if m := pyClass.FindStringSubmatch(line); m != nil {
				currentClass = m[1]
				symbols = append(symbols, Symbol{Name: m[1], Kind: KindClass, Path: path, Line: lineNo})
			} else if m := pyDef.FindStringSubmatch(line); m != nil {
				indent, name, params := m[1], m[2], m[3]
				sym := Symbol{
					Name: name, Path: path, Line: lineNo,
					Signature: "def " + name + strings.TrimSpace(params),
				}
				if len(indent) > 0 && currentClass != "" {
					sym.Kind = KindMethod
					sym.Parent = currentClass
				} else {
					sym.Kind = KindFunction
					currentClass = "" // back at top level
				}
				symbols = append(symbols, sym)
			} else if len(line) > 0 && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
				// Any other top-level statement ends the class body.
				if !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "@") {
					currentClass = ""
				}
			}
		case ".js", ".jsx", ".ts", ".tsx":
			if m := jsClass.FindStringSubmatch(line); m != nil {
				symbols = append(symbols, Symbol{Name: m[1], Kind: KindClass, Path: path, Line: lineNo})
			} else if m := jsFunc.FindStringSubmatch(line); m != nil {
				symbols = append(symbols, Symbol{Name: m[1], Kind: KindFunction, Path: path, Line: lineNo})
			} else if m := jsArrowFn.FindStringSubmatch(line); m != nil {
				symbols = append(symbols, Symbol{Name: m[1], Kind: KindFunction, Path: path, Line: lineNo})
			}
		}
	}
	return symbols
}
