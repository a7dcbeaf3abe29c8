// sqllint checks that every inline SQL statement carries the leading
// `--sql <uuid>` audit marker the SQL runner logs queries by. Statements
// without a marker are rejected at runtime, so this catches them earlier.
//
// Usage: sqllint [path ...]  (defaults to the current module tree)
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlKeyword  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|create table|with)\b`)
	auditMarker = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file string
	name string
	line int
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	var violations []violation
	for _, target := range targets {
		vs, err := lint(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
		violations = append(violations, vs...)
	}

	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: statements missing the --sql <uuid> audit marker")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s:%d %s\n", v.file, v.line, v.name)
		}
		os.Exit(1)
	}
}

func lint(target string) ([]violation, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if lintable(target) {
			return lintFile(target)
		}
		return nil, nil
	}

	var violations []violation
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !lintable(path) {
			return nil
		}
		vs, err := lintFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		return nil
	})
	return violations, err
}

// lintable excludes test files: stores fake command tags and error text in
// tests ("INSERT 0 1") that trip the keyword scan without being statements.
func lintable(path string) bool {
	return filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go")
}

func lintFile(path string) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	var violations []violation
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			raw, err := unquote(lit.Value)
			if err != nil || !sqlKeyword.MatchString(raw) {
				continue
			}
			if !auditMarker.MatchString(firstLine(raw)) {
				violations = append(violations, violation{
					file: path,
					name: specName(spec),
					line: fset.Position(lit.Pos()).Line,
				})
			}
		}
		return true
	})
	return violations, nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) > 1 && v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func specName(spec *ast.ValueSpec) string {
	names := make([]string, 0, len(spec.Names))
	for _, ident := range spec.Names {
		if ident != nil {
			names = append(names, ident.Name)
		}
	}
	return strings.Join(names, ",")
}
