package analyzer

import (
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\n(.*?)```")
	inlineCodeRe  = regexp.MustCompile("`([^`\\n]+)`")
	promptLineRe  = regexp.MustCompile(`(?m)^\s*\$\s+(.+)$`)
)

// Executables that turn fetched bytes into running code.
var interpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true,
	"python": true, "python3": true, "perl": true, "ruby": true, "node": true,
}

var fetchers = map[string]bool{"curl": true, "wget": true, "fetch": true}

// Commands that are suspicious when hidden inside $(...) or backticks.
var substitutionTargets = map[string]bool{
	"rm": true, "curl": true, "wget": true, "nc": true, "bash": true, "sh": true,
}

// extractShellSnippets pulls out text that is presented as shell: fenced
// code blocks, inline code spans and "$ "-prompted lines. Free prose is
// never handed to the shell parser.
func extractShellSnippets(text string) []string {
	if !strings.ContainsAny(text, "`$") {
		return nil
	}
	var out []string
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	stripped := fencedBlockRe.ReplaceAllString(text, "")
	for _, m := range inlineCodeRe.FindAllStringSubmatch(stripped, -1) {
		out = append(out, m[1])
	}
	for _, m := range promptLineRe.FindAllStringSubmatch(stripped, -1) {
		out = append(out, m[1])
	}
	return out
}

// dangerousShell parses a snippet as bash and reports whether it pipes a
// download into an interpreter or runs a risky command via substitution.
// Snippets that do not parse are ignored.
func dangerousShell(snippet string) bool {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(snippet), "")
	if err != nil {
		return false
	}

	found := false
	syntax.Walk(file, func(node syntax.Node) bool {
		if found {
			return false
		}
		switch n := node.(type) {
		case *syntax.BinaryCmd:
			if n.Op == syntax.Pipe || n.Op == syntax.PipeAll {
				if fetchers[leftmostCommand(n.X)] && interpreters[leftmostCommand(n.Y)] {
					found = true
				}
			}
		case *syntax.CmdSubst:
			for _, stmt := range n.Stmts {
				if substitutionTargets[leftmostCommand(stmt)] {
					found = true
				}
			}
		}
		return !found
	})
	return found
}

// leftmostCommand returns the executable name at the head of a statement,
// looking through pipelines and a leading sudo.
func leftmostCommand(stmt *syntax.Stmt) string {
	if stmt == nil {
		return ""
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		args := cmd.Args
		if len(args) > 1 && args[0].Lit() == "sudo" {
			args = args[1:]
		}
		if len(args) == 0 {
			return ""
		}
		name := args[0].Lit()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		return name
	case *syntax.BinaryCmd:
		return leftmostCommand(cmd.X)
	}
	return ""
}
