// Package douceur provides a CSS implementation of autofetch.StyleParser
// that runs without a browser.
package douceur

import (
	"context"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/fwojciec/autofetch"
	"github.com/gorilla/css/scanner"
)

// Ensure Parser implements autofetch.StyleParser at compile time.
var _ autofetch.StyleParser = (*Parser)(nil)

// Parser parses stylesheet text into top-level rules.
// Parser is stateless and safe for concurrent use.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseRules returns the top-level rules of cssText in source order.
//
// When the stylesheet as a whole does not parse, for instance because it
// uses @layer, @container or nested braces in custom properties, each
// top-level block is parsed on its own. A block that still fails is kept
// as raw text typed by its at-keyword, so its media rules survive.
func (p *Parser) ParseRules(ctx context.Context, cssText string) ([]autofetch.CSSRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if sheet, err := parser.Parse(cssText); err == nil {
		return convert(sheet.Rules), nil
	}

	var rules []autofetch.CSSRule
	for _, b := range splitBlocks(cssText) {
		if sheet, err := parser.Parse(b.text); err == nil {
			rules = append(rules, convert(sheet.Rules)...)
			continue
		}
		rules = append(rules, autofetch.CSSRule{
			Type:    blockType(b.keyword),
			CSSText: b.text,
		})
	}
	if len(rules) == 0 {
		return nil, autofetch.Errorf(autofetch.EINVALID, "failed to parse stylesheet")
	}
	return rules, nil
}

func convert(parsed []*css.Rule) []autofetch.CSSRule {
	rules := make([]autofetch.CSSRule, 0, len(parsed))
	for _, rule := range parsed {
		rules = append(rules, autofetch.CSSRule{
			Type:    ruleType(rule),
			CSSText: rule.String(),
		})
	}
	return rules
}

// block is one top-level statement or block of a stylesheet.
type block struct {
	keyword string // at-keyword, empty for a qualified rule
	text    string
}

// splitBlocks cuts cssText into top-level blocks by tracking brace depth.
// Comments are dropped.
func splitBlocks(cssText string) []block {
	var blocks []block
	var buf strings.Builder
	var keyword string
	var started bool
	depth := 0

	flush := func() {
		if text := strings.TrimSpace(buf.String()); text != "" {
			blocks = append(blocks, block{keyword: keyword, text: text})
		}
		buf.Reset()
		keyword = ""
		started = false
	}

	s := scanner.New(cssText)
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			flush()
			return blocks
		case scanner.TokenComment, scanner.TokenCDO, scanner.TokenCDC, scanner.TokenBOM:
			continue
		case scanner.TokenS:
			buf.WriteString(tok.Value)
			continue
		}

		if !started {
			started = true
			if tok.Type == scanner.TokenAtKeyword {
				keyword = strings.ToLower(tok.Value)
			}
		}
		buf.WriteString(tok.Value)

		if tok.Type != scanner.TokenChar {
			continue
		}
		switch tok.Value {
		case "{":
			depth++
		case "}":
			depth--
			if depth <= 0 {
				depth = 0
				flush()
			}
		case ";":
			if depth == 0 {
				flush()
			}
		}
	}
}

// blockType types a block the parser rejected.
func blockType(keyword string) autofetch.RuleType {
	if keyword == "" {
		return autofetch.RuleStyle
	}
	return atRuleType(keyword)
}

// ruleType maps a parsed rule onto the CSSOM rule type numbering.
func ruleType(rule *css.Rule) autofetch.RuleType {
	if rule.Kind == css.QualifiedRule {
		return autofetch.RuleStyle
	}

	return atRuleType(strings.ToLower(rule.Name))
}

func atRuleType(name string) autofetch.RuleType {
	switch name {
	case "@media":
		return autofetch.RuleMedia
	case "@import":
		return autofetch.RuleImport
	case "@charset":
		return autofetch.RuleCharset
	case "@font-face":
		return autofetch.RuleFontFace
	case "@page":
		return autofetch.RulePage
	case "@keyframes", "@-webkit-keyframes", "@-moz-keyframes":
		return autofetch.RuleKeyframes
	case "@supports":
		return autofetch.RuleSupports
	default:
		return autofetch.RuleUnknown
	}
}
