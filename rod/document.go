// Package rod implements the autofetch browser-facing interfaces over a
// live Chrome page driven through go-rod.
package rod

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fwojciec/autofetch"
	"github.com/go-rod/rod"
)

// Compile-time interface verification.
var (
	_ autofetch.Document    = (*Document)(nil)
	_ autofetch.StyleParser = (*ScratchParser)(nil)
)

// snapshotJS serializes the page state. Sheets whose rule list throws
// (cross-origin) or is null are reported as unreadable.
const snapshotJS = `() => {
	const sheets = [];
	for (const sheet of document.styleSheets) {
		const entry = {
			ownerId: (sheet.ownerNode && sheet.ownerNode.id) || "",
			href: sheet.href || "",
			readable: false,
			rules: [],
			error: ""
		};
		try {
			const rules = sheet.cssRules || sheet.rules;
			if (rules) {
				entry.readable = true;
				for (const r of rules) entry.rules.push({type: r.type, cssText: r.cssText});
			}
		} catch (e) {
			entry.error = String(e && e.name || e);
		}
		sheets.push(entry);
	}
	return JSON.stringify({
		url: location.href,
		baseURI: document.baseURI,
		html: document.documentElement ? document.documentElement.outerHTML : "",
		sheets: sheets
	});
}`

const parseJS = `(id, text) => {
	let el = document.getElementById(id);
	if (!el) {
		el = document.createElement("style");
		el.id = id;
		document.documentElement.appendChild(el);
	}
	el.textContent = text;
	const rules = [];
	if (el.sheet) {
		for (const r of el.sheet.cssRules) rules.push({type: r.type, cssText: r.cssText});
	}
	el.textContent = "";
	return JSON.stringify(rules);
}`

type rawRule struct {
	Type    int    `json:"type"`
	CSSText string `json:"cssText"`
}

type rawSheet struct {
	OwnerID  string    `json:"ownerId"`
	Href     string    `json:"href"`
	Readable bool      `json:"readable"`
	Rules    []rawRule `json:"rules"`
	Error    string    `json:"error"`
}

type rawSnapshot struct {
	URL     string     `json:"url"`
	BaseURI string     `json:"baseURI"`
	HTML    string     `json:"html"`
	Sheets  []rawSheet `json:"sheets"`
}

// Document reads a live page. It is safe for concurrent use.
type Document struct {
	page *rod.Page
}

// NewDocument wraps page.
func NewDocument(page *rod.Page) *Document {
	return &Document{page: page}
}

// ReadyState returns document.readyState.
func (d *Document) ReadyState(ctx context.Context) (autofetch.ReadyState, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", fmt.Errorf("reading ready state: %w", err)
	}
	return autofetch.ReadyState(res.Value.Str()), nil
}

// Snapshot serializes the markup and every attached stylesheet.
func (d *Document) Snapshot(ctx context.Context) (*autofetch.Snapshot, error) {
	res, err := d.page.Context(ctx).Eval(snapshotJS)
	if err != nil {
		return nil, fmt.Errorf("snapshotting page: %w", err)
	}
	var raw rawSnapshot
	if err := json.Unmarshal([]byte(res.Value.Str()), &raw); err != nil {
		return nil, autofetch.Errorf(autofetch.EINTERNAL, "decoding snapshot: %v", err)
	}
	return raw.snapshot(), nil
}

func (r *rawSnapshot) snapshot() *autofetch.Snapshot {
	snap := &autofetch.Snapshot{
		URL:         r.URL,
		BaseURI:     r.BaseURI,
		HTML:        r.HTML,
		StyleSheets: make([]autofetch.StyleSheet, 0, len(r.Sheets)),
	}
	for _, s := range r.Sheets {
		sheet := autofetch.StyleSheet{
			OwnerID:  s.OwnerID,
			Href:     s.Href,
			Readable: s.Readable,
			Rules:    convertRules(s.Rules),
		}
		if s.Error != "" {
			sheet.Readable = false
			sheet.Err = autofetch.Errorf(autofetch.ECROSSORIGIN, "reading rules of %s: %s", s.Href, s.Error)
		}
		snap.StyleSheets = append(snap.StyleSheets, sheet)
	}
	return snap
}

func convertRules(raw []rawRule) []autofetch.CSSRule {
	if len(raw) == 0 {
		return nil
	}
	rules := make([]autofetch.CSSRule, len(raw))
	for i, r := range raw {
		rules[i] = autofetch.CSSRule{Type: autofetch.RuleType(r.Type), CSSText: r.CSSText}
	}
	return rules
}

// ScratchParser parses stylesheet text by assigning it to a scratch style
// element in the page. Calls are serialized because they share the element.
type ScratchParser struct {
	page *rod.Page
	mu   sync.Mutex
}

// NewScratchParser creates a ScratchParser using page.
func NewScratchParser(page *rod.Page) *ScratchParser {
	return &ScratchParser{page: page}
}

// ParseRules returns the top-level rules the browser produced for cssText.
func (p *ScratchParser) ParseRules(ctx context.Context, cssText string) ([]autofetch.CSSRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.page.Context(ctx).Eval(parseJS, autofetch.ScratchStyleID, cssText)
	if err != nil {
		return nil, fmt.Errorf("parsing stylesheet: %w", err)
	}
	var raw []rawRule
	if err := json.Unmarshal([]byte(res.Value.Str()), &raw); err != nil {
		return nil, autofetch.Errorf(autofetch.EINTERNAL, "decoding rules: %v", err)
	}
	return convertRules(raw), nil
}
