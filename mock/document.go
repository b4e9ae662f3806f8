package mock

import (
	"context"

	"github.com/fwojciec/autofetch"
)

// Compile-time interface verification.
var (
	_ autofetch.Document    = (*Document)(nil)
	_ autofetch.StyleParser = (*StyleParser)(nil)
)

// Document is a mock implementation of autofetch.Document.
type Document struct {
	ReadyStateFn func(ctx context.Context) (autofetch.ReadyState, error)
	SnapshotFn   func(ctx context.Context) (*autofetch.Snapshot, error)
}

func (d *Document) ReadyState(ctx context.Context) (autofetch.ReadyState, error) {
	return d.ReadyStateFn(ctx)
}

func (d *Document) Snapshot(ctx context.Context) (*autofetch.Snapshot, error) {
	return d.SnapshotFn(ctx)
}

// StyleParser is a mock implementation of autofetch.StyleParser.
type StyleParser struct {
	ParseRulesFn func(ctx context.Context, cssText string) ([]autofetch.CSSRule, error)
}

func (p *StyleParser) ParseRules(ctx context.Context, cssText string) ([]autofetch.CSSRule, error) {
	return p.ParseRulesFn(ctx, cssText)
}
