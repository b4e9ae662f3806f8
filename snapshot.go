package autofetch

import "context"

// ScratchStyleID is the element id of the style element used to reparse
// stylesheets whose rules cannot be read directly. Sheets owned by it are
// never scanned.
const ScratchStyleID = "$wrStyleParser$"

// ReadyState mirrors document.readyState.
type ReadyState string

// Document ready states.
const (
	ReadyLoading     ReadyState = "loading"
	ReadyInteractive ReadyState = "interactive"
	ReadyComplete    ReadyState = "complete"
)

// RuleType mirrors the CSSOM rule type constants.
type RuleType int

// CSS rule types.
const (
	RuleUnknown   RuleType = 0
	RuleStyle     RuleType = 1
	RuleCharset   RuleType = 2
	RuleImport    RuleType = 3
	RuleMedia     RuleType = 4
	RuleFontFace  RuleType = 5
	RulePage      RuleType = 6
	RuleKeyframes RuleType = 7
	RuleSupports  RuleType = 12
)

// CSSRule is one top-level rule of a stylesheet.
type CSSRule struct {
	Type    RuleType
	CSSText string
}

// StyleSheet is a read-only view of one stylesheet attached to a document.
type StyleSheet struct {
	// OwnerID is the id attribute of the owning element, if any.
	OwnerID string

	// Href is the absolute URL the sheet was loaded from.
	// Empty for inline style elements.
	Href string

	// Readable is false when the rule list could not be read, either because
	// access was denied or because the host reported no rule list.
	Readable bool

	// Rules holds the top-level rules when Readable is true.
	Rules []CSSRule

	// Err records why reading the rule list failed, if it did.
	Err error
}

// Snapshot is the state of a document at one scan tick.
type Snapshot struct {
	// URL is the document location, used for the proxy-fetch scheme.
	URL string

	// BaseURI resolves relative references in the document.
	BaseURI string

	// HTML is the serialized document.
	HTML string

	// StyleSheets lists attached stylesheets in document order.
	StyleSheets []StyleSheet
}

// Document is the page being scanned.
type Document interface {
	// ReadyState reports the current loading state.
	ReadyState(ctx context.Context) (ReadyState, error)

	// Snapshot captures the current markup and stylesheets.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// StyleParser turns stylesheet text into top-level rules, the way assigning
// text to an offscreen style element does.
type StyleParser interface {
	ParseRules(ctx context.Context, cssText string) ([]CSSRule, error)
}
