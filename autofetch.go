// Package autofetch discovers resources a replayed page references but never
// loads on its own: responsive image candidates (srcset), deferred-loading
// attributes (data-src, data-srcset) and media-gated stylesheet rules. The
// discoveries are posted to a background worker that fetches them so the
// archive captures what the live rendering path never requests.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., goquery/, rod/, sqlite/).
package autofetch
