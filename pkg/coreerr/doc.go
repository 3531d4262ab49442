// Package coreerr defines the enumerated error kinds shared by every
// coordination-core component, so callers can branch on failure kind
// instead of matching against message strings.
package coreerr
