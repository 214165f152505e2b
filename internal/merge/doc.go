// Package merge reconciles a live HTML document with an incoming one.
//
// The head is patched with a keyed edit script so that unchanged elements
// survive untouched, stylesheets leave only once their replacements are
// applied, and scripts from the incoming document run one at a time in
// document order after the body has been swapped.
package merge
