// Package language normalizes language codes for dub targets and media
// stream tags.
//
// Codes are parsed with golang.org/x/text/language, so ISO 639-1, ISO 639-2
// and BCP 47 forms all resolve to the same base language. Display names come
// from the x/text English display tables. Supported lists the targets the
// dubbing collaborator accepts.
package language
