// Package protocol owns the console wire contract and parsing primitives.
//
// Ownership boundary:
// - fixed 16-byte frame header (magic, total_length, category, type)
// - length-prefixed string and string array encodings
// - category/type code spaces and the decode error taxonomy
//
// Frame assembly lives in protocol/frame, dispatch in protocol/registry and the
// concrete message variants in protocol/messages.
package protocol
