// Package ir provides the document value model shared by every viewsync package.
//
// Documents are Objects: maps from field name to a sealed Value. The model is
// deliberately small (null, string, int, float, bool, array, object) so that
// documents round-trip through JSON, SQLite and CUE without loss.
//
// Key design constraints:
//   - Every document carries its identifier in the "_id" field (IDField)
//   - A nil Value means "absent"; Null is an explicit JSON null
//   - Marshal is the lossless encoding used for storage; MarshalCanonical
//     additionally NFC-normalizes strings and drops float-ness, for display
//     and content hashes. Map iteration order never leaks into either
//   - Change detection uses Equal or ExactHash, never the canonical form
package ir
