// Package tasks converts a source playlist into a new target playlist.
//
// # Conversion
//
// [Converter.Convert] runs the steps in order:
//
//  1. Checks that the target is connected and the session holds a source access token
//  2. Fetches the full source playlist
//  3. Creates a private target playlist named "{name} (from {source})"
//  4. Matches every track with [Matcher], in parallel and rate limited
//  5. Adds all matched tracks, in source order, with one call
//
// Tracks that find no match are skipped. Failures in steps 1-3 and 5 abort the conversion; a
// target playlist created before the failure is left in place.
//
// # Progress Reporting
//
// Progress is sent as [ProgressUpdate] values on an optional channel. Sends use select with default,
// so a slow or absent reader never stalls a conversion.
//
// # History
//
// When a [ConversionRecorder] is configured every attempt is stored with its outcome. Recording
// errors are logged and otherwise ignored.
package tasks
