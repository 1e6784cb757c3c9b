// Package models defines the data passed between the playlist providers, the conversion pipeline and persistence.
//
// Provider payloads:
//   - [SourcePlaylist] and [SourceTrack] : a Spotify playlist reduced to the fields matching needs
//   - [TargetTrack] : a YouTube Music search hit
//   - [Profile] : the signed-in Spotify user
//
// Pipeline results:
//   - [MatchResult] : the outcome of searching for one source track
//   - [ConversionResult] : the outcome of one playlist conversion
//
// Persistent entities:
//   - [Conversion] : a row of conversion history
package models
