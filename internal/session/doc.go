// Package session holds per-browser credential state for the web service.
//
// A [Session] carries the Spotify access token, profile, the single-use PKCE verifier and OAuth state,
// and whether YouTube Music was authenticated from this browser. Sessions live server-side in a
// [Store] with sliding expiry; the browser only holds a signed cookie produced by [Codec] that names
// the session id.
package session
