// Package server exposes songbridge over HTTP.
//
// # Routes
//
//	GET  /health                 liveness
//	GET  /                       authentication state of the caller
//	GET  /login                  redirect to Spotify authorization
//	GET  /callback               Spotify redirect target; stores the token in the session
//	GET  /logout                 forget the browser session
//	GET  /playlists              the user's Spotify playlists (limit, offset)
//	POST /youtube/auth           import YouTube Music headers: {"headers_raw": "..."}
//	GET  /youtube/check-auth     whether this session may use YouTube Music
//	POST /youtube/logout         drop the YouTube Music connection
//	POST /convert/{playlist_id}  convert a playlist
//	GET  /conversions            conversion history of the signed-in user
//
// JSON errors have the shape {"status": "error", "message": "..."}; the status code follows
// [shared.HTTPStatus].
//
// # Sessions
//
// The [Sessions] middleware resolves the signed session cookie to a [session.Session] held in memory,
// creating one on first contact. Handlers read it with [session.FromContext].
//
// # CLI Login
//
// [OAuthHandler] serves the redirect of a one-off login started from the terminal. It is registered
// on a temporary router listening on the address from [CallbackAddr] and shut down after the first
// callback.
package server
