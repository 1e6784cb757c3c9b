// Package services implements the two provider clients used by a conversion.
//
// # Spotify
//
// [SpotifyService] is a stateless Spotify Web API client. Logins use the authorization code flow with
// PKCE: [SpotifyService.AuthorizeURL] stores a verifier and state in the caller's session and
// [SpotifyService.ExchangeCode] consumes the verifier. Reads go through resty with bounded retries on
// 5xx and transport errors; the token exchange is never retried.
//
// # YouTube Music
//
// YouTube Music has no public write API, so [YouTubeClient] speaks InnerTube with request headers
// imported from a signed-in browser ([shared.ParseRawHeaders] then [NormalizeHeaders]).
//
// [YouTubeSession] is the one process-wide connection. It persists the header set through an
// [ArtifactStore] (a 0600 JSON file or the OS keyring) and keeps the artifact, the client handle and the
// authenticated flag consistent under a single mutex. [ArtifactWatcher] clears the handle when the
// artifact file disappears underneath the process.
//
// # Errors
//
//   - [shared.AuthError] : missing, rejected or expired credentials on either side
//   - [shared.UpstreamError] : a provider answered with a non-2xx status
//   - [shared.ValidationError] : malformed input caught before any request
package services
