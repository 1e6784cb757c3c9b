// YouTube Music client speaking the InnerTube API used by the music.youtube.com web app.
//
// Requests are authorized with cookies imported from a signed-in browser and a per-request SAPISIDHASH.
package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/shared"
)

const (
	youtubeBaseURL  = youtubeMusicOrigin + "/youtubei/v1"
	youtubeProvider = "youtube"

	// songsFilter restricts search results to the Songs shelf.
	songsFilter = "EgWKAQIIAWoMEAMQBBAJEA4QChAF"

	statusSucceeded = "STATUS_SUCCEEDED"
)

var clock = time.Now

type textRun struct {
	Text               string `json:"text"`
	NavigationEndpoint *struct {
		WatchEndpoint *struct {
			VideoID string `json:"videoId"`
		} `json:"watchEndpoint"`
	} `json:"navigationEndpoint"`
}

type flexColumn struct {
	Renderer struct {
		Text struct {
			Runs []textRun `json:"runs"`
		} `json:"text"`
	} `json:"musicResponsiveListItemFlexColumnRenderer"`
}

type listItemRenderer struct {
	FlexColumns      []flexColumn `json:"flexColumns"`
	PlaylistItemData *struct {
		VideoID string `json:"videoId"`
	} `json:"playlistItemData"`
}

type musicShelf struct {
	Contents []struct {
		Item *listItemRenderer `json:"musicResponsiveListItemRenderer"`
	} `json:"contents"`
}

type searchResponse struct {
	Contents struct {
		Tabbed struct {
			Tabs []struct {
				TabRenderer struct {
					Content struct {
						SectionList struct {
							Contents []struct {
								Shelf *musicShelf `json:"musicShelfRenderer"`
							} `json:"contents"`
						} `json:"sectionListRenderer"`
					} `json:"content"`
				} `json:"tabRenderer"`
			} `json:"tabs"`
		} `json:"tabbedSearchResultsRenderer"`
	} `json:"contents"`
}

// firstItem returns the first list item of the first non-empty shelf.
func (r *searchResponse) firstItem() *listItemRenderer {
	for _, tab := range r.Contents.Tabbed.Tabs {
		for _, section := range tab.TabRenderer.Content.SectionList.Contents {
			if section.Shelf == nil {
				continue
			}
			for _, c := range section.Shelf.Contents {
				if c.Item != nil {
					return c.Item
				}
			}
		}
	}
	return nil
}

func (it *listItemRenderer) column(i int) []textRun {
	if i >= len(it.FlexColumns) {
		return nil
	}
	return it.FlexColumns[i].Renderer.Text.Runs
}

func (it *listItemRenderer) videoID() string {
	if it.PlaylistItemData != nil && it.PlaylistItemData.VideoID != "" {
		return it.PlaylistItemData.VideoID
	}
	for _, run := range it.column(0) {
		if run.NavigationEndpoint != nil && run.NavigationEndpoint.WatchEndpoint != nil {
			return run.NavigationEndpoint.WatchEndpoint.VideoID
		}
	}
	return ""
}

func (it *listItemRenderer) track() *models.TargetTrack {
	t := &models.TargetTrack{VideoID: it.videoID()}
	if runs := it.column(0); len(runs) > 0 {
		t.Title = runs[0].Text
	}
	if runs := it.column(1); len(runs) > 0 {
		t.Artist = runs[0].Text
	}
	return t
}

// YouTubeClient calls the InnerTube API with an imported browser session.
type YouTubeClient struct {
	api     *resty.Client
	headers shared.Headers
	sapisid string
	version string
	logger  *log.Logger
}

// NewYouTubeClient builds a client from a normalized header set.
//
// The cookie must include __Secure-3PAPISID or SAPISID so requests can be signed.
func NewYouTubeClient(headers shared.Headers, opts ClientOptions) (*YouTubeClient, error) {
	sapisid := sapisidFromCookie(headers.Get("cookie"))
	if sapisid == "" {
		return nil, shared.NewAuthError("cookie has no SAPISID", shared.ErrMissingCredentials)
	}

	if opts.BaseURL == "" {
		opts.BaseURL = youtubeBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &YouTubeClient{
		api:     newRestClient(opts, isInnerTubeRead),
		headers: headers,
		sapisid: sapisid,
		version: "1." + clock().UTC().Format("20060102") + ".01.00",
		logger:  logger.WithPrefix(youtubeProvider),
	}, nil
}

// isInnerTubeRead allows retries for browse and search, which never mutate the library.
func isInnerTubeRead(r *resty.Request) bool {
	switch endpointName(r) {
	case "browse", "search":
		return true
	default:
		return false
	}
}

// sapisidHash computes the Authorization value expected by music.youtube.com.
func sapisidHash(sapisid string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	sum := sha1.Sum([]byte(ts + " " + sapisid + " " + youtubeMusicOrigin))
	return "SAPISIDHASH " + ts + "_" + hex.EncodeToString(sum[:])
}

func (c *YouTubeClient) post(ctx context.Context, endpoint string, payload map[string]any, out any) error {
	body := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    "WEB_REMIX",
				"clientVersion": c.version,
				"hl":            "en",
			},
			"user": map[string]any{},
		},
	}
	for k, v := range payload {
		body[k] = v
	}

	req := c.api.R().
		SetContext(ctx).
		SetQueryParam("alt", "json").
		SetBody(body)
	for name, value := range c.headers {
		if value != "" {
			req.SetHeader(name, value)
		}
	}
	req.SetHeader("authorization", sapisidHash(c.sapisid, clock()))
	req.SetHeader("origin", youtubeMusicOrigin)

	resp, err := req.Post("/" + endpoint)
	if err != nil {
		return fmt.Errorf("%w: youtube %s: %w", shared.ErrAPIRequest, endpoint, err)
	}
	return decodeResponse(resp, youtubeProvider, out)
}

// Home loads the home feed. It is used as a cheap check that the imported session still works.
func (c *YouTubeClient) Home(ctx context.Context) error {
	var out map[string]any
	if err := c.post(ctx, "browse", map[string]any{"browseId": "FEmusic_home"}, &out); err != nil {
		return err
	}
	if _, ok := out["contents"]; !ok {
		return fmt.Errorf("%w: youtube home feed has no contents", shared.ErrAPIRequest)
	}
	return nil
}

// Search returns the first song result for query, or nil when there is none.
func (c *YouTubeClient) Search(ctx context.Context, query string) (*models.TargetTrack, error) {
	var out searchResponse
	if err := c.post(ctx, "search", map[string]any{"query": query, "params": songsFilter}, &out); err != nil {
		return nil, err
	}

	item := out.firstItem()
	if item == nil {
		return nil, nil
	}
	track := item.track()
	if track.VideoID == "" {
		return nil, nil
	}
	return track, nil
}

// CreatePlaylist creates a private playlist and returns its id.
func (c *YouTubeClient) CreatePlaylist(ctx context.Context, title, description string) (string, error) {
	var out struct {
		PlaylistID string `json:"playlistId"`
	}
	payload := map[string]any{
		"title":         title,
		"description":   description,
		"privacyStatus": "PRIVATE",
	}
	if err := c.post(ctx, "playlist/create", payload, &out); err != nil {
		return "", err
	}
	if out.PlaylistID == "" {
		return "", fmt.Errorf("%w: youtube playlist/create returned no playlist id", shared.ErrAPIRequest)
	}

	c.logger.Debug("created playlist", "id", out.PlaylistID, "title", title)
	return out.PlaylistID, nil
}

// AddPlaylistItems appends videos to a playlist in a single edit.
func (c *YouTubeClient) AddPlaylistItems(ctx context.Context, playlistID string, videoIDs []string) error {
	if len(videoIDs) == 0 {
		return nil
	}

	actions := make([]map[string]any, 0, len(videoIDs))
	for _, id := range videoIDs {
		actions = append(actions, map[string]any{"action": "ACTION_ADD_VIDEO", "addedVideoId": id})
	}

	var out struct {
		Status string `json:"status"`
	}
	payload := map[string]any{
		"playlistId": strings.TrimPrefix(playlistID, "VL"),
		"actions":    actions,
	}
	if err := c.post(ctx, "browse/edit_playlist", payload, &out); err != nil {
		return err
	}
	if out.Status != statusSucceeded {
		return fmt.Errorf("%w: youtube edit_playlist status %q", shared.ErrAPIRequest, out.Status)
	}

	c.logger.Debug("added playlist items", "id", playlistID, "count", len(videoIDs))
	return nil
}
