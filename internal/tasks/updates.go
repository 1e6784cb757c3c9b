package tasks

import (
	"fmt"

	"github.com/desertthunder/songbridge/internal/models"
)

// ProgressUpdate is one progress event emitted while a conversion runs.
type ProgressUpdate struct {
	Phase   Phase  // Conversion phase
	Step    int    // Current step within the phase
	Total   int    // Steps in the phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific payload
}

// Phase identifies a stage of a conversion.
type Phase int

const (
	FetchSource Phase = iota
	CreatePlaylist
	SearchTracks
	AddTracks
	Done
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case CreatePlaylist:
		return "create_playlist"
	case SearchTracks:
		return "search_tracks"
	case AddTracks:
		return "add_tracks"
	case Done:
		return "done"
	default:
		return ""
	}
}

func fetchingSourceUpdate(source string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlist from %s...", source),
	}
}

func creatingPlaylistUpdate(title string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Creating %q for %d tracks...", title, tracks),
	}
}

func searchingTrackUpdate(step, total int, res models.MatchResult) ProgressUpdate {
	msg := fmt.Sprintf("Matched %s", res.Source)
	switch {
	case res.Err != nil:
		msg = fmt.Sprintf("Search failed for %s", res.Source)
	case !res.Matched():
		msg = fmt.Sprintf("No match for %s", res.Source)
	}
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func addingTracksUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Adding %d tracks...", count),
	}
}

func doneUpdate(result *models.ConversionResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    result.Matched,
		Total:   result.Total,
		Message: fmt.Sprintf("Converted %d/%d tracks", result.Matched, result.Total),
		Data:    result,
	}
}
