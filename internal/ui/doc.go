// Package ui renders CLI output.
//
// [Styles] is the shared [lipgloss] palette. [ConvertModel] is a bubbletea program that runs one
// conversion, following its [tasks.ProgressUpdate] stream with a spinner and a progress bar, and
// shows the matched counts and unmatched tracks at the end. Quitting cancels the conversion.
package ui
