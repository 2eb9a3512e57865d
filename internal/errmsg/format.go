// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Store
	OpOpen   Op = "open library database"
	OpConfig Op = "load configuration"

	// Library
	OpTrackDelete  Op = "delete track from library"
	OpPathRemove   Op = "remove tracks under path"
	OpFileDelete   Op = "delete file"
	OpTrackMissing Op = "list missing tracks"

	// Search index
	OpSearch  Op = "search library"
	OpReindex Op = "rebuild search index"

	// Maintenance
	OpRepair   Op = "repair library"
	OpMaintain Op = "run maintenance"

	// Stats and recents
	OpStatsTop   Op = "load top artists"
	OpStatsPrune Op = "prune listening stats"
	OpRecents    Op = "load recent items"
	OpHistory    Op = "load listening history"

	// Imports
	OpImportBatch Op = "load import batch"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
