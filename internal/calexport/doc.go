// Package calexport renders occurrence query results as iCalendar (RFC 5545),
// xCal (RFC 6321) or JSON.
//
// Virtualized occurrences share the UID of their pattern and carry a
// RECURRENCE-ID holding the original generation instant. Occurrences with an
// override applied are marked with X-CALDORA-MODIFIED:TRUE.
package calexport
