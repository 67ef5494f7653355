// Package occurrence virtualizes recurrence patterns into concrete
// occurrences and translates edits on those occurrences into cancellation
// and modification rows.
//
// A query merges three sources: the instants each pattern generates inside
// the window, the cancellations and modifications stored against those
// instants, and standalone instances. Nothing is materialized per
// occurrence; a VirtualEntry only exists in query results.
//
// Mutations dispatch on the Entry variant:
//
//	PatternEntry    update Duration/Extensions, delete cascades
//	InstanceEntry   update StartTime/Duration/Extensions, delete
//	VirtualEntry    update creates or edits a Modification,
//	                delete creates a Cancellation at OriginalTime,
//	                restore removes the Modification
package occurrence
