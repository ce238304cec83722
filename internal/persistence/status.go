// Package persistence pushes the editor's graph to the flow server: a
// debounced autosaver plus the HTTP client for GET/PUT /api/flow.
package persistence

// SaveStatus reflects the most recent save attempt.
type SaveStatus int

const (
	SaveIdle SaveStatus = iota
	SaveSaving
	SaveSaved
	SaveError
)

func (s SaveStatus) String() string {
	switch s {
	case SaveIdle:
		return "idle"
	case SaveSaving:
		return "saving"
	case SaveSaved:
		return "saved"
	case SaveError:
		return "error"
	}
	return "unknown"
}

// LoadStatus reflects the initial fetch of the persisted graph.
type LoadStatus int

const (
	LoadIdle LoadStatus = iota
	LoadLoading
	LoadLoaded
	LoadError
)

func (s LoadStatus) String() string {
	switch s {
	case LoadIdle:
		return "idle"
	case LoadLoading:
		return "loading"
	case LoadLoaded:
		return "loaded"
	case LoadError:
		return "error"
	}
	return "unknown"
}
