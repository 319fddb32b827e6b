package fsops

// Deleter abstracts single-entry filesystem removal.
// The cleaner removes one entry at a time and never removes recursively.
type Deleter interface {
	Remove(path string) error
}
