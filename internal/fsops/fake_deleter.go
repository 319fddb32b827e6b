package fsops

// FakeDeleter implements Deleter for testing.
// It records every call and fails the paths listed in Fail without
// touching the filesystem.
type FakeDeleter struct {
	Calls []string
	Fail  map[string]error
}

func (f *FakeDeleter) Remove(path string) error {
	f.Calls = append(f.Calls, "rm:"+path)
	if err, ok := f.Fail[path]; ok {
		return err
	}
	return nil
}
