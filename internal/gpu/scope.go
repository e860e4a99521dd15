package gpu

// Scope collects release functions for resources acquired while building a
// larger resource set. If construction fails the scope releases everything
// acquired so far, newest first; if it succeeds the caller calls Keep and
// ownership passes to whatever now holds the handles.
//
//	var scope gpu.Scope
//	defer scope.ReleaseOnError(&err)
type Scope struct {
	releases []func()
}

// Add registers release to run if the scope is released.
func (s *Scope) Add(release func()) {
	s.releases = append(s.releases, release)
}

// Track registers the handle's Destroy.
func (s *Scope) Track(handle Destroyer) {
	s.Add(handle.Destroy)
}

// Release runs every registered release function in reverse order and empties
// the scope.
func (s *Scope) Release() {
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i]()
	}
	s.releases = nil
}

// ReleaseOnError releases the scope when *err is non-nil. Meant for defer.
func (s *Scope) ReleaseOnError(err *error) {
	if *err != nil {
		s.Release()
	}
}

// Keep forgets every registered release function without running it.
func (s *Scope) Keep() {
	s.releases = nil
}
