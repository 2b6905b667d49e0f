//go:build unix

package filestore

import "syscall"

// FreeSpace returns the number of bytes available to the app on the volume
// holding the recordings root, or FreeSpaceUnknown when the platform cannot
// report it.
func (s *Store) FreeSpace() int64 {
	var st syscall.Statfs_t
	if err := syscall.Statfs(s.root, &st); err != nil {
		return FreeSpaceUnknown
	}
	return int64(st.Bavail) * int64(st.Bsize)
}
