//go:build !unix

package filestore

// FreeSpace returns FreeSpaceUnknown on platforms without a statfs
// equivalent wired up.
func (s *Store) FreeSpace() int64 {
	return FreeSpaceUnknown
}
