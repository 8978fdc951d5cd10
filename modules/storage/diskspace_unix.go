//go:build unix

package storage

import "golang.org/x/sys/unix"

// freeMB reports the space available to unprivileged users under path.
func freeMB(path string) (float64, bool) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false
	}
	return float64(st.Bavail) * float64(st.Bsize) / (1024 * 1024), true
}
