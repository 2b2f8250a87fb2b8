// Package file provides a BackupSink that copies the store database into a
// directory of timestamped snapshots and keeps the newest few.
package file
