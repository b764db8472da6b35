package manifest

import "github.com/leafpkg/leaf/pkg/hash"

// AvailablePackage is a Manifest plus its remote origin (spec.md §3): a
// package the engine has seen in a fetched index but has not installed.
type AvailablePackage struct {
	Manifest     *Manifest
	URL          string
	Size         int64
	Hash         hash.Hash
	RemoteOrigin string
}

// InstalledPackage is a Manifest plus the absolute folder it was
// extracted into.
type InstalledPackage struct {
	Manifest *Manifest
	Folder   string
}

// LeafArtifact is a Manifest plus the local archive path, used by the
// releng package/index generator before a package has a remote origin.
type LeafArtifact struct {
	Manifest    *Manifest
	ArchivePath string
}
