/*
Package mirrorclone is a tool for mirroring large remote content
repositories into a local or remote target store.

mirror-clone snapshots the source and the target, plans the set
difference, and transfers the missing objects with features including:
  - Concurrent snapshot scans with bounded fan-out
  - Per-object timeouts with isolated failure handling
  - Simple-index (PyPI style) and rsync listing sources
  - Local filesystem and S3-compatible targets
  - Ordered key-list artifacts for downstream tooling

The main packages are:

	github.com/skyzh/mirror-clone/internal/index    - Index page and listing line parsing
	github.com/skyzh/mirror-clone/internal/mirror   - Storage abstraction and diff-transfer engine
	github.com/skyzh/mirror-clone/cmd/mirror-clone  - Command-line interface
*/
package mirrorclone
