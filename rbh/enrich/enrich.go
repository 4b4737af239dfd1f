// Package enrich resolves the partial enrichment requests a source adapter
// attaches under the reserved "rbh-fsevents" xattr key (spec.md §4.5),
// probing the live filesystem via a handle obtained from the event's id.
// Grounded on original_source/rbh-fsevents/src/enrichers/posix/posix.c,
// whose request-kind switch and ENOTSUP-based extension dispatch this
// package reproduces using golang.org/x/sys/unix's OpenByHandleAt and
// github.com/pkg/xattr for the xattr request kind, in place of raw
// syscall(SYS_open_by_handle_at)/fgetxattr calls.
package enrich

import (
	"context"
	"fmt"

	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"

	"github.com/rbh-project/rbh4/internal/rbherrors"
	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/source/posix"
)

// maxSymlinkSize bounds readlinkat's buffer, per spec.md §4.5.
const maxSymlinkSize = 64 * 1024

// Extension claims xattr keys an enricher doesn't recognize itself — the
// Lustre/retention slot from spec.md §4.5's "ordered list of extension
// enrichers". Enrich returns (false, nil) when it doesn't claim key (the
// ENOTSUP case), letting the pipeline try the next extension.
type Extension interface {
	Enrich(ctx context.Context, fd int, ev *rbh.FSEvent, key string) (claimed bool, err error)
}

// Enricher resolves enrichment requests against one mounted filesystem.
type Enricher struct {
	mountFD     int
	extensions  []Extension
	skipOnError bool

	retentionSourceKey string
	retentionDestKey   string
}

// Config configures an Enricher.
type Config struct {
	MountPath   string
	Extensions  []Extension
	SkipOnError bool
	// RetentionSourceKey/RetentionDestKey override the default
	// user.expires → trusted.expiration_date retention mapping.
	RetentionSourceKey string
	RetentionDestKey   string
}

// New opens the mount point and returns a ready Enricher.
func New(cfg Config) (*Enricher, error) {
	fd, err := unix.Open(cfg.MountPath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, rbherrors.Resource("open-mount", err)
	}
	src, dst := cfg.RetentionSourceKey, cfg.RetentionDestKey
	if src == "" {
		src = "user.expires"
	}
	if dst == "" {
		dst = "trusted.expiration_date"
	}
	return &Enricher{
		mountFD: fd, extensions: cfg.Extensions, skipOnError: cfg.SkipOnError,
		retentionSourceKey: src, retentionDestKey: dst,
	}, nil
}

// Close releases the mount fd.
func (e *Enricher) Close() error { return unix.Close(e.mountFD) }

// openByID opens the entry id names with O_NOFOLLOW|O_CLOEXEC, retrying
// with O_PATH on ELOOP (the entry is itself a symlink) — the Go mirror of
// posix.c's open_by_id wrapper around open_by_handle_at.
func (e *Enricher) openByID(id rbh.Id) (int, error) {
	_, raw, ok := posix.DecodeHandle(id)
	if !ok {
		return -1, rbherrors.NotSupported("open-by-id")
	}
	handle, ok := posix.ReconstructFileHandle(raw)
	if !ok {
		return -1, rbherrors.NotSupported("open-by-id")
	}

	fd, err := unix.OpenByHandleAt(e.mountFD, handle, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC)
	if err == unix.ELOOP {
		fd, err = unix.OpenByHandleAt(e.mountFD, handle, unix.O_RDONLY|unix.O_PATH|unix.O_CLOEXEC)
	}
	if err != nil {
		if err == unix.ENOENT || err == unix.ESTALE {
			return -1, rbherrors.Transient("open-by-handle", id.String(), err)
		}
		return -1, rbherrors.Permission("open-by-handle", id.String(), err)
	}
	return fd, nil
}

// Enrich resolves every pending request in ev.RawXattrs and returns an
// event with those requests replaced by their resolved values. Events that
// don't need enrichment pass through unchanged.
func (e *Enricher) Enrich(ctx context.Context, ev rbh.FSEvent) (rbh.FSEvent, error) {
	if !ev.NeedsEnrichment() {
		return ev, nil
	}

	fd, err := e.openByID(ev.ID)
	if err != nil {
		return rbh.FSEvent{}, err
	}
	defer unix.Close(fd)

	out := ev
	out.RawXattrs = nil
	if out.Type == rbh.EventUpsert && out.Upsert.InodeXattrs == nil {
		out.Upsert.InodeXattrs = rbh.NewPartialXattrs()
	}

	var resolveErr error
	ev.RawXattrs.Range(func(key string, v rbh.Value) bool {
		switch key {
		case "statx":
			resolveErr = e.enrichStatx(fd, &out, rbh.StatXMask(v.Uint32()))
		case "symlink":
			resolveErr = e.enrichSymlink(fd, &out)
		case "xattrs":
			resolveErr = e.enrichXattrs(fd, &out, v)
		case "path":
			resolveErr = e.enrichPath(ctx, fd, &out)
		case "lustre":
			resolveErr = e.dispatchExtension(ctx, fd, &out, "lustre")
		case "retention":
			resolveErr = e.enrichRetention(fd, &out)
		default:
			resolveErr = e.dispatchExtension(ctx, fd, &out, key)
		}
		return resolveErr == nil
	})
	if resolveErr != nil {
		return rbh.FSEvent{}, resolveErr
	}
	return out, nil
}

func (e *Enricher) enrichStatx(fd int, ev *rbh.FSEvent, mask rbh.StatXMask) error {
	var st unix.Statx_t
	if err := unix.Statx(fd, "", unix.AT_EMPTY_PATH|unix.AT_STATX_FORCE_SYNC, int(statxLinuxMask(mask)), &st); err != nil {
		return rbherrors.Transient("statx", ev.ID.String(), err)
	}
	resolved := fromLinuxStatx(st)
	ev.Upsert.HasStatX = true
	ev.Upsert.StatX = resolved.Merge(ev.Upsert.StatX)
	return nil
}

func (e *Enricher) enrichSymlink(fd int, ev *rbh.FSEvent) error {
	buf := make([]byte, maxSymlinkSize)
	n, err := unix.Readlinkat(fd, "", buf)
	if err != nil {
		return rbherrors.Transient("readlink", ev.ID.String(), err)
	}
	ev.Upsert.HasSymlink = true
	ev.Upsert.Symlink = string(buf[:n])
	return nil
}

func (e *Enricher) enrichXattrs(fd int, ev *rbh.FSEvent, keys rbh.Value) error {
	procPath := fmt.Sprintf("/proc/self/fd/%d", fd)
	for _, k := range keys.Sequence() {
		key := k.String()
		v, err := xattr.Get(procPath, key)
		if err != nil {
			ev.Upsert.InodeXattrs.Set(key, rbh.XattrEdit{Op: rbh.XattrUnset})
			continue
		}
		ev.Upsert.InodeXattrs.Set(key, rbh.XattrEdit{Op: rbh.XattrSet, Payload: rbh.NewBinary(v)})
	}
	return nil
}

// enrichPath is Lustre-only (fid→path translation); without a Lustre
// extension registered it's simply not supported.
func (e *Enricher) enrichPath(ctx context.Context, fd int, ev *rbh.FSEvent) error {
	return e.dispatchExtension(ctx, fd, ev, "path")
}

func (e *Enricher) enrichRetention(fd int, ev *rbh.FSEvent) error {
	procPath := fmt.Sprintf("/proc/self/fd/%d", fd)
	v, err := xattr.Get(procPath, e.retentionSourceKey)
	if err != nil {
		return nil // no retention xattr set: nothing to derive
	}
	ev.Upsert.InodeXattrs.Set(e.retentionDestKey, rbh.XattrEdit{Op: rbh.XattrSet, Payload: rbh.NewBinary(v)})
	return nil
}

// dispatchExtension asks each registered extension in turn; the first to
// claim key wins, mirroring posix_extension_enrich's ENOTSUP-skip loop.
func (e *Enricher) dispatchExtension(ctx context.Context, fd int, ev *rbh.FSEvent, key string) error {
	for _, ext := range e.extensions {
		claimed, err := ext.Enrich(ctx, fd, ev, key)
		if err != nil {
			return err
		}
		if claimed {
			return nil
		}
	}
	if e.skipOnError {
		return nil
	}
	return rbherrors.NotSupported(fmt.Sprintf("enrich:%s", key))
}

func statxLinuxMask(m rbh.StatXMask) uint32 {
	var out uint32
	if m.Has(rbh.StatXType) {
		out |= unix.STATX_TYPE
	}
	if m.Has(rbh.StatXMode) {
		out |= unix.STATX_MODE
	}
	if m.Has(rbh.StatXNlink) {
		out |= unix.STATX_NLINK
	}
	if m.Has(rbh.StatXUID) {
		out |= unix.STATX_UID
	}
	if m.Has(rbh.StatXGID) {
		out |= unix.STATX_GID
	}
	if m.Has(rbh.StatXAtime) {
		out |= unix.STATX_ATIME
	}
	if m.Has(rbh.StatXMtime) {
		out |= unix.STATX_MTIME
	}
	if m.Has(rbh.StatXCtime) {
		out |= unix.STATX_CTIME
	}
	if m.Has(rbh.StatXBtime) {
		out |= unix.STATX_BTIME
	}
	if m.Has(rbh.StatXIno) {
		out |= unix.STATX_INO
	}
	if m.Has(rbh.StatXSize) {
		out |= unix.STATX_SIZE
	}
	if m.Has(rbh.StatXBlocks) {
		out |= unix.STATX_BLOCKS
	}
	return out
}

func fromLinuxStatx(st unix.Statx_t) rbh.StatX {
	return rbh.StatX{
		Mask:    rbh.StatXAll,
		Type:    fileTypeFromStatxMode(st.Mode),
		Mode:    st.Mode &^ unix.S_IFMT,
		Nlink:   st.Nlink,
		UID:     st.Uid,
		GID:     st.Gid,
		Size:    st.Size,
		Blocks:  st.Blocks,
		Blksize: st.Blksize,
		Ino:     st.Ino,
		Atime:   rbh.Timestamp{Sec: st.Atime.Sec, Nsec: st.Atime.Nsec},
		Btime:   rbh.Timestamp{Sec: st.Btime.Sec, Nsec: st.Btime.Nsec},
		Ctime:   rbh.Timestamp{Sec: st.Ctime.Sec, Nsec: st.Ctime.Nsec},
		Mtime:   rbh.Timestamp{Sec: st.Mtime.Sec, Nsec: st.Mtime.Nsec},
		Dev:     rbh.DeviceID{Major: st.Dev_major, Minor: st.Dev_minor},
		Rdev:    rbh.DeviceID{Major: st.Rdev_major, Minor: st.Rdev_minor},
		MountID: uint64(0),
	}
}

func fileTypeFromStatxMode(mode uint16) rbh.FileType {
	switch uint32(mode) & unix.S_IFMT {
	case unix.S_IFREG:
		return rbh.FileTypeRegular
	case unix.S_IFDIR:
		return rbh.FileTypeDirectory
	case unix.S_IFLNK:
		return rbh.FileTypeSymlink
	case unix.S_IFBLK:
		return rbh.FileTypeBlockDev
	case unix.S_IFCHR:
		return rbh.FileTypeCharDev
	case unix.S_IFIFO:
		return rbh.FileTypeFIFO
	case unix.S_IFSOCK:
		return rbh.FileTypeSocket
	default:
		return rbh.FileTypeUnknown
	}
}
