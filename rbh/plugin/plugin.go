// Package plugin is the dynamic backend/extension registry described in
// spec.md §4.1 and §6: plugins self-register under a canonical name and
// version, extensions attach to a super-plugin and are version-gated, and a
// process-wide refcounted initializer serializes first-touch/last-release
// of any shared runtime (the parallel-filesystem library, in the spec's
// terms) multiple backends might need.
//
// In-process registration (the common case for a statically linked Go
// binary) mirrors the teacher's fs.Register(&fs.RegInfo{...}) pattern, seen
// in every backend/*/*.go's init(). Loading a shared object into the running
// process at run time is also supported via the standard library's plugin package, which is the
// idiomatic Go analogue of the spec's dlopen/dlsym-based loader — Go ships
// exactly one mechanism for this and there is no third-party alternative
// that does the job better.
package plugin

import (
	"fmt"
	gopl "plugin"
	"regexp"
	"strings"
	"sync"

	"github.com/rbh-project/rbh4/rbh"
)

// Factory constructs a Backend from a URI fragment (the "fsname" part of
// rbh:backend:fsname[#frag]) and a free-form config map.
type Factory func(fsname string, config *rbh.ValueMap) (rbh.Backend, error)

// Info describes a registered backend plugin, the Go-side equivalent of the
// spec's "{ name, version, ops-table, capability-mask, info-mask }" tuple.
type Info struct {
	Name         string
	Version      rbh.Version
	Capabilities rbh.Capability
	New          Factory
}

// ExtensionOps are the "common operations" an extension contributes,
// consumed by the find/report drivers (spec.md §4.1).
type ExtensionOps struct {
	CheckValidToken func(token string) bool
	BuildFilter     func(token string, args []string) (rbh.Filter, error)
	FillEntryInfo   func(e *rbh.FSEntry) error
	DeleteEntry     func(id rbh.Id) error
}

// ExtensionInfo describes a registered extension: the super-plugin it
// attaches to, the version window it's valid for, and its operations.
type ExtensionInfo struct {
	Super       string
	Name        string
	MinVersion  rbh.Version
	MaxVersion  rbh.Version
	Ops         ExtensionOps
}

type registry struct {
	mu         sync.RWMutex
	backends   map[string]*Info
	extensions map[string][]*ExtensionInfo // keyed by super name
}

var global = &registry{
	backends:   make(map[string]*Info),
	extensions: make(map[string][]*ExtensionInfo),
}

// Register adds a backend plugin to the global registry. It is meant to be
// called from an init() function, the way every rclone backend registers
// itself with fs.Register.
func Register(info *Info) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.backends[info.Name] = info
}

// RegisterExtension attaches ext to its declared Super plugin.
func RegisterExtension(ext *ExtensionInfo) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.extensions[ext.Super] = append(global.extensions[ext.Super], ext)
}

// Lookup resolves a backend plugin by name.
func Lookup(name string) (*Info, error) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	info, ok := global.backends[name]
	if !ok {
		return nil, fmt.Errorf("plugin: no backend registered under name %q", name)
	}
	return info, nil
}

// Extensions returns the extensions attached to superName whose version
// window covers superVersion, in registration order.
func Extensions(superName string, superVersion rbh.Version) []*ExtensionInfo {
	global.mu.RLock()
	defer global.mu.RUnlock()
	all := global.extensions[superName]
	out := make([]*ExtensionInfo, 0, len(all))
	for _, ext := range all {
		if superVersion.InRange(ext.MinVersion, ext.MaxVersion) {
			out = append(out, ext)
		}
	}
	return out
}

// New resolves name and constructs a Backend for fsname with config.
func New(name, fsname string, config *rbh.ValueMap) (rbh.Backend, error) {
	info, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return info.New(fsname, config)
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// SharedObjectFilename derives "lib<prefix>-<name>.<ext>", per spec.md §6.
func SharedObjectFilename(prefix, name, ext string) string {
	return fmt.Sprintf("lib%s-%s.%s", prefix, name, ext)
}

// SymbolName derives "<PREFIX>_<UPPERCASE_NAME>_BACKEND_PLUGIN", with
// non-alphanumerics in name replaced by underscores, per spec.md §6.
func SymbolName(prefix, name string) string {
	clean := nonAlnum.ReplaceAllString(name, "_")
	return fmt.Sprintf("%s_%s_BACKEND_PLUGIN", strings.ToUpper(prefix), strings.ToUpper(clean))
}

// ExtensionSymbolName derives "<PREFIX>_<SUPER>_<EXT>_PLUGIN_EXTENSION".
func ExtensionSymbolName(prefix, super, ext string) string {
	cleanSuper := nonAlnum.ReplaceAllString(super, "_")
	cleanExt := nonAlnum.ReplaceAllString(ext, "_")
	return fmt.Sprintf("%s_%s_%s_PLUGIN_EXTENSION", strings.ToUpper(prefix), strings.ToUpper(cleanSuper), strings.ToUpper(cleanExt))
}

// LoadSharedObject opens a real .so file with the standard library's
// plugin package and looks up the canonically-named *Info symbol, the
// literal dlopen/dlsym path from spec.md §6. It is only available on
// platforms the plugin package supports (linux/amd64 et al.).
func LoadSharedObject(path, prefix, name string) (*Info, error) {
	p, err := gopl.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: opening %s: %w", path, err)
	}
	sym, err := p.Lookup(SymbolName(prefix, name))
	if err != nil {
		return nil, fmt.Errorf("plugin: looking up symbol in %s: %w", path, err)
	}
	info, ok := sym.(*Info)
	if !ok {
		return nil, fmt.Errorf("plugin: symbol in %s is not *plugin.Info", path)
	}
	return info, nil
}
