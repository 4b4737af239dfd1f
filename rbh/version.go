package rbh

import "fmt"

// Version packs a plugin's (major, minor, revision) triple into a single
// uint64: a 10-bit major field followed by two 21-bit fields, per spec.md
// §4.1 ("3×21-bit packed into 64 bits (with a 10-bit major field)").
type Version uint64

const (
	versionMinorBits    = 21
	versionRevisionBits = 21
	versionMajorShift    = versionMinorBits + versionRevisionBits // 42
	versionMinorShift    = versionRevisionBits                    // 21
	versionMinorMask     = (1 << versionMinorBits) - 1
	versionRevisionMask  = (1 << versionRevisionBits) - 1
	versionMajorMask     = (1 << 10) - 1
)

// NewVersion packs major/minor/revision. Callers that exceed a field's bit
// width get silently masked — the packed encoding itself, not this
// constructor, is the documented contract surface.
func NewVersion(major, minor, revision uint32) Version {
	v := (uint64(major) & versionMajorMask) << versionMajorShift
	v |= (uint64(minor) & versionMinorMask) << versionMinorShift
	v |= uint64(revision) & versionRevisionMask
	return Version(v)
}

// Major returns the packed major component.
func (v Version) Major() uint32 { return uint32((uint64(v) >> versionMajorShift) & versionMajorMask) }

// Minor returns the packed minor component.
func (v Version) Minor() uint32 { return uint32((uint64(v) >> versionMinorShift) & versionMinorMask) }

// Revision returns the packed revision component.
func (v Version) Revision() uint32 { return uint32(uint64(v) & versionRevisionMask) }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Revision())
}

// InRange reports whether v falls within [min, max] inclusive — the check
// an extension's min_version..max_version declaration gates on (spec.md
// §4.1, "rejected if super.version lies outside that range").
func (v Version) InRange(min, max Version) bool {
	return v >= min && v <= max
}
