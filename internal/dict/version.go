// Package dict holds the static schema data the codec runs against: the
// field catalog (tag, type, structural rule), per-message-type layouts, and
// the built-in session-level dictionaries for every supported FIX version.
// Dictionaries are built once and never mutated afterwards; construction
// validates every cross-reference so that malformed schema data fails at
// startup instead of per message.
package dict

import "fmt"

// Version is an application message version: the set of fields and messages
// in effect. For FIX 4.x the version is fixed by the BeginString; under
// FIXT.1.1 it is negotiated at logon (DefaultApplVerID) and may be overridden
// per message with the header ApplVerID field.
type Version int

const (
	FIX40 Version = iota
	FIX41
	FIX42
	FIX43
	FIX44
	FIX50
	FIX50SP1
	FIX50SP2

	versionCount
)

// Begin strings as they appear on the wire in tag 8.
const (
	BeginStringFIX40  = "FIX.4.0"
	BeginStringFIX41  = "FIX.4.1"
	BeginStringFIX42  = "FIX.4.2"
	BeginStringFIX43  = "FIX.4.3"
	BeginStringFIX44  = "FIX.4.4"
	BeginStringFIXT11 = "FIXT.1.1"
)

var versionNames = [...]string{"FIX.4.0", "FIX.4.1", "FIX.4.2", "FIX.4.3", "FIX.4.4", "FIX.5.0", "FIX.5.0SP1", "FIX.5.0SP2"}

func (v Version) String() string {
	if v < 0 || int(v) >= len(versionNames) {
		return fmt.Sprintf("Version(%d)", int(v))
	}
	return versionNames[v]
}

// Versions lists every supported application version, oldest first.
func Versions() []Version {
	out := make([]Version, versionCount)
	for i := range out {
		out[i] = Version(i)
	}
	return out
}

// BeginString returns the wire BeginString used when serializing messages of
// this version. FIX 5.0 and its service packs ride on FIXT.1.1 transport.
func (v Version) BeginString() string {
	switch v {
	case FIX40:
		return BeginStringFIX40
	case FIX41:
		return BeginStringFIX41
	case FIX42:
		return BeginStringFIX42
	case FIX43:
		return BeginStringFIX43
	case FIX44:
		return BeginStringFIX44
	default:
		return BeginStringFIXT11
	}
}

// FIXT reports whether the version is carried over the FIXT.1.1 transport,
// which imposes the fixed header positions for SenderCompID, TargetCompID,
// and the optional ApplVerID.
func (v Version) FIXT() bool {
	return v >= FIX50
}

// VersionFromBeginString resolves tag 8 to a message version. FIXT.1.1 maps
// to defaultVersion, which the session negotiates during logon.
func VersionFromBeginString(bs string, defaultVersion Version) (Version, bool) {
	switch bs {
	case BeginStringFIX40:
		return FIX40, true
	case BeginStringFIX41:
		return FIX41, true
	case BeginStringFIX42:
		return FIX42, true
	case BeginStringFIX43:
		return FIX43, true
	case BeginStringFIX44:
		return FIX44, true
	case BeginStringFIXT11:
		if defaultVersion.FIXT() {
			return defaultVersion, true
		}
		return FIX50SP2, true
	}
	return 0, false
}

// ApplVerID enumeration values from tag 1128/1137.
var applVerIDs = map[string]Version{
	"2": FIX40,
	"3": FIX41,
	"4": FIX42,
	"5": FIX43,
	"6": FIX44,
	"7": FIX50,
	"8": FIX50SP1,
	"9": FIX50SP2,
}

// VersionFromApplVerID resolves an ApplVerID enumeration value.
func VersionFromApplVerID(s string) (Version, bool) {
	v, ok := applVerIDs[s]
	return v, ok
}

// ApplVerID returns the enumeration value for tag 1128/1137.
func (v Version) ApplVerID() string {
	for s, ver := range applVerIDs {
		if ver == v {
			return s
		}
	}
	return ""
}
