// Package dcpver carries the protocol/implementation version exchanged
// between the CLI and the daemons' command servers, mirroring the
// semver-based daemon/CLI version handshake of the teacher stack.
package dcpver

import "github.com/blang/semver"

// CurrentVersion is the version of this implementation's command-surface
// wire format. A command server rejects a request whose declared version
// is incompatible rather than guessing at a different struct layout.
var CurrentVersion = semver.MustParse("1.0.0")

// Compatible reports whether a peer-declared version can speak this
// implementation's command surface. Only the major version must match;
// see §7 — a request with the wrong struct size is a fatal version-skew
// signal, version incompatibility is the cheap check that avoids it.
func Compatible(peer semver.Version) bool {
	return peer.Major == CurrentVersion.Major
}

// Parse wraps semver.Make for callers that only have a version string off
// the wire (e.g. a command-server request's ClientVersion field).
func Parse(v string) (semver.Version, error) {
	return semver.Make(v)
}
