package registry

import "path/filepath"

// Paths are the canonical filesystem locations derived from an instance
// name. Every component resolves artifacts through these, never by
// building paths itself.
type Paths struct {
	Root       string // <base>/<name>
	PKIDir     string // <base>/<name>/easy-rsa
	CCDDir     string // <base>/<name>/ccd
	ConfigPath string // <base>/<name>/server.conf
	StatusPath string // <base>/<name>/openvpn-status.log
	LogPath    string // <base>/<name>/openvpn.log
}

// DerivePaths computes the canonical per-instance paths under baseDir.
func DerivePaths(baseDir, name string) Paths {
	root := filepath.Join(baseDir, name)
	return Paths{
		Root:       root,
		PKIDir:     filepath.Join(root, "easy-rsa"),
		CCDDir:     filepath.Join(root, "ccd"),
		ConfigPath: filepath.Join(root, "server.conf"),
		StatusPath: filepath.Join(root, "openvpn-status.log"),
		LogPath:    filepath.Join(root, "openvpn.log"),
	}
}

// DeviceName returns the per-instance virtual interface name used for
// firewall rule scoping.
func DeviceName(name string) string {
	// Kernel interface names are capped at 15 characters.
	dev := "tun-" + name
	if len(dev) > 15 {
		dev = dev[:15]
	}
	return dev
}
