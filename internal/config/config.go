package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/containerd/errdefs"

	"github.com/spin-stack/fsck-overlay/internal/repair"
)

// File is the TOML configuration file. Every field is optional and command
// line flags take precedence.
//
//	policy = "auto"
//	journal = "/var/lib/fsck.overlay/journal.db"
//	lock_dir = "/run/fsck.overlay"
//	log_level = "info"
//
//	[overlay]
//	lowerdir = ["/l1", "/l2"]
//	upperdir = "/u"
//	workdir = "/w"
type File struct {
	Policy   string `toml:"policy"`
	Journal  string `toml:"journal"`
	LockDir  string `toml:"lock_dir"`
	LogLevel string `toml:"log_level"`
	Verbose  bool   `toml:"verbose"`
	Overlay  Dirs   `toml:"overlay"`
}

// Load reads the configuration file at path. Unknown keys are rejected.
func Load(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in config %s: %w", undecoded[0].String(), path, errdefs.ErrInvalidArgument)
	}
	if f.Policy != "" {
		if _, err := repair.ParsePolicy(f.Policy); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return &f, nil
}
