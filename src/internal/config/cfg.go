// Package config loads and validates the gomtpfs configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/go-utilities/file"
)

// ValueKey represents value keys carried in a context.Context
type ValueKey string

const (
	// KeyCfg is the key for the gomtpfs configuration
	KeyCfg ValueKey = "cfg"
	// KeyVersion is the key for the gomtpfs version
	KeyVersion ValueKey = "version"
)

const (
	// CfgDir is the directory where the gomtpfs configuration is stored
	CfgDir = "/etc/gomtpfs"
	// path of the gomtpfs configuration file
	cfgFilepath = CfgDir + "/config.json"
)

// Cfg stores the data from the gomtpfs configuration file
type Cfg struct {
	Device   device `json:"device"`
	Cnt      cnt    `json:"content"`
	LogDir   string `json:"log_dir"`
	LogLevel string `json:"log_level"`
}

type device struct {
	// Index selects which raw MTP device to open when more than one is
	// attached. Enumeration itself is left to the driver.
	Index int `json:"index"`
	// OpenTimeout bounds how long DeviceSession.Open waits for the device
	OpenTimeout time.Duration `json:"open_timeout"`
}

type cnt struct {
	// StagingDir is where StagingStore creates its temporary files. Empty
	// means the OS default temp directory is used.
	StagingDir string `json:"staging_dir"`
	// TagSeparator splits multi-value ID3 frames (e.g. "Rock;Pop") into
	// several logical values. Empty disables splitting.
	TagSeparator string `json:"tag_separator"`
	// PlaylistDirName is the virtual directory under which playlists
	// appear as synthesized .m3u files
	PlaylistDirName string `json:"playlist_dir_name"`
	// LostFoundName is the virtual directory name for orphaned files
	LostFoundName string `json:"lost_found_dir_name"`
}

// Load reads the configuration file and returns the gomtpfs config as a
// structure
func Load() (cfg Cfg, err error) {
	cfgFile, err := ioutil.ReadFile(cfgFilepath)
	if err != nil {
		return Cfg{}, errors.Wrapf(err, "config file '%s' couldn't be read", cfgFilepath)
	}

	if err = json.Unmarshal(cfgFile, &cfg); err != nil {
		return Cfg{}, errors.Wrapf(err, "config file '%s' couldn't be unmarshalled", cfgFilepath)
	}

	cfg.applyDefaults()

	return
}

// applyDefaults fills in values the user is allowed to omit from the config
// file but that must not be empty at runtime
func (me *Cfg) applyDefaults() {
	if me.Cnt.PlaylistDirName == "" {
		me.Cnt.PlaylistDirName = "Playlists"
	}
	if me.Cnt.LostFoundName == "" {
		me.Cnt.LostFoundName = "lost+found"
	}
	if me.LogLevel == "" {
		me.LogLevel = "info"
	}
	if me.Device.OpenTimeout <= 0 {
		me.Device.OpenTimeout = 30 * time.Second
	}
}

// Validate checks if the configuration is complete and correct. If it's not,
// an error is returned
func (me *Cfg) Validate() (err error) {
	if err = validateDir(me.LogDir, "log_dir"); err != nil {
		return
	}
	if me.Cnt.StagingDir != "" {
		if err = validateDir(me.Cnt.StagingDir, "content.staging_dir"); err != nil {
			return
		}
	}
	if me.Device.Index < 0 {
		err = fmt.Errorf("device.index must not be negative")
		return
	}
	if me.Device.OpenTimeout <= 0 {
		err = fmt.Errorf("device.open_timeout must be > 0")
		return
	}
	return
}

// Test reads the configuration file and checks the configuration for
// completeness and consistency
func Test() (err error) {
	var cfg Cfg

	if cfg, err = Load(); err != nil {
		err = errors.Wrapf(err, "the gomtpfs configuration file '%s' couldn't be read", cfgFilepath)
		return
	}

	if err = cfg.Validate(); err != nil {
		return
	}

	fmt.Println("Congrats: The gomtpfs configuration is complete and consistent :)")
	return
}

// validateDir checks if dir exists. name is the name used for that directory
// in error messages
func validateDir(dir, name string) (err error) {
	if dir == "" {
		err = fmt.Errorf("no %s maintained", name)
		return
	}
	var exists bool
	if exists, err = file.Exists(dir); err != nil {
		err = errors.Wrapf(err, "cannot check if %s '%s' exists", name, dir)
		return
	}
	if !exists {
		err = fmt.Errorf("%s '%s' doesn't exist", name, dir)
		return
	}
	return
}
