// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers

package server

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/stepbuddy/stepvault/challenge"
	"github.com/stepbuddy/stepvault/logging"
)

const (
	defaultDbDirName      = "db"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultAPIPort        = 8080
	defaultMetricsPort    = 9090
)

// Config defines the configuration options for stepvault.
//
// See loadConfig for further details regarding the
// configuration loading+parsing process.
type Config struct {
	StepvaultDir   string `long:"stepvaultdir"   description:"The base directory that contains stepvault's data, logs, configuration file, etc."`
	ConfigFile     string `long:"configfile"     description:"Path to configuration file"                                                        short:"c"`
	DataDir        string `long:"datadir"        description:"The directory to store stepvault's data within."                                   short:"b"`
	DbDir          string `long:"dbdir"          description:"The directory to store DBs within"`
	LogDir         string `long:"logdir"         description:"Directory to log output."`
	DebugLog       bool   `long:"debuglog"       description:"Enable debug logs"`
	JSONLog        bool   `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles    int    `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	RawAPIListener string `long:"apilisten"      description:"The interface/port to listen for API connections"                                  short:"w"`
	MetricsPort    uint16 `long:"metrics-port"   description:"The port to expose metrics"`

	Challenge challenge.Config `group:"Challenge"`
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	stepvaultDir := "./stepvault"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		stepvaultDir = filepath.Join(cacheDir, "stepvault")
	}

	return &Config{
		StepvaultDir:   stepvaultDir,
		DataDir:        filepath.Join(stepvaultDir, defaultDataDirname),
		DbDir:          filepath.Join(stepvaultDir, defaultDbDirName),
		LogDir:         filepath.Join(stepvaultDir, defaultLogDirname),
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		RawAPIListener: fmt.Sprintf("localhost:%d", defaultAPIPort),
		MetricsPort:    defaultMetricsPort,
		Challenge:      challenge.DefaultConfig(),
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the values
// from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	logging.FromContext(context.Background()).Sugar().Debugf("reading config from %s", cfg.ConfigFile)
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}

// SetupConfig expands paths and initializes the filesystem.
func SetupConfig(cfg *Config) (*Config, error) {
	// If the provided base directory is not the default, move the
	// directories that live within it accordingly.
	defaultCfg := DefaultConfig()
	if cfg.StepvaultDir != defaultCfg.StepvaultDir {
		if cfg.DataDir == defaultCfg.DataDir {
			cfg.DataDir = filepath.Join(cfg.StepvaultDir, defaultDataDirname)
		}
		if cfg.LogDir == defaultCfg.LogDir {
			cfg.LogDir = filepath.Join(cfg.StepvaultDir, defaultLogDirname)
		}
		if cfg.DbDir == defaultCfg.DbDir {
			cfg.DbDir = filepath.Join(cfg.StepvaultDir, defaultDbDirName)
		}
	}

	if err := os.MkdirAll(cfg.StepvaultDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %v: %w", cfg.StepvaultDir, err)
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DbDir = cleanAndExpandPath(cfg.DbDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return cfg, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
