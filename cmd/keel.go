// Package cmd implements the keel command-line tool: the cobra root command,
// HCL configuration loading overlaid onto pflag-bound flags, and logrus
// setup, grounded on leftmike-maho.v1/cmd/maho.go.
package cmd

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/hashicorp/hcl"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shoaldb/keel/config"
)

var (
	keelCmd = &cobra.Command{
		Use:               "keel",
		Short:             "A transactional key-value table engine",
		Long:              "keel runs the Procedure/Table/Checkpoint engine as a standalone process.",
		PersistentPreRunE: keelPreRun,
		PersistentPostRun: keelPostRun,
	}

	logFile   = "keel.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "keel.hcl"
	envFile    = ".env"
	noConfig   = false

	cfgVars   = map[string]*pflag.Flag{}
	cfg       = map[string]interface{}{}
	usedFlags = map[string]struct{}{}
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := keelCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	cfgVars["log-file"] = fs.Lookup("log-file")

	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	cfgVars["log-level"] = fs.Lookup("log-level")

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")

	fs.StringVar(&envFile, "env-file", envFile, "`file` of environment overrides, loaded before flags")
}

// Execute runs the keel root command.
func Execute() error {
	return keelCmd.Execute()
}

func keelPreRun(cmd *cobra.Command, args []string) error {
	// godotenv loads the env file into the process environment before flags
	// and the HCL file are processed. No flag or parameter reads its value
	// from the environment.
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("keel: env file: %s", err)
		}
	}

	cmd.Flags().Visit(
		func(flg *pflag.Flag) {
			usedFlags[flg.Name] = struct{}{}
		})

	if configFile != "" && !noConfig {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("keel: %s", err)
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("keel: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("keel: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("keel starting")
	return nil
}

func keelPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("keel done")

	if logWriter != nil {
		logWriter.Close()
	}
}

func loadConfig() error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := hcl.Decode(&cfg, string(b)); err != nil {
		return err
	}

	for name, val := range cfg {
		flg, ok := cfgVars[name]
		if !ok {
			if err := config.Update(name, fmt.Sprintf("%v", val)); err != nil {
				return err
			}
			continue
		}
		if flg == nil {
			continue
		}
		if _, used := usedFlags[flg.Name]; used {
			continue
		}
		if err := flg.Value.Set(fmt.Sprintf("%v", val)); err != nil {
			return fmt.Errorf("%s: %s", name, err)
		}
	}

	return nil
}
