package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/jarvis-voice/internal/config"
	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/watcher"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

// localConfigPath is checked first and is where a default config is written.
const localConfigPath = ".jarvis/config.yaml"

var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Voice-activated session orchestrator",
	Long: `Listens for the wake phrase, records what you say, and hands the audio to the
voice backend. Spoken replies are shown as they stream in, and tool calls such as
run_task are executed through the task runner before listening resumes.

Say "goodbye" (or any configured disengage phrase) to end the session.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runVoice,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .jarvis/config.yaml, then ~/.config/jarvis/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs (path from JARVIS_LOG, default debug.log)")
	rootCmd.Flags().String("wake-phrase", "", "override the wake phrase")
	rootCmd.Flags().Bool("plain", false, "disable colors and styling")

	_ = viper.BindPFlag("wake_phrase", rootCmd.Flags().Lookup("wake-phrase"))
	_ = viper.BindPFlag("console.plain", rootCmd.Flags().Lookup("plain"))
}

func initConfig() {
	config.ApplyDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "jarvis"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.ErrorErr(log.CatConfig, "Failed to read config", err, "file", viper.ConfigFileUsed())
		}
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		log.ErrorErr(log.CatConfig, "Failed to decode config, using defaults", err)
		loaded = config.Defaults()
	}
	cfg = loaded
}

// initLogging enables the file logger when --debug or JARVIS_DEBUG is set.
// JARVIS_LOG_LEVEL (debug, info, warn, error) raises the threshold.
func initLogging() (func(), error) {
	if !debugFlag && os.Getenv("JARVIS_DEBUG") == "" {
		return func() {}, nil
	}
	logPath := os.Getenv("JARVIS_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(os.Getenv("JARVIS_LOG_LEVEL")))
	log.Info(log.CatConfig, "Jarvis starting", "version", version, "config", viper.ConfigFileUsed())
	return cleanup, nil
}

// watchConfig calls onChange with every successfully reloaded config until
// the returned stop func is called.
func watchConfig(v *viper.Viper, onChange func(config.Config)) (func(), error) {
	path := v.ConfigFileUsed()
	w, err := watcher.New(watcher.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-changes:
				reloadConfig(v, path, onChange)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = w.Stop()
		})
	}, nil
}

func reloadConfig(v *viper.Viper, path string, onChange func(config.Config)) {
	if err := v.ReadInConfig(); err != nil {
		log.ErrorErr(log.CatConfig, "Ignoring unreadable config change", err, "file", path)
		return
	}
	next, err := config.Load(v)
	if err != nil {
		log.ErrorErr(log.CatConfig, "Ignoring config change", err, "file", path)
		return
	}
	if err := config.Validate(next); err != nil {
		log.ErrorErr(log.CatConfig, "Ignoring invalid config change", err, "file", path)
		return
	}
	log.Info(log.CatConfig, "Config reloaded", "file", path)
	onChange(next)
}

// ensureConfigFile writes the default config when no file was found, so the
// listener has something to watch and `config set` has something to edit.
func ensureConfigFile() {
	path := configFilePath()
	if fileExists(path) {
		return
	}
	if err := config.WriteDefaultConfig(path); err != nil {
		return
	}
	viper.SetConfigFile(path)
	_ = viper.ReadInConfig()
}

// configFilePath is where config edits are saved.
func configFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return localConfigPath
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
