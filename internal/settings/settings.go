// Package settings persists user preferences consumed by the selection
// core: filter switches, token display, and the tokenizer model.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// SettingsFileName is the per-project settings file name.
	SettingsFileName = "gather.json"
	// GlobalSettingsDirectoryName is the settings directory under the user's home.
	GlobalSettingsDirectoryName = ".gather"

	textOnlyKey         = "text_only"
	hideEmptyFoldersKey = "hide_empty_folders"
	showTokenCountKey   = "show_token_count"
	tokenizerModelKey   = "tokenizer_model"
)

// Settings holds the persisted preferences. The selection core receives
// these as immutable snapshots; this package owns persistence.
type Settings struct {
	TextOnly         bool   `mapstructure:"text_only" json:"text_only"`
	HideEmptyFolders bool   `mapstructure:"hide_empty_folders" json:"hide_empty_folders"`
	ShowTokenCount   bool   `mapstructure:"show_token_count" json:"show_token_count"`
	TokenizerModel   string `mapstructure:"tokenizer_model" json:"tokenizer_model"`
}

// Defaults returns the settings used when no file exists.
func Defaults() Settings {
	return Settings{
		TextOnly:         true,
		HideEmptyFolders: true,
		ShowTokenCount:   true,
		TokenizerModel:   "gpt-4o",
	}
}

// LoadOptions controls how settings files are discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// Load reads settings from the global file under the user's home directory,
// overlaid by the local file in the working directory (or the explicit
// path). Missing files leave the defaults in place.
func Load(options LoadOptions) (Settings, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return Settings{}, fmt.Errorf("determine working directory: %w", workingDirectoryError)
		}
		workingDirectory = currentDirectory
	}

	settingsReader := viper.New()
	defaultSettings := Defaults()
	settingsReader.SetDefault(textOnlyKey, defaultSettings.TextOnly)
	settingsReader.SetDefault(hideEmptyFoldersKey, defaultSettings.HideEmptyFolders)
	settingsReader.SetDefault(showTokenCountKey, defaultSettings.ShowTokenCount)
	settingsReader.SetDefault(tokenizerModelKey, defaultSettings.TokenizerModel)

	if homeDirectory, homeDirectoryError := os.UserHomeDir(); homeDirectoryError == nil && homeDirectory != "" {
		globalSettingsPath := filepath.Join(homeDirectory, GlobalSettingsDirectoryName, SettingsFileName)
		if mergeError := mergeSettingsFile(settingsReader, globalSettingsPath); mergeError != nil {
			return Settings{}, mergeError
		}
	}

	localSettingsPath := filepath.Join(workingDirectory, SettingsFileName)
	if options.ExplicitFilePath != "" {
		localSettingsPath = options.ExplicitFilePath
		if !filepath.IsAbs(localSettingsPath) {
			localSettingsPath = filepath.Join(workingDirectory, localSettingsPath)
		}
	}
	if mergeError := mergeSettingsFile(settingsReader, localSettingsPath); mergeError != nil {
		return Settings{}, mergeError
	}

	var loadedSettings Settings
	if decodeError := settingsReader.Unmarshal(&loadedSettings); decodeError != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", decodeError)
	}
	return loadedSettings, nil
}

// Save writes currentSettings to settingsPath as JSON.
func Save(currentSettings Settings, settingsPath string) error {
	settingsWriter := viper.New()
	settingsWriter.Set(textOnlyKey, currentSettings.TextOnly)
	settingsWriter.Set(hideEmptyFoldersKey, currentSettings.HideEmptyFolders)
	settingsWriter.Set(showTokenCountKey, currentSettings.ShowTokenCount)
	settingsWriter.Set(tokenizerModelKey, currentSettings.TokenizerModel)
	if writeError := settingsWriter.WriteConfigAs(settingsPath); writeError != nil {
		return fmt.Errorf("write settings to %s: %w", settingsPath, writeError)
	}
	return nil
}

// mergeSettingsFile overlays the JSON settings file at settingsPath onto
// reader when the file exists.
func mergeSettingsFile(reader *viper.Viper, settingsPath string) error {
	settingsInfo, statError := os.Stat(settingsPath)
	if statError != nil {
		if os.IsNotExist(statError) {
			return nil
		}
		return fmt.Errorf("stat settings %s: %w", settingsPath, statError)
	}
	if settingsInfo.IsDir() {
		return fmt.Errorf("settings path %s is a directory", settingsPath)
	}
	reader.SetConfigFile(settingsPath)
	reader.SetConfigType("json")
	if mergeError := reader.MergeInConfig(); mergeError != nil {
		return fmt.Errorf("read settings from %s: %w", settingsPath, mergeError)
	}
	return nil
}
