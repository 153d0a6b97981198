// Package cli provides the command line interface driving the selection core.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gather/internal/classify"
	"github.com/temirov/gather/internal/merge"
	"github.com/temirov/gather/internal/selection"
	"github.com/temirov/gather/internal/services/clipboard"
	"github.com/temirov/gather/internal/settings"
	"github.com/temirov/gather/internal/tokencount"
)

const (
	rootUse              = "gather"
	rootShortDescription = "gather command line interface"
	rootLongDescription  = `gather assembles a curated selection of files and folders into one
concatenated text artifact for a language-model context window.
It filters selections by text-only and non-empty-folder rules, honors
.gitignore exclusions, and reports per-item token counts.`

	listUse               = "list [paths...]"
	listShortDescription  = "display the filtered selection with token counts"
	filesUse              = "files [paths...]"
	filesShortDescription = "print every included file path"
	mergeUse              = "merge [paths...]"
	mergeShortDescription = "emit the concatenated artifact for the selection"

	textOnlyFlagName         = "text-only"
	hideEmptyFlagName        = "hide-empty-folders"
	tokensFlagName           = "tokens"
	modelFlagName            = "model"
	settingsFlagName         = "settings"
	excludeFlagName          = "exclude"
	copyFlagName             = "copy"
	outputFlagName           = "output"
	textOnlyFlagDescription  = "include only text files"
	hideEmptyFlagDescription = "omit folders with no included files"
	tokensFlagDescription    = "compute token counts"
	modelFlagDescription     = "tokenizer model for token counting"
	settingsFlagDescription  = "settings file path"
	excludeFlagDescription   = "exclude path from the selection (repeatable)"
	copyFlagDescription      = "copy merged output to the clipboard"
	outputFlagDescription    = "write merged output to a file instead of stdout"

	errorNoPathsMessage      = "no paths provided"
	directorySuffix          = "/"
	unknownCountPlaceholder  = "?"
	failedCountPlaceholder   = "error"
	listRowFormat            = "%10s  %s\n"
	outputFilePermissionBits = 0o644
)

// Execute runs the gather command line interface.
func Execute(logger *zap.Logger) error {
	return newRootCommand(logger).Execute()
}

// newRootCommand assembles the command tree with its flags bound.
func newRootCommand(logger *zap.Logger) *cobra.Command {
	var textOnlyFlag bool
	var hideEmptyFlag bool
	var tokensFlag bool
	var modelFlag string
	var settingsFlag string
	var excludeFlags []string
	var copyFlag bool
	var outputFlag string

	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShortDescription,
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	loadEffectiveSettings := func(command *cobra.Command) (settings.Settings, error) {
		effectiveSettings, loadError := settings.Load(settings.LoadOptions{ExplicitFilePath: settingsFlag})
		if loadError != nil {
			return settings.Settings{}, loadError
		}
		if command.Flags().Changed(textOnlyFlagName) {
			effectiveSettings.TextOnly = textOnlyFlag
		}
		if command.Flags().Changed(hideEmptyFlagName) {
			effectiveSettings.HideEmptyFolders = hideEmptyFlag
		}
		if command.Flags().Changed(tokensFlagName) {
			effectiveSettings.ShowTokenCount = tokensFlag
		}
		if command.Flags().Changed(modelFlagName) {
			effectiveSettings.TokenizerModel = modelFlag
		}
		return effectiveSettings, nil
	}

	buildService := func(command *cobra.Command, rootPaths []string) (*selection.Service, *classify.Classifier, error) {
		if len(rootPaths) == 0 {
			return nil, nil, errors.New(errorNoPathsMessage)
		}
		effectiveSettings, settingsError := loadEffectiveSettings(command)
		if settingsError != nil {
			return nil, nil, settingsError
		}
		// The tokenizer loads encoding data, so it is only constructed when
		// token counts are actually shown.
		var tokenCounter tokencount.Counter
		if effectiveSettings.ShowTokenCount {
			builtCounter, counterError := tokencount.NewCounter(effectiveSettings.TokenizerModel)
			if counterError != nil {
				return nil, nil, counterError
			}
			tokenCounter = builtCounter
		}
		classifier := classify.NewClassifier()
		tokenService := tokencount.NewService(tokenCounter, logger)
		filterConfig := selection.FilterConfig{
			TextOnly:         effectiveSettings.TextOnly,
			HideEmptyFolders: effectiveSettings.HideEmptyFolders,
		}
		selectionService := selection.NewService(classifier, tokenService, filterConfig, logger)
		selectionService.SetShowTokenCounts(effectiveSettings.ShowTokenCount)
		selectionService.AddRoots(rootPaths)
		if len(excludeFlags) > 0 {
			selectionService.Delete(excludeFlags)
		}
		return selectionService, classifier, nil
	}

	listCommand := &cobra.Command{
		Use:   listUse,
		Short: listShortDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			selectionService, _, buildError := buildService(command, arguments)
			if buildError != nil {
				return buildError
			}
			defer selectionService.Close()
			selectionService.WaitForCounts()
			for _, viewItem := range selectionService.ViewItems() {
				fmt.Fprint(command.OutOrStdout(), formatViewRow(viewItem))
			}
			return nil
		},
	}

	filesCommand := &cobra.Command{
		Use:   filesUse,
		Short: filesShortDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			selectionService, _, buildError := buildService(command, arguments)
			if buildError != nil {
				return buildError
			}
			defer selectionService.Close()
			for _, includedFilePath := range selectionService.AllIncludedFiles() {
				fmt.Fprintln(command.OutOrStdout(), includedFilePath)
			}
			return nil
		},
	}

	mergeCommand := &cobra.Command{
		Use:   mergeUse,
		Short: mergeShortDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			selectionService, classifier, buildError := buildService(command, arguments)
			if buildError != nil {
				return buildError
			}
			defer selectionService.Close()
			mergedOutput := merge.NewRenderer(classifier, logger).
				RenderMergedOutput(selectionService.AllIncludedFiles())
			if copyFlag {
				if copyError := clipboard.NewService().Copy(mergedOutput); copyError != nil {
					return fmt.Errorf("copy merged output to clipboard: %w", copyError)
				}
				return nil
			}
			if outputFlag != "" {
				if writeError := os.WriteFile(outputFlag, []byte(mergedOutput), outputFilePermissionBits); writeError != nil {
					return fmt.Errorf("write merged output to %s: %w", outputFlag, writeError)
				}
				return nil
			}
			fmt.Fprint(command.OutOrStdout(), mergedOutput)
			return nil
		},
	}

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.BoolVar(&textOnlyFlag, textOnlyFlagName, true, textOnlyFlagDescription)
	persistentFlags.BoolVar(&hideEmptyFlag, hideEmptyFlagName, true, hideEmptyFlagDescription)
	persistentFlags.BoolVar(&tokensFlag, tokensFlagName, true, tokensFlagDescription)
	persistentFlags.StringVar(&modelFlag, modelFlagName, tokencount.DefaultModel, modelFlagDescription)
	persistentFlags.StringVar(&settingsFlag, settingsFlagName, "", settingsFlagDescription)
	persistentFlags.StringArrayVar(&excludeFlags, excludeFlagName, nil, excludeFlagDescription)
	mergeCommand.Flags().BoolVar(&copyFlag, copyFlagName, false, copyFlagDescription)
	mergeCommand.Flags().StringVar(&outputFlag, outputFlagName, "", outputFlagDescription)

	rootCommand.AddCommand(listCommand, filesCommand, mergeCommand)
	return rootCommand
}

// formatViewRow renders one view item as a token-count column and a display
// name, with a trailing slash on folders.
func formatViewRow(viewItem selection.ViewItem) string {
	countColumn := unknownCountPlaceholder
	if viewItem.Synthetic {
		countColumn = ""
	} else if viewItem.CountFailed {
		countColumn = failedCountPlaceholder
	} else if viewItem.HasTokenCount {
		countColumn = fmt.Sprintf("%d", viewItem.TokenCount)
	}
	displayName := viewItem.DisplayName
	if viewItem.IsDirectory && !viewItem.Synthetic && !strings.HasSuffix(displayName, directorySuffix) {
		displayName += directorySuffix
	}
	return fmt.Sprintf(listRowFormat, countColumn, displayName)
}
