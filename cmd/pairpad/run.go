package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pairpad/internal/execution"
	"github.com/michaelbrown/pairpad/internal/session"
	"github.com/michaelbrown/pairpad/internal/storage"
	"github.com/michaelbrown/pairpad/internal/storage/sqlite"
)

var (
	languageFlag string
	recordFlag   bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a file in the local sandbox",
	Long: `Run a JavaScript or Python file with the same runtimes and limits the
server uses. The language is taken from the file extension unless --language
is given. Use - to read the program from stdin.

Examples:
  pairpad run fib.py
  cat snippet.js | pairpad run - --language javascript`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Language (javascript, python)")
	runCmd.Flags().BoolVar(&recordFlag, "record", false, "Record the run in the journal")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := args[0]
	var src []byte
	if path == "-" {
		src, err = io.ReadAll(os.Stdin)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading program: %w", err)
	}

	name := languageFlag
	if name == "" {
		name, err = languageForFile(path)
		if err != nil {
			return err
		}
	}
	lang, err := session.ParseLanguage(name)
	if err != nil {
		return err
	}

	engine, err := execution.FromConfig(cfg.Runtime, newLogger(cfg))
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	res, err := engine.Execute(ctx, lang, string(src))
	if err != nil {
		return err
	}

	if res.Output != "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.Output)
	}

	if recordFlag {
		if err := recordRun(ctx, cfg.Storage.DBPath, lang, string(src), res); err != nil {
			return err
		}
	}

	if res.Failed {
		return errors.New("program failed")
	}
	return nil
}

func languageForFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return string(session.LanguageJavaScript), nil
	case ".py":
		return string(session.LanguagePython), nil
	}
	return "", fmt.Errorf("cannot tell the language of %q, pass --language", path)
}

func recordRun(ctx context.Context, dbPath string, lang session.Language, src string, res execution.Result) error {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening run journal: %w", err)
	}
	defer store.Close()

	return store.RecordRun(ctx, &storage.Run{
		ID:         uuid.NewString(),
		Language:   string(lang),
		Source:     src,
		Output:     res.Output,
		Failed:     res.Failed,
		DurationMS: res.Duration.Milliseconds(),
	})
}
