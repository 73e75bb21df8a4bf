package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eringen/pubindex"
	"github.com/eringen/pubindex/build"
	"github.com/eringen/pubindex/index"
	"github.com/eringen/pubindex/store"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	dbPath    string
	blogsRoot string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:     "pubindex",
	Short:   "Content index engine for blogs",
	Long:    `pubindex keeps chronological lists, tag pages and tag popularity for blogs whose entries are built from files.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pubindex version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pubindex %s\n", version)
	},
}

func logger() index.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	// stdout belongs to command output and the MCP stream.
	return index.NewWriterLogger(os.Stderr, level)
}

// engine is an index engine over an open store.
type engine struct {
	*index.Engine
	st *store.Store
}

func (e engine) Close() error {
	return e.st.Close()
}

// openEngine opens the store at --db. Blog files are read below --blogs
// unless dirs maps a blog to another directory.
func openEngine(dirs map[string]string) (engine, error) {
	if dbPath == "" {
		return engine{}, fmt.Errorf("database path must be set using the --db flag")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return engine{}, fmt.Errorf("failed to create database directory: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return engine{}, fmt.Errorf("failed to open index: %w", err)
	}
	files := func(blogID string) (fs.FS, error) {
		if !index.ValidBlogID(blogID) {
			return nil, index.ErrInvalidBlog
		}
		if dir, ok := dirs[blogID]; ok {
			return os.DirFS(dir), nil
		}
		return os.DirFS(filepath.Join(blogsRoot, blogID)), nil
	}
	eng := index.New(st, build.New(),
		index.WithConfig(index.Config{Files: files}),
		index.WithLogger(logger()),
	)
	return engine{Engine: eng, st: st}, nil
}

func initCmd() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", pubindex.EnvOr("PUBINDEX_DB", "data/index.db"), "Path to the SQLite index")
	rootCmd.PersistentFlags().StringVar(&blogsRoot, "blogs", pubindex.EnvOr("PUBINDEX_BLOGS_ROOT", "blogs"), "Directory holding one folder per blog")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	serveCmd.Flags().String("addr", "", "Listen address (overrides PUBINDEX_ADDR)")

	pageCmd.Flags().String("list", index.ListEntries, "List to read: entries, pages, drafts, scheduled or deleted")
	pageCmd.Flags().String("sort", "date", "Sort key: date or id")
	pageCmd.Flags().String("order", "desc", "Sort direction: asc or desc")
	pageCmd.Flags().IntP("page", "p", 1, "Page number")
	pageCmd.Flags().IntP("size", "n", 0, "Entries per page")

	tagsCmd.Flags().Int("limit", 0, "Maximum tags to show")
	tagsCmd.Flags().Bool("tree", false, "Show the entries under each tag")

	rootCmd.AddCommand(versionCmd, serveCmd, mcpCmd, syncCmd, watchCmd, rebuildCmd, pageCmd, tagsCmd)
}

func main() {
	initCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
