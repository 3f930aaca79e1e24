// Command coverfetch finds album cover art across the configured services and
// saves it next to your music. Without --exit-on-download or --from-file it
// opens an interactive picker; otherwise the first image meeting the size
// filter is saved.
//
//	coverfetch "Boards of Canada - Geogaddi"
//	coverfetch -r Air -a "Moon Safari" -o ~/Music/Air --min-width 1000
//	coverfetch -i ~/Music/Air/01.mp3 --embed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"Cover-Art-Go/pkg/audiofile"
	"Cover-Art-Go/pkg/config"
	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/db"
	"Cover-Art-Go/pkg/logging"
	"Cover-Art-Go/pkg/save"
	"Cover-Art-Go/pkg/services"
	"Cover-Art-Go/pkg/spotify"
	"Cover-Art-Go/pkg/tui"
)

// errNotFound is returned in auto mode when no image passed the filter.
var errNotFound = errors.New("no cover art matched the search")

type cliOptions struct {
	Artist         string
	Album          string
	Query          string
	FrontOnly      *bool
	Services       []string
	OutputDir      string
	Filename       string
	NoSavePrompt   bool
	ExitOnDownload bool
	FromFile       string
	BatchSize      int
	MinWidth       int
	MinHeight      int
	ExistingArt    string
	LogFile        string
	Config         string
	Embed          bool
	DB             string
}

// auto reports whether the run saves without user interaction.
func (o *cliOptions) auto() bool { return o.ExitOnDownload || o.FromFile != "" }

// parseArgs reads the command line. Flags and the positional query may be
// interleaved.
func parseArgs(args []string, out io.Writer) (*cliOptions, error) {
	o := &cliOptions{}
	fs := flag.NewFlagSet("coverfetch", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: coverfetch [options] [\"Artist - Album\"]")
		fmt.Fprintln(out)
		fs.PrintDefaults()
	}

	str := func(p *string, names []string, usage string) {
		for _, n := range names {
			fs.StringVar(p, n, "", usage)
		}
	}
	boolean := func(p *bool, names []string, usage string) {
		for _, n := range names {
			fs.BoolVar(p, n, false, usage)
		}
	}
	str(&o.Artist, []string{"r", "artist"}, "artist to search for")
	str(&o.Album, []string{"a", "album"}, "album to search for")
	str(&o.OutputDir, []string{"o", "output-dir"}, "directory the cover is saved to")
	str(&o.Filename, []string{"f", "filename"}, "file name without extension")
	str(&o.FromFile, []string{"i", "from-file"}, "read artist and album from this music file and save next to it")
	str(&o.ExistingArt, []string{"existing-art-path"}, "only accept images larger than this file")
	str(&o.LogFile, []string{"log-file"}, "also write logs to this file")
	str(&o.Config, []string{"config"}, "settings file (default: user config dir)")
	str(&o.DB, []string{"db"}, "sqlite database for history and service tokens")
	boolean(&o.NoSavePrompt, []string{"y", "no-save-prompt"}, "save without asking")
	boolean(&o.ExitOnDownload, []string{"exit-on-download"}, "save the first matching image and exit")
	boolean(&o.Embed, []string{"embed"}, "embed the cover into the --from-file MP3")

	var frontOnly, noFrontOnly bool
	fs.BoolVar(&frontOnly, "front-only", false, "only list front covers")
	fs.BoolVar(&noFrontOnly, "no-front-only", false, "list every image")
	var serviceList string
	fs.StringVar(&serviceList, "services", "", "comma separated services in priority order")
	fs.IntVar(&o.BatchSize, "batch-size", 0, "images resolved per batch")
	fs.IntVar(&o.MinWidth, "min-width", 0, "minimum image width")
	fs.IntVar(&o.MinHeight, "min-height", 0, "minimum image height")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	o.Query = strings.Join(positional, " ")

	if frontOnly && noFrontOnly {
		return nil, errors.New("--front-only and --no-front-only are exclusive")
	}
	if frontOnly || noFrontOnly {
		v := frontOnly
		o.FrontOnly = &v
	}
	for _, s := range strings.Split(serviceList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			o.Services = append(o.Services, s)
		}
	}
	if o.BatchSize != 0 && (o.BatchSize < config.MinBatchSize || o.BatchSize > config.MaxBatchSize) {
		return nil, fmt.Errorf("--batch-size must be between %d and %d", config.MinBatchSize, config.MaxBatchSize)
	}
	if o.MinWidth < 0 || o.MinHeight < 0 {
		return nil, errors.New("--min-width and --min-height must not be negative")
	}
	return o, nil
}

// promoteFile treats a positional query naming an existing file as
// --from-file.
func promoteFile(o *cliOptions, reader *audiofile.Reader) {
	if o.FromFile != "" || o.Query == "" {
		return
	}
	if path := config.ExpandHome(o.Query); reader.IsFile(path) {
		o.FromFile, o.Query = path, ""
	}
}

// splitQuery turns "Artist - Album" into its parts. Without the separator the
// whole text is the album.
func splitQuery(q string) cover.SearchQuery {
	q = strings.TrimSpace(q)
	if artist, album, ok := strings.Cut(q, " - "); ok {
		return cover.SearchQuery{Artist: strings.TrimSpace(artist), Album: strings.TrimSpace(album)}
	}
	return cover.SearchQuery{Album: q}
}

// job is a fully resolved run: what to search for and where it goes.
type job struct {
	Query   cover.SearchQuery
	Options cover.Options
	Save    save.Options
}

// plan merges settings, flags and, for --from-file, the music file's tags.
func plan(o *cliOptions, s *config.Settings, reader *audiofile.Reader) (*job, error) {
	if o.Embed && o.FromFile == "" {
		return nil, errors.New("--embed requires --from-file")
	}
	j := &job{Options: services.Options(s)}
	if len(o.Services) > 0 {
		j.Options.Services = o.Services
	}
	if o.FrontOnly != nil {
		j.Options.FrontOnly = *o.FrontOnly
	}
	if o.BatchSize > 0 {
		j.Options.BatchSize = o.BatchSize
	}
	j.Options.MinWidth, j.Options.MinHeight = o.MinWidth, o.MinHeight
	j.Save.Dir = s.OutputDir()
	j.Save.Filename = s.DefaultFilename

	artist, album := o.Artist, o.Album
	if o.Query != "" {
		q := splitQuery(o.Query)
		if artist == "" {
			artist = q.Artist
		}
		if album == "" {
			album = q.Album
		}
	}

	artW, artH := 0, 0
	if o.FromFile != "" {
		info, err := reader.Inspect(o.FromFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", o.FromFile, err)
		}
		if j.Query, err = info.Query(artist, album); err != nil {
			return nil, err
		}
		j.Save.Dir = info.Dir
		if o.Embed {
			if !strings.EqualFold(filepath.Ext(o.FromFile), ".mp3") {
				return nil, fmt.Errorf("--embed only supports mp3 files, got %s", o.FromFile)
			}
			j.Save.EmbedInto = o.FromFile
		}
		if info.ExistingArt != "" {
			artW, artH = info.ArtWidth, info.ArtHeight
			log.WithFields(log.Fields{"art": info.ExistingArt, "width": artW, "height": artH}).Info("existing art found")
		}
	} else {
		j.Query = cover.SearchQuery{Artist: strings.TrimSpace(artist), Album: strings.TrimSpace(album)}
		if j.Query.Empty() {
			return nil, errors.New("nothing to search for: give an artist, an album or a file")
		}
	}

	if o.ExistingArt != "" {
		w, h, err := reader.ArtSize(o.ExistingArt)
		if err != nil {
			return nil, fmt.Errorf("existing art: %w", err)
		}
		artW, artH = w, h
	}
	if artW > 0 && artH > 0 {
		j.Options.MinWidth, j.Options.MinHeight = audiofile.MinDimensions(o.MinWidth, o.MinHeight, artW, artH)
	}

	if o.OutputDir != "" {
		j.Save.Dir = config.ExpandHome(o.OutputDir)
	}
	if o.Filename != "" {
		j.Save.Filename = o.Filename
	}
	return j, nil
}

// openHistory opens the database; failures only disable history and the
// Spotify token cache.
func openHistory(path string) (*db.DB, error) {
	if path == "" {
		return nil, nil
	}
	return db.New(config.ExpandHome(path))
}

func run(ctx context.Context, o *cliOptions) error {
	reader := audiofile.New()
	promoteFile(o, reader)
	cfgPath := o.Config
	if cfgPath == "" {
		cfgPath = os.Getenv("COVERART_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	settings, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	// The picker owns the terminal, so interactive runs only log to the file.
	level := settings.LogLevel
	if !o.auto() && o.LogFile == "" {
		level = "error"
	}
	closer, err := logging.Setup(level, o.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	j, err := plan(o, settings, reader)
	if err != nil {
		return err
	}

	dbPath := settings.DatabasePath
	if o.DB != "" {
		dbPath = o.DB
	}
	database, err := openHistory(dbPath)
	if err != nil {
		log.WithError(err).Warn("history disabled")
	}
	if database != nil {
		defer database.Close()
	}

	fetcher := services.Fetcher(settings)
	var (
		tokens  spotify.TokenStore
		history save.Recorder
	)
	if database != nil {
		tokens, history = database, database
	}
	orch := cover.New(services.Build(settings, fetcher, tokens))
	defer orch.Shutdown()
	saver := save.New(fetcher, history)

	if o.auto() {
		sess, err := orch.StartSearch(j.Query, j.Options)
		if err != nil {
			return err
		}
		img, ok := sess.AutoSelect(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errNotFound
		}
		opts := j.Save
		opts.SessionID = sess.ID()
		res, err := saver.Save(ctx, img, opts)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %dx%d cover from %s to %s\n", img.FullWidth, img.FullHeight, img.SourceService, res.Path)
		return nil
	}

	opts := j.Options
	opts.Browse = true
	out, err := tui.Run(tui.Config{
		Orchestrator: orch,
		Query:        j.Query,
		Options:      opts,
		Save: func(ctx context.Context, img *cover.ImageResult) (string, error) {
			so := j.Save
			if s := orch.Current(); s != nil {
				so.SessionID = s.ID()
			}
			res, err := saver.Save(ctx, img, so)
			if err != nil {
				return "", err
			}
			return res.Path, nil
		},
		NoSavePrompt:   o.NoSavePrompt || settings.NoSavePrompt,
		ExitOnDownload: settings.ExitOnDownload,
	})
	if err != nil {
		return err
	}
	if out.Path != "" {
		fmt.Println(out.Path)
	}
	return nil
}

func main() {
	o, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, o); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
