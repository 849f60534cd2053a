package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"studly/internal/analytics"
	"studly/internal/cmdlog"
	"studly/internal/config"
	"studly/internal/feed"
	"studly/internal/jobs"
	"studly/internal/logging"
	"studly/internal/metrics"
	"studly/internal/model"
	"studly/internal/store/sqlitestore"
	"studly/internal/studlyapi"
	"studly/internal/theme"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	handlers := map[string]func([]string) error{
		"init":      cmdInit,
		"feed":      cmdFeed,
		"watch":     cmdWatch,
		"like":      cmdLike,
		"bookmark":  cmdBookmark,
		"comments":  cmdComments,
		"comment":   cmdComment,
		"post":      cmdPost,
		"bookmarks": cmdBookmarks,
		"user":      cmdUser,
		"activity":  cmdActivity,
	}
	h, ok := handlers[cmd]
	if !ok {
		printHelp()
		return
	}
	if err := cmdlog.Run(cmd, func() error { return h(os.Args[2:]) }); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: studly <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./studly.yaml")
	fmt.Println("  feed        Show the feed (personalized when logged in)")
	fmt.Println("  watch       Keep the feed open and print new posts as they arrive")
	fmt.Println("  like        Like or unlike a post or comment")
	fmt.Println("  bookmark    Bookmark or unbookmark a post")
	fmt.Println("  comments    Show the comment tree of a post")
	fmt.Println("  comment     Comment on a post or reply to a comment")
	fmt.Println("  post        Publish a post")
	fmt.Println("  bookmarks   List your bookmarks")
	fmt.Println("  user        List a user's posts")
	fmt.Println("  activity    Hourly summary of your likes and bookmarks")
}

// app is what every command except init runs against.
type app struct {
	cfg     config.Config
	api     *studlyapi.HTTPClient
	ident   *feed.MemoryIdentity
	db      *sqlitestore.DB
	session *feed.Session
}

func (a *app) Close() {
	a.session.Dispose()
	_ = a.db.Close()
}

func commonFlags(fs *flag.FlagSet) *string {
	return fs.String("config", "./studly.yaml", "config path")
}

func setup(cfgPath string) (*app, error) {
	config.LoadDotEnvs(filepath.Dir(cfgPath))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	logging.SetLevel(cfg.Log.Level)
	if cfg.Metrics.Addr != "" {
		metrics.StartServer(cfg.Metrics.Addr)
	}
	if cfg.Credentials.Token == "" {
		logging.Warn("anonymous_session", map[string]any{"hint": "set STUDLY_TOKEN and STUDLY_USER_ID to log in"})
	}
	api := studlyapi.NewHTTPClient(cfg.API.BaseURL, cfg.Credentials.Token, studlyapi.Options{
		Timeout:     cfg.API.Timeout(),
		RPS:         cfg.API.RPS,
		Burst:       cfg.API.Burst,
		MaxAttempts: cfg.API.MaxAttempts,
		BaseBackoff: time.Duration(cfg.API.BaseBackoffMS) * time.Millisecond,
	})
	ident := feed.NewIdentity(cfg.Credentials.UserID)
	ident.OnForcedLogout(func() {
		api.SetToken("")
		fmt.Println("your account is no longer available; you have been logged out")
	})
	db, err := sqlitestore.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	opts := feed.OptionsFromConfig(cfg.Feed)
	opts.Recorder = db
	opts.OnAuthRequired = func(a feed.Action) {
		fmt.Printf("log in to %s %s\n", a.Kind, a.PostID)
	}
	opts.OnMutationError = func(a feed.Action, err error) {
		fmt.Printf("could not %s %s, reverted: %v\n", a.Kind, a.PostID, err)
	}
	return &app{cfg: cfg, api: api, ident: ident, db: db, session: feed.NewSession(api, ident, opts)}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./studly.yaml", "path to write config")
	_ = fs.Parse(args)
	if err := config.Save(*path, config.Default()); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

func cmdFeed(args []string) error {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	pages := fs.Int("pages", 1, "pages to load")
	cached := fs.Bool("cached", false, "show the last cached feed without contacting the server")
	_ = fs.Parse(args)
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	key := jobs.CacheKey(a.ident.UserID())

	if *cached {
		snap, err := jobs.LoadSnapshot(ctx, a.db, key)
		if err != nil {
			return err
		}
		if snap.CachedAt.IsZero() {
			fmt.Println("nothing cached yet; run `studly feed` first")
			return nil
		}
		fmt.Printf("cached %s ago, %s mode, page %d\n", time.Since(snap.CachedAt).Round(time.Second), snap.Mode, snap.Cursor)
		theme.PrintPosts(os.Stdout, snap.Posts)
		return nil
	}

	res, err := jobs.SyncFeed(ctx, a.session, a.db, key, *pages)
	if err != nil {
		return err
	}
	theme.PrintPosts(os.Stdout, a.session.Items())
	st := a.session.State()
	fmt.Printf("-- %d posts, %s mode, %d page(s), more=%v\n", res.Items, res.Mode, res.Pages, st.HasMore)
	return nil
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	every := fs.Duration("apply", 5*time.Second, "how often queued posts are shown")
	_ = fs.Parse(args)
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	key := jobs.CacheKey(a.ident.UserID())

	if _, err := jobs.SyncFeed(ctx, a.session, a.db, key, 1); err != nil {
		return err
	}
	theme.PrintPosts(os.Stdout, a.session.Items())
	a.session.Start(ctx)
	err = jobs.RunWatch(ctx, a.session, a.db, key, *every, func(posts []model.Post) {
		fmt.Printf("-- %d new\n", len(posts))
		theme.PrintPosts(os.Stdout, posts)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func cmdLike(args []string) error {
	fs := flag.NewFlagSet("like", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	postID := fs.String("post", "", "post id")
	commentID := fs.String("comment", "", "comment id (likes the comment instead of the post)")
	off := fs.Bool("off", false, "remove the like")
	_ = fs.Parse(args)
	if *postID == "" {
		return errors.New("--post is required")
	}
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()

	if *commentID != "" {
		return <-a.session.SetCommentLike(ctx, *postID, *commentID, !*off)
	}
	return <-a.session.SetLike(ctx, *postID, !*off)
}

func cmdBookmark(args []string) error {
	fs := flag.NewFlagSet("bookmark", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	postID := fs.String("post", "", "post id")
	off := fs.Bool("off", false, "remove the bookmark")
	_ = fs.Parse(args)
	if *postID == "" {
		return errors.New("--post is required")
	}
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	return <-a.session.SetBookmark(ctx, *postID, !*off)
}

func cmdComments(args []string) error {
	fs := flag.NewFlagSet("comments", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	postID := fs.String("post", "", "post id")
	_ = fs.Parse(args)
	if *postID == "" {
		return errors.New("--post is required")
	}
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	tree, err := a.session.LoadComments(ctx, *postID)
	if err != nil {
		return err
	}
	theme.PrintComments(os.Stdout, tree)
	return nil
}

func cmdComment(args []string) error {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	postID := fs.String("post", "", "post id")
	parent := fs.String("reply-to", "", "comment id to reply to")
	text := fs.String("text", "", "comment text")
	_ = fs.Parse(args)
	if *postID == "" || strings.TrimSpace(*text) == "" {
		return errors.New("--post and --text are required")
	}
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	c, err := a.session.CreateComment(ctx, *postID, *text, *parent)
	if err != nil {
		return err
	}
	fmt.Println("commented:", c.ID)
	return nil
}

func cmdPost(args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	text := fs.String("text", "", "post text")
	media := fs.String("media", "", "comma-separated media URLs")
	_ = fs.Parse(args)
	if strings.TrimSpace(*text) == "" {
		return errors.New("--text is required")
	}
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	var urls []string
	if *media != "" {
		urls = strings.Split(*media, ",")
	}
	p, err := a.session.CreatePost(ctx, *text, urls)
	if err != nil {
		return err
	}
	fmt.Println(theme.PostLine(p))
	return nil
}

func cmdBookmarks(args []string) error {
	fs := flag.NewFlagSet("bookmarks", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	_ = fs.Parse(args)
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	posts, err := a.session.Bookmarks(ctx)
	if err != nil {
		return err
	}
	theme.PrintPosts(os.Stdout, posts)
	return nil
}

func cmdUser(args []string) error {
	fs := flag.NewFlagSet("user", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	name := fs.String("name", "", "username")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("--name is required")
	}
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()
	posts, err := a.session.UserPosts(ctx, *name)
	if err != nil {
		return err
	}
	theme.PrintPosts(os.Stdout, posts)
	return nil
}

func cmdActivity(args []string) error {
	fs := flag.NewFlagSet("activity", flag.ExitOnError)
	cfgPath := commonFlags(fs)
	since := fs.Duration("since", 24*time.Hour, "window to summarize")
	limit := fs.Int("limit", 500, "ledger rows to bucket by hour")
	_ = fs.Parse(args)
	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	now := time.Now().UTC()
	sum, err := analytics.Summarize(context.Background(), a.db, now.Add(-*since), now.Add(time.Second), *limit)
	if err != nil {
		return err
	}
	b := sum.Hourly
	for _, k := range analytics.SortedBucketKeys(b) {
		fmt.Printf("%s -> %v\n", k.Format("2006-01-02 15:00"), b[k])
	}
	fmt.Printf("-- %d mutations, %d rolled back\n", sum.Total, sum.RolledBack)
	return nil
}
