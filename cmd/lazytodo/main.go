package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Joseda-hg/lazytodo/internal/app"
	"github.com/Joseda-hg/lazytodo/internal/config"
	"github.com/Joseda-hg/lazytodo/internal/taskview"
)

var Version = "dev"

type options struct {
	configPath string
	dbPath     string
	apiURL     string
	web        bool
	host       string
	port       int
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	gin.SetMode(gin.ReleaseMode)

	if err := newRootCmd(&options{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "lazytodo",
		Short:         "Terminal client for the todo service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file path")
	flags.StringVar(&opts.dbPath, "db", "", "sqlite db path")
	flags.StringVar(&opts.apiURL, "api", "", "backend base URL")
	flags.BoolVar(&opts.web, "web", false, "also serve the browser dashboard")
	flags.StringVar(&opts.host, "host", "", "web server listen host")
	flags.IntVar(&opts.port, "port", 0, "web server port")

	root.AddCommand(
		signupCmd(opts),
		signinCmd(opts),
		signoutCmd(opts),
		whoamiCmd(opts),
		tasksCmd(opts),
		showCmd(opts),
		toggleCmd(opts),
		rmCmd(opts),
		tagsCmd(opts),
		tagCmd(opts),
		chatCmd(opts),
		webCmd(opts),
	)
	return root
}

// load returns the effective config: file, then LAZYTODO_* environment, then
// flags that were set. Only the file plus those flags is written back, so a
// one-off environment override never lands on disk.
func (o *options) load(cmd *cobra.Command) (config.Config, error) {
	cfgPath := o.configPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
	}

	saved, err := config.ReadFile(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}

	o.applyFlags(cmd, &saved)
	o.applyFlags(cmd, &cfg)
	defaultDB := filepath.Join(filepath.Dir(cfgPath), "lazytodo.db")
	if saved.DBPath == "" {
		saved.DBPath = defaultDB
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDB
	}

	if err := config.Save(cfgPath, saved); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (o *options) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("api") {
		cfg.APIURL = o.apiURL
	}
	if flags.Changed("web") {
		cfg.WebEnabled = o.web
	}
	if flags.Changed("host") && o.host != "" {
		cfg.WebHost = o.host
	}
	if flags.Changed("port") && o.port > 0 {
		cfg.WebPort = o.port
	}
}

func (o *options) open(cmd *cobra.Command, logger *log.Logger) (*app.App, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, logger)
}

func runTUI(cmd *cobra.Command, opts *options) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}

	logger, logFile, err := app.OpenLog(cfg.DBPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	a, err := app.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.RunTUI()
}

// userError turns API and session failures into one line for the terminal.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if taskview.AuthRequired(err) {
		return errors.New("not signed in: run `lazytodo signin`")
	}
	return errors.New(taskview.Message(err))
}
