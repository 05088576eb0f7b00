package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/joho/godotenv"
	_ "github.com/silbinarywolf/preferdiscretegpu"
	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/globe"
	"github.com/sudorandom/event-globe/pkg/icons"
	"github.com/sudorandom/event-globe/pkg/mapengine/memmap"
	"github.com/sudorandom/event-globe/pkg/sources"
	"github.com/sudorandom/event-globe/pkg/utils"
	"github.com/sudorandom/event-globe/pkg/viewer"
)

var cli struct {
	Backend      string `help:"Event backend base URL." default:"http://localhost:8080" env:"GLOBE_BACKEND"`
	Theme        string `help:"Initial theme." enum:"dark,light" default:"dark" env:"GLOBE_THEME"`
	CacheDir     string `help:"Directory for downloaded files and the geocode cache. Empty disables caching." default:"data/cache" env:"GLOBE_CACHE_DIR"`
	IconURL      string `help:"Base URL serving {theme}/{icon}.png. Icons are drawn locally when unset or missing." env:"GLOBE_ICON_URL"`
	Tour         string `help:"Route started with the T key." default:"hotspots"`
	Goto         string `help:"Place to frame once the globe has loaded."`
	NoReloads    bool   `help:"Do not subscribe to backend reload notifications."`
	Width        int    `help:"Internal rendering width." default:"1280"`
	Height       int    `help:"Internal rendering height." default:"720"`
	WindowWidth  int    `help:"Initial window width." default:"1280"`
	WindowHeight int    `help:"Initial window height." default:"720"`
	TPS          int    `help:"Ticks per second (map updates)." default:"30"`
}

func main() {
	_ = godotenv.Load()
	kong.Parse(&cli,
		kong.Name("globe-viewer"),
		kong.Description("Interactive globe of categorized world events."),
		kong.UsageOnError(),
	)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	client := sources.NewClient(cli.Backend)
	client.HTTP = httpClient
	if cli.CacheDir != "" {
		kv, err := utils.OpenKV(filepath.Join(cli.CacheDir, "geocode"))
		if err != nil {
			log.Printf("Geocode cache disabled: %v", err)
		} else {
			defer kv.Close()
			client.Cache = kv
		}
	}

	reg := categories.Default()
	var iconSource icons.Source = icons.GlyphSource{Categories: reg, Size: 48}
	if cli.IconURL != "" {
		iconSource = icons.Fallback{
			icons.HTTPSource{BaseURL: cli.IconURL, Client: httpClient, CacheDir: cli.CacheDir},
			iconSource,
		}
	}

	m := memmap.New(memmap.Options{Width: float64(cli.Width), Height: float64(cli.Height), Zoom: 1.5})

	var v *viewer.Viewer
	opts := globe.DefaultOptions()
	opts.Categories = reg
	opts.Fetcher = client
	opts.Geocoder = client
	opts.Contents = client
	opts.Icons = iconSource
	opts.Theme = categories.ParseTheme(cli.Theme)
	opts.OnSelect = func(location, category string) { v.Select(location, category) }
	opts.Interactions.OnOpen = func(url string) { v.Open(url) }
	g := globe.New(opts)

	v = viewer.New(ctx, viewer.Config{
		Width:      cli.Width,
		Height:     cli.Height,
		Map:        m,
		Globe:      g,
		Categories: reg,
		Tour:       cli.Tour,
	})

	go func() {
		land, err := viewer.LoadLand(ctx, httpClient, cli.CacheDir)
		if err != nil {
			log.Printf("[LAND] Failed to load land outline: %v", err)
			return
		}
		v.SetLand(land)
	}()

	go func() {
		res, err := g.Mount(ctx, m)
		if err != nil {
			log.Printf("Failed to mount globe: %v", err)
			return
		}
		for name, err := range res.Errors {
			log.Printf("[GLOBE] %s failed to load: %v", name, err)
		}
		if cli.Goto != "" {
			if err := g.GoTo(ctx, cli.Goto); err != nil {
				log.Printf("Could not go to %q: %v", cli.Goto, err)
			}
		}
	}()

	if !cli.NoReloads {
		go func() {
			err := sources.WatchReloads(ctx, sources.ReloadURL(cli.Backend), func(names []string) {
				res, err := g.Reload(ctx, names...)
				if err != nil {
					log.Printf("[RELOAD] %v", err)
					return
				}
				log.Printf("[RELOAD] Reloaded %d categories, %d failed", len(res.Loaded), len(res.Errors))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[RELOAD] Watcher stopped: %v", err)
			}
		}()
	}

	ebiten.SetTPS(cli.TPS)
	ebiten.SetWindowSize(cli.WindowWidth, cli.WindowHeight)
	ebiten.SetWindowTitle("Event Globe")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(v); err != nil {
		log.Fatal(err)
	}
	g.Unmount()
}
