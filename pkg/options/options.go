package options

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stronnag/altimap/pkg/elev"
	"github.com/stronnag/altimap/pkg/geo"
	"github.com/stronnag/altimap/pkg/render"
)

const (
	APP     = "altimap"
	ENVOPTS = "ALTIMAP_OPTS"
	ENVPFX  = "ALTIMAP_"
)

type Settings struct {
	Lat float64 `yaml:"-"`
	Lon float64 `yaml:"-"`

	Radius  float64 `yaml:"radius"`
	Step    float64 `yaml:"step"`
	Output  string  `yaml:"output"`
	Image   string  `yaml:"image"`
	Overlay bool    `yaml:"overlay"`
	Kml     bool    `yaml:"kml"`

	Service  string `yaml:"service"`
	Endpoint string `yaml:"endpoint"`
	Dataset  string `yaml:"dataset"`
	Batch    int    `yaml:"batch"`
	Workers  int    `yaml:"workers"`
	// Zero means the service's own request interval.
	Delay   time.Duration `yaml:"delay"`
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Timeout time.Duration `yaml:"timeout"`

	Gradient    string `yaml:"gradient"`
	Scale       int    `yaml:"scale"`
	Transparent bool   `yaml:"transparent"`
	Dms         bool   `yaml:"dms"`
	Verbose     int    `yaml:"verbose"`
}

func Defaults() Settings {
	return Settings{
		Radius:   500,
		Step:     50,
		Output:   "heights.db",
		Service:  "ign",
		Workers:  elev.DefaultConfig.Workers,
		Retries:  elev.DefaultConfig.MaxAttempts - 1,
		Backoff:  elev.DefaultBackoff.Initial,
		Timeout:  elev.DefaultConfig.Timeout,
		Gradient: "gray",
		Scale:    1,
	}
}

var Config = Defaults()

// Vlog logs only when the verbosity exceeds val.
func Vlog(val int, ofmt string, params ...interface{}) {
	if Config.Verbose > val {
		log.Printf(ofmt, params...)
	}
}

func GetConfigDir() string {
	if def := os.Getenv("XDG_CONFIG_HOME"); def != "" {
		return def
	}
	def := os.Getenv("HOME")
	if def != "" {
		def = filepath.Join(def, ".config")
	} else {
		def = "./"
	}
	return def
}

// ConfigFile is the default YAML settings file.
func ConfigFile() string {
	return filepath.Join(GetConfigDir(), APP, APP+".yaml")
}

// ReadConfigFile overlays the settings in the YAML file fn onto s. A
// missing file is not an error.
func ReadConfigFile(fn string, s *Settings) error {
	data, err := os.ReadFile(fn)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", fn, err)
	}
	return nil
}

// LoadDotEnv adds the variables of a .env file to the environment without
// replacing any already set.
func LoadDotEnv(fn string) error {
	if _, err := os.Stat(fn); err != nil {
		return nil
	}
	return godotenv.Load(fn)
}

func split_opts(defs string) []string {
	var parts []string
	for _, p := range strings.Split(defs, " ") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// flagset binds every option to s. The single letter names are aliases of
// the long ones; only long names are looked up in the environment.
func flagset(name string, s *Settings) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Float64Var(&s.Radius, "radius", s.Radius, "Radius of the sampled area (m)")
	fs.Float64Var(&s.Radius, "r", s.Radius, "Short for -radius")
	fs.Float64Var(&s.Step, "step", s.Step, "Grid spacing (m)")
	fs.Float64Var(&s.Step, "s", s.Step, "Short for -step")
	fs.StringVar(&s.Output, "output", s.Output, "Raster file (SQLite; a .asc name also exports an Esri ASCII grid)")
	fs.StringVar(&s.Output, "o", s.Output, "Short for -output")
	fs.StringVar(&s.Image, "image", s.Image, "Heightmap PNG (optional)")
	fs.BoolVar(&s.Overlay, "overlay", s.Overlay, "Also write a KMZ overlay next to the image")
	fs.BoolVar(&s.Kml, "kml", s.Kml, "Write the overlay as KML (vice default KMZ)")
	fs.StringVar(&s.Service, "service", s.Service, "Elevation service [ign, opentopo]")
	fs.StringVar(&s.Endpoint, "endpoint", s.Endpoint, "Service URL (default: the service's public endpoint)")
	fs.StringVar(&s.Dataset, "dataset", s.Dataset, "Service resource / dataset")
	fs.IntVar(&s.Batch, "batch", s.Batch, "Points per request (0: service maximum)")
	fs.IntVar(&s.Workers, "workers", s.Workers, "Concurrent requests")
	fs.DurationVar(&s.Delay, "delay", s.Delay, "Minimum time between requests (0: service default)")
	fs.IntVar(&s.Retries, "retries", s.Retries, "Retries of a failed request")
	fs.DurationVar(&s.Backoff, "backoff", s.Backoff, "Initial retry backoff")
	fs.DurationVar(&s.Timeout, "timeout", s.Timeout, "Request timeout")
	fs.StringVar(&s.Gradient, "gradient", s.Gradient, "Image colours ["+strings.Join(render.Gradients(), ",")+"]")
	fs.IntVar(&s.Scale, "scale", s.Scale, "Image pixels per grid cell")
	fs.BoolVar(&s.Transparent, "transparent", s.Transparent, "Transparent no-data pixels (vice magenta)")
	fs.BoolVar(&s.Dms, "dms", s.Dms, "Show positions as DD:MM:SS.s (vice decimal degrees)")
	fs.IntVar(&s.Verbose, "verbose", s.Verbose, "Verbosity")
	fs.IntVar(&s.Verbose, "v", s.Verbose, "Short for -verbose")
	return fs
}

// Parse applies, in increasing precedence, ALTIMAP_<NAME> variables from
// getenv, the $ALTIMAP_OPTS flag string and args to s. It returns the
// positional arguments.
func Parse(name string, args []string, getenv func(string) string, s *Settings, errout io.Writer) ([]string, error) {
	fs := flagset(name, s)
	fs.SetOutput(errout)

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if err != nil || len(f.Name) == 1 {
			return
		}
		key := ENVPFX + strings.ToUpper(f.Name)
		if v := getenv(key); v != "" {
			if serr := fs.Set(f.Name, v); serr != nil {
				err = fmt.Errorf("%s: %w", key, serr)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	if opts := split_opts(getenv(ENVOPTS)); len(opts) > 0 {
		if err := fs.Parse(opts); err != nil {
			return nil, fmt.Errorf("$%s: %w", ENVOPTS, err)
		}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

// Positional takes "latitude longitude [image]" or "lat,lon [image]".
func (s *Settings) Positional(args []string) error {
	var err error
	switch {
	case len(args) > 0 && strings.Contains(args[0], ","):
		s.Lat, s.Lon, err = geo.ParsePosition(args[0])
		args = args[1:]
	case len(args) >= 2:
		if s.Lat, err = geo.ParseCoord(args[0]); err == nil {
			s.Lon, err = geo.ParseCoord(args[1])
		}
		args = args[2:]
	default:
		return errors.New("latitude and longitude are required")
	}
	if err != nil {
		return err
	}
	switch len(args) {
	case 0:
	case 1:
		s.Image = args[0]
	default:
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args[1:], " "))
	}
	return nil
}

func (s Settings) GridSpec() geo.GridSpec {
	return geo.GridSpec{Lat: s.Lat, Lon: s.Lon, Radius: s.Radius, Step: s.Step}
}

func (s Settings) ClientConfig() elev.Config {
	cfg := elev.DefaultConfig
	cfg.BatchSize = s.Batch
	cfg.Workers = s.Workers
	if s.Delay > 0 {
		cfg.MinDelay = s.Delay
	}
	cfg.MaxAttempts = s.Retries + 1
	if s.Backoff > 0 {
		cfg.Backoff.Initial = s.Backoff
		if cfg.Backoff.Max < s.Backoff {
			cfg.Backoff.Max = s.Backoff
		}
	}
	cfg.Timeout = s.Timeout
	cfg.Verbose = s.Verbose
	return cfg
}

func (s Settings) RenderOptions() render.Options {
	opts := render.DefaultOptions()
	opts.Gradient = s.Gradient
	opts.Scale = s.Scale
	if s.Transparent {
		opts.NoData = render.Transparent
	}
	return opts
}

// NewService builds the configured elevation service.
func (s Settings) NewService() (elev.Service, error) {
	return elev.ByName(strings.ToLower(s.Service), s.Endpoint, s.Dataset)
}

// Validate reports bad settings before anything is fetched.
func (s Settings) Validate() error {
	if err := s.GridSpec().Validate(); err != nil {
		return err
	}
	if _, err := s.NewService(); err != nil {
		return err
	}
	if s.Image != "" {
		if _, err := render.NewPalette(s.Gradient); err != nil {
			return err
		}
	}
	switch {
	case s.Output == "":
		return errors.New("no raster output file")
	case s.Batch < 0:
		return errors.New("batch size must not be negative")
	case s.Workers < 1:
		return errors.New("at least one worker is needed")
	case s.Retries < 0:
		return errors.New("retries must not be negative")
	case s.Timeout <= 0:
		return errors.New("timeout must be positive")
	case s.Scale < 1:
		return errors.New("image scale must be at least 1")
	case s.Overlay && s.Image == "":
		return errors.New("an overlay needs an image")
	}
	return nil
}

// ParseCLI fills Config from the config file, .env, the environment and
// the command line, in that order, and exits on any error.
func ParseCLI(gv func() string) {
	app := filepath.Base(os.Args[0])
	usage := func() {
		fmt.Fprintf(os.Stderr, "Usage of %s [options] latitude longitude [image]\n", app)
		fmt.Fprintf(os.Stderr, "  (negative coordinates: put -- before them, or use a N/S/E/W suffix)\n")
		d := Defaults()
		flagset(app, &d).PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintln(os.Stderr, gv())
	}

	s := Defaults()
	if err := ReadConfigFile(ConfigFile(), &s); err != nil {
		log.Fatal(err)
	}
	if err := LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}
	args, err := Parse(app, os.Args[1:], os.Getenv, &s, io.Discard)
	if errors.Is(err, flag.ErrHelp) {
		usage()
		os.Exit(0)
	}
	if err == nil {
		err = s.Positional(args)
	}
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app, err)
		usage()
		os.Exit(1)
	}
	Config = s
}
