package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/internal/ingestion"
	"github.com/jeovahfialho/lntools/internal/timeutils"
	"github.com/spf13/viper"
)

// SourcesFile is a YAML catalogue of named data directories.
//
//	holidays: ["2024-02-12"]
//	sources:
//	  quotes:
//	    path: /data/quotes
//	    pattern: "{date}.parquet"
//	    date_format: "%Y%m%d"
//	    business_days: true
type SourcesFile struct {
	Holidays []string          `mapstructure:"holidays"`
	Sources  map[string]Source `mapstructure:"sources"`
}

type Source struct {
	Path         string        `mapstructure:"path"`
	Pattern      string        `mapstructure:"pattern"`
	DateFormat   string        `mapstructure:"date_format"`
	Workers      int           `mapstructure:"workers"`
	Timeout      time.Duration `mapstructure:"timeout"`
	BusinessDays bool          `mapstructure:"business_days"`
	Delimiter    string        `mapstructure:"delimiter"`
	SortKey      string        `mapstructure:"sort_key"`
	DateColumn   string        `mapstructure:"date_column"`
	Schema       []SchemaField `mapstructure:"schema"`
}

type SchemaField struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
}

// LoadSources reads a sources file. Source names are case-insensitive.
func LoadSources(path string) (*SourcesFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}

	var sf SourcesFile
	if err := v.Unmarshal(&sf); err != nil {
		return nil, fmt.Errorf("decode sources file %s: %w", path, err)
	}

	for name, src := range sf.Sources {
		if src.Path == "" {
			return nil, fmt.Errorf("source %q has no path", name)
		}
	}

	return &sf, nil
}

func (sf *SourcesFile) Lookup(name string) (Source, error) {
	src, ok := sf.Sources[strings.ToLower(name)]
	if !ok {
		return Source{}, fmt.Errorf("unknown source %q", name)
	}
	return src, nil
}

func (sf *SourcesFile) Names() []string {
	names := make([]string, 0, len(sf.Sources))
	for name := range sf.Sources {
		names = append(names, name)
	}
	return names
}

// SourceOptions layers a source over the environment defaults.
func (c *Config) SourceOptions(src Source, holidays []string) (ingestion.Options, error) {
	opts, err := c.DirectoryOptions()
	if err != nil {
		return opts, err
	}

	if src.Pattern != "" {
		opts.Pattern = src.Pattern
	}
	if src.DateFormat != "" {
		if err := timeutils.ValidateFormat(src.DateFormat); err != nil {
			return opts, fmt.Errorf("source date_format: %w", err)
		}
		opts.DateFormat = src.DateFormat
	}
	if src.Workers > 0 {
		opts.Workers = src.Workers
	}
	if src.Timeout > 0 {
		opts.Timeout = src.Timeout
	}
	opts.SortKey = src.SortKey
	opts.DateColumn = src.DateColumn

	if src.Delimiter != "" {
		delim, err := parseDelimiter(src.Delimiter)
		if err != nil {
			return opts, fmt.Errorf("source delimiter: %w", err)
		}
		opts.Reader = ingestion.NewExtensionReader(ingestion.ReaderOptions{Delimiter: delim, Workers: 4, Location: opts.Location})
	}

	if src.BusinessDays || c.BusinessDays {
		cal, err := c.BusinessCalendar(holidays...)
		if err != nil {
			return opts, err
		}
		opts.Calendar = cal
	}

	for _, f := range src.Schema {
		kind, err := domain.ParseKind(f.Kind)
		if err != nil {
			return opts, fmt.Errorf("source schema column %q: %w", f.Name, err)
		}
		opts.Schema = append(opts.Schema, domain.Field{Name: f.Name, Kind: kind})
	}

	return opts, nil
}
