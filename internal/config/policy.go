package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	ModeHistorical  = "historical"
	ModeIncremental = "incremental"
)

// AccountConfig identifies one upstream analytics account to collect.
type AccountConfig struct {
	Name      string `mapstructure:"name"`
	AccountID string `mapstructure:"accountId"`
}

// CollectionPolicy drives the window planner: which accounts, which date
// range, and how far back the incremental overlap reaches.
type CollectionPolicy struct {
	Mode        string          `mapstructure:"mode"`
	From        string          `mapstructure:"from"`
	To          string          `mapstructure:"to"`
	OverlapDays int             `mapstructure:"overlapDays"`
	Workers     int             `mapstructure:"workers"`
	Accounts    []AccountConfig `mapstructure:"accounts"`
}

func DefaultCollectionPolicy() CollectionPolicy {
	return CollectionPolicy{
		Mode:        ModeIncremental,
		From:        "2024-01-01",
		To:          "",
		OverlapDays: 7,
		Workers:     4,
	}
}

// PolicyHolder serves the latest valid collection policy and hot-reloads it
// when the config file changes on disk.
type PolicyHolder struct {
	current atomic.Value // holds CollectionPolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("collection")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/harvester/config")
	v.AddConfigPath("/etc/harvester")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCollectionPolicy()
		v.SetDefault("collection.mode", defaults.Mode)
		v.SetDefault("collection.from", defaults.From)
		v.SetDefault("collection.overlapDays", defaults.OverlapDays)
		v.SetDefault("collection.workers", defaults.Workers)
	}

	var cfg CollectionPolicy
	if err := v.UnmarshalKey("collection", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateCollectionPolicy(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CollectionPolicy
		if err := v.UnmarshalKey("collection", &updated); err != nil {
			log.Printf("[collection-config] reload failed: %v", err)
			return
		}
		if err := ValidateCollectionPolicy(updated); err != nil {
			log.Printf("[collection-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[collection-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder wraps a fixed policy, bypassing file watching.
func NewStaticPolicyHolder(cfg CollectionPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PolicyHolder) Get() CollectionPolicy {
	return h.current.Load().(CollectionPolicy)
}

const dateLayout = "2006-01-02"

func ValidateCollectionPolicy(cfg CollectionPolicy) error {
	switch cfg.Mode {
	case ModeHistorical, ModeIncremental:
	default:
		return fmt.Errorf("collection.mode must be %q or %q", ModeHistorical, ModeIncremental)
	}
	from, err := time.Parse(dateLayout, cfg.From)
	if err != nil {
		return fmt.Errorf("collection.from: %w", err)
	}
	if cfg.To != "" {
		to, err := time.Parse(dateLayout, cfg.To)
		if err != nil {
			return fmt.Errorf("collection.to: %w", err)
		}
		if to.Before(from) {
			return errors.New("collection.to precedes collection.from")
		}
	}
	if cfg.OverlapDays < 0 {
		return errors.New("collection.overlapDays cannot be negative")
	}
	if cfg.Workers < 0 {
		return errors.New("collection.workers cannot be negative")
	}
	return nil
}
