package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"MarketSession/internal/model"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Period is one trading period as written in the config file.
type Period struct {
	Begin string `yaml:"begin"`
	End   string `yaml:"end"`
}

// SeedStock is a demo stock inserted into an empty database.
type SeedStock struct {
	Market string  `yaml:"market"`
	Name   string  `yaml:"name"`
	Price  float64 `yaml:"price"`
}

// Config holds all application configuration.
type Config struct {
	Calendar struct {
		Periods  []Period      `yaml:"periods"`
		Timezone string        `yaml:"timezone"`
		OpenLead time.Duration `yaml:"open_lead"`
		CloseLag time.Duration `yaml:"close_lag"`
	} `yaml:"calendar"`
	Schedule struct {
		CreateRobotCron  string `yaml:"create_robot_cron"`
		GrantCapitalCron string `yaml:"grant_capital_cron"`
	} `yaml:"schedule"`
	Robot struct {
		Interval    time.Duration `yaml:"interval"`
		BackoffUnit time.Duration `yaml:"backoff_unit"`
		MaxFailures int           `yaml:"max_failures"`
		Seed        uint64        `yaml:"seed"`
	} `yaml:"robot"`
	Capital struct {
		Allowance float64 `yaml:"allowance"`
	} `yaml:"capital"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Seed struct {
		Stocks []SeedStock `yaml:"stocks"`
	} `yaml:"seed"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Offsets default before parsing so an explicit 0s in the file survives.
	cfg.Calendar.OpenLead = 30 * time.Minute
	cfg.Calendar.CloseLag = 10 * time.Minute

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("MARKET_TIMEZONE"); v != "" {
		cfg.Calendar.Timezone = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CAPITAL_ALLOWANCE"); v != "" {
		allowance, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("CAPITAL_ALLOWANCE: %w", err)
		}
		cfg.Capital.Allowance = allowance
	}
	if v := os.Getenv("CRON_CREATE_ROBOT"); v != "" {
		cfg.Schedule.CreateRobotCron = v
	}
	if v := os.Getenv("CRON_GRANT_CAPITAL"); v != "" {
		cfg.Schedule.GrantCapitalCron = v
	}

	// Defaults
	if len(cfg.Calendar.Periods) == 0 {
		cfg.Calendar.Periods = []Period{
			{Begin: "09:30", End: "11:30"},
			{Begin: "13:00", End: "15:00"},
		}
	}
	if cfg.Schedule.CreateRobotCron == "" {
		cfg.Schedule.CreateRobotCron = "35 */10 * * * *"
	}
	if cfg.Schedule.GrantCapitalCron == "" {
		cfg.Schedule.GrantCapitalCron = "0 15 0 * * *"
	}
	if cfg.Robot.Interval == 0 {
		cfg.Robot.Interval = 20 * time.Second
	}
	if cfg.Robot.BackoffUnit == 0 {
		cfg.Robot.BackoffUnit = time.Minute
	}
	if cfg.Robot.MaxFailures == 0 {
		cfg.Robot.MaxFailures = 10
	}
	if cfg.Robot.Seed == 0 {
		cfg.Robot.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.Capital.Allowance == 0 {
		cfg.Capital.Allowance = 100000
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/market_session.db"
	}

	return cfg, nil
}

// Validate checks that every field is usable.
func (c *Config) Validate() error {
	if _, err := c.TradingCalendar(); err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("calendar.timezone: %w", err)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.CreateRobotCron); err != nil {
		return fmt.Errorf("schedule.create_robot_cron: %w", err)
	}
	if _, err := parser.Parse(c.Schedule.GrantCapitalCron); err != nil {
		return fmt.Errorf("schedule.grant_capital_cron: %w", err)
	}
	if c.Robot.Interval <= 0 {
		return fmt.Errorf("robot.interval must be positive")
	}
	if c.Robot.BackoffUnit <= 0 {
		return fmt.Errorf("robot.backoff_unit must be positive")
	}
	if c.Robot.MaxFailures < 0 {
		return fmt.Errorf("robot.max_failures must not be negative")
	}
	if c.Capital.Allowance <= 0 {
		return fmt.Errorf("capital.allowance must be positive")
	}
	for i, s := range c.Seed.Stocks {
		if s.Name == "" || s.Price <= 0 {
			return fmt.Errorf("seed.stocks[%d]: name and a positive price are required", i)
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TradingCalendar parses the configured periods.
func (c *Config) TradingCalendar() (*model.TradingCalendar, error) {
	periods := make([]model.TradePeriod, 0, len(c.Calendar.Periods))
	for i, p := range c.Calendar.Periods {
		begin, err := model.ParseTimeOfDay(p.Begin)
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", i, err)
		}
		end, err := model.ParseTimeOfDay(p.End)
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", i, err)
		}
		periods = append(periods, model.TradePeriod{Begin: begin, End: end})
	}
	return model.NewTradingCalendar(periods, c.Calendar.OpenLead, c.Calendar.CloseLag)
}

// Location resolves the market timezone. Empty means the process's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Calendar.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Calendar.Timezone)
}

// SeedStocks converts the demo stock list to model stocks.
func (c *Config) SeedStocks() []model.Stock {
	out := make([]model.Stock, 0, len(c.Seed.Stocks))
	for _, s := range c.Seed.Stocks {
		out = append(out, model.Stock{Market: s.Market, Name: s.Name, CurrentPrice: s.Price})
	}
	return out
}
