package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketSession/internal/config"
	"MarketSession/internal/notifier"
	"MarketSession/internal/provision"
	"MarketSession/internal/robot"
	"MarketSession/internal/scheduler"
	"MarketSession/internal/session"
	"MarketSession/internal/store"
	"MarketSession/internal/strategy"

	"github.com/joho/godotenv"
)

const (
	triggerCreateRobot  = "create_robot"
	triggerGrantCapital = "grant_capital"
	triggerSessionClose = "session_close"
	triggerSessionOpen  = "session_open"
	triggerRobotTrade   = "robot_trade"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] market session starting...")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("[FATAL] load .env: %v", err)
	}

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	cal, err := cfg.TradingCalendar()
	if err != nil {
		log.Fatalf("[FATAL] trading calendar: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("[FATAL] timezone: %v", err)
	}
	now := func() time.Time { return time.Now().In(loc) }
	log.Printf("[INFO] session opens at %s, closes at %s (%s)", cal.SessionOpen(), cal.SessionClose(), loc)

	// Init store
	st, err := store.Open(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("[FATAL] open store: %v", err)
	}
	defer st.Close()

	if n, err := st.SeedStocks(context.Background(), cfg.SeedStocks()); err != nil {
		log.Fatalf("[FATAL] seed stocks: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] seeded %d stocks", n)
	}

	// Init alerts
	var alerter notifier.Alerter = notifier.NoopAlerter{}
	if cfg.Telegram.BotToken != "" {
		alerter = notifier.NewAlerter(notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy))
		log.Println("[INFO] telegram alerts enabled")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := session.NewController(st, st, st, st, now)
	provisioner := provision.NewProvisioner(st, st, st, cfg.Capital.Allowance)
	dispatcher := strategy.NewDispatcher(st, st, cfg.Robot.Seed)
	loop := robot.NewLoop(cal, st, dispatcher, robot.Config{
		Interval:    cfg.Robot.Interval,
		BackoffUnit: cfg.Robot.BackoffUnit,
		MaxFailures: cfg.Robot.MaxFailures,
		Now:         now,
	})

	// Init scheduler
	sched := scheduler.New(ctx, loc)
	sched.OnFailure(func(name string, err error) {
		if err := alerter.Alert(ctx, notifier.FormatTriggerFailure(name, err, now())); err != nil {
			log.Printf("[ERROR] send alert: %v", err)
		}
	})
	triggers := []scheduler.Trigger{
		{Name: triggerCreateRobot, Rule: scheduler.Calendar(cfg.Schedule.CreateRobotCron), Handler: provisioner.CreateRobotHandler},
		{Name: triggerGrantCapital, Rule: scheduler.Calendar(cfg.Schedule.GrantCapitalCron), Handler: provisioner.GrantCapitalHandler},
		{Name: triggerSessionClose, Rule: scheduler.DailyAt(cal.SessionClose()), Handler: controller.CloseHandler},
		{Name: triggerSessionOpen, Rule: scheduler.DailyAt(cal.SessionOpen()), Handler: controller.OpenHandler},
		{Name: triggerRobotTrade, Rule: scheduler.Continuous(), Handler: loop.Run},
	}
	for _, t := range triggers {
		if err := sched.Register(t); err != nil {
			log.Fatalf("[FATAL] register trigger: %v", err)
		}
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("[FATAL] start scheduler: %v", err)
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, creating a robot now")
		go func() {
			if err := sched.Fire(triggerCreateRobot); err != nil {
				log.Printf("[ERROR] fire %s: %v", triggerCreateRobot, err)
			}
		}()
	}

	log.Println("[INFO] market session is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal or an unrecoverable fault
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case err := <-sched.Fatal():
		log.Printf("[FATAL] %v", err)
		alertCtx, alertCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := alerter.Alert(alertCtx, notifier.FormatFatal(err, now())); err != nil {
			log.Printf("[ERROR] send alert: %v", err)
		}
		alertCancel()
		exitCode = 1
	}

	cancel()
	sched.Stop()
	log.Println("[INFO] market session stopped")
	if exitCode != 0 {
		st.Close()
		os.Exit(exitCode)
	}
}
