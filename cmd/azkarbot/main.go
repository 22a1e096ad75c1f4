package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"azkarbot/internal/app"
	"azkarbot/pkg/logx"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s [-config path] <command>

commands:
  run    run the scheduler loop (default)
  auth   open the browser and wait for a QR scan
  send   send one campaign now (send <morning|evening>), or an ad-hoc
         message: send -to +62...,+62... [-text "..."] [-image path]
`, os.Args[0])
}

func main() {
	var cfgPath string
	var authWait time.Duration
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.DurationVar(&authWait, "auth-wait", 3*time.Minute, "how long auth waits for a QR scan")
	flag.Usage = usage
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "run"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Bootstrap logger for everything before (or outside) the log
	// service: app construction and subcommand failures.
	boot := logx.NewConsole("info")

	a, err := app.New(cfgPath)
	if err != nil {
		boot.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}

	switch cmd {
	case "run":
		if err := a.Start(ctx); err != nil {
			boot.Error("start failed", logx.Err(err))
			os.Exit(1)
		}
		var fatal error
		select {
		case <-ctx.Done():
		case <-a.Done():
			fatal = a.Err()
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx)
		if fatal != nil {
			boot.Error("supervised goroutine died", logx.Err(fatal))
			os.Exit(1)
		}
	case "auth":
		if err := a.Authenticate(ctx, authWait); err != nil {
			boot.Error("auth failed", logx.Err(err))
			os.Exit(1)
		}
	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		var to, text, image string
		fs.StringVar(&to, "to", "", "comma-separated recipients for an ad-hoc send")
		fs.StringVar(&text, "text", "", "ad-hoc text body (or image caption)")
		fs.StringVar(&image, "image", "", "ad-hoc image file to send")
		_ = fs.Parse(flag.Args()[1:])

		switch {
		case to != "":
			if err := a.SendAdhoc(ctx, strings.Split(to, ","), text, image); err != nil {
				boot.Error("send failed", logx.Err(err))
				os.Exit(1)
			}
		case fs.Arg(0) != "":
			if err := a.SendNow(ctx, fs.Arg(0)); err != nil {
				boot.Error("send failed", logx.Err(err))
				os.Exit(1)
			}
			_ = a.WriteStatus(os.Stdout)
		default:
			usage()
			os.Exit(2)
		}
	default:
		usage()
		os.Exit(2)
	}
}
