// Command visitor is a terminal chat client that drives the same widget
// runtime the browser script implements. It is handy for checking a
// deployment end to end without a browser.
//
// Usage:
//
//	visitor -chatbot <id> [-api http://localhost:8080/api] [-name Jane] [-email jane@example.com]
//	visitor -chatbot <id> -strategy direct -store-url https://project.example.co -anon-key <key>
//
// The store URL is the REST root; tables are addressed under /rest/v1.
//
// Lines read from stdin are sent as visitor messages; replies are printed as
// they arrive. EOF or Ctrl-C ends the session.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
	"github.com/tbourn/go-livechat-backend/internal/sysutil"
	"github.com/tbourn/go-livechat-backend/internal/widget"
)

func main() {
	var (
		api      = flag.String("api", "", "API base URL (env LIVECHAT_API, default http://localhost:8080/api)")
		chatbot  = flag.String("chatbot", "", "public chatbot id (env LIVECHAT_CHATBOT_ID)")
		name     = flag.String("name", "", "visitor name")
		email    = flag.String("email", "", "visitor email")
		strategy = flag.String("strategy", string(widget.StrategyProxied), "proxied or direct")
		storeURL = flag.String("store-url", "", "store REST root for the direct strategy, without /rest/v1 (env STORE_REST_URL)")
		anonKey  = flag.String("anon-key", "", "low-privilege store key for the direct strategy (env STORE_ANON_KEY)")
		poll     = flag.Duration("poll", 0, "poll interval (default 3s)")
	)
	flag.Parse()

	level := "warn"
	if sysutil.IsTruthy(os.Getenv("LIVECHAT_VERBOSE")) {
		level = "debug"
	}
	lg := sysutil.SetupLogger(level, true, os.Stderr)

	chatbotID := sysutil.FirstNonEmpty(*chatbot, os.Getenv("LIVECHAT_CHATBOT_ID"))
	if chatbotID == "" {
		fmt.Fprintln(os.Stderr, "visitor: -chatbot is required")
		flag.Usage()
		os.Exit(2)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	var (
		tr       widget.Transport
		direct   *widget.DirectTransport
		interval = *poll
	)
	if interval <= 0 {
		interval = widget.DefaultPollInterval
	}
	switch widget.Strategy(*strategy) {
	case widget.StrategyProxied:
		base := sysutil.FirstNonEmpty(*api, os.Getenv("LIVECHAT_API"), "http://localhost:8080/api")
		tr = widget.NewProxiedTransport(strings.TrimRight(base, "/"), client)
	case widget.StrategyDirect:
		u := sysutil.FirstNonEmpty(*storeURL, os.Getenv("STORE_REST_URL"))
		k := sysutil.FirstNonEmpty(*anonKey, os.Getenv("STORE_ANON_KEY"))
		if u == "" || k == "" {
			fmt.Fprintln(os.Stderr, "visitor: direct strategy needs -store-url and -anon-key")
			os.Exit(2)
		}
		direct = widget.NewDirectTransport(u, k, client)
		direct.Page = widget.PageContext{UserAgent: "livechat-visitor/" + runtime.Version()}
		direct.Logger = &lg
		tr = direct
	default:
		fmt.Fprintf(os.Stderr, "visitor: unknown strategy %q\n", *strategy)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	view := &printView{out: os.Stdout}
	ctl := widget.New(widget.Options{
		ChatbotID:     chatbotID,
		Transport:     tr,
		View:          view,
		PollInterval:  interval,
		Logger:        &lg,
		ConfigTimeout: 2 * time.Second,
	})
	if direct != nil {
		defer direct.Wait()
	}
	defer ctl.Unmount()

	if err := ctl.Boot(ctx); err != nil {
		log.Fatal().Err(err).Msg("boot")
	}
	if err := ctl.Open(); err != nil {
		log.Fatal().Err(err).Msg("open")
	}
	visitorName := sysutil.FirstNonEmpty(*name, os.Getenv("USER"), "Visitor")
	if err := ctl.SubmitPreChat(ctx, visitorName, *email); err != nil {
		log.Fatal().Err(err).Msg("could not start a session")
	}
	fmt.Fprintf(os.Stderr, "session %s started, type a message and press enter\n", ctl.State().SessionID)

	lines := make(chan string)
	go readLines(os.Stdin, lines)
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-lines:
			if !ok {
				return
			}
			if err := ctl.Send(ctx, text); err != nil {
				fmt.Fprintf(os.Stderr, "not sent: %v\n", err)
			}
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// printView prints thread lines as they are inserted. Lines are printed in
// arrival order; late inserts earlier in the thread are still shown last.
type printView struct {
	widget.MemoryView
	out   io.Writer
	title string
}

func (v *printView) ApplyConfig(cfg chatapi.Config) {
	v.MemoryView.ApplyConfig(cfg)
	if cfg.WidgetTitle != v.title {
		v.title = cfg.WidgetTitle
		fmt.Fprintf(v.out, "== %s ==\n", cfg.WidgetTitle)
	}
}

func (v *printView) ShowRetry(reason string) {
	v.MemoryView.ShowRetry(reason)
	fmt.Fprintf(v.out, "!! %s\n", reason)
}

func (v *printView) Insert(index int, e widget.Entry) {
	v.MemoryView.Insert(index, e)
	if e.Local {
		return
	}
	fmt.Fprintf(v.out, "[%s] %s: %s\n", e.CreatedAt.Local().Format("15:04"), e.Sender, e.Content)
}
