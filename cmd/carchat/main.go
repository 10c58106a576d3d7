// Command carchat is a terminal front end for the chat client: the same
// session lifecycle the embedded widget runs, driven from stdin.
//
// Usage:
//
//	carchat <owner-id> [page-url]
//
// The optional page URL may carry room_id and visitor_token query
// parameters from a shared link; they take precedence over the locally
// stored session.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sirojiddin1dev/carinfopro/internal/config"
	"github.com/Sirojiddin1dev/carinfopro/internal/identity"
	"github.com/Sirojiddin1dev/carinfopro/internal/models"
	"github.com/Sirojiddin1dev/carinfopro/internal/rest"
	"github.com/Sirojiddin1dev/carinfopro/internal/session"
	"github.com/Sirojiddin1dev/carinfopro/internal/ws"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: carchat <owner-id> [page-url]")
		os.Exit(2)
	}
	ownerID := os.Args[1]

	var resume *session.ResumeParams
	if len(os.Args) > 2 {
		resume = session.ParseResumeParams(os.Args[2])
	}

	cfg := config.Load()

	// Logs go to stderr; stdout is the conversation.
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	store, err := identity.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("identity store unavailable")
	}
	defer store.Close()

	ctrl := session.NewController(cfg, store,
		rest.NewClient(logger),
		ws.NewManager(cfg.WSBase, cfg.WSFallbackPrefix, logger),
		logger)
	var linkPrinted bool
	ctrl.OnStatus = func(st session.Status) {
		printStatus(st)
		// The room is resumable from the link alone; surface it once.
		if st.State == session.StateLive && !linkPrinted && cfg.PageURL != "" {
			if link, err := ctrl.ShareURL(); err == nil {
				fmt.Println("* resume link:", link)
			}
			linkPrinted = true
		}
	}
	ctrl.OnMessage = printMessage

	if err := ctrl.Open(ctx, ownerID, resume); err != nil {
		logger.Error().Err(err).Msg("session did not come up; /retry to try again")
	}
	defer ctrl.Close()

	// Ctrl-C tears the session down cleanly.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		ctrl.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/retry":
			if err := ctrl.Retry(ctx); err != nil {
				logger.Error().Err(err).Msg("retry failed")
			}
			continue
		case "/link":
			link, err := ctrl.ShareURL()
			if err != nil {
				fmt.Println("* no active room to link to")
				continue
			}
			fmt.Println("* resume link:", link)
			continue
		}

		switch err := ctrl.Send(line); {
		case err == nil:
		case errors.Is(err, session.ErrTooSoon):
			fmt.Println("* slow down; message not sent")
		case errors.Is(err, session.ErrEmptyMessage):
		case errors.Is(err, session.ErrNotConnected):
			fmt.Println("* not connected; /retry to reconnect")
		default:
			logger.Error().Err(err).Msg("send failed")
		}
	}
}

func printStatus(st session.Status) {
	switch st.State {
	case session.StateLive:
		fmt.Println("* connected")
	case session.StateError:
		if st.Retryable {
			fmt.Printf("* %s (/retry to reconnect)\n", st.Message)
		} else {
			fmt.Printf("* %s\n", st.Message)
		}
	}
}

func printMessage(m models.ChatMessage) {
	when := ""
	if m.CreatedAt != nil {
		when = m.CreatedAt.Local().Format("15:04") + " "
	}
	fmt.Printf("%s[%s] %s\n", when, m.Sender, m.Text)
}
