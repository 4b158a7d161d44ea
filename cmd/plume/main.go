// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is a terminal consumer of the plume data layer. It exists to
// exercise the accessors end to end against a live backend: list posts, show
// one post, follow a comment thread live, list categories, sign in.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"plume/internal/accessor"
	"plume/internal/backend"
	"plume/internal/config"
	"plume/internal/models"
)

const usage = `usage: plume <command> [flags]

commands:
  posts       list published posts (-page, -size)
  post        show one post by slug: plume post <slug>
  comments    follow a post's comment thread: plume comments <post-id> [-watch]
  categories  list categories
  login       sign in and print the session user: plume login <email>
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := backend.New(cfg)
	defer client.Close()

	// Keeps the token fresh for long-lived commands such as comments -watch.
	client.Auth().StartAutoRefresh(ctx)

	switch os.Args[1] {
	case "posts":
		err = runPosts(ctx, client, os.Args[2:])
	case "post":
		err = runPost(ctx, client, os.Args[2:])
	case "comments":
		err = runComments(ctx, client, os.Args[2:])
	case "categories":
		err = runCategories(ctx, client)
	case "login":
		err = runLogin(ctx, client, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func runPosts(ctx context.Context, client *backend.Client, args []string) error {
	fs := flag.NewFlagSet("posts", flag.ExitOnError)
	page := fs.Int("page", 1, "page number, 1-based")
	size := fs.Int("size", 10, "posts per page")
	fs.Parse(args)

	list := accessor.NewPostList(client, *page, *size)
	list.Start(ctx)
	defer list.Close()

	if err := awaitSettle(ctx, list.Updates(), func() bool { return !list.State().Loading }); err != nil {
		return err
	}
	if s := list.State(); s.Err != "" {
		return fmt.Errorf("%s", s.Err)
	}

	for _, p := range list.State().Data {
		when := ""
		if p.PublishedAt != nil {
			when = p.PublishedAt.Format("2006-01-02")
		}
		fmt.Printf("%-10s  %-30s  by %s\n", when, p.Slug, authorName(p.Author))
	}
	return nil
}

func runPost(ctx context.Context, client *backend.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("post: missing slug")
	}

	detail := accessor.NewPostDetail(client, args[0])
	detail.Start(ctx)
	defer detail.Close()

	if err := awaitSettle(ctx, detail.Updates(), func() bool { return !detail.State().Loading }); err != nil {
		return err
	}
	s := detail.State()
	if s.Err != "" {
		return fmt.Errorf("%s", s.Err)
	}
	if s.Data == nil {
		return fmt.Errorf("post not found")
	}

	p := s.Data
	fmt.Printf("# %s\n\nby %s", p.Title, authorName(p.Author))
	if p.PublishedAt != nil {
		fmt.Printf(" on %s", p.PublishedAt.Format("January 2, 2006"))
	}
	if len(p.Categories) > 0 {
		names := make([]string, len(p.Categories))
		for i, c := range p.Categories {
			names[i] = c.Name
		}
		fmt.Printf("  [%s]", strings.Join(names, ", "))
	}
	fmt.Printf("\n\n%s\n", p.Content)
	return nil
}

func runComments(ctx context.Context, client *backend.Client, args []string) error {
	fs := flag.NewFlagSet("comments", flag.ExitOnError)
	watch := fs.Bool("watch", false, "keep following the thread for live inserts")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("comments: missing post id")
	}
	postID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("comments: bad post id: %w", err)
	}

	cm := accessor.NewComments(client, postID)
	cm.Start(ctx)
	defer cm.Close()

	if err := awaitSettle(ctx, cm.Updates(), func() bool { return !cm.State().Loading }); err != nil {
		return err
	}

	printThread := func() {
		s := cm.State()
		if s.Err != "" {
			fmt.Printf("! %s\n", s.Err)
		}
		for _, c := range s.Data {
			fmt.Printf("[%s] %s: %s\n",
				c.CreatedAt.Format(time.RFC822), authorName(c.Author), c.Content)
		}
	}
	printThread()

	if !*watch {
		return nil
	}
	slog.Info("watching for new comments, interrupt to stop", "post_id", postID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-cm.Updates():
			if !ok {
				return nil
			}
			if !cm.State().Loading {
				fmt.Println("---")
				printThread()
			}
		}
	}
}

func runCategories(ctx context.Context, client *backend.Client) error {
	cats := accessor.NewCategories(client)
	cats.Start(ctx)
	defer cats.Close()

	if err := awaitSettle(ctx, cats.Updates(), func() bool { return !cats.State().Loading }); err != nil {
		return err
	}
	s := cats.State()
	if s.Err != "" {
		return fmt.Errorf("%s", s.Err)
	}
	for _, c := range s.Data {
		fmt.Printf("%-24s  %s\n", c.Name, c.Slug)
	}
	return nil
}

func runLogin(ctx context.Context, client *backend.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("login: missing email")
	}
	email := args[0]

	fmt.Fprint(os.Stderr, "password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("login: read password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")

	auth := accessor.NewAuth(client)
	auth.Start(ctx)
	defer auth.Close()

	session, err := auth.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	// Wait for the profile lookup to fold into the auth state.
	deadline := time.After(5 * time.Second)
	for auth.State().Loading || auth.State().User == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("login: timed out waiting for session state")
		case <-auth.Updates():
		}
	}

	state := auth.State()
	fmt.Printf("signed in as %s", state.User.Email)
	if state.Profile != nil {
		fmt.Printf(" (@%s)", state.Profile.Username)
	}
	fmt.Printf("\ntoken expires %s\n", session.ExpiresAt.Format(time.RFC822))
	return nil
}

// awaitSettle blocks until done reports true, an update arrives and done
// reports true, or the context ends.
func awaitSettle(ctx context.Context, updates <-chan struct{}, done func() bool) error {
	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return nil
			}
		}
	}
	return nil
}

func authorName(p *models.Profile) string {
	if p == nil {
		return "unknown"
	}
	return p.Name()
}
