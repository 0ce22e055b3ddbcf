package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"shareit/internal/client"
	"shareit/internal/models"

	"github.com/redis/go-redis/v9"
)

const usage = `usage: shareitctl [global flags] <command> [flags]

commands:
  book        -item ID -start TS -end TS
  decide      -id ID -approved=true|false
  get         -id ID
  list        [-state STATE] [-from N -size N]
  owner-list  [-state STATE] [-from N -size N]
  export      [-state STATE] -out FILE

timestamps use 2006-01-02T15:04:05 in the local time zone
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "shareitctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("shareitctl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	baseURL := global.String("url", envOr("SHAREIT_URL", "http://localhost:8080"), "API base URL")
	userID := global.Int64("user", 0, "acting user id")
	token := global.String("token", os.Getenv("SHAREIT_TOKEN"), "bearer token, replaces -user")
	apiKey := global.String("api-key", os.Getenv("SHAREIT_API_KEY"), "client API key")
	apiExtra := global.String("api-extra", os.Getenv("SHAREIT_API_EXTRA"), "client API extra secret")
	redisAddr := global.String("redis", os.Getenv("SHAREIT_REDIS"), "redis address for the booking cache")
	timeout := global.Duration("timeout", 15*time.Second, "request timeout")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	c := client.New(*baseURL, *userID).WithAPIKey(*apiKey, *apiExtra)
	if *token != "" {
		c.WithToken(*token)
	}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		c.UseRedisCache(rdb, models.ClientCacheTTL*time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "book":
		return book(ctx, c, rest, out)
	case "decide":
		return decide(ctx, c, rest, out)
	case "get":
		return get(ctx, c, rest, out)
	case "list":
		return list(ctx, c, false, rest, out)
	case "owner-list":
		return list(ctx, c, true, rest, out)
	case "export":
		return exportXLSX(ctx, c, rest)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func book(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	itemID := fs.Int64("item", 0, "item id")
	start := fs.String("start", "", "rental start")
	end := fs.String("end", "", "rental end")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := c.CreateBooking(ctx, models.BookingRequest{ItemID: *itemID, Start: *start, End: *end})
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func decide(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("decide", flag.ContinueOnError)
	id := fs.Int64("id", 0, "booking id")
	approved := fs.Bool("approved", false, "approve instead of reject")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := c.DecideBooking(ctx, *id, *approved)
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func get(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	id := fs.Int64("id", 0, "booking id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := c.GetBooking(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func list(ctx context.Context, c *client.Client, owner bool, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	state := fs.String("state", "", "ALL, CURRENT, PAST, FUTURE, WAITING or REJECTED")
	from := fs.Int("from", 0, "offset of the first booking")
	size := fs.Int("size", 0, "page size, 0 lists everything")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var page *models.Page
	if *size != 0 || *from != 0 {
		p := models.NewPage(*from, *size)
		page = &p
	}

	resp, err := c.ListBookings(ctx, owner, *state, page)
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func exportXLSX(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	state := fs.String("state", "", "booking state filter")
	path := fs.String("out", "bookings.xlsx", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := os.Create(*path)
	if err != nil {
		return err
	}
	if err := c.ExportOwnerBookings(ctx, *state, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
