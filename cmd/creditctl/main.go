package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// creditctl is a small operator CLI against a running creditd instance.
//
//	creditctl -addr http://localhost:8084 balance -counselor 42
//	creditctl grant -counselor 42 -amount 100 -note "trial topup"
//	creditctl grant -counselor 42 -package starter
//	creditctl debit -counselor 42 -resource-type session_analysis -resource-id sess-1 -elapsed 185
//	creditctl history -counselor 42 -limit 50
//	creditctl reconcile -counselor 42
//	creditctl reconcile -all
func main() {
	addr := flag.String("addr", envOr("CREDITS_ADDR", "http://localhost:8084"), "creditd base URL")
	token := flag.String("token", os.Getenv("CREDITS_AUTH_TOKEN"), "bearer token")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	c := &client{base: *addr, token: *token, http: &http.Client{Timeout: 15 * time.Second}}

	var err error
	switch flag.Arg(0) {
	case "balance":
		err = cmdBalance(c, flag.Args()[1:])
	case "grant":
		err = cmdGrant(c, flag.Args()[1:])
	case "debit":
		err = cmdDebit(c, flag.Args()[1:])
	case "history":
		err = cmdHistory(c, flag.Args()[1:])
	case "reconcile":
		err = cmdReconcile(c, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "creditctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: creditctl [-addr URL] [-token TOKEN] <balance|grant|debit|history|reconcile> [options]")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, errBody.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, string(raw))
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdBalance(c *client, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	counselor := fs.Int64("counselor", 0, "counselor id")
	fs.Parse(args)
	if *counselor <= 0 {
		return fmt.Errorf("-counselor is required")
	}

	var out map[string]any
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/credits/balance?counselor_id=%d", *counselor), nil, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func cmdGrant(c *client, args []string) error {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	counselor := fs.Int64("counselor", 0, "counselor id")
	amount := fs.Int64("amount", 0, "credits to grant")
	pkg := fs.String("package", "", "catalog package code")
	note := fs.String("note", "", "audit note")
	fs.Parse(args)
	if *counselor <= 0 {
		return fmt.Errorf("-counselor is required")
	}
	if *amount <= 0 && *pkg == "" {
		return fmt.Errorf("either -amount or -package is required")
	}

	body := map[string]any{"counselor_id": *counselor}
	if *pkg != "" {
		body["package"] = *pkg
	} else {
		body["amount"] = *amount
	}
	if *note != "" {
		body["note"] = *note
	}

	var out map[string]any
	if err := c.do(http.MethodPost, "/api/v1/credits/grant", body, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func cmdDebit(c *client, args []string) error {
	fs := flag.NewFlagSet("debit", flag.ExitOnError)
	counselor := fs.Int64("counselor", 0, "counselor id")
	resourceType := fs.String("resource-type", "session_analysis", "billable resource type")
	resourceID := fs.String("resource-id", "", "resource id")
	elapsed := fs.Int64("elapsed", 0, "cumulative elapsed seconds")
	fs.Parse(args)
	if *counselor <= 0 {
		return fmt.Errorf("-counselor is required")
	}
	if *resourceID == "" {
		return fmt.Errorf("-resource-id is required")
	}

	body := map[string]any{
		"counselor_id":    *counselor,
		"resource_type":   *resourceType,
		"resource_id":     *resourceID,
		"elapsed_seconds": *elapsed,
	}
	var out map[string]any
	if err := c.do(http.MethodPost, "/api/v1/credits/debit", body, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func cmdHistory(c *client, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	counselor := fs.Int64("counselor", 0, "counselor id")
	limit := fs.Int("limit", 20, "max entries")
	fs.Parse(args)
	if *counselor <= 0 {
		return fmt.Errorf("-counselor is required")
	}

	var out map[string]any
	path := fmt.Sprintf("/api/v1/credits/history?counselor_id=%d&limit=%d", *counselor, *limit)
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func cmdReconcile(c *client, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	counselor := fs.Int64("counselor", 0, "counselor id")
	all := fs.Bool("all", false, "sweep every known counselor")
	fs.Parse(args)
	if !*all && *counselor <= 0 {
		return fmt.Errorf("either -counselor or -all is required")
	}

	body := map[string]any{}
	if *all {
		body["all"] = true
	} else {
		body["counselor_id"] = *counselor
	}
	var out map[string]any
	if err := c.do(http.MethodPost, "/api/v1/credits/reconcile", body, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}
