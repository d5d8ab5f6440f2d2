package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DoyleJ11/hackathon-judging/internal/confirm"
	"github.com/DoyleJ11/hackathon-judging/internal/httpapi"
	"github.com/DoyleJ11/hackathon-judging/internal/judging"
)

// client talks to a running judging server.
type client struct {
	base     string
	operator string
	channel  string
	http     *http.Client
}

func newClient(base, operator, channel string) *client {
	return &client{
		base:     strings.TrimRight(base, "/"),
		operator: operator,
		channel:  channel,
		// commands block while the operator confirms
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, nil, err
	}
	if c.operator != "" {
		req.Header.Set(httpapi.HeaderOperator, c.operator)
	}
	if c.channel != "" {
		req.Header.Set(httpapi.HeaderChannel, c.channel)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// result runs a command that answers with a judging result.
func (c *client) result(ctx context.Context, method, path string, body io.Reader) (judging.Result, error) {
	status, data, err := c.do(ctx, method, path, body)
	if err != nil {
		return judging.Result{}, err
	}
	var res judging.Result
	if err := json.Unmarshal(data, &res); err != nil || (res.Reason == "" && !res.OK) {
		return judging.Result{}, serverError(status, data)
	}
	return res, nil
}

func (c *client) roomOp(ctx context.Context, room, op, team string) (judging.Result, error) {
	path := "/rooms/" + url.PathEscape(room) + "/" + op
	if team != "" {
		path += "?team=" + url.QueryEscape(team)
	}
	return c.result(ctx, http.MethodPost, path, nil)
}

func (c *client) load(ctx context.Context, plan []byte) (judging.Result, error) {
	return c.result(ctx, http.MethodPut, "/queue", bytes.NewReader(plan))
}

func (c *client) plan(ctx context.Context, algorithm string) (judging.PlanReport, error) {
	status, data, err := c.do(ctx, http.MethodPost, "/plan/"+url.PathEscape(algorithm), nil)
	if err != nil {
		return judging.PlanReport{}, err
	}
	if status != http.StatusOK {
		return judging.PlanReport{}, serverError(status, data)
	}
	var rep judging.PlanReport
	return rep, json.Unmarshal(data, &rep)
}

func (c *client) download(ctx context.Context) ([]byte, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/queue", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, serverError(status, data)
	}
	return data, nil
}

func (c *client) status(ctx context.Context, room string, public bool) (string, error) {
	path := "/status"
	if room != "" {
		path += "/" + url.PathEscape(room)
	}
	if public {
		path += "?public=1"
	}
	status, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", serverError(status, data)
	}
	return string(data), nil
}

func (c *client) answer(ctx context.Context, round, signal string) error {
	body, _ := json.Marshal(map[string]string{"signal": signal})
	status, data, err := c.do(ctx, http.MethodPost, "/confirmations/"+url.PathEscape(round), bytes.NewReader(body))
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return serverError(status, data)
	}
	return nil
}

// pending lists the confirmation rounds waiting on this operator.
func (c *client) pending(ctx context.Context) ([]confirm.Prompt, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/confirmations", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, serverError(status, data)
	}
	var out []confirm.Prompt
	return out, json.Unmarshal(data, &out)
}

func serverError(status int, data []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("server: %s (%d)", e.Error, status)
	}
	return fmt.Errorf("server: %s (%d)", strings.TrimSpace(string(data)), status)
}
