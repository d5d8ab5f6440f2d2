package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/DoyleJ11/hackathon-judging/internal/judging"
)

const (
	serverFlag   = "server"
	operatorFlag = "operator"
	channelFlag  = "channel"
	outputFlag   = "output"
	publicFlag   = "public"
	stdoutName   = "-"
)

func clientFrom(cCtx *cli.Context) *client {
	return newClient(cCtx.String(serverFlag), cCtx.String(operatorFlag), cCtx.String(channelFlag))
}

// report prints a command result and turns a refusal into a non-zero exit.
func report(res judging.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.OK {
		return cli.Exit(res.Reason, 1)
	}
	fmt.Println(res.Reason)
	return nil
}

func writeOut(path string, data []byte) error {
	if path == "" || path == stdoutName {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func roomCommand(name, usage, op string, withTeam, teamRequired bool) *cli.Command {
	argsUsage := "<room>"
	if withTeam {
		argsUsage = "<room> [team]"
		if teamRequired {
			argsUsage = "<room> <team>"
		}
	}
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: argsUsage,
		Action: func(cCtx *cli.Context) error {
			room := cCtx.Args().Get(0)
			team := cCtx.Args().Get(1)
			if room == "" || (teamRequired && team == "") {
				return cli.Exit("usage: "+name+" "+argsUsage, 2)
			}
			return report(clientFrom(cCtx).roomOp(cCtx.Context, room, op, team))
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "judgectl",
		Usage: "Drive the hackathon judging queue from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    serverFlag,
				Aliases: []string{"s"},
				Usage:   "Base URL of the judging server",
				Value:   "http://localhost:8080",
				EnvVars: []string{"JUDGE_SERVER"},
			},
			&cli.StringFlag{
				Name:    operatorFlag,
				Aliases: []string{"u"},
				Usage:   "Operator id; only this operator can confirm the command",
				EnvVars: []string{"JUDGE_OPERATOR"},
			},
			&cli.StringFlag{
				Name:    channelFlag,
				Usage:   "Text channel the command is issued from; scopes it to that room",
				EnvVars: []string{"JUDGE_CHANNEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "plan",
				Usage:     "Run the room planner over the team directory and print the proposed queue",
				ArgsUsage: "<first-match|first-match-medium>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: outputFlag, Aliases: []string{"o"}, Usage: "Where to write the queue JSON, \"-\" for stdout"},
				},
				Action: func(cCtx *cli.Context) error {
					algorithm := cCtx.Args().First()
					if algorithm == "" {
						algorithm = "first-match"
					}
					rep, err := clientFrom(cCtx).plan(cCtx.Context, algorithm)
					if err != nil {
						return err
					}
					var b strings.Builder
					if err := rep.Queue.Encode(&b); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "unchosen (not signed up for judging): %v\n", rep.Unchosen)
					fmt.Fprintf(os.Stderr, "unassigned (place manually): %v\n", rep.Unassigned)
					if rep.LogPath != "" {
						fmt.Fprintf(os.Stderr, "planner log: %s\n", rep.LogPath)
					}
					return writeOut(cCtx.String(outputFlag), []byte(b.String()))
				},
			},
			{
				Name:      "load",
				Usage:     "Upload a queue JSON file and start judging with it",
				ArgsUsage: "<file>",
				Action: func(cCtx *cli.Context) error {
					path := cCtx.Args().First()
					if path == "" {
						return cli.Exit("usage: load <file>", 2)
					}
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					return report(clientFrom(cCtx).load(cCtx.Context, data))
				},
			},
			{
				Name:  "download",
				Usage: "Download the current queue as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: outputFlag, Aliases: []string{"o"}, Value: "judging_breakdown.json", Usage: "Where to write the queue, \"-\" for stdout"},
				},
				Action: func(cCtx *cli.Context) error {
					data, err := clientFrom(cCtx).download(cCtx.Context)
					if err != nil {
						return err
					}
					return writeOut(cCtx.String(outputFlag), data)
				},
			},
			roomCommand("advance", "Mark the presenting team judged and move the queue along", "advance", false, false),
			roomCommand("skip", "Send the next team to the back of the queue and tell them", "skip", false, false),
			roomCommand("ping", "Call the next team (or the named one) to report for judging", "ping", true, false),
			roomCommand("next", "Make the named team next in line without pinging them", "next", true, true),
			{
				Name:      "status",
				Usage:     "Show the judging queue",
				ArgsUsage: "[room]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: publicFlag, Usage: "Show the participant-facing view"},
				},
				Action: func(cCtx *cli.Context) error {
					s, err := clientFrom(cCtx).status(cCtx.Context, cCtx.Args().First(), cCtx.Bool(publicFlag))
					if err != nil {
						return err
					}
					fmt.Print(s)
					return nil
				},
			},
			{
				Name:  "pending",
				Usage: "List commands waiting for this operator to confirm or cancel",
				Action: func(cCtx *cli.Context) error {
					prompts, err := clientFrom(cCtx).pending(cCtx.Context)
					if err != nil {
						return err
					}
					if len(prompts) == 0 {
						fmt.Println("Nothing waiting for confirmation.")
						return nil
					}
					for _, p := range prompts {
						fmt.Printf("round %s (expires %s)\n%s\n\n", p.ID, p.Expires.Local().Format("15:04:05"), p.Message)
					}
					return nil
				},
			},
			answerCommand("confirm", "Confirm a pending command"),
			answerCommand("cancel", "Cancel a pending command"),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func answerCommand(signal, usage string) *cli.Command {
	return &cli.Command{
		Name:      signal,
		Usage:     usage,
		ArgsUsage: "<round>",
		Action: func(cCtx *cli.Context) error {
			round := cCtx.Args().First()
			if round == "" {
				return cli.Exit("usage: "+signal+" <round>", 2)
			}
			if err := clientFrom(cCtx).answer(cCtx.Context, round, signal); err != nil {
				return err
			}
			fmt.Printf("%s sent for round %s\n", signal, round)
			return nil
		},
	}
}
