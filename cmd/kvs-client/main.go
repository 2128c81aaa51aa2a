// Package main provides the entry point for kvs-client, the
// command-line client for kvs-server.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kvsd/kvs/internal/client"
	"github.com/kvsd/kvs/internal/config"
	"github.com/kvsd/kvs/internal/kverrors"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kvs-client",
		Usage: "command-line client for kvs-server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "kvs-server address",
				EnvVars: []string{"KVS_ADDR"},
				Value:   config.DefaultAddr,
			},
		},
		Commands: []*cli.Command{
			setCommand(),
			getCommand(),
			rmCommand(),
		},
	}
}

func clientFromContext(c *cli.Context) *client.Client {
	return client.New(c.String("addr"))
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Set the value of a key",
		ArgsUsage: "KEY VALUE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: kvs-client set KEY VALUE", 1)
			}
			key, value := c.Args().Get(0), c.Args().Get(1)
			if err := clientFromContext(c).Set(key, value); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get the value of a key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: kvs-client get KEY", 1)
			}
			key := c.Args().Get(0)
			value, found, err := clientFromContext(c).Get(key)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if !found {
				fmt.Println("Key not found")
				return nil
			}
			fmt.Println(value)
			return nil
		},
	}
}

func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove a key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: kvs-client rm KEY", 1)
			}
			key := c.Args().Get(0)
			err := clientFromContext(c).Rm(key)
			if err != nil {
				if kverrors.Is(err, kverrors.KeyNotFound) {
					fmt.Println("Key not found")
				}
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}
