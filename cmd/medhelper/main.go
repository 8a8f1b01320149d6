package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"medhelper/internal/infra/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "call":
		err = runCall(args)
	case "doctor":
		err = runDoctor(args)
	case "encrypt":
		err = runEncrypt(args)
	case "version", "--version":
		fmt.Println("medhelper", version)
	case "help", "--help", "-h":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'medhelper --help' for usage information.\n", cmd)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`medhelper - test identifier generator for DEA, NDEA, license and NPI numbers

USAGE:
    medhelper <COMMAND> [FLAGS]

COMMANDS:
    serve       Run the host: gateway, storage and (optionally) the app window
    call        Send one command to a running host and print the response
                medhelper call [-addr host:port] [-timeout 10s] <command> [json]
    doctor      Run health checks on your setup
    encrypt     Encrypt a secret for the config file (uses MEDHELPER_CONFIG_KEY)
    version     Print the version

FLAGS:
    -config PATH   Config file (default: $MEDHELPER_CONFIG or ./config.yaml)

CONFIGURATION:
    Environment: MEDHELPER_* variables override config

EXAMPLES:
    medhelper serve
    medhelper call dea '{"lastName":"Smith","isNarcotic":false}'
    medhelper call npi '{"action":"validate","npi":"1234567893"}'`)
}

// defaultConfigPath honours MEDHELPER_CONFIG, then ./config.yaml.
func defaultConfigPath() string {
	if p := os.Getenv("MEDHELPER_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: medhelper encrypt <value>")
	}
	key := os.Getenv("MEDHELPER_CONFIG_KEY")
	if key == "" {
		return config.ErrMissingConfigKey
	}
	enc, err := config.EncryptValue(strings.TrimSpace(fs.Arg(0)), key)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}
