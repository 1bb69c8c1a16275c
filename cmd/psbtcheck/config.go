// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogLevel    = "info"
	defaultLogFilename = "psbtcheck.log"
	defaultNetwork     = "mainnet"
	defaultMaxFeeRate  = 500
)

var (
	defaultHomeDir = btcutil.AppDataDir("psbtcheck", false)
	defaultLogDir  = filepath.Join(defaultHomeDir, "logs")

	// psbtMagic starts every binary serialized PSBT.
	psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

	// errNoPacket is returned when neither --psbt nor --psbtfile is set.
	errNoPacket = errors.New("one of --psbt or --psbtfile is required")
)

// config defines the configuration options for psbtcheck.
//
// See loadConfig for details on the configuration load process.
type config struct {
	Network    string `short:"n" long:"network" description:"Network the wallet lives on {mainnet, testnet3, regtest, signet, simnet}"`
	PSBT       string `long:"psbt" description:"Base64 encoded PSBT to review"`
	PSBTFile   string `long:"psbtfile" description:"File holding the PSBT, either binary or base64 encoded"`
	Mnemonic   string `long:"mnemonic" env:"PSBTCHECK_MNEMONIC" description:"BIP-39 mnemonic of the signing wallet"`
	Passphrase string `long:"passphrase" env:"PSBTCHECK_PASSPHRASE" description:"Optional BIP-39 passphrase"`
	Descriptor string `long:"descriptor" description:"Multisig descriptor to verify change outputs against"`
	Trim       bool   `long:"trim" description:"Print the PSBT stripped down to its signatures"`
	MaxFeeRate int64  `long:"maxfeerate" description:"Warn when the estimated fee rate exceeds this many sat/vb (0 disables the check)"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// netParams is resolved from Network.
	netParams *chaincfg.Params
}

// netParamsByName maps network names to their parameters.
var netParamsByName = map[string]*chaincfg.Params{
	"mainnet":  &chaincfg.MainNetParams,
	"testnet3": &chaincfg.TestNet3Params,
	"regtest":  &chaincfg.RegressionNetParams,
	"signet":   &chaincfg.SigNetParams,
	"simnet":   &chaincfg.SimNetParams,
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}

	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") &&
		!strings.Contains(debugLevel, "=") {

		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains "+
				"an invalid subsystem/level pair [%v]",
				logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems %v", subsysID,
				supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// loadConfig initializes and parses the config using command line options
// and the environment.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Parse the command line options and environment variables
//  3. Validate the network, packet source and debug levels
func loadConfig(args []string) (*config, error) {
	// Default config.
	cfg := config{
		Network:    defaultNetwork,
		MaxFeeRate: defaultMaxFeeRate,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
	}

	// Parse command line options.
	parser := flags.NewParser(&cfg, flags.Default)
	_, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	params, ok := netParamsByName[cfg.Network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}
	cfg.netParams = params

	if cfg.PSBT == "" && cfg.PSBTFile == "" {
		return nil, errNoPacket
	}

	if cfg.PSBT != "" && cfg.PSBTFile != "" {
		return nil, errors.New("--psbt and --psbtfile can't be used " +
			"together")
	}

	if cfg.MaxFeeRate < 0 {
		return nil, fmt.Errorf("--maxfeerate must not be negative, "+
			"got %d", cfg.MaxFeeRate)
	}

	if cfg.PSBTFile != "" {
		cfg.PSBTFile = cleanAndExpandPath(cfg.PSBTFile)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return &cfg, nil
}

// readPacket decodes the PSBT named by the config.
func readPacket(cfg *config) (*psbt.Packet, error) {
	if cfg.PSBT != "" {
		return decodePacket([]byte(cfg.PSBT))
	}

	data, err := os.ReadFile(cfg.PSBTFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read psbt: %w", err)
	}

	return decodePacket(data)
}

// decodePacket parses a binary or base64 encoded PSBT.
func decodePacket(data []byte) (*psbt.Packet, error) {
	if bytes.HasPrefix(data, psbtMagic) {
		return psbt.NewFromRawBytes(bytes.NewReader(data), false)
	}

	return psbt.NewFromRawBytes(
		bytes.NewReader(bytes.TrimSpace(data)), true,
	)
}
