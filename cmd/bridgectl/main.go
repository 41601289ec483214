// Command bridgectl is the operator CLI: gateway user management over
// internal/gateway.Manager (create-user, delete-user, list-users,
// generate-apikey) and node annotations over internal/writer
// (add-annotation). It talks to the same EMQX admin API and InfluxDB the
// daemons use, configured from the same environment as the rest of bridger.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/austinmesh/bridger/internal/config"
	"github.com/austinmesh/bridger/internal/gateway"
	"github.com/austinmesh/bridger/internal/writer"
	"github.com/austinmesh/bridger/pkg/meshmodel"
)

const defaultBootstrapFile = "/opt/emqx/etc/api_key.bootstrap"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var cmdErr error

	switch os.Args[1] {
	case "create-user":
		cmdErr = createUser(ctx, cfg, os.Args[2:])
	case "delete-user":
		cmdErr = deleteUser(ctx, cfg, os.Args[2:])
	case "list-users":
		cmdErr = listUsers(ctx, cfg, os.Args[2:])
	case "generate-apikey":
		cmdErr = generateAPIKey(os.Args[2:])
	case "add-annotation":
		cmdErr = addAnnotation(ctx, cfg, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "bridgectl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Bridger CLI - MQTT gateway management

Usage:
  bridgectl create-user <gateway-id> <owner-id>
  bridgectl delete-user <gateway-id>
  bridgectl list-users
  bridgectl generate-apikey [--bootstrap-file PATH] [--force]
  bridgectl add-annotation <node-id> <type> <text> [--author NAME] [--global] [--start TIME] [--end TIME]`)
}

func newManager(cfg *config.Config) *gateway.Manager {
	client := gateway.NewEMQXClient(cfg.EMQXURL, cfg.EMQXAPIKey, cfg.EMQXSecretKey)
	return gateway.NewManager(client, cfg.MQTTTopic)
}

func createUser(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: create-user <gateway-id> <owner-id>")
	}
	ownerID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("owner id: %w", err)
	}

	rec, password, err := newManager(cfg).CreateGateway(ctx, args[0], ownerID)
	if err != nil {
		return fmt.Errorf("create gateway user: %w", err)
	}

	fmt.Println("Gateway user created successfully!")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Username\t%s\n", rec.UserString())
	fmt.Fprintf(w, "Password\t%s\n", password)
	return w.Flush()
}

func deleteUser(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete-user <gateway-id>")
	}

	if !newManager(cfg).DeleteGateway(ctx, args[0]) {
		return errors.New("failed to delete gateway user")
	}
	fmt.Println("Gateway user deleted successfully!")
	return nil
}

func listUsers(ctx context.Context, cfg *config.Config, _ []string) error {
	gateways, err := newManager(cfg).ListGateways(ctx)
	if err != nil {
		return fmt.Errorf("list gateway users: %w", err)
	}
	if len(gateways) == 0 {
		fmt.Println("No gateway users found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tNODE ID")
	for _, g := range gateways {
		fmt.Fprintf(w, "%s\t%s\n", g.UserString(), meshmodel.HexWithBang(g.NodeID))
	}
	return w.Flush()
}

// annotationTypes are the accepted values for add-annotation's type
// argument.
var annotationTypes = map[string]bool{
	"general_maintenance":  true,
	"reposition":           true,
	"configuration_change": true,
	"power_cycle":          true,
	"antenna_adjustment":   true,
	"firmware_update":      true,
	"unresponsive_state":   true,
}

func addAnnotation(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: add-annotation <node-id> <type> <text> [--author NAME] [--global] [--start TIME] [--end TIME]")
	}

	nodeID, err := meshmodel.ParseNodeID(args[0])
	if err != nil {
		return err
	}
	annotationType := args[1]
	if !annotationTypes[annotationType] {
		return fmt.Errorf("unknown annotation type %q", annotationType)
	}
	text := args[2]

	author := "bridgectl"
	global := false
	var startTime, endTime int64
	for i := 3; i < len(args); i++ {
		switch args[i] {
		case "--author", "-a":
			i++
			if i >= len(args) {
				return errors.New("--author requires a name")
			}
			author = args[i]
		case "--global", "-g":
			global = true
		case "--start", "-s":
			i++
			if i >= len(args) {
				return errors.New("--start requires a time")
			}
			if startTime, err = parseTimeString(args[i]); err != nil {
				return fmt.Errorf("start time: %w", err)
			}
		case "--end", "-e":
			i++
			if i >= len(args) {
				return errors.New("--end requires a time")
			}
			if endTime, err = parseTimeString(args[i]); err != nil {
				return fmt.Errorf("end time: %w", err)
			}
		default:
			return fmt.Errorf("unknown flag %q", args[i])
		}
	}

	// A zero StartTime is defaulted to now by the writer; EndTime after
	// StartTime is enforced there too.
	point := meshmodel.AnnotationPoint{
		NodeID:           meshmodel.HexWithoutBang(nodeID),
		AnnotationType:   annotationType,
		Author:           author,
		GlobalAnnotation: global,
		Body:             text,
		StartTime:        startTime,
	}
	if endTime != 0 {
		point.EndTime = &endTime
	}

	w := writer.New(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxAnnotationsBucket, cfg.InfluxWritePrecision)
	defer w.Close()
	if err := w.Write(ctx, point); err != nil {
		return fmt.Errorf("write annotation: %w", err)
	}

	fmt.Printf("Annotation added for node %s\n", meshmodel.HexWithBang(nodeID))
	return nil
}

var relativeTimeRegexp = regexp.MustCompile(`^([+-]?)(\d+)([hdmw])$`)

// parseTimeString accepts a Unix timestamp, an ISO timestamp
// (2024-01-01T12:00:00Z), a date (2024-01-01, midnight UTC), or an offset
// relative to now (+1h, +30m, +2d, +1w), and returns the Unix time.
func parseTimeString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time")
	}

	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return ts, nil
	}

	if m := relativeTimeRegexp.FindStringSubmatch(strings.ToLower(s)); m != nil {
		amount, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, err
		}
		if m[1] == "-" {
			amount = -amount
		}
		multipliers := map[string]int64{"m": 60, "h": 3600, "d": 86400, "w": 604800}
		return time.Now().Unix() + amount*multipliers[m[3]], nil
	}

	if strings.Contains(s, "T") {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC().Unix(), nil
			}
		}
		return 0, fmt.Errorf("unrecognized timestamp %q", s)
	}

	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.Unix(), nil
	}
	return 0, fmt.Errorf("unrecognized time %q (use a Unix timestamp, 2006-01-02T15:04:05Z, 2006-01-02, or +1h/+30m/+2d)", s)
}

// generateAPIKey writes a bootstrap file and prints fresh EMQX/InfluxDB
// credentials. It does not call the broker at all: the bootstrap file is
// how EMQX learns the key on its own next start.
func generateAPIKey(args []string) error {
	bootstrapFile := defaultBootstrapFile
	force := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--bootstrap-file", "-b":
			i++
			if i >= len(args) {
				return errors.New("--bootstrap-file requires a path")
			}
			bootstrapFile = args[i]
		case "--force", "-f":
			force = true
		default:
			return fmt.Errorf("unknown flag %q", args[i])
		}
	}

	if _, err := os.Stat(bootstrapFile); err == nil && !force {
		return fmt.Errorf("bootstrap file already exists at %s, use --force to overwrite", bootstrapFile)
	}

	envFile := ".env"
	if !force {
		if existing, ok := existingEnvKeys(envFile); ok && len(existing) > 0 {
			return fmt.Errorf("keys already present in %s: %s (use --force to overwrite)", envFile, strings.Join(existing, ", "))
		}
	}

	apiKey, err := randomToken("bridger-", 8)
	if err != nil {
		return err
	}
	secretKey, err := randomToken("", 32)
	if err != nil {
		return err
	}
	influxToken, err := randomToken("", 48)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(bootstrapFile), 0o755); err != nil {
		return fmt.Errorf("create bootstrap file directory: %w", err)
	}
	contents := fmt.Sprintf("%s:%s:administrator\n", apiKey, secretKey)
	if err := writeFileAtomic(bootstrapFile, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("write bootstrap file: %w", err)
	}

	fmt.Println("Generated API and secret keys!")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "API Key\t%s\n", apiKey)
	fmt.Fprintf(w, "Secret Key\t%s\n", secretKey)
	fmt.Fprintf(w, "InfluxDB Token\t%s\n", influxToken)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\nAdd these to your .env file:")
	fmt.Printf("EMQX_API_KEY=%q\n", apiKey)
	fmt.Printf("EMQX_SECRET_KEY=%q\n", secretKey)
	fmt.Printf("INFLUXDB_V2_TOKEN=%q\n", influxToken)
	fmt.Printf("\nBootstrap file created at: %s\n", bootstrapFile)
	return nil
}

// existingEnvKeys reports which of the three generated secret names are
// already set in envFile.
func existingEnvKeys(envFile string) ([]string, bool) {
	raw, err := os.ReadFile(envFile)
	if err != nil {
		return nil, false
	}
	content := string(raw)

	var present []string
	for _, key := range []string{"EMQX_API_KEY=", "EMQX_SECRET_KEY=", "INFLUXDB_V2_TOKEN="} {
		if strings.Contains(content, key) {
			present = append(present, strings.TrimSuffix(key, "="))
		}
	}
	return present, true
}

// writeFileAtomic writes data to a temp file in path's directory and renames
// it over path, so a concurrent reader (or a crash mid-write) never observes
// a partially written bootstrap file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bootstrap-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// randomToken returns prefix followed by n random bytes hex-encoded, using
// the same crypto/rand source as internal/gateway's password generator.
func randomToken(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}
