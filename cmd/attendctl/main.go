// attendctl is an operator tool for the attendance backend: it mints test
// identity tokens, renders event QR codes and decodes scanned images the
// same way the server does.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"attendance-backend/internal/middleware"
	"attendance-backend/internal/models"
	"attendance-backend/internal/qrpayload"
	"attendance-backend/internal/scanner"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "qr":
		return runQR(args[1:], stdout, stderr)
	case "decode":
		return runDecode(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: attendctl <command> [flags]

Commands:
  token   mint a signed identity token for a user
  qr      render an event QR code as PNG
  decode  read the QR payload from one or more images

Run "attendctl <command> --help" for command flags.
`)
}

func runToken(args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	secret := flagSet.String("secret", os.Getenv("JWT_SECRET"), "signing secret (default $JWT_SECRET)")
	user := flagSet.StringP("user", "u", "", "attendee id (required)")
	email := flagSet.String("email", "", "email claim")
	role := flagSet.String("role", models.RoleStudent, "role: student, organizer or admin")
	ttl := flagSet.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		return fmt.Errorf("--secret or JWT_SECRET is required")
	}
	if *user == "" {
		return fmt.Errorf("--user is required")
	}
	switch *role {
	case models.RoleStudent, models.RoleOrganizer, models.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", *role)
	}

	token, err := middleware.NewJWTAuth(*secret).GenerateAccessToken(models.Identity{
		AttendeeID: *user,
		Email:      *email,
		Role:       *role,
	}, *ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func runQR(args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("qr", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	eventID := flagSet.StringP("event", "e", "", "event id (required)")
	token := flagSet.StringP("token", "t", "", "session token; omit for a bare event id code")
	size := flagSet.Int("size", qrpayload.DefaultImageSize, "image size in pixels")
	out := flagSet.StringP("output", "o", "", "output file (default stdout)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if *eventID == "" {
		return fmt.Errorf("--event is required")
	}
	payload := *eventID
	if *token != "" {
		var err error
		if payload, err = qrpayload.Encode(*eventID, *token); err != nil {
			return err
		}
	} else if strings.Contains(payload, ":") {
		return qrpayload.ErrUnencodable
	}
	png, err := qrpayload.RenderPNG(payload, *size)
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = stdout.Write(png)
		return err
	}
	return os.WriteFile(*out, png, 0o644)
}

type decodeResult struct {
	File         string `json:"file"`
	Raw          string `json:"raw,omitempty"`
	Kind         string `json:"kind,omitempty"`
	EventID      string `json:"event_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	Error        string `json:"error,omitempty"`
}

// runDecode prints one JSON line per image. It fails when any image
// yields no usable payload.
func runDecode(args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	files := flagSet.Args()
	if len(files) == 0 {
		return fmt.Errorf("at least one image file is required")
	}

	source := scanner.NewSource(scanner.NewQRDecoder(), scanner.DefaultConfig(), nil, nil)
	enc := json.NewEncoder(stdout)
	failed := 0
	for _, path := range files {
		res := decodeFile(source, path)
		if res.Error != "" {
			failed++
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images had no usable payload", failed, len(files))
	}
	return nil
}

func decodeFile(source *scanner.Source, path string) decodeResult {
	res := decodeResult{File: path}

	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	attempt, err := source.DecodeUpload(f)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Raw = attempt.Raw

	p, err := qrpayload.Decode(attempt.Raw)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Kind = p.Kind.String()
	res.EventID = p.EventID
	res.SessionToken = p.SessionToken
	return res
}
