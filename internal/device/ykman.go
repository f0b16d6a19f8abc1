package device

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/louib/keepass-merge/internal/vault"
)

// DefaultCommand is the ykman executable looked up in PATH
const DefaultCommand = "ykman"

var (
	ErrToolMissing = errors.New("ykman not found in PATH")
	ErrBadResponse = errors.New("unexpected response from device")
)

// Runner runs a command and returns its standard output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// Run is not bound to ctx: a device waiting for a touch is left to finish
func (execRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrToolMissing
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

// Ykman lists and queries devices
type Ykman struct {
	command string
	runner  Runner
	log     logrus.FieldLogger
}

// NewYkman returns a Ykman running command, or DefaultCommand when empty
func NewYkman(command string, log logrus.FieldLogger) *Ykman {
	return NewYkmanWithRunner(command, execRunner{}, log)
}

// NewYkmanWithRunner is NewYkman with a custom command runner
func NewYkmanWithRunner(command string, runner Runner, log logrus.FieldLogger) *Ykman {
	if command == "" {
		command = DefaultCommand
	}
	return &Ykman{command: command, runner: runner, log: log}
}

// Serials lists the serial numbers of the connected devices
func (y *Ykman) Serials(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output, err := y.runner.Run(ctx, y.command, "list", "--serials")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var serials []uint32
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		serial, err := strconv.ParseUint(line, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: serial %q", ErrBadResponse, line)
		}
		serials = append(serials, uint32(serial))
	}

	y.log.WithField("devices", len(serials)).Debug("Listed challenge-response devices")
	return serials, nil
}

// Responder returns the device with the given serial
func (y *Ykman) Responder(serial uint32) vault.Responder {
	return &Device{Serial: serial, ykman: y}
}

// Device is one connected token
type Device struct {
	Serial uint32
	ykman  *Ykman
}

// ChallengeResponse computes the HMAC-SHA1 response of slot to challenge
func (d *Device) ChallengeResponse(ctx context.Context, slot string, challenge []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.ykman.log.WithFields(logrus.Fields{
		"serial": d.Serial,
		"slot":   slot,
	}).Debug("Sending challenge, touch the device if it blinks")

	output, err := d.ykman.runner.Run(ctx, d.ykman.command,
		"--device", strconv.FormatUint(uint64(d.Serial), 10),
		"otp", "calculate", slot, hex.EncodeToString(challenge))
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", d.Serial, err)
	}

	response, err := hex.DecodeString(strings.TrimSpace(string(output)))
	if err != nil || len(response) == 0 {
		return nil, fmt.Errorf("device %d: %w", d.Serial, ErrBadResponse)
	}
	return response, nil
}
