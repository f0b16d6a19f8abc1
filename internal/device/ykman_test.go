package device

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	output map[string]string
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.output[strings.Join(args, " ")]), nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSerials(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    []uint32
		wantErr error
	}{
		{"none", "", nil, nil},
		{"one", "12345678\n", []uint32{12345678}, nil},
		{"two", "1\n2\n", []uint32{1, 2}, nil},
		{"garbage", "YubiKey 5\n", nil, ErrBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{output: map[string]string{"list --serials": tt.output}}
			y := NewYkmanWithRunner("", runner, quietLogger())

			got, err := y.Serials(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, DefaultCommand, runner.calls[0][0])
		})
	}
}

func TestChallengeResponse(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{
		"--device 42 otp calculate 2 0102ff": "deadbeef\n",
	}}
	y := NewYkmanWithRunner("/opt/ykman", runner, quietLogger())

	resp, err := y.Responder(42).ChallengeResponse(context.Background(), "2", []byte{1, 2, 255})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, resp)
	assert.Equal(t, "/opt/ykman", runner.calls[0][0])
}

func TestChallengeResponseBadOutput(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{}}
	y := NewYkmanWithRunner("", runner, quietLogger())

	_, err := y.Responder(1).ChallengeResponse(context.Background(), "1", []byte{1})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestRunnerErrors(t *testing.T) {
	runner := &fakeRunner{err: ErrToolMissing}
	y := NewYkmanWithRunner("", runner, quietLogger())

	_, err := y.Serials(context.Background())
	assert.ErrorIs(t, err, ErrToolMissing)

	runner.err = errors.New("touch timeout")
	_, err = y.Responder(7).ChallengeResponse(context.Background(), "1", []byte{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device 7")
	assert.Contains(t, err.Error(), "touch timeout")
}

func TestCanceledContext(t *testing.T) {
	runner := &fakeRunner{}
	y := NewYkmanWithRunner("", runner, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := y.Serials(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.calls)
}

func TestExecRunnerMissingTool(t *testing.T) {
	_, err := execRunner{}.Run(context.Background(), "keepass-merge-no-such-tool")
	assert.ErrorIs(t, err, ErrToolMissing)
}
