package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mattjoyce/drivelink/internal/message"
)

func TestJSONEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   *Frame
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name:  "dispatch keeps property order",
			frame: DispatchFrame(message.Of("command", "click", "target", "main", "button", "OK")),
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"type":"dispatch"`) {
					t.Error("missing type field")
				}
				want := `[{"key":"command","value":"click"},{"key":"target","value":"main"},{"key":"button","value":"OK"}]`
				if !strings.Contains(output, want) {
					t.Errorf("properties not in order: %s", output)
				}
			},
		},
		{
			name:  "scalar result with empty info",
			frame: ResultFrame(0, ""),
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"info":""`) {
					t.Errorf("empty info must still be present: %s", output)
				}
			},
		},
		{
			name:    "unsupported protocol version",
			frame:   &Frame{Protocol: 2, Type: FrameReady},
			wantErr: true,
		},
		{
			name:    "dispatch without properties",
			frame:   NewFrame(FrameDispatch),
			wantErr: true,
		},
		{
			name:    "dispatch file without path",
			frame:   NewFrame(FrameDispatchFile),
			wantErr: true,
		},
		{
			name:    "unknown type",
			frame:   NewFrame("bogus"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := NewJSONCodec(nil, &buf).Encode(tt.frame)

			if (err != nil) != tt.wantErr {
				t.Errorf("Encode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestJSONDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, f *Frame)
	}{
		{
			name:  "ready",
			input: `{"protocol":1,"type":"ready"}`,
			checkFn: func(t *testing.T, f *Frame) {
				if f.Type != FrameReady {
					t.Errorf("want ready, got %s", f.Type)
				}
			},
		},
		{
			name:  "result",
			input: `{"protocol":1,"type":"result","code":3,"info":"nope"}`,
			checkFn: func(t *testing.T, f *Frame) {
				if f.Code != 3 || f.Info == nil || *f.Info != "nope" {
					t.Errorf("unexpected result frame: %+v", f)
				}
			},
		},
		{
			name:  "result message",
			input: `{"protocol":1,"type":"result_message","properties":[{"key":"resultCode","value":"5"}]}`,
			checkFn: func(t *testing.T, f *Frame) {
				if got := f.Message().Value(message.KeyResultCode); got != "5" {
					t.Errorf("resultCode = %q", got)
				}
			},
		},
		{
			name:    "missing type",
			input:   `{"protocol":1}`,
			wantErr: true,
		},
		{
			name:    "exception without text",
			input:   `{"protocol":1,"type":"exception"}`,
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			input:   `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Frame
			err := NewJSONCodec(strings.NewReader(tt.input), nil).Decode(&f)

			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, &f)
			}
		})
	}
}

func TestCodecStreams(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatCBOR} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			enc, err := NewCodec(format, nil, &buf)
			if err != nil {
				t.Fatalf("NewCodec: %v", err)
			}

			sent := []*Frame{
				NewFrame(FrameConnection),
				NewFrame(FrameReady),
				DispatchFrame(message.Of("command", "ping")),
				ResultFrame(0, "pong"),
				{Protocol: Version, Type: FrameShutdown, Cause: 2},
			}
			for _, f := range sent {
				if err := enc.Encode(f); err != nil {
					t.Fatalf("Encode(%s): %v", f.Type, err)
				}
			}

			dec, err := NewCodec(format, &buf, nil)
			if err != nil {
				t.Fatalf("NewCodec: %v", err)
			}
			for _, want := range sent {
				var got Frame
				if err := dec.Decode(&got); err != nil {
					t.Fatalf("Decode: %v", err)
				}
				if got.Type != want.Type || got.Cause != want.Cause || got.Code != want.Code {
					t.Errorf("got %+v, want %+v", got, want)
				}
			}

			var tail Frame
			if err := dec.Decode(&tail); !errors.Is(err, io.EOF) {
				t.Errorf("expected io.EOF at end of stream, got %v", err)
			}
		})
	}
}

func TestNewCodecUnknownFormat(t *testing.T) {
	if _, err := NewCodec("xml", nil, nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
