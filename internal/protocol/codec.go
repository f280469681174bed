package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Supported codec formats.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Codec frames Frames over a byte stream. Encode is safe for concurrent use;
// Decode must only be called from one goroutine.
type Codec interface {
	Encode(f *Frame) error
	Decode(f *Frame) error
}

// NewCodec creates a codec for format reading from r and writing to w.
func NewCodec(format string, r io.Reader, w io.Writer) (Codec, error) {
	switch format {
	case "", FormatJSON:
		return NewJSONCodec(r, w), nil
	case FormatCBOR:
		return NewCBORCodec(r, w), nil
	default:
		return nil, fmt.Errorf("unsupported codec format: %s", format)
	}
}

// JSONCodec speaks newline-delimited JSON.
type JSONCodec struct {
	mu  sync.Mutex
	enc *json.Encoder
	dec *json.Decoder
}

// NewJSONCodec creates a JSON-lines codec.
func NewJSONCodec(r io.Reader, w io.Writer) *JSONCodec {
	c := &JSONCodec{}
	if w != nil {
		c.enc = json.NewEncoder(w)
	}
	if r != nil {
		c.dec = json.NewDecoder(bufio.NewReader(r))
	}
	return c
}

// Encode validates and writes one frame followed by a newline.
func (c *JSONCodec) Encode(f *Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		return fmt.Errorf("codec has no writer")
	}
	if err := c.enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}

// Decode reads and validates one frame. io.EOF is returned unwrapped.
func (c *JSONCodec) Decode(f *Frame) error {
	if c.dec == nil {
		return fmt.Errorf("codec has no reader")
	}
	*f = Frame{}
	if err := c.dec.Decode(f); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return f.Validate()
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec speaks a CBOR sequence (RFC 8742) with deterministic encoding.
type CBORCodec struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	dec *cbor.Decoder
}

// NewCBORCodec creates a CBOR sequence codec.
func NewCBORCodec(r io.Reader, w io.Writer) *CBORCodec {
	c := &CBORCodec{}
	if w != nil {
		c.enc = cborEnc.NewEncoder(w)
	}
	if r != nil {
		c.dec = cborDec.NewDecoder(r)
	}
	return c
}

// Encode validates and writes one frame.
func (c *CBORCodec) Encode(f *Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		return fmt.Errorf("codec has no writer")
	}
	if err := c.enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}

// Decode reads and validates one frame. io.EOF is returned unwrapped.
func (c *CBORCodec) Decode(f *Frame) error {
	if c.dec == nil {
		return fmt.Errorf("codec has no reader")
	}
	*f = Frame{}
	if err := c.dec.Decode(f); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return f.Validate()
}
