package otp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// PromptText is written before every read.
const PromptText = "Enter OTP code: "

// Prompt reads one-time codes from an interactive channel, one line per call.
// It holds no buffered reader, so consecutive reads never consume input that
// belongs to a later prompt.
type Prompt struct {
	in  io.Reader
	out io.Writer
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

// ReadCode writes the prompt and blocks until a full line is available. The
// line is returned without its terminator and otherwise untouched. The read
// itself cannot be interrupted; ctx is only checked before prompting.
func (p *Prompt) ReadCode(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprintln(p.out, PromptText); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	var line bytes.Buffer
	buf := make([]byte, 1)
	for {
		n, err := p.in.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			line.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line.Len() == 0 {
					return "", io.ErrUnexpectedEOF
				}
				break
			}
			return "", fmt.Errorf("read otp: %w", err)
		}
	}

	return string(bytes.TrimSuffix(line.Bytes(), []byte("\r"))), nil
}

// GetCode lets a Prompt serve as the engine's OTP retriever.
func (p *Prompt) GetCode(ctx context.Context) (string, error) {
	return p.ReadCode(ctx)
}
