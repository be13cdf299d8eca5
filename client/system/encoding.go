package system

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/openrport/rguard/share/logger"
)

const codePageTimeout = 5 * time.Second

var (
	codePageRegexp = regexp.MustCompile(`(\d+)`)
	// code pages whose number isn't a valid IANA name
	codePageIANANames = map[string]string{
		"65000": "utf-7",
		"65001": "utf-8",
		"1252":  "windows-1252",
	}
)

// ConsoleDecoder converts the output of console tools to UTF-8. The active code page is
// detected on first use and kept for the lifetime of the decoder.
type ConsoleDecoder struct {
	runner CmdRunner
	logger *logger.Logger

	once sync.Once
	enc  encoding.Encoding
}

func NewConsoleDecoder(runner CmdRunner, l *logger.Logger) *ConsoleDecoder {
	return &ConsoleDecoder{runner: runner, logger: l}
}

// NewFixedDecoder returns a decoder that skips detection. A nil enc passes output through.
func NewFixedDecoder(enc encoding.Encoding) *ConsoleDecoder {
	d := &ConsoleDecoder{enc: enc}
	d.once.Do(func() {})
	return d
}

func (d *ConsoleDecoder) Decode(ctx context.Context, out []byte) (string, error) {
	d.once.Do(func() {
		d.enc = d.detect(ctx)
	})
	if d.enc == nil {
		return string(out), nil
	}
	decoded, err := d.enc.NewDecoder().Bytes(out)
	if err != nil {
		return "", fmt.Errorf("could not decode output: %w", err)
	}
	return string(decoded), nil
}

func (d *ConsoleDecoder) detect(ctx context.Context) encoding.Encoding {
	if len(codePageCommand) == 0 {
		return nil
	}
	res, err := d.runner.Run(ctx, codePageTimeout, codePageCommand[0], codePageCommand[1:]...)
	if err != nil {
		d.logger.Debugf("could not detect the console code page, assuming utf-8: %v", err)
		return nil
	}
	enc, err := encodingByCodePage(string(res.Stdout))
	if err != nil {
		d.logger.Debugf("assuming utf-8: %v", err)
		return nil
	}
	return enc
}

// encodingByCodePage parses the output of chcp. It returns nil for UTF-8.
func encodingByCodePage(chcpOut string) (encoding.Encoding, error) {
	m := codePageRegexp.FindStringSubmatch(chcpOut)
	if len(m) < 2 {
		return nil, fmt.Errorf("no code page number in %q", chcpOut)
	}

	codePage := m[1]
	name, ok := codePageIANANames[codePage]
	if !ok {
		name = codePage
	}
	if name == "utf-8" {
		return nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown code page %s: %v", codePage, err)
	}
	// ianaindex knows some names without providing a decoder for them
	if enc == nil {
		return nil, fmt.Errorf("code page %s is not supported", codePage)
	}
	return enc, nil
}
