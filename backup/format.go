package backup

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format is the interchange format of backup files.
type Format string

// Supported formats.
const (
	JSON    Format = "json"
	YAML    Format = "yaml"
	MsgPack Format = "msgpack"
)

// Formats lists the supported formats.
var Formats = []Format{JSON, YAML, MsgPack}

// ParseFormat returns the format with the given name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case JSON, YAML, MsgPack:
		return f, nil
	case "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("backup: unknown format %q", s)
}

// Ext returns the file extension of the format, with the dot.
func (f Format) Ext() string { return "." + string(f) }

// Encode writes v to w.
func (f Format) Encode(w io.Writer, v any) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case MsgPack:
		return msgpack.NewEncoder(w).Encode(v)
	}
	return fmt.Errorf("backup: unknown format %q", f)
}

// Decode reads v from r. Numbers are kept exact: JSON numbers decode as
// json.Number and msgpack integers as int64.
func (f Format) Decode(r io.Reader, v any) error {
	switch f {
	case JSON:
		dec := json.NewDecoder(r)
		dec.UseNumber()
		return dec.Decode(v)
	case YAML:
		return yaml.NewDecoder(r).Decode(v)
	case MsgPack:
		dec := msgpack.NewDecoder(r)
		dec.UseLooseInterfaceDecoding(true)
		return dec.Decode(v)
	}
	return fmt.Errorf("backup: unknown format %q", f)
}
