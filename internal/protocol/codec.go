package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kvsd/kvs/internal/kverrors"
)

// ReadCommand decodes exactly one Command from r. The server uses
// this for wire requests; on-disk log records use their own framed
// codec instead (see internal/logengine/codec.go), since a torn
// trailing write needs to be detected there in a way the wire — where
// either party closing the connection unambiguously ends the
// exchange — does not need.
func ReadCommand(r io.Reader) (Command, error) {
	var c Command
	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return Command{}, err
		}
		return Command{}, kverrors.Sered("decode command", err)
	}
	return c, nil
}

// WriteResponse encodes resp to w.
func WriteResponse(w io.Writer, resp Response) error {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return kverrors.IOErr("write response", err)
	}
	return nil
}

// ReadResponse decodes exactly one Response from r.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	dec := json.NewDecoder(r)
	if err := dec.Decode(&resp); err != nil {
		return Response{}, kverrors.Sered("decode response", err)
	}
	return resp, nil
}

// WriteCommand encodes cmd to w.
func WriteCommand(w io.Writer, cmd Command) error {
	if err := json.NewEncoder(w).Encode(cmd); err != nil {
		return kverrors.IOErr("write command", err)
	}
	return nil
}

// String renders a command for log messages.
func (c Command) String() string {
	switch c.Op {
	case OpSet:
		return fmt.Sprintf("Set{%q}", c.Key)
	case OpGet:
		return fmt.Sprintf("Get{%q}", c.Key)
	case OpRm:
		return fmt.Sprintf("Rm{%q}", c.Key)
	default:
		return "Unknown{}"
	}
}
