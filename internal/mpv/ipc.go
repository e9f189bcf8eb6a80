package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

const commandTimeout = 2 * time.Second

// meterKey is the astats value exposed by the @meter audio filter.
const meterKey = "lavfi.astats.Overall.RMS_level"

// errPropertyUnavailable is returned while mpv has no value for a property,
// e.g. time-pos before the file is opened.
var errPropertyUnavailable = errors.New("property unavailable")

type command struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type response struct {
	Data      json.RawMessage `json:"data"`
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Event     string          `json:"event"`
}

var requestIDs atomic.Int64

// send runs one command over a fresh connection to the IPC socket and
// returns the raw data of the matching reply. Event lines broadcast by mpv
// on the same connection are skipped.
func send(ctx context.Context, socket string, args ...any) (json.RawMessage, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect to mpv socket: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(commandTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	cmd := command{Command: args, RequestID: requestIDs.Add(1)}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Event != "" || resp.RequestID != cmd.RequestID {
			continue
		}

		switch resp.Error {
		case "", "success":
			return resp.Data, nil
		case errPropertyUnavailable.Error():
			return nil, errPropertyUnavailable
		default:
			return nil, fmt.Errorf("mpv error: %s", resp.Error)
		}
	}
}

func getSeconds(ctx context.Context, socket, property string) (time.Duration, bool, error) {
	data, err := send(ctx, socket, "get_property", property)
	if errors.Is(err, errPropertyUnavailable) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return 0, false, fmt.Errorf("decode %s: %w", property, err)
	}
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs * float64(time.Second)), true, nil
}

func getBool(ctx context.Context, socket, property string) (bool, error) {
	data, err := send(ctx, socket, "get_property", property)
	if errors.Is(err, errPropertyUnavailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return false, fmt.Errorf("decode %s: %w", property, err)
	}
	return v, nil
}

// parseMetering extracts the RMS level in dBFS from the af-metadata map.
// Digital silence is reported as "-inf".
func parseMetering(data json.RawMessage) (float64, bool) {
	var meta map[string]string
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, false
	}
	raw, ok := meta[meterKey]
	if !ok {
		return 0, false
	}
	level, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(level) {
		return 0, false
	}
	return level, true
}
