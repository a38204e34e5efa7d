/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package inspect

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
)

const (
	listenStatus     = "LISTEN"
	noListenerCode   = 1
	unknownProcField = "?"
)

// ConnectionsFunc lists TCP sockets. It exists so tests can feed a fixed
// socket table.
type ConnectionsFunc func(ctx context.Context) ([]psnet.ConnectionStat, error)

// NativeInspector reads the socket table through gopsutil instead of
// spawning a process. A port without a listener yields CommandFailed so it
// reads the same as an lsof miss.
type NativeInspector struct {
	connections ConnectionsFunc
	logger      logger.Logger
}

var _ Inspector = (*NativeInspector)(nil)

func NewNativeInspector(log logger.Logger) *NativeInspector {
	return &NativeInspector{
		connections: func(ctx context.Context) ([]psnet.ConnectionStat, error) {
			return psnet.ConnectionsWithContext(ctx, "tcp")
		},
		logger: log,
	}
}

type listener struct {
	pid     int32
	name    string
	user    string
	address string
}

func (n *NativeInspector) Inspect(ctx context.Context, port models.Port) models.InspectionResult {
	conns, err := n.connections(ctx)
	if err != nil {
		return models.InspectionExecutionError(fmt.Errorf("listing sockets: %w", err))
	}

	var found []listener

	for i := range conns {
		c := &conns[i]
		if c.Status != listenStatus || c.Laddr.Port != uint32(port) {
			continue
		}

		found = append(found, n.describe(ctx, c))
	}

	if len(found) == 0 {
		return models.InspectionCommandFailed(noListenerCode, "no listener found on port "+port.String())
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].pid != found[j].pid {
			return found[i].pid < found[j].pid
		}

		return found[i].address < found[j].address
	})

	return models.InspectionSuccess(formatListeners(found))
}

func (n *NativeInspector) describe(ctx context.Context, c *psnet.ConnectionStat) listener {
	l := listener{
		pid:     c.Pid,
		name:    unknownProcField,
		user:    unknownProcField,
		address: net.JoinHostPort(c.Laddr.IP, strconv.FormatUint(uint64(c.Laddr.Port), 10)),
	}

	if c.Pid <= 0 {
		return l
	}

	proc, err := process.NewProcessWithContext(ctx, c.Pid)
	if err != nil {
		n.logger.Debug().Err(err).Int32("pid", c.Pid).Msg("Listener process vanished")

		return l
	}

	if name, err := proc.NameWithContext(ctx); err == nil && name != "" {
		l.name = name
	}

	if user, err := proc.UsernameWithContext(ctx); err == nil && user != "" {
		l.user = user
	}

	return l
}

func formatListeners(ls []listener) string {
	var b strings.Builder

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "COMMAND\tPID\tUSER\tADDRESS")

	for _, l := range ls {
		pid := unknownProcField
		if l.pid > 0 {
			pid = strconv.Itoa(int(l.pid))
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.name, pid, l.user, l.address)
	}

	_ = tw.Flush()

	return strings.TrimRight(b.String(), "\n")
}
