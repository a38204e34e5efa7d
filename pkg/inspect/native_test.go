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
	"errors"
	"net"
	"testing"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
)

func fixedTable(conns []psnet.ConnectionStat, err error) ConnectionsFunc {
	return func(context.Context) ([]psnet.ConnectionStat, error) {
		return conns, err
	}
}

func TestNativeInspector_FixedTable(t *testing.T) {
	n := NewNativeInspector(logger.NewTestLogger())
	n.connections = fixedTable([]psnet.ConnectionStat{
		{Status: "LISTEN", Laddr: psnet.Addr{IP: "0.0.0.0", Port: 8080}},
		{Status: "ESTABLISHED", Laddr: psnet.Addr{IP: "10.0.0.1", Port: 8080}},
		{Status: "LISTEN", Laddr: psnet.Addr{IP: "::", Port: 8080}},
		{Status: "LISTEN", Laddr: psnet.Addr{IP: "0.0.0.0", Port: 22}},
	}, nil)

	res := n.Inspect(context.Background(), 8080)

	require.Equal(t, models.InspectionKindSuccess, res.Kind)
	assert.Contains(t, res.Output, "COMMAND")
	assert.Contains(t, res.Output, "0.0.0.0:8080")
	assert.Contains(t, res.Output, "[::]:8080")
	assert.NotContains(t, res.Output, "10.0.0.1")
	assert.NotContains(t, res.Output, ":22")
}

func TestNativeInspector_NoListener(t *testing.T) {
	n := NewNativeInspector(logger.NewTestLogger())
	n.connections = fixedTable(nil, nil)

	res := n.Inspect(context.Background(), 9999)

	assert.Equal(t, models.InspectionKindCommandFailed, res.Kind)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "9999")
}

func TestNativeInspector_TableError(t *testing.T) {
	n := NewNativeInspector(logger.NewTestLogger())
	n.connections = fixedTable(nil, errors.New("permission denied"))

	res := n.Inspect(context.Background(), 22)

	assert.Equal(t, models.InspectionKindExecutionError, res.Kind)
	require.Error(t, res.Err)
}

func TestNativeInspector_OwnListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	port := models.Port(ln.Addr().(*net.TCPAddr).Port)

	res := NewNativeInspector(logger.NewTestLogger()).Inspect(context.Background(), port)
	if res.Kind == models.InspectionKindExecutionError {
		t.Skipf("socket table unavailable: %v", res.Err)
	}

	require.Equal(t, models.InspectionKindSuccess, res.Kind)
	assert.Contains(t, res.Output, "127.0.0.1:"+port.String())
}
