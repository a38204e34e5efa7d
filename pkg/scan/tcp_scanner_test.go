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

package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/portprobe/pkg/inspect"
	"github.com/carverauto/portprobe/pkg/logger"
	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/portspec"
)

const testTimeout = 50 * time.Millisecond

type behavior int

const (
	succeed behavior = iota
	refuse
	hang
	lateSuccess
)

type trackedConn struct {
	net.Conn
	closed atomic.Bool
}

func (c *trackedConn) Close() error {
	c.closed.Store(true)
	return nil
}

// scriptedDialer plays back one behavior per attempt for each port; the
// last behavior repeats.
type scriptedDialer struct {
	mu       sync.Mutex
	scripts  map[string][]behavior
	fallback behavior
	calls    map[string]int
	conns    []*trackedConn

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	hold        time.Duration
	// linger delays the return of a cancelled dial.
	linger time.Duration
}

func newScriptedDialer(fallback behavior) *scriptedDialer {
	return &scriptedDialer{
		scripts:  make(map[string][]behavior),
		fallback: fallback,
		calls:    make(map[string]int),
	}
}

func (d *scriptedDialer) script(port models.Port, steps ...behavior) {
	d.scripts[port.String()] = steps
}

func (d *scriptedDialer) callsFor(port models.Port) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls[port.String()]
}

func (d *scriptedDialer) DialContext(ctx context.Context, _, address string) (net.Conn, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	for {
		peak := d.maxInFlight.Load()
		if n <= peak || d.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	steps := d.scripts[port]
	idx := d.calls[port]
	d.calls[port]++
	d.mu.Unlock()

	b := d.fallback
	if len(steps) > 0 {
		b = steps[min(idx, len(steps)-1)]
	}

	if d.hold > 0 {
		time.Sleep(d.hold)
	}

	switch b {
	case succeed:
		return d.newConn(), nil
	case refuse:
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	case hang:
		<-ctx.Done()
		time.Sleep(d.linger)

		return nil, ctx.Err()
	case lateSuccess:
		<-ctx.Done()
		return d.newConn(), nil
	default:
		return nil, fmt.Errorf("unknown behavior %d", b)
	}
}

func (d *scriptedDialer) newConn() *trackedConn {
	c := &trackedConn{}

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	return c
}

func newTestProber(t *testing.T, cfg Config, opts ...Option) *TCPProber {
	t.Helper()

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = testTimeout
	}

	p, err := NewTCPProber(cfg, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	return p
}

func probeOne(t *testing.T, p *TCPProber, port models.Port) models.PortRecord {
	t.Helper()

	rec, err := p.Probe(context.Background(), port)
	require.NoError(t, err)

	return rec
}

func TestProbe_Status(t *testing.T) {
	tests := []struct {
		name         string
		retries      int
		steps        []behavior
		wantStatus   models.Status
		wantAttempts int
	}{
		{name: "open first try", retries: 5, steps: []behavior{succeed}, wantStatus: models.StatusOpen, wantAttempts: 1},
		{name: "open with zero retries", retries: 0, steps: []behavior{succeed}, wantStatus: models.StatusOpen, wantAttempts: 1},
		{name: "always refused", retries: 3, steps: []behavior{refuse}, wantStatus: models.StatusClosed, wantAttempts: 3},
		{name: "always hangs", retries: 2, steps: []behavior{hang}, wantStatus: models.StatusTimedOut, wantAttempts: 2},
		{name: "timeout then success", retries: 2, steps: []behavior{hang, succeed}, wantStatus: models.StatusOpen, wantAttempts: 2},
		{name: "refused then success", retries: 3, steps: []behavior{refuse, succeed}, wantStatus: models.StatusOpen, wantAttempts: 2},
		{name: "timeout then refused", retries: 2, steps: []behavior{hang, refuse}, wantStatus: models.StatusTimedOut, wantAttempts: 2},
		{name: "refused then timeout", retries: 2, steps: []behavior{refuse, hang}, wantStatus: models.StatusTimedOut, wantAttempts: 2},
		{name: "single attempt refused", retries: 1, steps: []behavior{refuse, succeed}, wantStatus: models.StatusClosed, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newScriptedDialer(refuse)
			d.script(80, tt.steps...)

			p := newTestProber(t, Config{Retries: tt.retries}, WithDialer(d))
			rec := probeOne(t, p, 80)

			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, tt.wantAttempts, rec.Attempts)
			assert.Equal(t, tt.wantAttempts, d.callsFor(80))
			assert.Nil(t, rec.Inspection)

			if rec.Status == models.StatusOpen {
				assert.NoError(t, rec.Error)
			} else {
				assert.Error(t, rec.Error)
			}
		})
	}
}

func TestProbe_OpenClosesConnection(t *testing.T) {
	d := newScriptedDialer(succeed)
	p := newTestProber(t, Config{Retries: 2}, WithDialer(d))

	rec := probeOne(t, p, 443)
	require.Equal(t, models.StatusOpen, rec.Status)

	d.mu.Lock()
	defer d.mu.Unlock()

	require.Len(t, d.conns, 1)
	assert.True(t, d.conns[0].closed.Load())
}

func TestProbe_StaleSuccessDiscarded(t *testing.T) {
	d := newScriptedDialer(refuse)
	d.script(22, lateSuccess, refuse)

	p := newTestProber(t, Config{Retries: 2}, WithDialer(d))
	rec := probeOne(t, p, 22)

	assert.Equal(t, models.StatusTimedOut, rec.Status)

	d.mu.Lock()
	defer d.mu.Unlock()

	require.Len(t, d.conns, 1)
	assert.True(t, d.conns[0].closed.Load())
}

func TestProbe_TimeoutBoundsAttempt(t *testing.T) {
	d := newScriptedDialer(hang)
	p := newTestProber(t, Config{Retries: 3, Timeout: 30 * time.Millisecond}, WithDialer(d))

	start := time.Now()
	rec := probeOne(t, p, 8080)

	assert.Equal(t, models.StatusTimedOut, rec.Status)
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestProbe_Inspection(t *testing.T) {
	tests := []struct {
		name   string
		result models.InspectionResult
	}{
		{name: "success", result: models.InspectionSuccess("sshd 1 root *:22")},
		{name: "command failed", result: models.InspectionCommandFailed(1, "lsof: no such file")},
		{name: "execution error", result: models.InspectionExecutionError(inspect.ErrTerminatedBySignal)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			ins := inspect.NewMockInspector(ctrl)
			ins.EXPECT().Inspect(gomock.Any(), models.Port(22)).Return(tt.result).Times(1)

			d := newScriptedDialer(succeed)
			p := newTestProber(t, Config{Retries: 2}, WithDialer(d), WithInspector(ins))

			rec := probeOne(t, p, 22)

			assert.Equal(t, models.StatusOpen, rec.Status)
			require.NotNil(t, rec.Inspection)
			assert.Equal(t, tt.result.Kind, rec.Inspection.Kind)
			assert.Equal(t, tt.result, *rec.Inspection)
		})
	}
}

func TestProbe_NoInspectionWhenNotOpen(t *testing.T) {
	ctrl := gomock.NewController(t)

	ins := inspect.NewMockInspector(ctrl)
	ins.EXPECT().Inspect(gomock.Any(), gomock.Any()).Times(0)

	d := newScriptedDialer(refuse)
	d.script(81, hang)

	p := newTestProber(t, Config{Retries: 1}, WithDialer(d), WithInspector(ins))

	assert.Equal(t, models.StatusClosed, probeOne(t, p, 80).Status)
	assert.Equal(t, models.StatusTimedOut, probeOne(t, p, 81).Status)
}

func TestProbe_ContextCancelled(t *testing.T) {
	d := newScriptedDialer(hang)
	p := newTestProber(t, Config{Retries: 5, Timeout: time.Minute}, WithDialer(d))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Probe(ctx, 80)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Less(t, time.Since(start), time.Second)
}

func drain(t *testing.T, ch <-chan models.PortRecord) []models.PortRecord {
	t.Helper()

	var out []models.PortRecord

	timeout := time.After(10 * time.Second)

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return out
			}

			out = append(out, rec)
		case <-timeout:
			t.Fatal("scan did not finish")
		}
	}
}

func TestScan_OneRecordPerPort(t *testing.T) {
	set, err := portspec.Parse("1-200", "150-250", "7")
	require.NoError(t, err)

	for _, workers := range []int{1, 3, 16, 500} {
		t.Run(strconv.Itoa(workers), func(t *testing.T) {
			d := newScriptedDialer(refuse)
			d.script(7, succeed)
			d.script(9, hang)

			p := newTestProber(t, Config{Retries: 1, Workers: workers}, WithDialer(d))

			ch, err := p.ScanSet(context.Background(), set)
			require.NoError(t, err)

			records := drain(t, ch)
			require.Len(t, records, set.Len())

			seen := make(map[models.Port]models.Status, len(records))
			for _, rec := range records {
				_, dup := seen[rec.Port]
				require.False(t, dup, "port %d reported twice", rec.Port)

				seen[rec.Port] = rec.Status
			}

			assert.Equal(t, models.StatusOpen, seen[7])
			assert.Equal(t, models.StatusTimedOut, seen[9])
			assert.Equal(t, models.StatusClosed, seen[250])
		})
	}
}

func TestScan_WorkerCap(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(strconv.Itoa(workers), func(t *testing.T) {
			d := newScriptedDialer(refuse)
			d.hold = 5 * time.Millisecond

			p := newTestProber(t, Config{Retries: 2, Workers: workers}, WithDialer(d))

			set, err := portspec.Parse("1-40")
			require.NoError(t, err)

			ch, err := p.ScanSet(context.Background(), set)
			require.NoError(t, err)

			assert.Len(t, drain(t, ch), 40)
			assert.LessOrEqual(t, d.maxInFlight.Load(), int32(workers))
			assert.Positive(t, d.maxInFlight.Load())
		})
	}
}

func TestScan_WorkerCapWithSlowCancellation(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(strconv.Itoa(workers), func(t *testing.T) {
			d := newScriptedDialer(hang)
			d.linger = 30 * time.Millisecond

			p := newTestProber(t, Config{Retries: 1, Workers: workers, Timeout: 10 * time.Millisecond}, WithDialer(d))

			set, err := portspec.Parse("1-6")
			require.NoError(t, err)

			ch, err := p.ScanSet(context.Background(), set)
			require.NoError(t, err)

			recs := drain(t, ch)
			require.Len(t, recs, 6)

			for _, rec := range recs {
				assert.Equal(t, models.StatusTimedOut, rec.Status)
			}

			assert.Equal(t, int32(0), d.inFlight.Load())
			assert.LessOrEqual(t, d.maxInFlight.Load(), int32(workers))
		})
	}
}

func TestScan_DefaultWorkers(t *testing.T) {
	p := newTestProber(t, Config{})
	assert.Positive(t, p.Workers())
}

func TestScan_FullRangeIsLazy(t *testing.T) {
	d := newScriptedDialer(refuse)
	p := newTestProber(t, Config{Retries: 1, Workers: 64}, WithDialer(d))

	set, err := portspec.Parse("-")
	require.NoError(t, err)

	ch, err := p.ScanSet(context.Background(), set)
	require.NoError(t, err)

	count := 0
	for range ch {
		count++
	}

	assert.Equal(t, 65535, count)
}

type failingResolver struct{ err error }

func (r failingResolver) LookupHost(context.Context, string) ([]string, error) {
	return nil, r.err
}

type staticResolver []string

func (r staticResolver) LookupHost(context.Context, string) ([]string, error) {
	return r, nil
}

func TestScan_ResolveFailureIsFatal(t *testing.T) {
	d := newScriptedDialer(succeed)
	p := newTestProber(t, Config{Host: "no-such-host.invalid"},
		WithDialer(d),
		WithResolver(failingResolver{err: errors.New("nxdomain")}))

	ch, err := p.Scan(context.Background(), func(yield func(models.Port) bool) {
		yield(80)
	})

	require.ErrorIs(t, err, ErrResolveHost)
	assert.Nil(t, ch)
	assert.Equal(t, 0, d.callsFor(80))
}

func TestScan_NoAddresses(t *testing.T) {
	p := newTestProber(t, Config{Host: "empty.example"}, WithResolver(staticResolver{}))

	_, err := p.Start(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestScan_PrefersIPv4(t *testing.T) {
	d := newScriptedDialer(succeed)
	p := newTestProber(t, Config{Host: "dual.example"},
		WithDialer(d),
		WithResolver(staticResolver{"::1", "127.0.0.1"}))

	s, err := p.Start(context.Background(), func(yield func(models.Port) bool) {
		yield(80)
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", s.Address)
	assert.NotEmpty(t, s.ID)

	records, summary := Collect(s)
	require.Len(t, records, 1)
	assert.Equal(t, 1, summary.Open)
	assert.Equal(t, "dual.example", summary.Host)
}

func TestScan_CancelClosesStream(t *testing.T) {
	d := newScriptedDialer(hang)
	p := newTestProber(t, Config{Retries: 3, Timeout: time.Minute, Workers: 8}, WithDialer(d))

	set, err := portspec.Parse("-")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	ch, err := p.ScanSet(ctx, set)
	require.NoError(t, err)

	time.AfterFunc(30*time.Millisecond, cancel)

	records := drain(t, ch)
	assert.Empty(t, records)
	assert.LessOrEqual(t, d.maxInFlight.Load(), int32(8))
}

func TestNewTCPProber_Invalid(t *testing.T) {
	_, err := NewTCPProber(Config{}, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTCPProber(Config{Host: "h", Workers: -1}, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewTCPProber(Config{Host: "h", Retries: -3}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, p.attempts)
	assert.Equal(t, defaultTimeout, p.timeout)
}

func TestSummary_Add(t *testing.T) {
	s := &Summary{}

	for _, st := range []models.Status{models.StatusOpen, models.StatusClosed, models.StatusClosed, models.StatusTimedOut} {
		rec := models.PortRecord{Status: st}
		s.Add(&rec)
	}

	assert.Equal(t, 4, s.Ports)
	assert.Equal(t, 1, s.Open)
	assert.Equal(t, 2, s.Closed)
	assert.Equal(t, 1, s.TimedOut)
}
