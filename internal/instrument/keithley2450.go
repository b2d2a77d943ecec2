package instrument

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Keithley 2450 programming reference:
// https://www.tek.com/en/manual/source-measure-units/model-2450-interactive-sourcemeter-instrument-reference-manual

// DefaultPort is the raw SCPI socket port of the 2450 LAN interface
const DefaultPort = 5025

// SCPIError is an entry read from the instrument error queue
type SCPIError struct {
	Code    int
	Message string
}

func (e *SCPIError) Error() string {
	return fmt.Sprintf("%d, %s", e.Code, e.Message)
}

// Keithley2450 drives a 2450 SourceMeter over a line-terminated SCPI socket
// Calls are serialized; the connection is never shared between commands
type Keithley2450 struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	info    Identity
}

// Dial connects to address (host or host:port), identifies and resets the instrument
// timeout bounds each command round trip; zero disables the watchdog
func Dial(ctx context.Context, address string, timeout time.Duration) (*Keithley2450, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", address)
	}

	k := NewKeithley2450(conn, timeout)
	if err := k.init(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return k, nil
}

// NewKeithley2450 wraps an established connection
func NewKeithley2450(conn net.Conn, timeout time.Duration) *Keithley2450 {
	return &Keithley2450{
		conn:    conn,
		r:       bufio.NewReader(conn),
		timeout: timeout,
	}
}

func (k *Keithley2450) init(ctx context.Context) error {
	resp, err := k.query(ctx, "*IDN?")
	if err != nil {
		return errors.Wrap(err, "identification failed")
	}
	k.info = ParseIdentity(resp)
	if !strings.Contains(k.info.Model, "2450") {
		return errors.Errorf("unexpected instrument model %q", k.info.Model)
	}
	if err := k.writeUnchecked(ctx, "*RST"); err != nil {
		return errors.Wrap(err, "reset failed")
	}
	return k.writeUnchecked(ctx, "*CLS")
}

// Identify returns the identity read at connect time
func (k *Keithley2450) Identify(ctx context.Context) (Identity, error) {
	if k.info.Model == "" {
		resp, err := k.query(ctx, "*IDN?")
		if err != nil {
			return Identity{}, err
		}
		k.info = ParseIdentity(resp)
	}
	return k.info, nil
}

// Close closes the connection
func (k *Keithley2450) Close() error {
	return k.conn.Close()
}

// ApplyVoltage selects the voltage source with the given range and current limit, sensing current
func (k *Keithley2450) ApplyVoltage(ctx context.Context, sourceRange, complianceCurrent float64) error {
	return k.applySource(ctx, "VOLT", "CURR", "ILIM", sourceRange, complianceCurrent)
}

// ApplyCurrent selects the current source with the given range and voltage limit, sensing voltage
func (k *Keithley2450) ApplyCurrent(ctx context.Context, sourceRange, complianceVoltage float64) error {
	return k.applySource(ctx, "CURR", "VOLT", "VLIM", sourceRange, complianceVoltage)
}

func (k *Keithley2450) applySource(ctx context.Context, src, sense, limit string, sourceRange, compliance float64) error {
	errContext := fmt.Sprintf("%s source init fail", strings.ToLower(src))
	cmds := []string{":SOUR:FUNC " + src}
	if sourceRange == AutoRange {
		cmds = append(cmds, fmt.Sprintf(":SOUR:%s:RANG:AUTO ON", src))
	} else {
		cmds = append(cmds, fmt.Sprintf(":SOUR:%s:RANG %g", src, sourceRange))
	}
	cmds = append(cmds,
		fmt.Sprintf(":SOUR:%s:%s %g", src, limit, compliance),
		fmt.Sprintf(":SENS:FUNC \"%s\"", sense),
	)
	for _, cmd := range cmds {
		if err := k.write(ctx, cmd); err != nil {
			return errors.Wrap(err, errContext)
		}
	}
	return nil
}

// SetSourceVoltage sets the voltage source level
func (k *Keithley2450) SetSourceVoltage(ctx context.Context, v float64) error {
	return k.write(ctx, fmt.Sprintf(":SOUR:VOLT %g", v))
}

// SetSourceCurrent sets the current source level
func (k *Keithley2450) SetSourceCurrent(ctx context.Context, i float64) error {
	return k.write(ctx, fmt.Sprintf(":SOUR:CURR %g", i))
}

// SourceVoltage reads back the programmed voltage level
func (k *Keithley2450) SourceVoltage(ctx context.Context) (float64, error) {
	return k.queryFloat(ctx, ":SOUR:VOLT?")
}

// SourceCurrent reads back the programmed current level
func (k *Keithley2450) SourceCurrent(ctx context.Context) (float64, error) {
	return k.queryFloat(ctx, ":SOUR:CURR?")
}

// MeasureVoltage triggers a voltage reading
func (k *Keithley2450) MeasureVoltage(ctx context.Context) (float64, error) {
	return k.queryFloat(ctx, ":MEAS:VOLT?")
}

// MeasureCurrent triggers a current reading
func (k *Keithley2450) MeasureCurrent(ctx context.Context) (float64, error) {
	return k.queryFloat(ctx, ":MEAS:CURR?")
}

// MeasureResistance triggers a resistance reading
func (k *Keithley2450) MeasureResistance(ctx context.Context) (float64, error) {
	return k.queryFloat(ctx, ":MEAS:RES?")
}

// EnableSource turns the output on
func (k *Keithley2450) EnableSource(ctx context.Context) error {
	return k.write(ctx, ":OUTP ON")
}

// DisableSource turns the output off
func (k *Keithley2450) DisableSource(ctx context.Context) error {
	return k.write(ctx, ":OUTP OFF")
}

// Shutdown zeroes both source levels and turns the output off
func (k *Keithley2450) Shutdown(ctx context.Context) error {
	for _, cmd := range []string{":SOUR:VOLT 0", ":SOUR:CURR 0", ":OUTP OFF"} {
		if err := k.writeUnchecked(ctx, cmd); err != nil {
			return errors.Wrap(err, "shutdown fail")
		}
	}
	return nil
}

// AutoRangeVoltage enables voltage measure autorange
func (k *Keithley2450) AutoRangeVoltage(ctx context.Context) error {
	return k.write(ctx, ":SENS:VOLT:RANG:AUTO ON")
}

// AutoRangeCurrent enables current measure autorange
func (k *Keithley2450) AutoRangeCurrent(ctx context.Context) error {
	return k.write(ctx, ":SENS:CURR:RANG:AUTO ON")
}

// SetMeasureRange fixes the measure range of f
func (k *Keithley2450) SetMeasureRange(ctx context.Context, f Function, value float64) error {
	mnemonic, err := senseMnemonic(f)
	if err != nil {
		return err
	}
	return k.write(ctx, fmt.Sprintf(":SENS:%s:RANG %g", mnemonic, value))
}

// SetNPLC sets the integration time of f in power line cycles
func (k *Keithley2450) SetNPLC(ctx context.Context, f Function, nplc float64) error {
	mnemonic, err := senseMnemonic(f)
	if err != nil {
		return err
	}
	return k.write(ctx, fmt.Sprintf(":SENS:%s:NPLC %g", mnemonic, nplc))
}

// SetSensingMode switches remote sense for every measure function
func (k *Keithley2450) SetSensingMode(ctx context.Context, mode SensingMode) error {
	state := onOff(mode == FourWire)
	for _, f := range []string{"VOLT", "CURR", "RES"} {
		if err := k.write(ctx, fmt.Sprintf(":SENS:%s:RSEN %s", f, state)); err != nil {
			return errors.Wrap(err, "sensing mode")
		}
	}
	return nil
}

// SetInputJacks routes the terminals to the front or rear jacks
func (k *Keithley2450) SetInputJacks(ctx context.Context, jacks Jacks) error {
	term := "FRON"
	if jacks == Rear {
		term = "REAR"
	}
	return k.write(ctx, ":ROUT:TERM "+term)
}

// SetOutputOffState sets what the output does when turned off, for both source functions
func (k *Keithley2450) SetOutputOffState(ctx context.Context, state OffState) error {
	mode := map[OffState]string{OffNormal: "NORM", OffHighZ: "HIMP", OffZero: "ZERO", OffGuard: "GUAR"}[state]
	for _, f := range []string{"VOLT", "CURR"} {
		if err := k.write(ctx, fmt.Sprintf(":OUTP:%s:SMOD %s", f, mode)); err != nil {
			return errors.Wrap(err, "output off state")
		}
	}
	return nil
}

// SetHighCapacitance toggles high capacitance mode on both source functions
func (k *Keithley2450) SetHighCapacitance(ctx context.Context, on bool) error {
	for _, f := range []string{"VOLT", "CURR"} {
		if err := k.write(ctx, fmt.Sprintf(":SOUR:%s:HIGH:CAP %s", f, onOff(on))); err != nil {
			return errors.Wrap(err, "high capacitance")
		}
	}
	return nil
}

// SetOffsetCompensatedOhms toggles offset compensation of resistance readings
func (k *Keithley2450) SetOffsetCompensatedOhms(ctx context.Context, on bool) error {
	return k.write(ctx, ":SENS:RES:OCOM "+onOff(on))
}

// write sends cmd and checks the error queue afterwards
func (k *Keithley2450) write(ctx context.Context, cmd string) error {
	return k.exchange(ctx, func() error {
		if err := k.send(ctx, cmd); err != nil {
			return err
		}
		if err := k.checkErrors(ctx); err != nil {
			return errors.Wrapf(err, "instrument error after %q", cmd)
		}
		return nil
	})
}

// writeUnchecked sends cmd without reading the error queue
func (k *Keithley2450) writeUnchecked(ctx context.Context, cmd string) error {
	return k.exchange(ctx, func() error { return k.send(ctx, cmd) })
}

func (k *Keithley2450) query(ctx context.Context, cmd string) (string, error) {
	var resp string
	err := k.exchange(ctx, func() error {
		var err error
		resp, err = k.roundTrip(ctx, cmd)
		return err
	})
	return resp, err
}

func (k *Keithley2450) queryFloat(ctx context.Context, cmd string) (float64, error) {
	resp, err := k.query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "conversion of %q response failed", cmd)
	}
	return v, nil
}

// exchange runs fn with the connection locked and its deadline armed from ctx
// and the watchdog timeout. Cancelling ctx unblocks a pending read or write
func (k *Keithley2450) exchange(ctx context.Context, fn func() error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if k.timeout > 0 {
		if w := time.Now().Add(k.timeout); deadline.IsZero() || w.Before(deadline) {
			deadline = w
		}
	}
	if err := k.conn.SetDeadline(deadline); err != nil {
		return errors.Wrap(err, "setting deadline")
	}
	stop := context.AfterFunc(ctx, func() { k.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	return fn()
}

// The helpers below must run inside exchange

func (k *Keithley2450) checkErrors(ctx context.Context) error {
	resp, err := k.roundTrip(ctx, ":SYST:ERR?")
	if err != nil {
		return err
	}
	code, msg, _ := strings.Cut(resp, ",")
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return errors.Errorf("malformed error queue response %q", resp)
	}
	if n != 0 {
		return &SCPIError{Code: n, Message: strings.Trim(msg, "\" ")}
	}
	return nil
}

func (k *Keithley2450) roundTrip(ctx context.Context, cmd string) (string, error) {
	if err := k.send(ctx, cmd); err != nil {
		return "", err
	}
	line, err := k.r.ReadString('\n')
	if err != nil {
		return "", errors.Wrapf(k.ctxErr(ctx, err), "reading response to %q", cmd)
	}
	resp := strings.TrimRight(line, "\r\n")
	if resp == "" {
		return "", errors.Errorf("empty response to %q", cmd)
	}
	return resp, nil
}

func (k *Keithley2450) send(ctx context.Context, cmd string) error {
	if _, err := k.conn.Write([]byte(cmd + "\n")); err != nil {
		return errors.Wrapf(k.ctxErr(ctx, err), "writing %q", cmd)
	}
	return nil
}

func (k *Keithley2450) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func senseMnemonic(f Function) (string, error) {
	switch f {
	case Voltage:
		return "VOLT", nil
	case Current:
		return "CURR", nil
	case Resistance:
		return "RES", nil
	}
	return "", errors.Errorf("unsupported measure function %d", f)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
