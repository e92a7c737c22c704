package cmd

import (
	"time"

	"github.com/spf13/pflag"

	"line-terminal/pkg/config"
	"line-terminal/pkg/tty"
)

// sessionFlags holds the backend, device and serial settings shared by
// run and config save
type sessionFlags struct {
	backend string

	port        string
	baudRate    int
	dataBits    int
	stopBits    int
	parity      string
	readTimeout time.Duration

	lineCapacity int
	keyBacklog   int
	writeBacklog int
	strategy     string
	killKey      string
	noEcho       bool
}

// newSessionFlags returns the flag set with defaults taken from a default
// profile
func newSessionFlags() (*sessionFlags, *pflag.FlagSet) {
	def := config.DefaultProfile("")
	f := &sessionFlags{}
	fs := pflag.NewFlagSet("session", pflag.ContinueOnError)

	fs.StringVar(&f.backend, "backend", def.Backend, "console backend (screen, stdio, serial)")

	fs.StringVarP(&f.port, "port", "p", def.Serial.Port, "serial port")
	fs.IntVarP(&f.baudRate, "baud", "b", def.Serial.BaudRate, "baud rate")
	fs.IntVarP(&f.dataBits, "data", "d", def.Serial.DataBits, "data bits (5, 6, 7, or 8)")
	fs.IntVarP(&f.stopBits, "stop", "s", def.Serial.StopBits, "stop bits (1 or 2)")
	fs.StringVar(&f.parity, "parity", def.Serial.Parity, "parity (none, odd, even, mark, space)")
	fs.DurationVar(&f.readTimeout, "read-timeout", def.Serial.ReadTimeout, "serial read timeout")

	fs.IntVar(&f.lineCapacity, "line-capacity", def.Device.LineCapacity, "maximum characters in a line")
	fs.IntVar(&f.keyBacklog, "key-backlog", def.Device.KeyBacklog, "key events queued for the driver")
	fs.IntVar(&f.writeBacklog, "write-backlog", def.Device.WriteBacklog, "output bytes staged for the driver")
	fs.StringVar(&f.strategy, "strategy", def.Device.Strategy.String(), "write strategy (token, mutex)")
	fs.StringVar(&f.killKey, "kill-key", def.Device.KillKey.String(), "letter that erases the line with Ctrl")
	fs.BoolVar(&f.noEcho, "no-echo", false, "do not echo typed characters")

	return f, fs
}

// apply copies the flags the user set onto p, leaving the rest of the
// profile as loaded
func (f *sessionFlags) apply(fs *pflag.FlagSet, p *config.Profile) error {
	var err error
	fs.Visit(func(flag *pflag.Flag) {
		if err != nil {
			return
		}
		switch flag.Name {
		case "backend":
			p.Backend = f.backend
		case "port":
			p.Serial.Port = f.port
		case "baud":
			p.Serial.BaudRate = f.baudRate
		case "data":
			p.Serial.DataBits = f.dataBits
		case "stop":
			p.Serial.StopBits = f.stopBits
		case "parity":
			p.Serial.Parity = f.parity
		case "read-timeout":
			p.Serial.ReadTimeout = f.readTimeout
		case "line-capacity":
			p.Device.LineCapacity = f.lineCapacity
			// the read queue must hold a full line and its end-of-line marker
			if p.Device.ReadBacklog <= f.lineCapacity {
				p.Device.ReadBacklog = f.lineCapacity + 1
			}
		case "key-backlog":
			p.Device.KeyBacklog = f.keyBacklog
		case "write-backlog":
			p.Device.WriteBacklog = f.writeBacklog
		case "strategy":
			p.Device.Strategy, err = tty.ParseStrategy(f.strategy)
		case "kill-key":
			p.Device.KillKey, err = tty.ParseKey(f.killKey)
		case "no-echo":
			p.Device.Echo = !f.noEcho
		}
	})
	return err
}
