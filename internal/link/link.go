// Package link connects to the shade transmitter over a serial line.
package link

import (
	"bufio"
	"io"
	"strings"

	"github.com/jkaflik/shade2mqtt/internal/transmit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Serial is a line oriented transmitter connection.
type Serial struct {
	name string
	port serial.Port
	log  logrus.FieldLogger
}

func Open(name string, baud int) (*Serial, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: open at %d baud failed", name, baud)
	}

	logrus.Infof("%s: transmitter connected at %d baud", name, baud)

	return &Serial{
		name: name,
		port: port,
		log:  logrus.WithField("component", "link"),
	}, nil
}

func (s *Serial) SetLogger(log logrus.FieldLogger) {
	s.log = log
}

func (s *Serial) WriteLine(line string) error {
	s.log.Debugf("%s: -> %s", s.name, line)
	if _, err := io.WriteString(s.port, line+"\n"); err != nil {
		return errors.Wrapf(err, "%s: write failed", s.name)
	}
	return nil
}

// ReadLines blocks delivering every inbound line to handle until the port is
// closed or fails.
func (s *Serial) ReadLines(handle func(line string)) error {
	err := ReadLines(s.port, func(line string) {
		s.log.Debugf("%s: <- %s", s.name, line)
		handle(line)
	})
	return errors.Wrapf(err, "%s: read failed", s.name)
}

func (s *Serial) Close() error {
	return s.port.Close()
}

// ReadLines splits r into lines, dropping line terminators and blank lines.
func ReadLines(r io.Reader, handle func(line string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		handle(line)
	}

	return scanner.Err()
}

// Dumb stands in for a missing transmitter. Every written line is logged and
// acknowledged with a ready line handed to OnLine through Post.
type Dumb struct {
	Name   string
	Post   func(func())
	OnLine func(line string)
}

func (d *Dumb) WriteLine(line string) error {
	logrus.Warnf("%s: dumb transmitter %s", d.Name, line)

	if d.Post != nil && d.OnLine != nil {
		d.Post(func() { d.OnLine(transmit.ReadyToken) })
	}
	return nil
}
