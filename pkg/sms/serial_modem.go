package sms

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// ctrlZ terminates an SMS body in AT text mode.
const ctrlZ = "\x1a"

// SerialModemGateway drives a GSM modem attached to a serial port with
// AT commands in text mode. A single read pump parses unsolicited +CMT
// notifications and hands reply bodies to waiting callers.
type SerialModemGateway struct {
	port   *serial.Port
	logger zerolog.Logger

	writeMu sync.Mutex

	waitersMu sync.Mutex
	waiters   map[string]chan string

	done chan struct{}
	wg   sync.WaitGroup
}

// OpenSerialModem opens the modem on the given port, switches it to
// text mode and starts the inbound read pump.
func OpenSerialModem(portName string, baudRate int, logger zerolog.Logger) (*SerialModemGateway, error) {
	port, err := serial.OpenPort(&serial.Config{Name: portName, Baud: baudRate, ReadTimeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransportUnreachable, err)
	}

	g := &SerialModemGateway{
		port:    port,
		logger:  logger.With().Str("component", "sms-modem").Logger(),
		waiters: make(map[string]chan string),
		done:    make(chan struct{}),
	}

	// Text mode, new-message indications pushed to the serial line.
	for _, cmd := range []string{"AT", "AT+CMGF=1", "AT+CNMI=2,2,0,0,0"} {
		if err := g.write(cmd + "\r"); err != nil {
			port.Close()
			return nil, err
		}
	}

	g.wg.Add(1)
	go g.readPump()

	return g, nil
}

// Send transmits one SMS through the modem.
func (g *SerialModemGateway) Send(ctx context.Context, to string, body string) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransportTimeout, err)
	}

	if err := g.write(fmt.Sprintf("AT+CMGS=\"%s\"\r", to)); err != nil {
		return err
	}
	// The modem prompts with "> " before accepting the body; the pump
	// ignores it, a short pause is enough.
	time.Sleep(100 * time.Millisecond)
	return g.write(body + ctrlZ)
}

// AwaitReply blocks until an inbound message from the number arrives or
// the context expires.
func (g *SerialModemGateway) AwaitReply(ctx context.Context, from string) (string, error) {
	ch := g.subscribe(from)
	defer g.unsubscribe(from)

	select {
	case body := <-ch:
		return body, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: no SMS reply from %s", models.ErrTransportTimeout, from)
	case <-g.done:
		return "", fmt.Errorf("%w: modem closed", models.ErrTransportUnreachable)
	}
}

// Close stops the read pump and releases the serial port.
func (g *SerialModemGateway) Close() error {
	close(g.done)
	err := g.port.Close()
	g.wg.Wait()
	return err
}

func (g *SerialModemGateway) write(data string) error {
	if _, err := g.port.Write([]byte(data)); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransportUnreachable, err)
	}
	return nil
}

// readPump scans modem output for +CMT unsolicited result codes. The
// header line carries the sender; the following line is the body.
func (g *SerialModemGateway) readPump() {
	defer g.wg.Done()

	scanner := bufio.NewScanner(g.port)
	pendingFrom := ""
	for scanner.Scan() {
		select {
		case <-g.done:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "+CMT:") {
			pendingFrom = parseCMTSender(line)
			continue
		}

		if pendingFrom != "" {
			g.dispatch(pendingFrom, line)
			pendingFrom = ""
		}
	}
}

// parseCMTSender extracts the MSISDN from a +CMT header, e.g.
// +CMT: "+15551234567",,"24/03/02,10:41:21+00"
func parseCMTSender(header string) string {
	parts := strings.SplitN(header, "\"", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (g *SerialModemGateway) subscribe(from string) chan string {
	g.waitersMu.Lock()
	defer g.waitersMu.Unlock()
	ch := make(chan string, 1)
	g.waiters[from] = ch
	return ch
}

func (g *SerialModemGateway) unsubscribe(from string) {
	g.waitersMu.Lock()
	defer g.waitersMu.Unlock()
	delete(g.waiters, from)
}

func (g *SerialModemGateway) dispatch(from, body string) {
	g.waitersMu.Lock()
	ch, ok := g.waiters[from]
	g.waitersMu.Unlock()

	if !ok {
		g.logger.Debug().Str("from", from).Msg("Unsolicited SMS with no waiter, dropped")
		return
	}
	select {
	case ch <- body:
	default:
	}
}
