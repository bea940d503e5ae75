// Package wire decodes the inbound device protocol into location
// samples. The byte layout is vendor-specific; Decoder is the pluggable
// seam and TextDecoder handles the NMEA-over-text dialect the fleet's
// trackers speak.
package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/routewise/telemetry-engine/internal/models"
)

// knotsToKmh converts NMEA ground speed to km/h.
const knotsToKmh = 1.852

// hdopMeters scales HDOP into an approximate horizontal error in
// meters, assuming a nominal 5m base GPS error.
const hdopMeters = 5.0

// Frame is one decoded unit from the inbound stream: either a login
// announcement or a position report.
type Frame struct {
	DeviceID string
	Login    bool
	Firmware string
	Sample   *models.LocationSample
}

// Decoder turns one raw frame into a Frame. Implementations must treat
// unknown or partial input as an error, never panic.
type Decoder interface {
	Decode(raw string) (Frame, error)
}

// TextDecoder parses the tracker's text dialect:
//
//	<device_id>|LOGIN,fw=<version>
//	<device_id>|$GPRMC,...*hh
//	<device_id>|$GPGGA,...*hh
//
// RMC sentences carry speed and heading, GGA sentences carry HDOP and
// satellite count. Anything else is a parse error.
type TextDecoder struct{}

// NewTextDecoder returns the default frame decoder.
func NewTextDecoder() *TextDecoder {
	return &TextDecoder{}
}

// Decode parses a single frame line.
func (d *TextDecoder) Decode(raw string) (Frame, error) {
	raw = strings.TrimSpace(raw)

	deviceID, payload, found := strings.Cut(raw, "|")
	if !found || deviceID == "" || payload == "" {
		return Frame{}, fmt.Errorf("%w: missing device identifier", models.ErrParse)
	}

	if rest, ok := strings.CutPrefix(payload, "LOGIN"); ok {
		return decodeLogin(deviceID, rest)
	}

	sentence, err := nmea.Parse(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", models.ErrParse, err)
	}

	switch s := sentence.(type) {
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			return Frame{}, fmt.Errorf("%w: RMC sentence without a fix", models.ErrParse)
		}
		return Frame{
			DeviceID: deviceID,
			Sample: &models.LocationSample{
				DeviceID:   deviceID,
				Latitude:   s.Latitude,
				Longitude:  s.Longitude,
				Speed:      s.Speed * knotsToKmh,
				Heading:    s.Course,
				Quality:    1,
				ObservedAt: composeTime(s.Date, s.Time),
			},
		}, nil
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return Frame{}, fmt.Errorf("%w: GGA sentence without a fix", models.ErrParse)
		}
		accuracy := s.HDOP * hdopMeters
		return Frame{
			DeviceID: deviceID,
			Sample: &models.LocationSample{
				DeviceID:   deviceID,
				Latitude:   s.Latitude,
				Longitude:  s.Longitude,
				Accuracy:   &accuracy,
				Quality:    int(s.NumSatellites),
				ObservedAt: composeTime(nmea.Date{}, s.Time),
			},
		}, nil
	default:
		return Frame{}, fmt.Errorf("%w: unsupported sentence %s", models.ErrParse, sentence.DataType())
	}
}

func decodeLogin(deviceID, rest string) (Frame, error) {
	frame := Frame{DeviceID: deviceID, Login: true}
	for _, field := range strings.Split(strings.TrimPrefix(rest, ","), ",") {
		if value, ok := strings.CutPrefix(field, "fw="); ok {
			frame.Firmware = value
		}
	}
	return frame, nil
}

// composeTime builds a UTC timestamp from NMEA date and time fields.
// GGA sentences carry no date, so the current UTC date is assumed.
func composeTime(d nmea.Date, t nmea.Time) time.Time {
	now := time.Now().UTC()
	if !t.Valid {
		return now
	}

	year, month, day := now.Date()
	if d.Valid {
		year = 2000 + d.YY
		month = time.Month(d.MM)
		day = d.DD
	}

	return time.Date(year, month, day, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
